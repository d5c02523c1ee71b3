package noise

import (
	"testing"
)

func TestLoad(t *testing.T) {
	lists, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if lists.Version == "" {
		t.Error("version missing")
	}
	if len(lists.CompilerAuxNames) == 0 || len(lists.AuxInitFiniNames) == 0 {
		t.Error("noise lists empty")
	}
}

func TestNormalizeGlibcName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"__cxa_finalize@@GLIBC_2.17", "__cxa_finalize"},
		{"__cxa_finalize", "__cxa_finalize"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := NormalizeGlibcName(tt.in); got != tt.want {
			t.Errorf("NormalizeGlibcName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsAuxName(t *testing.T) {
	lists, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		want bool
	}{
		{"_init", true},
		{"_start", true},
		{"frame_dummy", true},
		{"__cxa_finalize@@GLIBC_2.17", true},
		{"main", false},
		{"add", false},
	}
	for _, tt := range tests {
		if got := lists.IsAuxName(tt.name); got != tt.want {
			t.Errorf("IsAuxName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsPltOrStub(t *testing.T) {
	lists, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if !lists.IsPltOrStub("printf", ".plt.sec") {
		t.Error("plt section prefix not detected")
	}
	if !lists.IsPltOrStub("FUN_00101149", "") {
		t.Error("FUN_ stub prefix not detected")
	}
	if lists.IsPltOrStub("main", ".text") {
		t.Error("false positive on .text function")
	}
}

func TestFatalWarnings(t *testing.T) {
	lists, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if !lists.IsFatalWarning("DECOMPILE_TIMEOUT") {
		t.Error("DECOMPILE_TIMEOUT must be fatal")
	}
	if !lists.IsFatalWarning("UNRESOLVED_INDIRECT_JUMP") {
		t.Error("UNRESOLVED_INDIRECT_JUMP must be fatal")
	}
	if lists.IsFatalWarning("INLINE_LIKELY") {
		t.Error("INLINE_LIKELY must not be fatal")
	}
}

func TestKnownWarningTaxonomy(t *testing.T) {
	lists, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	for _, code := range []string{
		"DECOMPILE_TIMEOUT", "UNKNOWN_CALLING_CONVENTION",
		"UNREACHABLE_BLOCKS_REMOVED", "SWITCH_RECOVERY_FAILED",
	} {
		if !lists.IsKnownWarning(code) {
			t.Errorf("taxonomy missing %s", code)
		}
	}
	if lists.IsKnownWarning("MADE_UP_CODE") {
		t.Error("unknown code accepted")
	}
}
