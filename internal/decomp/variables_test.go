package decomp

import (
	"strings"
	"testing"
)

func i64(v int64) *int64   { return &v }
func u64(v uint64) *uint64 { return &v }
func str(s string) *string { return &s }

func TestComputeStorageKey(t *testing.T) {
	tests := []struct {
		name string
		v    RawVariable
		want string
	}{
		{
			name: "stack negative offset",
			v:    RawVariable{Name: "x", StorageClass: "STACK", StackOffset: i64(-24)},
			want: "stack:off:-0x18",
		},
		{
			name: "stack positive offset",
			v:    RawVariable{Name: "x", StorageClass: "STACK", StackOffset: i64(8)},
			want: "stack:off:+0x8",
		},
		{
			name: "register",
			v:    RawVariable{Name: "x", StorageClass: "REGISTER", RegisterName: str("RDI")},
			want: "reg:RDI",
		},
		{
			name: "memory",
			v:    RawVariable{Name: "g", StorageClass: "MEMORY", AddrVA: u64(0x404040)},
			want: "mem:0x404040",
		},
		{
			name: "unique",
			v:    RawVariable{Name: "uVar1", StorageClass: "UNIQUE"},
			want: "uniq:uVar1",
		},
		{
			name: "unknown fallback",
			v:    RawVariable{Name: "mystery", StorageClass: "SOMETHING_ELSE"},
			want: "unk:mystery",
		},
		{
			name: "stack without offset falls back",
			v:    RawVariable{Name: "s", StorageClass: "STACK"},
			want: "unk:s",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := computeStorageKey(&tt.v); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyVarKind(t *testing.T) {
	tests := []struct {
		name string
		v    RawVariable
		want VarKind
	}{
		{"param", RawVariable{Name: "a", IsParam: true, StorageClass: "REGISTER"}, VarParam},
		{"global ref", RawVariable{Name: "g", StorageClass: "MEMORY", AddrVA: u64(0x1000)}, VarGlobalRef},
		{"unique temp", RawVariable{Name: "t", StorageClass: "UNIQUE"}, VarTemp},
		{"named temp", RawVariable{Name: "uVar3", StorageClass: "REGISTER"}, VarTemp},
		{"local", RawVariable{Name: "count", StorageClass: "STACK", StackOffset: i64(-8)}, VarLocal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyVarKind(&tt.v); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestComputeAccessSig(t *testing.T) {
	// Order-insensitive over access sites.
	a := computeAccessSig([]int64{0x30, 0x10, 0x20}, "k")
	b := computeAccessSig([]int64{0x10, 0x20, 0x30}, "k")
	if a != b {
		t.Error("access sig depends on site order")
	}
	if len(a) != 16 {
		t.Errorf("sig length = %d, want 16", len(a))
	}

	// Fallback on storage key when no sites.
	c := computeAccessSig(nil, "stack:off:-0x8")
	d := computeAccessSig(nil, "stack:off:-0x10")
	if c == d {
		t.Error("fallback sigs collide across storage keys")
	}
}

func TestProcessVariablesSortedAndStableIDs(t *testing.T) {
	raw := []RawVariable{
		{Name: "z_local", StorageClass: "STACK", StackOffset: i64(-16), AccessSites: []int64{1}},
		{Name: "a_param", IsParam: true, StorageClass: "REGISTER", RegisterName: str("RDI"), AccessSites: []int64{2}},
		{Name: "uVar1", StorageClass: "UNIQUE"},
	}
	rows := processVariables(raw, "sha", "fn@0x1149", 0x1149)

	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	// Sorted by (var_kind, storage_key): LOCAL < PARAM < TEMP.
	if rows[0].VarKind != VarLocal || rows[1].VarKind != VarParam || rows[2].VarKind != VarTemp {
		t.Errorf("order = %s, %s, %s", rows[0].VarKind, rows[1].VarKind, rows[2].VarKind)
	}
	for _, row := range rows {
		if !strings.HasPrefix(row.VarID, "fn@0x1149:") {
			t.Errorf("var_id = %s", row.VarID)
		}
		wantSuffix := string(row.VarKind) + ":" + row.StorageKey + ":" + row.AccessSig
		if !strings.HasSuffix(row.VarID, wantSuffix) {
			t.Errorf("var_id %s missing suffix %s", row.VarID, wantSuffix)
		}
	}
	if !rows[2].IsTempSingleton {
		t.Error("unique temp not flagged as singleton")
	}
}
