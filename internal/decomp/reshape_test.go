package decomp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/NicolasKol/reforge/internal/logging"
)

func testReshaper(t *testing.T) *Reshaper {
	t.Helper()
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	r, err := New("", 0.25, logger)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRebaseSubtractsImageBase(t *testing.T) {
	base := uint64(0x100000)
	summary := &RawSummary{ImageBase: &base}
	raw := []RawFunctionRecord{
		{
			EntryVA:     0x101149,
			Name:        "main",
			BodyStartVA: u64(0x101149),
			BodyEndVA:   u64(0x101180),
			Blocks: []RawBlock{
				{BlockID: 0, StartVA: 0x101149, EndVA: 0x101160, SuccVA: []uint64{0x101160}},
				{BlockID: 1, StartVA: 0x101160, EndVA: 0x101180},
			},
			Calls: []RawCall{
				{CallsiteVA: 0x101155, CallKind: "DIRECT", CalleeEntryVA: u64(0x101040)},
			},
		},
	}

	res := testReshaper(t).Run(summary, raw, "sha-stripped")

	fn := res.Functions[0]
	if fn.EntryVA != 0x1149 {
		t.Errorf("entry_va = %#x, want 0x1149", fn.EntryVA)
	}
	if *fn.BodyStartVA != 0x1149 || *fn.BodyEndVA != 0x1180 {
		t.Errorf("body = [%#x, %#x)", *fn.BodyStartVA, *fn.BodyEndVA)
	}
	if res.Cfgs[0].Blocks[0].StartVA != 0x1149 {
		t.Errorf("block start = %#x", res.Cfgs[0].Blocks[0].StartVA)
	}
	if res.Calls[0].CallsiteVA != 0x1155 || *res.Calls[0].CalleeEntryVA != 0x1040 {
		t.Errorf("call = %#x → %#x", res.Calls[0].CallsiteVA, *res.Calls[0].CalleeEntryVA)
	}
	if !res.Report.Rebased || res.Report.ImageBase != base {
		t.Errorf("report rebase = %v base = %#x", res.Report.Rebased, res.Report.ImageBase)
	}
}

func TestClassifyWarnings(t *testing.T) {
	r := testReshaper(t)
	tests := []struct {
		in   string
		want string
	}{
		{"DECOMPILE_TIMEOUT", "DECOMPILE_TIMEOUT"},
		{"Decompilation timed out after 30s", "DECOMPILE_TIMEOUT"},
		{"unknown calling convention for func", "UNKNOWN_CALLING_CONVENTION"},
		{"Removing unreachable block (ram,0x1234)", "UNREACHABLE_BLOCKS_REMOVED"},
		{"could not recover switch at 0x5678", "SWITCH_RECOVERY_FAILED"},
		{"unresolved indirect jump at 0x9abc", "UNRESOLVED_INDIRECT_JUMP"},
		{"something completely novel", "DECOMPILER_INTERNAL_WARNING"},
	}
	for _, tt := range tests {
		if got := r.classifyWarning(tt.in); got != tt.want {
			t.Errorf("classifyWarning(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestJudgeFunctionVerdicts(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		warns   []string
		hasBody bool
		isNoise bool
		want    FunctionVerdict
	}{
		{"clean", "OK", nil, true, false, VerdictOK},
		{"decompile fail", "FAIL", nil, true, false, VerdictFail},
		{"no body", "OK", nil, false, false, VerdictFail},
		{"bad instruction data", "OK", []string{"BAD_INSTRUCTION_DATA"}, true, false, VerdictFail},
		{"structuring warning", "OK", []string{"SWITCH_RECOVERY_FAILED"}, true, false, VerdictWarn},
		{"noise", "OK", nil, true, true, VerdictWarn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := judgeFunction(tt.status, tt.warns, tt.hasBody, tt.isNoise)
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNoiseFlags(t *testing.T) {
	raw := []RawFunctionRecord{
		{EntryVA: 0x1000, Name: "frame_dummy", BodyStartVA: u64(0x1000), BodyEndVA: u64(0x1010)},
		{EntryVA: 0x1020, Name: "printf", SectionHint: str(".plt.sec"), BodyStartVA: u64(0x1020), BodyEndVA: u64(0x1028)},
		{EntryVA: 0x1149, Name: "FUN_00001149", BodyStartVA: u64(0x1149), BodyEndVA: u64(0x1180)},
	}
	res := testReshaper(t).Run(&RawSummary{}, raw, "sha")

	byName := map[string]*FunctionRow{}
	for i := range res.Functions {
		byName[res.Functions[i].Name] = &res.Functions[i]
	}
	if !byName["frame_dummy"].IsCompilerAux || !byName["frame_dummy"].IsLibraryLike {
		t.Error("frame_dummy not flagged as compiler aux")
	}
	if !byName["printf"].IsPltOrStub {
		t.Error("plt section not flagged")
	}
	if !byName["FUN_00001149"].IsPltOrStub {
		t.Error("FUN_ stub prefix not flagged")
	}
}

func TestGotoCountFromDecompiledC(t *testing.T) {
	c := "void f(void) {\n  goto out;\nout:\n  return;\n}\n"
	raw := []RawFunctionRecord{
		{EntryVA: 0x10, Name: "f", BodyStartVA: u64(0x10), BodyEndVA: u64(0x20), CRaw: &c},
	}
	res := testReshaper(t).Run(&RawSummary{}, raw, "sha")
	if res.Functions[0].GotoCount != 1 {
		t.Errorf("goto_count = %d, want 1", res.Functions[0].GotoCount)
	}
}

func TestParseRawJSONL(t *testing.T) {
	content := `{"_type":"function","entry_va":4400,"name":"b"}
{"_type":"function","entry_va":4096,"name":"a"}
not json at all
{"_type":"summary","tool_version":"11.0","total_functions":2,"decompile_ok":2,"image_base":1048576}
`
	dir := t.TempDir()
	path := filepath.Join(dir, "raw.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	summary, funcs, err := ParseRawJSONL(path, logger)
	if err != nil {
		t.Fatal(err)
	}
	if summary.ToolVersion != "11.0" {
		t.Errorf("tool_version = %s", summary.ToolVersion)
	}
	if summary.ImageBase == nil || *summary.ImageBase != 1048576 {
		t.Errorf("image_base = %v", summary.ImageBase)
	}
	// Malformed line skipped; functions sorted by entry VA.
	if len(funcs) != 2 {
		t.Fatalf("functions = %d", len(funcs))
	}
	if funcs[0].Name != "a" || funcs[1].Name != "b" {
		t.Errorf("order = %s, %s", funcs[0].Name, funcs[1].Name)
	}
}

func TestHighDecompileFailRateWarns(t *testing.T) {
	summary := &RawSummary{TotalFunctions: 10, DecompileFail: 5}
	res := testReshaper(t).Run(summary, nil, "sha")
	if res.Report.Verdict != "WARN" {
		t.Errorf("verdict = %s, want WARN", res.Report.Verdict)
	}
}
