package dwarforacle

import (
	"reflect"
	"testing"

	"github.com/NicolasKol/reforge/internal/logging"
)

func testOracle() *Oracle {
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	return New(DefaultProfile(), logger)
}

func TestJudgeRejects(t *testing.T) {
	o := testOracle()

	tests := []struct {
		name  string
		fn    FunctionEntry
		nSegs int
		span  lineSpan
		want  []string
	}{
		{
			name: "declaration only",
			fn:   FunctionEntry{Name: "f", IsDeclaration: true},
			want: []string{ReasonDeclarationOnly},
		},
		{
			name: "missing range",
			fn:   FunctionEntry{Name: "f"},
			want: []string{ReasonMissingRange},
		},
		{
			name:  "no line rows in range",
			fn:    FunctionEntry{Name: "f"},
			nSegs: 1,
			span:  lineSpan{},
			want:  []string{ReasonNoLineRowsInRange},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, reasons := o.judge(&tt.fn, tt.nSegs, tt.span)
			if verdict != VerdictReject {
				t.Errorf("verdict = %s, want REJECT", verdict)
			}
			if !reflect.DeepEqual(reasons, tt.want) {
				t.Errorf("reasons = %v, want %v", reasons, tt.want)
			}
		})
	}
}

func TestJudgeWarns(t *testing.T) {
	o := testOracle()

	okSpan := lineSpan{dominantFile: "main.c", dominantFileRatio: 1.0, nLineRows: 3}

	tests := []struct {
		name  string
		fn    FunctionEntry
		nSegs int
		span  lineSpan
		want  string
	}{
		{
			name:  "name missing",
			fn:    FunctionEntry{},
			nSegs: 1,
			span:  okSpan,
			want:  ReasonNameMissing,
		},
		{
			name:  "multi file range",
			fn:    FunctionEntry{Name: "f"},
			nSegs: 1,
			span:  lineSpan{dominantFile: "main.c", dominantFileRatio: 0.5, nLineRows: 4},
			want:  ReasonMultiFileRange,
		},
		{
			name:  "system header dominant",
			fn:    FunctionEntry{Name: "f"},
			nSegs: 1,
			span:  lineSpan{dominantFile: "/usr/include/stdlib.h", dominantFileRatio: 1.0, nLineRows: 2},
			want:  ReasonSystemHeaderDominant,
		},
		{
			name:  "fragmented ranges",
			fn:    FunctionEntry{Name: "f"},
			nSegs: 3,
			span:  okSpan,
			want:  ReasonRangesFragmented,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, reasons := o.judge(&tt.fn, tt.nSegs, tt.span)
			if verdict != VerdictWarn {
				t.Fatalf("verdict = %s, want WARN (reasons %v)", verdict, reasons)
			}
			found := false
			for _, r := range reasons {
				if r == tt.want {
					found = true
				}
			}
			if !found {
				t.Errorf("reasons = %v, want to contain %s", reasons, tt.want)
			}
		})
	}
}

func TestJudgeAccept(t *testing.T) {
	o := testOracle()
	fn := FunctionEntry{Name: "add"}
	span := lineSpan{dominantFile: "add.c", dominantFileRatio: 1.0, nLineRows: 4}

	verdict, reasons := o.judge(&fn, 1, span)
	if verdict != VerdictAccept {
		t.Errorf("verdict = %s (reasons %v), want ACCEPT", verdict, reasons)
	}
	if len(reasons) != 0 {
		t.Errorf("reasons = %v, want empty", reasons)
	}
}

func TestLinkageNameSuppressesNameMissing(t *testing.T) {
	o := testOracle()
	fn := FunctionEntry{LinkageName: "_Zmangled"}
	span := lineSpan{dominantFile: "x.c", dominantFileRatio: 1.0, nLineRows: 1}

	verdict, _ := o.judge(&fn, 1, span)
	if verdict != VerdictAccept {
		t.Errorf("verdict = %s, want ACCEPT when linkage name present", verdict)
	}
}

func TestStableIdentity(t *testing.T) {
	fn := FunctionEntry{
		FunctionID: "cu0x0:die0x2a",
		Name:       "report",
		DeclFile:   "util.c",
		DeclLine:   10,
		DeclColumn: 12,
	}
	got := fn.StableIdentity("t04")
	want := "t04:util.c:10:12:report"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	// Missing decl_file must mark the identity unresolved.
	fn.DeclFile = ""
	if id := fn.StableIdentity("t04"); id[:10] != "UNRESOLVED" {
		t.Errorf("expected UNRESOLVED prefix, got %s", id)
	}

	// Anonymous functions get an explicit placeholder, never dropped.
	anon := FunctionEntry{FunctionID: "cu0x0:die0x99", DeclFile: "a.c", DeclLine: 1}
	if id := anon.StableIdentity("t"); id != "t:a.c:1:0:<anon@cu0x0:die0x99>" {
		t.Errorf("anon identity = %s", id)
	}
}

func TestBinaryGateRejectsNonElf(t *testing.T) {
	o := testOracle()
	dir := t.TempDir()
	path := dir + "/not_elf"
	if err := writeFile(path, []byte("plain text, no ELF magic")); err != nil {
		t.Fatal(err)
	}

	report, doc := o.Run(path)
	if report.Verdict != VerdictReject {
		t.Fatalf("verdict = %s, want REJECT", report.Verdict)
	}
	if report.Reasons[0] != ReasonNotElf {
		t.Errorf("reasons = %v", report.Reasons)
	}
	if len(doc.Functions) != 0 {
		t.Errorf("function extraction not short-circuited: %d entries", len(doc.Functions))
	}
}
