package tsoracle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/NicolasKol/reforge/internal/logging"
)

func testOracle() *Oracle {
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	return New(DefaultProfile(), logger)
}

func writeTU(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const simpleTU = `int add(int a, int b) { return a + b; }

int main(void) {
	int x = add(2, 3);
	if (x > 0) {
		return 0;
	}
	return 1;
}
`

func TestRunIndexesFunctions(t *testing.T) {
	dir := t.TempDir()
	path := writeTU(t, dir, "simple.i", simpleTU)

	report, doc, recipes := testOracle().Run(context.Background(), []string{path})

	if len(report.TuReports) != 1 {
		t.Fatalf("tu reports = %d", len(report.TuReports))
	}
	tu := report.TuReports[0]
	if tu.ParseStatus != "OK" {
		t.Fatalf("parse status = %s, errors = %v", tu.ParseStatus, tu.ParseErrors)
	}
	if tu.NFunctions != 2 {
		t.Fatalf("n_functions = %d, want 2", tu.NFunctions)
	}

	names := map[string]*FunctionEntry{}
	for i := range doc.Functions {
		names[doc.Functions[i].Name] = &doc.Functions[i]
	}
	add, ok := names["add"]
	if !ok {
		t.Fatal("function add not indexed")
	}
	if add.Verdict != VerdictAccept {
		t.Errorf("add verdict = %s, reasons %v", add.Verdict, add.Reasons)
	}
	if add.StartByte >= add.EndByte {
		t.Errorf("invalid span: [%d, %d)", add.StartByte, add.EndByte)
	}
	if add.BodySpan.StartByte <= add.SignatureSpan.StartByte {
		t.Errorf("body span does not follow signature: %+v vs %+v", add.BodySpan, add.SignatureSpan)
	}

	main, ok := names["main"]
	if !ok {
		t.Fatal("function main not indexed")
	}
	// main contains compound, if, and return nodes from the allowlist.
	kinds := map[string]bool{}
	for _, n := range main.Nodes {
		kinds[n.NodeType] = true
	}
	for _, want := range []string{"compound_statement", "if_statement", "return_statement"} {
		if !kinds[want] {
			t.Errorf("structural node %s not indexed (got %v)", want, kinds)
		}
	}

	// Two recipes per function.
	if len(recipes.Recipes) != 4 {
		t.Errorf("recipes = %d, want 4", len(recipes.Recipes))
	}
}

func TestTsFuncIDFormat(t *testing.T) {
	dir := t.TempDir()
	path := writeTU(t, dir, "one.i", "int f(void) { return 1; }\n")

	_, doc, _ := testOracle().Run(context.Background(), []string{path})
	if len(doc.Functions) != 1 {
		t.Fatalf("functions = %d", len(doc.Functions))
	}
	fn := doc.Functions[0]

	wantPrefix := path + ":"
	if len(fn.TsFuncID) <= len(wantPrefix) || fn.TsFuncID[:len(wantPrefix)] != wantPrefix {
		t.Errorf("ts_func_id = %s, want prefix %s", fn.TsFuncID, wantPrefix)
	}
	if fn.SpanID+":"+fn.ContextHash != fn.TsFuncID {
		t.Errorf("ts_func_id != span_id:context_hash: %s", fn.TsFuncID)
	}
}

func TestDuplicateFunctionNameWarns(t *testing.T) {
	// The C grammar accepts two same-named definitions syntactically.
	tu := "int f(void) { return 1; }\nint f(void) { return 2; }\n"
	dir := t.TempDir()
	path := writeTU(t, dir, "dup.i", tu)

	_, doc, _ := testOracle().Run(context.Background(), []string{path})
	if len(doc.Functions) != 2 {
		t.Fatalf("functions = %d, want 2", len(doc.Functions))
	}
	for _, fn := range doc.Functions {
		if fn.Verdict != VerdictWarn {
			t.Errorf("verdict = %s, want WARN", fn.Verdict)
		}
		if fn.Reasons[0] != ReasonDuplicateFunctionName {
			t.Errorf("reasons = %v", fn.Reasons)
		}
	}
}

func TestNonstandardExtensionWarn(t *testing.T) {
	tu := "int f(void) { __asm__(\"nop\"); return 1; }\n"
	dir := t.TempDir()
	path := writeTU(t, dir, "ext.i", tu)

	_, doc, _ := testOracle().Run(context.Background(), []string{path})
	if len(doc.Functions) != 1 {
		t.Fatalf("functions = %d", len(doc.Functions))
	}
	found := false
	for _, r := range doc.Functions[0].Reasons {
		if r == ReasonNonstandardExtension {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons = %v, want NONSTANDARD_EXTENSION_PATTERN", doc.Functions[0].Reasons)
	}
}

func TestUnreadableTUIsRejectedNotFatal(t *testing.T) {
	report, doc, _ := testOracle().Run(context.Background(), []string{"/nonexistent/x.i"})
	if len(report.TuReports) != 1 {
		t.Fatalf("tu reports = %d", len(report.TuReports))
	}
	if report.TuReports[0].Verdict != VerdictReject {
		t.Errorf("verdict = %s, want REJECT", report.TuReports[0].Verdict)
	}
	if len(doc.Functions) != 0 {
		t.Errorf("functions = %d, want 0", len(doc.Functions))
	}
}

func TestPointerDeclaratorName(t *testing.T) {
	tu := "char *dup_name(const char *s) { return 0; }\n"
	dir := t.TempDir()
	path := writeTU(t, dir, "ptr.i", tu)

	_, doc, _ := testOracle().Run(context.Background(), []string{path})
	if len(doc.Functions) != 1 || doc.Functions[0].Name != "dup_name" {
		t.Errorf("functions = %+v", doc.Functions)
	}
}
