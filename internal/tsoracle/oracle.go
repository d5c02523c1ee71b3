package tsoracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"

	"github.com/NicolasKol/reforge/internal/envelope"
	"github.com/NicolasKol/reforge/internal/logging"
	"github.com/NicolasKol/reforge/internal/output"
)

// parserVersion records the grammar binding for provenance.
const parserVersion = "go-tree-sitter; grammar=c"

// Oracle parses preprocessed translation units and indexes functions.
type Oracle struct {
	profile Profile
	logger  *logging.Logger
}

// New creates a tree-sitter oracle.
func New(profile Profile, logger *logging.Logger) *Oracle {
	return &Oracle{profile: profile, logger: logger}
}

// Run parses every .i path and produces the report, function index, and
// extraction recipes. A TU that fails to read is recorded as a REJECT TU
// report; the stage continues with the rest.
func (o *Oracle) Run(ctx context.Context, iPaths []string) (*Report, *FunctionsDoc, *RecipesDoc) {
	report := &Report{
		Envelope:      envelope.New(PackageName, o.profile.ProfileID, "").Stamped(),
		ParserVersion: parserVersion,
	}
	doc := &FunctionsDoc{Envelope: envelope.New(PackageName, o.profile.ProfileID, "")}
	recipes := &RecipesDoc{Envelope: envelope.New(PackageName, o.profile.ProfileID, "")}

	sorted := append([]string(nil), iPaths...)
	sort.Strings(sorted)

	parser := sitter.NewParser()
	parser.SetLanguage(c.GetLanguage())

	for _, path := range sorted {
		tuReport, funcs := o.runTU(ctx, parser, path)
		report.TuReports = append(report.TuReports, tuReport)

		for _, fn := range funcs {
			doc.Functions = append(doc.Functions, fn)
			recipes.Recipes = append(recipes.Recipes, buildRecipes(fn)...)
			switch fn.Verdict {
			case VerdictAccept:
				report.NAccept++
			case VerdictWarn:
				report.NWarn++
			case VerdictReject:
				report.NReject++
			}
		}
	}

	report.NFunctions = len(doc.Functions)
	return report, doc, recipes
}

func (o *Oracle) runTU(ctx context.Context, parser *sitter.Parser, path string) (TuReport, []FunctionEntry) {
	tuPath := path
	tuReport := TuReport{TuPath: tuPath, ParseStatus: "OK", Verdict: VerdictAccept}

	source, err := os.ReadFile(path)
	if err != nil {
		o.logger.Warn("tu unreadable", map[string]interface{}{"tu": path, "error": err.Error()})
		tuReport.ParseStatus = "ERROR"
		tuReport.Verdict = VerdictReject
		tuReport.Reasons = []string{ReasonTuParseError}
		return tuReport, nil
	}

	sum := sha256.Sum256(source)
	tuReport.TuHash = hex.EncodeToString(sum[:])

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		tuReport.ParseStatus = "ERROR"
		tuReport.Verdict = VerdictReject
		tuReport.Reasons = []string{ReasonTuParseError}
		return tuReport, nil
	}
	root := tree.RootNode()

	errors := collectParseErrors(root)
	if len(errors) > 0 {
		tuReport.ParseStatus = "ERROR"
		tuReport.ParseErrors = errors
		tuReport.Reasons = []string{ReasonTuParseError}
		// A partial parse is still usable: only a TU whose root parsed
		// to nothing is rejected outright.
		if root.ChildCount() == 0 {
			tuReport.Verdict = VerdictReject
			return tuReport, nil
		}
		tuReport.Verdict = VerdictWarn
	}

	funcs := indexFunctions(root, source, tuPath, o.profile.DeepNestingThreshold)
	tuReport.NFunctions = len(funcs)

	// Duplicate-name detection within the TU.
	nameCounts := make(map[string]int)
	for _, fn := range funcs {
		if fn.Name != "" {
			nameCounts[fn.Name]++
		}
	}

	for i := range funcs {
		o.judge(&funcs[i], nameCounts, source, root)
	}
	return tuReport, funcs
}

// judge assigns the per-function verdict.
func (o *Oracle) judge(fn *FunctionEntry, nameCounts map[string]int, source []byte, root *sitter.Node) {
	if fn.StartByte >= fn.EndByte {
		fn.Verdict = VerdictReject
		fn.Reasons = []string{ReasonInvalidSpan}
		return
	}
	if fn.Name == "" {
		fn.Verdict = VerdictReject
		fn.Reasons = []string{ReasonMissingFunctionName}
		return
	}

	var warns []string
	if nameCounts[fn.Name] > 1 {
		warns = append(warns, ReasonDuplicateFunctionName)
	}
	if maxNodeDepth(fn.Nodes) >= o.profile.DeepNestingThreshold {
		warns = append(warns, ReasonDeepNesting)
	}
	if fnNode := findFunctionNode(root, fn.StartByte, fn.EndByte); fnNode != nil && hasAnonymousAggregate(fnNode) {
		warns = append(warns, ReasonAnonymousAggregate)
	}
	if hasNonstandardExtension(source[fn.StartByte:fn.EndByte]) {
		warns = append(warns, ReasonNonstandardExtension)
	}

	if len(warns) > 0 {
		fn.Verdict = VerdictWarn
		fn.Reasons = warns
		return
	}
	fn.Verdict = VerdictAccept
}

// findFunctionNode relocates the function_definition node by its span.
func findFunctionNode(root *sitter.Node, startByte, endByte int) *sitter.Node {
	for i := 0; i < int(root.ChildCount()); i++ {
		node := root.Child(i)
		if node.Type() == "function_definition" &&
			int(node.StartByte()) == startByte && int(node.EndByte()) == endByte {
			return node
		}
	}
	return nil
}

var extensionMarkers = []string{
	"__attribute__", "__asm__", "__asm", "__extension__",
	"__typeof__", "__builtin_", "_Pragma",
}

func hasNonstandardExtension(funcText []byte) bool {
	text := string(funcText)
	for _, m := range extensionMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// collectParseErrors walks the tree for ERROR and MISSING nodes.
func collectParseErrors(node *sitter.Node) []ParseErrorLoc {
	var errors []ParseErrorLoc
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "ERROR" || n.IsMissing() {
			msg := "ERROR"
			if n.IsMissing() {
				msg = fmt.Sprintf("MISSING(%s)", n.Type())
			}
			errors = append(errors, ParseErrorLoc{
				Line:    int(n.StartPoint().Row),
				Column:  int(n.StartPoint().Column),
				Message: msg,
			})
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(node)
	return errors
}

// buildRecipes emits the two deterministic slice descriptors per function.
func buildRecipes(fn FunctionEntry) []Recipe {
	funcSpan := Span{
		StartByte: fn.StartByte, EndByte: fn.EndByte,
		StartLine: fn.StartLine, EndLine: fn.EndLine,
	}
	return []Recipe{
		{
			TsFuncID: fn.TsFuncID,
			TuPath:   fn.TuPath,
			Kind:     RecipeFunctionOnly,
			Spans:    []Span{funcSpan},
		},
		{
			TsFuncID: fn.TsFuncID,
			TuPath:   fn.TuPath,
			Kind:     RecipeWithFilePreamble,
			Spans:    []Span{fn.PreambleSpan, funcSpan},
		},
	}
}

// Write persists the three oracle outputs atomically.
func Write(reportPath, functionsPath, recipesPath string, report *Report, doc *FunctionsDoc, recipes *RecipesDoc) error {
	if err := output.WriteJSONAtomic(functionsPath, doc); err != nil {
		return err
	}
	if err := output.WriteJSONAtomic(recipesPath, recipes); err != nil {
		return err
	}
	return output.WriteJSONAtomic(reportPath, report)
}
