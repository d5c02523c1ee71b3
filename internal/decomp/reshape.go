package decomp

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/NicolasKol/reforge/internal/envelope"
	"github.com/NicolasKol/reforge/internal/logging"
	"github.com/NicolasKol/reforge/internal/noise"
	"github.com/NicolasKol/reforge/internal/output"
)

var gotoRe = regexp.MustCompile(`\bgoto\b`)

// Result bundles the reshaped outputs of one binary.
type Result struct {
	Report    *Report
	Functions []FunctionRow
	Variables []VariableRow
	Cfgs      []CfgRow
	Calls     []CallRow
}

// Reshaper validates, rebases, and classifies raw decompiler output.
type Reshaper struct {
	profileID             string
	highDecompileFailRate float64
	lists                 *noise.Lists
	logger                *logging.Logger
}

// New creates a reshaper. The noise lists and warning taxonomy are the
// frozen embedded data.
func New(profileID string, highDecompileFailRate float64, logger *logging.Logger) (*Reshaper, error) {
	lists, err := noise.Load()
	if err != nil {
		return nil, err
	}
	if profileID == "" {
		profileID = "decompile-reshape"
	}
	return &Reshaper{
		profileID:             profileID,
		highDecompileFailRate: highDecompileFailRate,
		lists:                 lists,
		logger:                logger,
	}, nil
}

// Run reshapes the raw records for one binary. binarySHA is the content
// hash of the stripped binary the decompiler analyzed; it becomes the
// provenance key of every row.
func (r *Reshaper) Run(summary *RawSummary, raw []RawFunctionRecord, binarySHA string) *Result {
	imageBase := uint64(0)
	if summary.ImageBase != nil {
		imageBase = *summary.ImageBase
	}

	res := &Result{
		Report: &Report{
			Envelope:         envelope.New(PackageName, r.profileID, binarySHA).Stamped(),
			ToolVersion:      summary.ToolVersion,
			ProgramArch:      summary.ProgramArch,
			ImageBase:        imageBase,
			Rebased:          imageBase != 0,
			NoiseListVersion: r.lists.Version,
			Verdict:          "ACCEPT",
			DecompileOK:      summary.DecompileOK,
			DecompileFail:    summary.DecompileFail,
			WarningCounts:    map[string]int{},
		},
	}

	for i := range raw {
		fn := &raw[i]
		rebase(fn, imageBase)

		functionID := fmt.Sprintf("fn@0x%x", fn.EntryVA)
		warnings := r.classifyWarnings(fn.WarningsRaw)

		row := r.reshapeFunction(fn, functionID, binarySHA, warnings)
		res.Functions = append(res.Functions, row)

		res.Variables = append(res.Variables,
			processVariables(fn.Variables, binarySHA, functionID, fn.EntryVA)...)
		res.Cfgs = append(res.Cfgs,
			processCFG(fn.Blocks, warnings, binarySHA, functionID, fn.EntryVA))
		res.Calls = append(res.Calls,
			processCalls(fn.Calls, binarySHA, functionID, fn.EntryVA)...)

		switch row.Verdict {
		case VerdictOK:
			res.Report.NOk++
		case VerdictWarn:
			res.Report.NWarn++
		case VerdictFail:
			res.Report.NFail++
		}
		for _, w := range warnings {
			res.Report.WarningCounts[w]++
		}
	}

	res.Report.NFunctions = len(res.Functions)
	if len(res.Report.WarningCounts) == 0 {
		res.Report.WarningCounts = nil
	}

	total := summary.TotalFunctions
	if total > 0 && float64(summary.DecompileFail)/float64(total) > r.highDecompileFailRate {
		res.Report.Verdict = "WARN"
		res.Report.Reasons = append(res.Report.Reasons, "HIGH_DECOMPILE_FAIL_RATE")
	}

	// Stable call ordering by (caller_entry_va, callsite_va).
	sort.Slice(res.Calls, func(i, j int) bool {
		if res.Calls[i].CallerVA != res.Calls[j].CallerVA {
			return res.Calls[i].CallerVA < res.Calls[j].CallerVA
		}
		return res.Calls[i].CallsiteVA < res.Calls[j].CallsiteVA
	})
	return res
}

// rebase subtracts the loader image base from all virtual addresses so
// they match the raw ELF VAs used by DWARF. Without this every PIE join
// would produce zero overlap.
func rebase(fn *RawFunctionRecord, imageBase uint64) {
	if imageBase == 0 {
		return
	}
	fn.EntryVA -= imageBase
	if fn.BodyStartVA != nil {
		v := *fn.BodyStartVA - imageBase
		fn.BodyStartVA = &v
	}
	if fn.BodyEndVA != nil {
		v := *fn.BodyEndVA - imageBase
		fn.BodyEndVA = &v
	}
	for i := range fn.Blocks {
		fn.Blocks[i].StartVA -= imageBase
		fn.Blocks[i].EndVA -= imageBase
		for s := range fn.Blocks[i].SuccVA {
			fn.Blocks[i].SuccVA[s] -= imageBase
		}
	}
	for i := range fn.Calls {
		fn.Calls[i].CallsiteVA -= imageBase
		if fn.Calls[i].CalleeEntryVA != nil {
			v := *fn.Calls[i].CalleeEntryVA - imageBase
			fn.Calls[i].CalleeEntryVA = &v
		}
	}
	for i := range fn.Variables {
		if fn.Variables[i].AddrVA != nil {
			v := *fn.Variables[i].AddrVA - imageBase
			fn.Variables[i].AddrVA = &v
		}
	}
}

func (r *Reshaper) reshapeFunction(fn *RawFunctionRecord, functionID, binarySHA string, warnings []string) FunctionRow {
	namespace := ""
	if fn.Namespace != nil {
		namespace = *fn.Namespace
	}
	sectionHint := ""
	if fn.SectionHint != nil {
		sectionHint = *fn.SectionHint
	}

	isPlt := r.lists.IsPltOrStub(fn.Name, sectionHint)
	isInitFini := r.lists.IsInitFiniAux(fn.Name)
	isCompilerAux := r.lists.IsCompilerAux(fn.Name)
	isLibraryLike := fn.IsExternalBlock || fn.IsImport || isPlt || isInitFini || isCompilerAux

	cLineCount := 0
	gotoCount := 0
	if fn.CRaw != nil {
		cLineCount = strings.Count(*fn.CRaw, "\n") + 1
		gotoCount = len(gotoRe.FindAllString(*fn.CRaw, -1))
	}

	decompileStatus := "OK"
	if fn.Error != nil && *fn.Error != "" {
		decompileStatus = "FAIL"
	}

	hasBody := fn.BodyStartVA != nil && fn.BodyEndVA != nil

	row := FunctionRow{
		BinarySHA256:    binarySHA,
		FunctionID:      functionID,
		EntryVA:         fn.EntryVA,
		EntryHex:        fmt.Sprintf("0x%x", fn.EntryVA),
		Name:            fn.Name,
		Namespace:       namespace,
		BodyStartVA:     fn.BodyStartVA,
		BodyEndVA:       fn.BodyEndVA,
		SizeBytes:       fn.SizeBytes,
		SectionHint:     sectionHint,
		InsnCount:       fn.InsnCount,
		HasBodyRange:    hasBody,
		IsExternalBlock: fn.IsExternalBlock,
		IsThunk:         fn.IsThunk,
		IsImport:        fn.IsImport,
		IsPltOrStub:     isPlt,
		IsInitFiniAux:   isInitFini,
		IsCompilerAux:   isCompilerAux,
		IsLibraryLike:   isLibraryLike,
		CRaw:            fn.CRaw,
		CLineCount:      cLineCount,
		GotoCount:       gotoCount,
		DecompileStatus: decompileStatus,
		Error:           fn.Error,
		Warnings:        warnings,
	}

	row.Verdict, row.Reasons = judgeFunction(decompileStatus, warnings, hasBody, isLibraryLike)
	return row
}

// judgeFunction assigns OK / WARN / FAIL.
func judgeFunction(decompileStatus string, warnings []string, hasBody, isNoise bool) (FunctionVerdict, []string) {
	var reasons []string
	if decompileStatus == "FAIL" {
		reasons = append(reasons, "DECOMPILE_FAIL")
	}
	for _, w := range warnings {
		if w == "BAD_INSTRUCTION_DATA" {
			reasons = append(reasons, w)
			break
		}
	}
	if !hasBody {
		reasons = append(reasons, "NO_BODY_RANGE")
	}
	if len(reasons) > 0 {
		return VerdictFail, reasons
	}

	structuring := map[string]bool{
		"UNREACHABLE_BLOCKS_REMOVED":    true,
		"TRUNCATED_CONTROL_FLOW":        true,
		"UNRESOLVED_INDIRECT_JUMP":      true,
		"SWITCH_RECOVERY_FAILED":        true,
		"NON_RETURNING_CALL_MISMODELED": true,
		"UNKNOWN_CALLING_CONVENTION":    true,
		"PARAM_STORAGE_LOCKED":          true,
		"DECOMPILER_INTERNAL_WARNING":   true,
		"INLINE_LIKELY":                 true,
		"DECOMPILE_TIMEOUT":             true,
	}
	for _, w := range warnings {
		if structuring[w] {
			reasons = append(reasons, w)
		}
	}
	if isNoise {
		reasons = append(reasons, "NOISE_FUNCTION")
	}
	if len(reasons) > 0 {
		return VerdictWarn, reasons
	}
	return VerdictOK, nil
}

// classifyWarnings maps raw warning text into the frozen taxonomy. Codes
// already in the taxonomy pass through; free-text warnings match by
// substring; everything else becomes DECOMPILER_INTERNAL_WARNING.
func (r *Reshaper) classifyWarnings(raw []string) []string {
	var out []string
	for _, w := range raw {
		out = append(out, r.classifyWarning(w))
	}
	return dedupeStrings(out)
}

var warningPatterns = []struct {
	substr string
	code   string
}{
	{"timed out", "DECOMPILE_TIMEOUT"},
	{"timeout", "DECOMPILE_TIMEOUT"},
	{"unknown calling convention", "UNKNOWN_CALLING_CONVENTION"},
	{"storage is locked", "PARAM_STORAGE_LOCKED"},
	{"removing unreachable", "UNREACHABLE_BLOCKS_REMOVED"},
	{"unreachable", "UNREACHABLE_BLOCKS_REMOVED"},
	{"bad instruction", "BAD_INSTRUCTION_DATA"},
	{"truncat", "TRUNCATED_CONTROL_FLOW"},
	{"indirect jump", "UNRESOLVED_INDIRECT_JUMP"},
	{"computed jump", "UNRESOLVED_INDIRECT_JUMP"},
	{"does not return", "NON_RETURNING_CALL_MISMODELED"},
	{"switch", "SWITCH_RECOVERY_FAILED"},
	{"inline", "INLINE_LIKELY"},
}

func (r *Reshaper) classifyWarning(w string) string {
	if r.lists.IsKnownWarning(w) {
		return w
	}
	lower := strings.ToLower(w)
	for _, p := range warningPatterns {
		if strings.Contains(lower, p.substr) {
			return p.code
		}
	}
	return "DECOMPILER_INTERNAL_WARNING"
}

func processCalls(raw []RawCall, binarySHA, callerID string, callerVA uint64) []CallRow {
	rows := make([]CallRow, 0, len(raw))
	for _, c := range raw {
		kind := CallDirect
		if c.CallKind == string(CallIndirect) {
			kind = CallIndirect
		}
		rows = append(rows, CallRow{
			BinarySHA256:        binarySHA,
			CallerID:            callerID,
			CallerVA:            callerVA,
			CallsiteVA:          c.CallsiteVA,
			CallKind:            kind,
			CalleeEntryVA:       c.CalleeEntryVA,
			CalleeName:          c.CalleeName,
			IsExternalTarget:    c.IsExternalTarget,
			IsImportProxyTarget: c.IsImportProxyTarget,
		})
	}
	return rows
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Write persists the reshape outputs into dir: report.json plus the four
// jsonl row files.
func (res *Result) Write(dir string) error {
	rows := func(n int, get func(int) interface{}) []interface{} {
		out := make([]interface{}, n)
		for i := 0; i < n; i++ {
			out[i] = get(i)
		}
		return out
	}

	if err := output.WriteJSONLAtomic(filepath.Join(dir, "functions.jsonl"),
		rows(len(res.Functions), func(i int) interface{} { return res.Functions[i] })); err != nil {
		return err
	}
	if err := output.WriteJSONLAtomic(filepath.Join(dir, "variables.jsonl"),
		rows(len(res.Variables), func(i int) interface{} { return res.Variables[i] })); err != nil {
		return err
	}
	if err := output.WriteJSONLAtomic(filepath.Join(dir, "cfg.jsonl"),
		rows(len(res.Cfgs), func(i int) interface{} { return res.Cfgs[i] })); err != nil {
		return err
	}
	if err := output.WriteJSONLAtomic(filepath.Join(dir, "calls.jsonl"),
		rows(len(res.Calls), func(i int) interface{} { return res.Calls[i] })); err != nil {
		return err
	}
	return output.WriteJSONAtomic(filepath.Join(dir, "report.json"), res.Report)
}
