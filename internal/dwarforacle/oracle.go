package dwarforacle

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"sort"
	"strings"

	"github.com/NicolasKol/reforge/internal/elfmeta"
	"github.com/NicolasKol/reforge/internal/envelope"
	"github.com/NicolasKol/reforge/internal/logging"
	"github.com/NicolasKol/reforge/internal/output"
)

// Oracle extracts the DWARF function index from a debug ELF.
type Oracle struct {
	profile Profile
	logger  *logging.Logger
}

// New creates an oracle with the given profile.
func New(profile Profile, logger *logging.Logger) *Oracle {
	return &Oracle{profile: profile, logger: logger}
}

// Run gates the binary and, if accepted, extracts and judges every
// subprogram DIE. A binary-level REJECT short-circuits extraction; the
// report still carries the reasons and the functions document is empty.
func (o *Oracle) Run(binaryPath string) (*Report, *FunctionsDoc) {
	report := &Report{
		Envelope: envelope.New(PackageName, o.profile.ProfileID, "").Stamped(),
		Verdict:  VerdictAccept,
	}
	doc := &FunctionsDoc{
		Envelope: envelope.New(PackageName, o.profile.ProfileID, ""),
	}

	// ── Binary gate ──────────────────────────────────────────────────
	if !elfmeta.IsELF(binaryPath) {
		report.Verdict = VerdictReject
		report.Reasons = []string{ReasonNotElf}
		return report, doc
	}

	meta, err := elfmeta.Read(binaryPath)
	if err != nil {
		report.Verdict = VerdictReject
		report.Reasons = []string{ReasonNotElf}
		return report, doc
	}

	report.BinarySHA256 = meta.FileSHA256
	report.BuildID = meta.BuildID
	doc.BinarySHA256 = meta.FileSHA256
	doc.BuildID = meta.BuildID

	var gateReasons []string
	if !meta.HasDebugInfo {
		gateReasons = append(gateReasons, ReasonNoDebugInfo)
	}
	if !meta.HasDebugLine {
		gateReasons = append(gateReasons, ReasonNoDebugLine)
	}
	if meta.Machine != elf.EM_X86_64.String() {
		gateReasons = append(gateReasons, ReasonUnsupportedArch)
	}
	if meta.HasSplitDwarf {
		gateReasons = append(gateReasons, ReasonSplitDwarf)
	}
	if len(gateReasons) > 0 {
		report.Verdict = VerdictReject
		report.Reasons = gateReasons
		return report, doc
	}

	// ── Extraction ───────────────────────────────────────────────────
	funcs, err := o.extract(binaryPath)
	if err != nil {
		report.Verdict = VerdictReject
		report.Reasons = []string{ReasonDwarfParseError}
		o.logger.Warn("dwarf parse failed", map[string]interface{}{
			"binary": binaryPath, "error": err.Error(),
		})
		return report, doc
	}

	sort.Slice(funcs, func(i, j int) bool {
		if funcs[i].CUOffset != funcs[j].CUOffset {
			return funcs[i].CUOffset < funcs[j].CUOffset
		}
		return funcs[i].DIEOffset < funcs[j].DIEOffset
	})

	doc.Functions = funcs
	report.NFunctions = len(funcs)
	report.ReasonCounts = make(map[string]int)
	for _, f := range funcs {
		switch f.Verdict {
		case VerdictAccept:
			report.NAccept++
		case VerdictWarn:
			report.NWarn++
		case VerdictReject:
			report.NReject++
		}
		for _, r := range f.Reasons {
			report.ReasonCounts[r]++
		}
	}
	if len(report.ReasonCounts) == 0 {
		report.ReasonCounts = nil
	}
	return report, doc
}

// cuContext caches the per-CU line table so it is built once and reused
// across all functions in that CU.
type cuContext struct {
	entry   *dwarf.Entry
	compDir string
	rows    []lineRow
	files   []*dwarf.LineFile
}

func (o *Oracle) extract(binaryPath string) ([]FunctionEntry, error) {
	ef, err := elf.Open(binaryPath)
	if err != nil {
		return nil, err
	}
	defer ef.Close()

	d, err := ef.DWARF()
	if err != nil {
		return nil, err
	}

	var funcs []FunctionEntry
	var cu *cuContext

	r := d.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil {
			break
		}

		switch entry.Tag {
		case dwarf.TagCompileUnit:
			cu = o.newCUContext(d, entry)
		case dwarf.TagSubprogram:
			if cu == nil {
				continue
			}
			funcs = append(funcs, o.extractFunction(d, cu, entry))
		}
	}
	return funcs, nil
}

func (o *Oracle) newCUContext(d *dwarf.Data, entry *dwarf.Entry) *cuContext {
	ctx := &cuContext{entry: entry}
	if dir, ok := entry.Val(dwarf.AttrCompDir).(string); ok {
		ctx.compDir = dir
	}

	lr, err := d.LineReader(entry)
	if err != nil || lr == nil {
		return ctx
	}
	ctx.files = lr.Files()

	rows, err := buildLineTable(d, entry)
	if err != nil {
		o.logger.Warn("line table build failed", map[string]interface{}{
			"cu_offset": uint64(entry.Offset), "error": err.Error(),
		})
		return ctx
	}
	ctx.rows = rows
	return ctx
}

func (o *Oracle) extractFunction(d *dwarf.Data, cu *cuContext, entry *dwarf.Entry) FunctionEntry {
	fn := FunctionEntry{
		FunctionID: fmt.Sprintf("cu0x%x:die0x%x", uint64(cu.entry.Offset), uint64(entry.Offset)),
		CUOffset:   uint64(cu.entry.Offset),
		DIEOffset:  uint64(entry.Offset),
		CompDir:    cu.compDir,
	}

	if name, ok := entry.Val(dwarf.AttrName).(string); ok {
		fn.Name = name
	}
	if ln, ok := entry.Val(dwarf.AttrLinkageName).(string); ok {
		fn.LinkageName = ln
	}
	if decl, ok := entry.Val(dwarf.AttrDeclaration).(bool); ok {
		fn.IsDeclaration = decl
	}
	if ext, ok := entry.Val(dwarf.AttrExternal).(bool); ok {
		fn.IsExternal = ext
	}
	if entry.Val(dwarf.AttrInline) != nil {
		fn.IsInlined = true
	}

	// Source declaration tuple resolved against the CU file table.
	if v, ok := entry.Val(dwarf.AttrDeclLine).(int64); ok {
		fn.DeclLine = int(v)
	}
	if v, ok := entry.Val(dwarf.AttrDeclColumn).(int64); ok {
		fn.DeclColumn = int(v)
	}
	if idx, ok := entry.Val(dwarf.AttrDeclFile).(int64); ok {
		if int(idx) >= 0 && int(idx) < len(cu.files) && cu.files[idx] != nil {
			fn.DeclFile = cu.files[idx].Name
		} else {
			fn.DeclMissingReason = fmt.Sprintf("DECL_FILE_INDEX_OUT_OF_RANGE:%d", idx)
		}
	} else {
		fn.DeclMissingReason = "DECL_FILE_ATTR_ABSENT"
	}

	// Range normalization. Declaration-only DIEs carry no ranges.
	var segs []rawRange
	if !fn.IsDeclaration {
		raw, err := d.Ranges(entry)
		if err == nil {
			segs = normalizeRanges(raw)
		}
	}
	fn.Ranges = toAddressRanges(segs)
	fn.TotalRangeBytes = totalBytes(segs)

	// Line intersection against the cached CU table.
	span := computeLineSpan(cu.rows, segs)
	fn.DominantFile = span.dominantFile
	fn.DominantFileRatio = span.dominantFileRatio
	fn.LineMin = span.lineMin
	fn.LineMax = span.lineMax
	fn.NLineRows = span.nLineRows
	fn.LineRows = sortedLineRows(span.lineRows)
	fn.FileRowCounts = span.fileRowCounts

	fn.Verdict, fn.Reasons = o.judge(&fn, len(segs), span)
	return fn
}

// judge assigns the per-function verdict per the oracle policy.
func (o *Oracle) judge(fn *FunctionEntry, nSegs int, span lineSpan) (Verdict, []string) {
	var rejects []string
	if fn.IsDeclaration {
		rejects = append(rejects, ReasonDeclarationOnly)
	}
	if nSegs == 0 && !fn.IsDeclaration {
		rejects = append(rejects, ReasonMissingRange)
	}
	if !fn.IsDeclaration && nSegs > 0 && span.nLineRows == 0 {
		rejects = append(rejects, ReasonNoLineRowsInRange)
	}
	if len(rejects) > 0 {
		return VerdictReject, rejects
	}

	var warns []string
	if fn.Name == "" && fn.LinkageName == "" {
		warns = append(warns, ReasonNameMissing)
	}
	if span.dominantFileRatio < o.profile.MinDominantFileRatio {
		warns = append(warns, ReasonMultiFileRange)
	}
	if span.dominantFile != "" && o.isExcludedPath(span.dominantFile) {
		warns = append(warns, ReasonSystemHeaderDominant)
	}
	if nSegs > o.profile.MaxFragmentsWarn {
		warns = append(warns, ReasonRangesFragmented)
	}
	if len(warns) > 0 {
		return VerdictWarn, warns
	}
	return VerdictAccept, nil
}

func (o *Oracle) isExcludedPath(path string) bool {
	for _, prefix := range o.profile.ExcludePathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Write persists the report and functions document atomically.
func Write(reportPath, functionsPath string, report *Report, doc *FunctionsDoc) error {
	if err := output.WriteJSONAtomic(functionsPath, doc); err != nil {
		return err
	}
	return output.WriteJSONAtomic(reportPath, report)
}
