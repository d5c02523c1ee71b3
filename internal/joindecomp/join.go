package joindecomp

import (
	"fmt"
	"sort"

	"github.com/NicolasKol/reforge/internal/decomp"
	"github.com/NicolasKol/reforge/internal/dwarforacle"
	"github.com/NicolasKol/reforge/internal/envelope"
	"github.com/NicolasKol/reforge/internal/joindwts"
	"github.com/NicolasKol/reforge/internal/logging"
	"github.com/NicolasKol/reforge/internal/noise"
	"github.com/NicolasKol/reforge/internal/output"
	"github.com/NicolasKol/reforge/internal/stageerr"
)

// Inputs bundles the deserialized upstream artifacts.
type Inputs struct {
	ReceiptBinarySHA string // sha256 of the stripped binary per the receipt

	DwarfReport    *dwarforacle.Report
	DwarfFunctions *dwarforacle.FunctionsDoc
	AlignmentPairs *joindwts.PairsDoc

	DecompReport    *decomp.Report
	DecompFunctions []decomp.FunctionRow
	DecompCfgs      []decomp.CfgRow
}

// Joiner executes the address-overlap join.
type Joiner struct {
	profile Profile
	lists   *noise.Lists
	logger  *logging.Logger
}

// New creates a joiner with the frozen noise lists loaded.
func New(profile Profile, logger *logging.Logger) (*Joiner, error) {
	lists, err := noise.Load()
	if err != nil {
		return nil, err
	}
	return &Joiner{profile: profile, lists: lists, logger: logger}, nil
}

// Run cross-validates provenance, joins every DWARF function to its best
// decompiler candidate, and assembles the joined rows plus report. All
// DWARF functions — REJECT and non-target included — appear in the
// output.
func (j *Joiner) Run(in Inputs) ([]JoinedRow, *Report, error) {
	// ── Provenance cross-validation (hard failure on mismatch).
	// The DWARF side hashes the debug binary; the decompiler side hashes
	// the stripped one. The receipt binds them; the decomp report must
	// agree with the receipt's stripped-binary hash.
	if in.ReceiptBinarySHA != "" && in.DecompReport.BinarySHA256 != "" &&
		in.DecompReport.BinarySHA256 != in.ReceiptBinarySHA {
		return nil, nil, stageerr.Newf(stageerr.HashMismatch,
			"binary_sha256 mismatch: receipt=%s decompiler=%s",
			in.ReceiptBinarySHA, in.DecompReport.BinarySHA256)
	}
	if in.DwarfReport.BinarySHA256 != in.DwarfFunctions.BinarySHA256 {
		return nil, nil, stageerr.Newf(stageerr.HashMismatch,
			"binary_sha256 mismatch: oracle report=%s functions=%s",
			in.DwarfReport.BinarySHA256, in.DwarfFunctions.BinarySHA256)
	}
	if in.AlignmentPairs.BinarySHA256 != "" &&
		in.AlignmentPairs.BinarySHA256 != in.DwarfReport.BinarySHA256 {
		return nil, nil, stageerr.Newf(stageerr.HashMismatch,
			"binary_sha256 mismatch: oracle=%s alignment=%s",
			in.DwarfReport.BinarySHA256, in.AlignmentPairs.BinarySHA256)
	}

	binarySHA := in.ReceiptBinarySHA
	if binarySHA == "" {
		binarySHA = in.DecompReport.BinarySHA256
	}

	dwarfTable, order, err := buildDwarfTable(in.DwarfFunctions, in.AlignmentPairs, j.lists)
	if err != nil {
		return nil, nil, stageerr.New(stageerr.InvariantViolated, "dwarf table build failed", err)
	}
	decompTable, intervals := buildDecompTable(in.DecompFunctions, in.DecompCfgs)

	// ── Join loop ────────────────────────────────────────────────────
	rows := make([]JoinedRow, 0, len(order))
	decompHits := make(map[string][]int) // decomp function id → joined row indexes

	for _, fid := range order {
		drow := dwarfTable[fid]
		row := j.joinOne(drow, decompTable, intervals, binarySHA)
		if row.DecompFuncID != "" {
			decompHits[row.DecompFuncID] = append(decompHits[row.DecompFuncID], len(rows))
		}
		rows = append(rows, row)
	}

	// ── Fat-function tagging ─────────────────────────────────────────
	for _, idxs := range decompHits {
		if len(idxs) < 2 {
			continue
		}
		for _, i := range idxs {
			rows[i].FatFunctionMultiDwarf = true
			rows[i].FatFunctionDwarfCount = len(idxs)
		}
	}

	// ── High-confidence gate (after fat tagging) ─────────────────────
	for i := range rows {
		rows[i].IsHighConfidence = j.isHighConfidence(&rows[i])
	}

	report := j.buildReport(rows, binarySHA)

	if err := checkInvariants(rows); err != nil {
		return nil, nil, err
	}
	return rows, report, nil
}

// joinOne maps one DWARF function to its best decompiler candidate.
func (j *Joiner) joinOne(drow *dwarfRow, decompTable map[string]*decompRow, intervals []intervalEntry, binarySHA string) JoinedRow {
	row := JoinedRow{
		BinarySHA256:      binarySHA,
		DwarfFunctionID:   drow.functionID,
		Name:              drow.name,
		DeclFile:          drow.declFile,
		DeclLine:          drow.declLine,
		DeclColumn:        drow.declColumn,
		OracleVerdict:     drow.oracleVerdict,
		OracleReasons:     drow.oracleReasons,
		TotalRangeBytes:   drow.totalRangeBytes,
		HasRange:          drow.hasRange,
		AlignVerdict:      drow.alignVerdict,
		AlignOverlapRatio: drow.alignOverlapRatio,
		AlignNCandidates:  drow.alignNCandidates,
		AlignReasons:      drow.alignReasons,
		BestTsFuncID:      drow.bestTsFuncID,
		QualityWeight:     output.RoundFloat(drow.qualityWeight),
		IsNonTarget:       drow.isNonTarget,
		EligibleForJoin:   drow.eligibleForJoin,
		EligibleForGold:   drow.eligibleForGold,
		ExclusionReason:   drow.exclusionReason,
	}
	if drow.hasRange {
		row.LowPc = fmt.Sprintf("0x%x", drow.lowPc)
	}

	// NO_RANGE rows are never force-joined.
	if !drow.hasRange {
		row.MatchKind = MatchNoRange
		row.JoinWarnings = []string{"DWARF_RANGE_MISSING"}
		return row
	}

	overlaps := findOverlaps(drow.ranges, intervals)
	if len(overlaps) == 0 {
		row.MatchKind = MatchNone
		row.JoinWarnings = []string{"NO_DECOMPILER_OVERLAP"}
		return row
	}

	// ── Build + sort candidates: max overlap bytes → min distance to
	// DWARF low_pc → prefer non-thunk → prefer non-external.
	type cand struct {
		id           string
		entryVA      uint64
		overlapBytes uint64
		isThunk      bool
		isExternal   bool
	}
	cands := make([]cand, 0, len(overlaps))
	for id, ob := range overlaps {
		grow, ok := decompTable[id]
		if !ok {
			continue
		}
		cands = append(cands, cand{
			id:           id,
			entryVA:      grow.entryVA,
			overlapBytes: ob,
			isThunk:      grow.isThunk,
			isExternal:   grow.isExternalBlock,
		})
	}
	sort.Slice(cands, func(a, b int) bool {
		if cands[a].overlapBytes != cands[b].overlapBytes {
			return cands[a].overlapBytes > cands[b].overlapBytes
		}
		da := absDiff(cands[a].entryVA, drow.lowPc)
		db := absDiff(cands[b].entryVA, drow.lowPc)
		if da != db {
			return da < db
		}
		if cands[a].isThunk != cands[b].isThunk {
			return !cands[a].isThunk
		}
		if cands[a].isExternal != cands[b].isExternal {
			return !cands[a].isExternal
		}
		return cands[a].id < cands[b].id
	})

	best := cands[0]
	ratio := float64(best.overlapBytes) / float64(drow.totalRangeBytes)

	// Near ties: any candidate within the relative epsilon of the best's
	// overlap bytes.
	tieThreshold := float64(best.overlapBytes) * j.profile.NearTieEpsilon
	nNearTies := 0
	for _, c := range cands[1:] {
		if float64(best.overlapBytes-c.overlapBytes) <= tieThreshold {
			nNearTies++
		}
	}

	grow := decompTable[best.id]
	entryVA := grow.entryVA

	row.MatchKind = classifyMatchKind(ratio, nNearTies, j.profile)
	row.DecompFuncID = best.id
	row.DecompEntryVA = &entryVA
	row.DecompName = grow.name
	row.PcOverlapBytes = best.overlapBytes
	row.PcOverlapRatio = output.RoundFloat(ratio)
	row.NNearTies = nNearTies
	row.DecompVerdict = grow.verdict
	row.DecompWarnings = grow.warnings
	row.CfgCompleteness = grow.cfgCompleteness

	row.IsExternalBlock = grow.isExternalBlock
	row.IsThunk = grow.isThunk
	row.IsAuxFunction = j.lists.IsAuxName(grow.name) || j.lists.IsAuxName(drow.name)
	row.IsImportProxy = grow.isImport

	if nNearTies > 0 {
		row.JoinWarnings = append(row.JoinWarnings, "NEAR_TIE_CANDIDATES")
	}
	if ratio < j.profile.WeakOverlapThreshold {
		row.JoinWarnings = append(row.JoinWarnings, "LOW_PC_OVERLAP")
	}
	return row
}

// findOverlaps sums overlap bytes per decompiler function across all
// DWARF segments. The interval index is sorted by body start, so the
// scan terminates early once entries start past the segment.
func findOverlaps(ranges []addrRange, intervals []intervalEntry) map[string]uint64 {
	overlaps := make(map[string]uint64)
	for _, seg := range ranges {
		for _, entry := range intervals {
			if entry.bodyStart >= seg.high {
				break
			}
			if entry.bodyEnd <= seg.low {
				continue
			}
			start := max64(seg.low, entry.bodyStart)
			end := min64(seg.high, entry.bodyEnd)
			if end > start {
				overlaps[entry.functionID] += end - start
			}
		}
	}
	return overlaps
}

// classifyMatchKind applies the overlap thresholds.
func classifyMatchKind(ratio float64, nNearTies int, p Profile) MatchKind {
	switch {
	case ratio <= 0:
		return MatchNone
	case nNearTies >= 1:
		return MatchMulti
	case ratio >= p.StrongOverlapThreshold:
		return MatchJoinedStrong
	case ratio >= p.WeakOverlapThreshold:
		return MatchJoinedWeak
	default:
		return MatchNone
	}
}

// isHighConfidence applies every quality gate. High-confidence rows are
// the gold subset for downstream evaluation anchors.
func (j *Joiner) isHighConfidence(row *JoinedRow) bool {
	if row.OracleVerdict != string(dwarforacle.VerdictAccept) {
		return false
	}
	if row.AlignVerdict != string(joindwts.VerdictMatch) {
		return false
	}
	if row.AlignNCandidates == nil || *row.AlignNCandidates != 1 {
		return false
	}
	if row.AlignOverlapRatio == nil || *row.AlignOverlapRatio < 1.0 {
		return false
	}
	if row.MatchKind != MatchJoinedStrong {
		return false
	}
	if row.IsExternalBlock || row.IsThunk || row.IsAuxFunction || row.IsImportProxy {
		return false
	}
	if row.CfgCompleteness == string(decomp.CfgLow) {
		return false
	}
	for _, w := range row.DecompWarnings {
		if j.lists.IsFatalWarning(w) {
			return false
		}
	}
	return true
}

func (j *Joiner) buildReport(rows []JoinedRow, binarySHA string) *Report {
	report := &Report{
		Envelope:         envelope.New(PackageName, j.profile.ProfileID, binarySHA).Stamped(),
		NoiseListVersion: j.lists.Version,
		NRows:            len(rows),
		ExclusionCounts:  map[string]int{},
		WarningCounts:    map[string]int{},
		Thresholds: map[string]float64{
			"strong_overlap_threshold": j.profile.StrongOverlapThreshold,
			"weak_overlap_threshold":   j.profile.WeakOverlapThreshold,
			"near_tie_epsilon":         j.profile.NearTieEpsilon,
		},
	}

	for i := range rows {
		row := &rows[i]
		switch row.MatchKind {
		case MatchJoinedStrong:
			report.NJoinedStrong++
		case MatchJoinedWeak:
			report.NJoinedWeak++
		case MatchMulti:
			report.NMultiMatch++
		case MatchNone:
			report.NNoMatch++
		case MatchNoRange:
			report.NNoRange++
		}
		if row.IsHighConfidence {
			report.NHighConfidence++
		}
		if row.EligibleForJoin {
			report.NEligibleForJoin++
		}
		if row.EligibleForGold {
			report.NEligibleForGold++
		}
		if row.ExclusionReason != "" {
			report.ExclusionCounts[row.ExclusionReason]++
		}
		for _, w := range row.JoinWarnings {
			report.WarningCounts[w]++
		}
	}

	if len(report.ExclusionCounts) == 0 {
		report.ExclusionCounts = nil
	}
	if len(report.WarningCounts) == 0 {
		report.WarningCounts = nil
	}
	return report
}

// checkInvariants validates the joined rows before they are written.
func checkInvariants(rows []JoinedRow) error {
	for i := range rows {
		row := &rows[i]
		if row.PcOverlapBytes > row.TotalRangeBytes {
			return stageerr.Newf(stageerr.InvariantViolated,
				"overlap_bytes %d exceeds total_range_bytes %d (function_id=%s)",
				row.PcOverlapBytes, row.TotalRangeBytes, row.DwarfFunctionID)
		}
		if row.PcOverlapRatio < 0 || row.PcOverlapRatio > 1 {
			return stageerr.Newf(stageerr.InvariantViolated,
				"pc_overlap_ratio %v out of [0, 1] (function_id=%s)",
				row.PcOverlapRatio, row.DwarfFunctionID)
		}
	}
	return nil
}

// Write persists the joined rows and report atomically.
func Write(reportPath, rowsPath string, report *Report, rows []JoinedRow) error {
	encoded := make([]interface{}, len(rows))
	for i := range rows {
		encoded[i] = rows[i]
	}
	if err := output.WriteJSONLAtomic(rowsPath, encoded); err != nil {
		return err
	}
	return output.WriteJSONAtomic(reportPath, report)
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
