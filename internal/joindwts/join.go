package joindwts

import (
	"sort"

	"github.com/NicolasKol/reforge/internal/dwarforacle"
	"github.com/NicolasKol/reforge/internal/envelope"
	"github.com/NicolasKol/reforge/internal/logging"
	"github.com/NicolasKol/reforge/internal/output"
	"github.com/NicolasKol/reforge/internal/stageerr"
	"github.com/NicolasKol/reforge/internal/tsoracle"
)

// Inputs bundles the deserialized upstream artifacts.
type Inputs struct {
	DwarfReport    *dwarforacle.Report
	DwarfFunctions *dwarforacle.FunctionsDoc
	TsReport       *tsoracle.Report
	TsFunctions    *tsoracle.FunctionsDoc

	// IContents maps tu_path → .i file text. A TU present in the TS
	// index but absent here has no origin map; its targets become
	// NO_MATCH with ORIGIN_MAP_MISSING.
	IContents map[string]string
}

// Joiner executes the DWARF ↔ tree-sitter alignment.
type Joiner struct {
	profile Profile
	logger  *logging.Logger
}

// New creates a joiner.
func New(profile Profile, logger *logging.Logger) *Joiner {
	return &Joiner{profile: profile, logger: logger}
}

// Run aligns every ACCEPT/WARN DWARF function to its best TS candidate.
// REJECT entries pass through as non-targets preserving their reasons.
func (j *Joiner) Run(in Inputs) (*PairsDoc, *Report, error) {
	binarySHA := in.DwarfReport.BinarySHA256
	if in.DwarfFunctions.BinarySHA256 != "" && in.DwarfFunctions.BinarySHA256 != binarySHA {
		return nil, nil, stageerr.Newf(stageerr.HashMismatch,
			"binary_sha256 mismatch between oracle report (%s) and functions (%s)",
			binarySHA, in.DwarfFunctions.BinarySHA256)
	}

	pairs := &PairsDoc{
		Envelope:       envelope.New(PackageName, j.profile.ProfileID, binarySHA),
		BuildID:        in.DwarfReport.BuildID,
		DwarfProfileID: in.DwarfReport.ProfileID,
		TsProfileID:    in.TsReport.ProfileID,
		Pairs:          []Pair{},
		NonTargets:     []NonTarget{},
	}
	report := &Report{
		Envelope:             envelope.New(PackageName, j.profile.ProfileID, binarySHA).Stamped(),
		BuildID:              in.DwarfReport.BuildID,
		DwarfProfileID:       in.DwarfReport.ProfileID,
		TsProfileID:          in.TsReport.ProfileID,
		ReasonCounts:         map[string]int{},
		ExcludedPathPrefixes: j.profile.ExcludedPathPrefixes,
		Thresholds: map[string]float64{
			"overlap_threshold": j.profile.OverlapThreshold,
			"epsilon":           j.profile.Epsilon,
			"min_overlap_lines": float64(j.profile.MinOverlapLines),
		},
	}

	// TU hashes for provenance.
	report.TuHashes = map[string]string{}
	for _, tu := range in.TsReport.TuReports {
		report.TuHashes[tu.TuPath] = tu.TuHash
	}

	// ── Origin maps per TU ───────────────────────────────────────────
	tsByTU := groupByTU(in.TsFunctions.Functions)
	originMaps := make(map[string]*OriginMap, len(in.IContents))
	anyOriginMissing := false

	for tuPath := range tsByTU {
		content, ok := in.IContents[tuPath]
		if !ok {
			anyOriginMissing = true
			j.logger.Warn("origin map missing", map[string]interface{}{"tu": tuPath})
			continue
		}
		om := BuildOriginMap(content, tuPath, j.profile.ExcludedPathPrefixes)
		originMaps[tuPath] = om
		if !om.OriginAvailable {
			anyOriginMissing = true
		}
	}

	// ── Partition targets vs non-targets ─────────────────────────────
	for _, df := range in.DwarfFunctions.Functions {
		if df.Verdict == dwarforacle.VerdictReject {
			pairs.NonTargets = append(pairs.NonTargets, NonTarget{
				DwarfFunctionID:   df.FunctionID,
				DwarfFunctionName: df.Name,
				DwarfVerdict:      string(df.Verdict),
				DwarfReasons:      df.Reasons,
				DeclFile:          df.DeclFile,
				DeclLine:          df.DeclLine,
				DeclColumn:        df.DeclColumn,
				CompDir:           df.CompDir,
			})
			continue
		}

		pair := j.joinOne(df, tsByTU, originMaps, anyOriginMissing)
		pairs.Pairs = append(pairs.Pairs, pair)

		switch pair.Verdict {
		case VerdictMatch:
			report.NMatch++
		case VerdictAmbiguous:
			report.NAmbiguous++
		default:
			report.NNoMatch++
		}
		for _, r := range pair.Reasons {
			report.ReasonCounts[r]++
		}
	}

	report.NNonTarget = len(pairs.NonTargets)

	// Stable ordering by DWARF function id.
	sort.Slice(pairs.Pairs, func(i, k int) bool {
		return pairs.Pairs[i].DwarfFunctionID < pairs.Pairs[k].DwarfFunctionID
	})
	sort.Slice(pairs.NonTargets, func(i, k int) bool {
		return pairs.NonTargets[i].DwarfFunctionID < pairs.NonTargets[k].DwarfFunctionID
	})

	if len(report.ReasonCounts) == 0 {
		report.ReasonCounts = nil
	}
	return pairs, report, nil
}

func (j *Joiner) joinOne(df dwarforacle.FunctionEntry, tsByTU map[string][]tsoracle.FunctionEntry, originMaps map[string]*OriginMap, anyOriginMissing bool) Pair {
	evidence := make(map[lineKey]int, len(df.LineRows))
	totalCount := 0
	for _, row := range df.LineRows {
		evidence[lineKey{file: row.File, line: row.Line}] += row.Count
		totalCount += row.Count
	}

	pair := Pair{
		DwarfFunctionID:   df.FunctionID,
		DwarfFunctionName: df.Name,
		DwarfVerdict:      string(df.Verdict),
		DeclFile:          df.DeclFile,
		DeclLine:          df.DeclLine,
		DeclColumn:        df.DeclColumn,
		CompDir:           df.CompDir,
		TotalCount:        totalCount,
		GapCount:          totalCount,
	}

	// Collect and rank candidates across all TUs.
	var all []candidate
	sawTsFunctions := false
	for _, tuPath := range output.SortedKeys(tsByTU) {
		funcs := tsByTU[tuPath]
		if len(funcs) > 0 {
			sawTsFunctions = true
		}
		om, ok := originMaps[tuPath]
		if !ok {
			continue
		}
		all = append(all, scoreCandidates(evidence, funcs, om)...)
	}
	sortCandidates(all)

	var reasons []string
	verdict := VerdictNoMatch

	switch {
	case len(all) == 0:
		if !sawTsFunctions {
			reasons = append(reasons, ReasonNoCandidates)
		} else {
			reasons = append(reasons, ReasonNoOverlap)
		}
		if anyOriginMissing {
			reasons = append(reasons, ReasonOriginMapMissing)
		}

	default:
		best := all[0]
		pair.BestTsFuncID = best.tsFuncID
		pair.BestTuPath = best.tuPath
		pair.BestTsFunctionName = best.name
		pair.OverlapCount = best.overlapCount
		pair.OverlapRatio = best.overlapRatio
		pair.GapCount = best.gapCount

		ties := nearTies(all, best, j.profile.Epsilon)
		lowRatio := best.overlapRatio < j.profile.OverlapThreshold
		belowMin := best.overlapCount < j.profile.MinOverlapLines
		replication := isHeaderReplication(best, ties)

		switch {
		case belowMin:
			reasons = append(reasons, ReasonBelowMinOverlap)
		case lowRatio:
			reasons = append(reasons, ReasonLowOverlapRatio)
		case replication:
			verdict = VerdictAmbiguous
			reasons = append(reasons, ReasonHeaderReplicationCollision)
		case len(ties) > 0:
			verdict = VerdictAmbiguous
			reasons = append(reasons, ReasonNearTie)
		default:
			verdict = VerdictMatch
			reasons = append(reasons, ReasonUniqueBest)
		}

		if best.gapCount > 0 {
			reasons = append(reasons, ReasonPcLineGap)
		}
	}

	// DWARF WARN reason MULTI_FILE_RANGE propagates to the alignment.
	for _, r := range df.Reasons {
		if r == dwarforacle.ReasonMultiFileRange {
			reasons = append(reasons, ReasonMultiFileRangePropagated)
			break
		}
	}

	pair.Verdict = verdict
	pair.Reasons = dedupe(reasons)

	pair.Candidates = make([]CandidateScore, len(all))
	for i, c := range all {
		pair.Candidates[i] = CandidateScore{
			TsFuncID:     c.tsFuncID,
			TuPath:       c.tuPath,
			FunctionName: c.name,
			ContextHash:  c.contextHash,
			OverlapCount: c.overlapCount,
			OverlapRatio: c.overlapRatio,
			GapCount:     c.gapCount,
		}
	}
	// n_candidates equals the candidate list length, best included.
	pair.NCandidates = len(pair.Candidates)
	return pair
}

func groupByTU(funcs []tsoracle.FunctionEntry) map[string][]tsoracle.FunctionEntry {
	byTU := make(map[string][]tsoracle.FunctionEntry)
	for _, fn := range funcs {
		byTU[fn.TuPath] = append(byTU[fn.TuPath], fn)
	}
	return byTU
}

func dedupe(reasons []string) []string {
	seen := make(map[string]bool, len(reasons))
	var out []string
	for _, r := range reasons {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// Write persists the pairs and report documents atomically.
func Write(reportPath, pairsPath string, report *Report, pairs *PairsDoc) error {
	if err := output.WriteJSONAtomic(pairsPath, pairs); err != nil {
		return err
	}
	return output.WriteJSONAtomic(reportPath, report)
}
