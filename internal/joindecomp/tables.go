package joindecomp

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/NicolasKol/reforge/internal/decomp"
	"github.com/NicolasKol/reforge/internal/dwarforacle"
	"github.com/NicolasKol/reforge/internal/joindwts"
	"github.com/NicolasKol/reforge/internal/noise"
)

// addrRange is one parsed [low, high) range.
type addrRange struct {
	low  uint64
	high uint64
}

// dwarfRow is the merged view of one DWARF function from oracle +
// alignment.
type dwarfRow struct {
	functionID    string
	name          string
	declFile      string
	declLine      int
	declColumn    int
	oracleVerdict string
	oracleReasons []string

	ranges          []addrRange
	totalRangeBytes uint64
	hasRange        bool
	lowPc           uint64

	alignVerdict      string
	alignOverlapRatio *float64
	alignNCandidates  *int
	alignReasons      []string
	bestTsFuncID      string
	qualityWeight     float64
	isNonTarget       bool

	eligibleForJoin bool
	eligibleForGold bool
	exclusionReason string
}

// decompRow is the indexed view of one decompiler function.
type decompRow struct {
	functionID      string
	entryVA         uint64
	name            string
	bodyStart       uint64
	bodyEnd         uint64
	hasBody         bool
	isExternalBlock bool
	isThunk         bool
	isImport        bool
	verdict         string
	warnings        []string
	cfgCompleteness string
}

// intervalEntry is one sorted entry of the body-range interval index.
type intervalEntry struct {
	bodyStart  uint64
	bodyEnd    uint64
	functionID string
}

func parseHex(s string) (uint64, bool) {
	s = strings.TrimPrefix(s, "0x")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// buildDwarfTable merges the oracle function index with the alignment
// pairs into one row per DWARF function, then stamps eligibility.
func buildDwarfTable(oracle *dwarforacle.FunctionsDoc, pairs *joindwts.PairsDoc, lists *noise.Lists) (map[string]*dwarfRow, []string, error) {
	alignIdx := make(map[string]*joindwts.Pair, len(pairs.Pairs))
	for i := range pairs.Pairs {
		alignIdx[pairs.Pairs[i].DwarfFunctionID] = &pairs.Pairs[i]
	}
	nonTargets := make(map[string]*joindwts.NonTarget, len(pairs.NonTargets))
	for i := range pairs.NonTargets {
		nonTargets[pairs.NonTargets[i].DwarfFunctionID] = &pairs.NonTargets[i]
	}

	table := make(map[string]*dwarfRow, len(oracle.Functions))
	var order []string

	for _, fn := range oracle.Functions {
		row := &dwarfRow{
			functionID:    fn.FunctionID,
			name:          fn.Name,
			declFile:      fn.DeclFile,
			declLine:      fn.DeclLine,
			declColumn:    fn.DeclColumn,
			oracleVerdict: string(fn.Verdict),
			oracleReasons: fn.Reasons,
		}
		if row.name == "" {
			row.name = fn.LinkageName
		}

		for _, r := range fn.Ranges {
			low, okL := parseHex(r.Low)
			high, okH := parseHex(r.High)
			if okL && okH && high > low {
				row.ranges = append(row.ranges, addrRange{low: low, high: high})
				row.totalRangeBytes += high - low
			}
		}
		row.hasRange = len(row.ranges) > 0 && row.totalRangeBytes > 0
		if row.hasRange {
			row.lowPc = row.ranges[0].low
		}

		if pair, ok := alignIdx[fn.FunctionID]; ok {
			row.alignVerdict = string(pair.Verdict)
			ratio := pair.OverlapRatio
			row.alignOverlapRatio = &ratio
			n := pair.NCandidates
			row.alignNCandidates = &n
			row.alignReasons = pair.Reasons
			row.bestTsFuncID = pair.BestTsFuncID

			// quality_weight = overlap_ratio / n_candidates for MATCH.
			if pair.Verdict == joindwts.VerdictMatch && n > 0 {
				qw := ratio / float64(n)
				if qw < 0 || qw > 1.0+1e-9 {
					return nil, nil, fmt.Errorf(
						"quality_weight out of [0, 1] bounds: %.9f (function_id=%s, overlap_ratio=%v, n_candidates=%d)",
						qw, fn.FunctionID, ratio, n)
				}
				if qw > 1 {
					qw = 1
				}
				row.qualityWeight = qw
			}
		} else if nt, ok := nonTargets[fn.FunctionID]; ok {
			row.alignVerdict = "NON_TARGET"
			row.alignReasons = nt.DwarfReasons
			// Rangeless functions among non-targets are NO_RANGE, not
			// policy NON_TARGET; eligibility checks has_range first.
			row.isNonTarget = row.hasRange
		}

		stampEligibility(row, lists)
		table[fn.FunctionID] = row
		order = append(order, fn.FunctionID)
	}

	sort.Strings(order)
	return table, order, nil
}

// stampEligibility classifies a row into the join/gold tiers.
func stampEligibility(row *dwarfRow, lists *noise.Lists) {
	switch {
	case !row.hasRange:
		row.exclusionReason = ExclNoRange
	case row.isNonTarget:
		row.exclusionReason = ExclNonTarget
	default:
		row.eligibleForJoin = true
	}
	if !row.eligibleForJoin {
		return
	}
	if row.oracleVerdict != string(dwarforacle.VerdictAccept) {
		return
	}
	if lists.IsAuxName(row.name) {
		return
	}
	row.eligibleForGold = true
}

// buildDecompTable indexes the reshaped decompiler functions and builds
// the sorted body-range interval index. Records with unknown bodies are
// indexed in the table but skipped in the interval index.
func buildDecompTable(functions []decomp.FunctionRow, cfgs []decomp.CfgRow) (map[string]*decompRow, []intervalEntry) {
	cfgIdx := make(map[string]*decomp.CfgRow, len(cfgs))
	for i := range cfgs {
		cfgIdx[cfgs[i].FunctionID] = &cfgs[i]
	}

	table := make(map[string]*decompRow, len(functions))
	var intervals []intervalEntry

	for i := range functions {
		fn := &functions[i]
		row := &decompRow{
			functionID:      fn.FunctionID,
			entryVA:         fn.EntryVA,
			name:            fn.Name,
			isExternalBlock: fn.IsExternalBlock,
			isThunk:         fn.IsThunk,
			isImport:        fn.IsImport,
			verdict:         string(fn.Verdict),
			warnings:        fn.Warnings,
			cfgCompleteness: string(decomp.CfgHigh),
		}
		if cfg, ok := cfgIdx[fn.FunctionID]; ok {
			row.cfgCompleteness = string(cfg.CfgCompleteness)
		}
		if fn.BodyStartVA != nil && fn.BodyEndVA != nil && *fn.BodyEndVA > *fn.BodyStartVA {
			row.bodyStart = *fn.BodyStartVA
			row.bodyEnd = *fn.BodyEndVA
			row.hasBody = true
			intervals = append(intervals, intervalEntry{
				bodyStart:  row.bodyStart,
				bodyEnd:    row.bodyEnd,
				functionID: fn.FunctionID,
			})
		}
		table[fn.FunctionID] = row
	}

	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i].bodyStart != intervals[j].bodyStart {
			return intervals[i].bodyStart < intervals[j].bodyStart
		}
		return intervals[i].bodyEnd < intervals[j].bodyEnd
	})
	return table, intervals
}
