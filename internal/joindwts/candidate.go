package joindwts

import (
	"sort"

	"github.com/NicolasKol/reforge/internal/output"
	"github.com/NicolasKol/reforge/internal/tsoracle"
)

// lineKey is the multiset key of DWARF line evidence.
type lineKey struct {
	file string
	line int
}

// candidate is one scored TS function against one DWARF target.
type candidate struct {
	tsFuncID     string
	tuPath       string
	name         string
	contextHash  string
	overlapCount int
	totalCount   int
	overlapRatio float64
	gapCount     int
	spanSize     int
	startByte    int
}

// scoreCandidates scores all TS functions of one TU against a DWARF
// function's line evidence using a forward-map scan: each .i line in a
// TS function span is resolved through the origin map and checked
// against the evidence multiset.
func scoreCandidates(evidence map[lineKey]int, funcs []tsoracle.FunctionEntry, om *OriginMap) []candidate {
	totalCount := 0
	for _, c := range evidence {
		totalCount += c
	}
	if totalCount == 0 {
		return nil
	}

	var results []candidate
	for _, fn := range funcs {
		overlap := 0
		for iLine := fn.StartLine; iLine <= fn.EndLine; iLine++ {
			origin := om.Lookup(iLine)
			if origin == nil {
				continue
			}
			overlap += evidence[lineKey{file: origin.File, line: origin.Line}]
		}
		if overlap == 0 {
			continue
		}

		results = append(results, candidate{
			tsFuncID:     fn.TsFuncID,
			tuPath:       fn.TuPath,
			name:         fn.Name,
			contextHash:  fn.ContextHash,
			overlapCount: overlap,
			totalCount:   totalCount,
			overlapRatio: output.RoundFloat(float64(overlap) / float64(totalCount)),
			gapCount:     totalCount - overlap,
			spanSize:     fn.EndByte - fn.StartByte,
			startByte:    fn.StartByte,
		})
	}
	return results
}

// sortCandidates applies the fully deterministic ranking:
// (-overlap_ratio, -overlap_count, span_size, tu_path, start_byte).
func sortCandidates(cands []candidate) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.overlapRatio != b.overlapRatio {
			return a.overlapRatio > b.overlapRatio
		}
		if a.overlapCount != b.overlapCount {
			return a.overlapCount > b.overlapCount
		}
		if a.spanSize != b.spanSize {
			return a.spanSize < b.spanSize
		}
		if a.tuPath != b.tuPath {
			return a.tuPath < b.tuPath
		}
		return a.startByte < b.startByte
	})
}

// nearTies returns the candidates whose ratio is within epsilon of best.
func nearTies(cands []candidate, best candidate, epsilon float64) []candidate {
	var ties []candidate
	for _, c := range cands[1:] {
		diff := best.overlapRatio - c.overlapRatio
		if diff < 0 {
			diff = -diff
		}
		if diff <= epsilon {
			ties = append(ties, c)
		}
	}
	return ties
}

// isHeaderReplication reports whether the best and any near-tie share a
// context hash while living in different TUs.
func isHeaderReplication(best candidate, ties []candidate) bool {
	for _, t := range ties {
		if t.contextHash == best.contextHash && t.tuPath != best.tuPath {
			return true
		}
	}
	return false
}
