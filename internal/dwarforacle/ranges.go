package dwarforacle

import (
	"fmt"
	"sort"
)

// rawRange is an internal [low, high) segment before serialization.
type rawRange struct {
	low  uint64
	high uint64
}

// normalizeRanges drops empty segments, sorts, and merges overlapping or
// adjacent segments. The result is the canonical range set of a function:
// sorted, non-empty, pairwise non-overlapping.
func normalizeRanges(raw [][2]uint64) []rawRange {
	segs := make([]rawRange, 0, len(raw))
	for _, r := range raw {
		if r[1] > r[0] {
			segs = append(segs, rawRange{low: r[0], high: r[1]})
		}
	}
	if len(segs) == 0 {
		return nil
	}

	sort.Slice(segs, func(i, j int) bool {
		if segs[i].low != segs[j].low {
			return segs[i].low < segs[j].low
		}
		return segs[i].high < segs[j].high
	})

	merged := segs[:1]
	for _, s := range segs[1:] {
		last := &merged[len(merged)-1]
		if s.low <= last.high {
			// Overlapping or adjacent: extend
			if s.high > last.high {
				last.high = s.high
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// totalBytes sums the sizes of normalized segments.
func totalBytes(segs []rawRange) uint64 {
	var total uint64
	for _, s := range segs {
		total += s.high - s.low
	}
	return total
}

// inRanges reports whether addr falls inside any [low, high) segment.
func inRanges(addr uint64, segs []rawRange) bool {
	for _, s := range segs {
		if s.low <= addr && addr < s.high {
			return true
		}
	}
	return false
}

// toAddressRanges serializes segments as 0x-prefixed hex pairs.
func toAddressRanges(segs []rawRange) []AddressRange {
	out := make([]AddressRange, len(segs))
	for i, s := range segs {
		out[i] = AddressRange{
			Low:  fmt.Sprintf("0x%x", s.low),
			High: fmt.Sprintf("0x%x", s.high),
		}
	}
	return out
}
