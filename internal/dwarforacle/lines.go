package dwarforacle

import (
	"debug/dwarf"
	"io"
	"sort"
)

// lineRow is one state-machine row from the debug-line program.
type lineRow struct {
	address uint64
	file    string
	line    int
}

// lineKey is the multiset key of line evidence.
type lineKey struct {
	file string
	line int
}

// buildLineTable replays the line-number program for one CU and collects
// all rows. The table is built once per CU and reused across all
// functions in that CU. end_sequence rows point one past the last
// address and are not real source locations.
func buildLineTable(d *dwarf.Data, cu *dwarf.Entry) ([]lineRow, error) {
	lr, err := d.LineReader(cu)
	if err != nil {
		return nil, err
	}
	if lr == nil {
		return nil, nil
	}

	var rows []lineRow
	var entry dwarf.LineEntry
	for {
		err := lr.Next(&entry)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if entry.EndSequence {
			continue
		}
		file := ""
		if entry.File != nil {
			file = entry.File.Name
		}
		rows = append(rows, lineRow{
			address: entry.Address,
			file:    file,
			line:    entry.Line,
		})
	}
	return rows, nil
}

// lineSpan aggregates the line evidence of one function's ranges.
type lineSpan struct {
	dominantFile      string
	dominantFileRatio float64
	lineMin           int
	lineMax           int
	nLineRows         int
	fileRowCounts     map[string]int
	lineRows          map[lineKey]int
}

// computeLineSpan intersects the CU line table with the function's
// normalized ranges and aggregates the (file, line) multiset.
func computeLineSpan(table []lineRow, segs []rawRange) lineSpan {
	span := lineSpan{}
	if len(segs) == 0 || len(table) == 0 {
		return span
	}

	counts := make(map[lineKey]int)
	fileCounts := make(map[string]int)
	total := 0

	for _, row := range table {
		if !inRanges(row.address, segs) {
			continue
		}
		counts[lineKey{file: row.file, line: row.line}]++
		fileCounts[row.file]++
		total++
	}

	if total == 0 {
		return span
	}

	// Dominant file: maximum summed count; ties broken by path order for
	// determinism.
	files := make([]string, 0, len(fileCounts))
	for f := range fileCounts {
		files = append(files, f)
	}
	sort.Strings(files)

	dominant := files[0]
	for _, f := range files[1:] {
		if fileCounts[f] > fileCounts[dominant] {
			dominant = f
		}
	}

	lineMin, lineMax := 0, 0
	first := true
	for k := range counts {
		if k.file != dominant {
			continue
		}
		if first || k.line < lineMin {
			lineMin = k.line
		}
		if first || k.line > lineMax {
			lineMax = k.line
		}
		first = false
	}

	span.dominantFile = dominant
	span.dominantFileRatio = float64(fileCounts[dominant]) / float64(total)
	span.lineMin = lineMin
	span.lineMax = lineMax
	span.nLineRows = total
	span.fileRowCounts = fileCounts
	span.lineRows = counts
	return span
}

// sortedLineRows serializes the multiset sorted by (file, line).
func sortedLineRows(rows map[lineKey]int) []LineRowCount {
	if len(rows) == 0 {
		return nil
	}
	out := make([]LineRowCount, 0, len(rows))
	for k, c := range rows {
		out = append(out, LineRowCount{File: k.file, Line: k.line, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Line < out[j].Line
	})
	return out
}
