package joindwts

import (
	"testing"

	"github.com/NicolasKol/reforge/internal/tsoracle"
)

func tsFunc(tu string, startLine, endLine, startByte, endByte int, name, ctxHash string) tsoracle.FunctionEntry {
	return tsoracle.FunctionEntry{
		TuPath:      tu,
		Name:        name,
		StartLine:   startLine,
		EndLine:     endLine,
		StartByte:   startByte,
		EndByte:     endByte,
		ContextHash: ctxHash,
		TsFuncID:    tu + ":" + name,
	}
}

// originMapFor builds a map where .i line i maps to (file, i+1).
func originMapFor(file string, nLines int) *OriginMap {
	forward := make([]*Origin, nLines)
	for i := 0; i < nLines; i++ {
		forward[i] = &Origin{File: file, Line: i + 1}
	}
	return &OriginMap{TuPath: "x.i", Forward: forward, OriginAvailable: true, NTotalLines: nLines}
}

func TestScoreCandidatesOverlap(t *testing.T) {
	evidence := map[lineKey]int{
		{file: "main.c", line: 3}: 2,
		{file: "main.c", line: 4}: 1,
	}
	om := originMapFor("main.c", 10)
	funcs := []tsoracle.FunctionEntry{
		tsFunc("x.i", 2, 4, 10, 60, "hit", "h1"),   // covers .i lines 2..4 → main.c 3..5
		tsFunc("x.i", 6, 8, 70, 120, "miss", "h2"), // main.c 7..9, no overlap
	}

	got := scoreCandidates(evidence, funcs, om)
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1", len(got))
	}
	c := got[0]
	if c.overlapCount != 3 {
		t.Errorf("overlap_count = %d, want 3", c.overlapCount)
	}
	if c.totalCount != 3 {
		t.Errorf("total_count = %d, want 3", c.totalCount)
	}
	if c.overlapRatio != 1.0 {
		t.Errorf("overlap_ratio = %v, want 1.0", c.overlapRatio)
	}
	if c.gapCount != 0 {
		t.Errorf("gap_count = %d, want 0", c.gapCount)
	}
}

func TestOverlapCountNeverExceedsTotal(t *testing.T) {
	evidence := map[lineKey]int{{file: "a.c", line: 1}: 5}
	om := originMapFor("a.c", 4)
	// Span covering the origin line multiple times cannot double-count
	// beyond the evidence: each .i line contributes its mapped count.
	funcs := []tsoracle.FunctionEntry{tsFunc("x.i", 0, 0, 0, 10, "f", "h")}

	got := scoreCandidates(evidence, funcs, om)
	if len(got) != 1 {
		t.Fatalf("candidates = %d", len(got))
	}
	if got[0].overlapCount > got[0].totalCount {
		t.Errorf("overlap_count %d > total_count %d", got[0].overlapCount, got[0].totalCount)
	}
}

func TestSortCandidatesDeterministicTieBreak(t *testing.T) {
	cands := []candidate{
		{tsFuncID: "b", overlapRatio: 0.9, overlapCount: 9, spanSize: 100, tuPath: "b.i", startByte: 0},
		{tsFuncID: "a", overlapRatio: 0.9, overlapCount: 9, spanSize: 100, tuPath: "a.i", startByte: 0},
		{tsFuncID: "c", overlapRatio: 0.9, overlapCount: 9, spanSize: 50, tuPath: "c.i", startByte: 0},
		{tsFuncID: "d", overlapRatio: 1.0, overlapCount: 5, spanSize: 200, tuPath: "d.i", startByte: 0},
	}
	sortCandidates(cands)

	wantOrder := []string{"d", "c", "a", "b"}
	for i, want := range wantOrder {
		if cands[i].tsFuncID != want {
			t.Errorf("position %d = %s, want %s", i, cands[i].tsFuncID, want)
		}
	}
}

func TestNearTies(t *testing.T) {
	best := candidate{overlapRatio: 0.95}
	cands := []candidate{
		best,
		{tsFuncID: "close", overlapRatio: 0.94},
		{tsFuncID: "far", overlapRatio: 0.80},
	}
	ties := nearTies(cands, best, 0.02)
	if len(ties) != 1 || ties[0].tsFuncID != "close" {
		t.Errorf("ties = %+v", ties)
	}
}

func TestIsHeaderReplication(t *testing.T) {
	best := candidate{contextHash: "h", tuPath: "a.i"}

	if isHeaderReplication(best, []candidate{{contextHash: "h", tuPath: "b.i"}}) != true {
		t.Error("same hash across TUs should be replication")
	}
	if isHeaderReplication(best, []candidate{{contextHash: "h", tuPath: "a.i"}}) != false {
		t.Error("same TU is not replication")
	}
	if isHeaderReplication(best, []candidate{{contextHash: "other", tuPath: "b.i"}}) != false {
		t.Error("different hash is not replication")
	}
	if isHeaderReplication(best, nil) != false {
		t.Error("no ties is not replication")
	}
}
