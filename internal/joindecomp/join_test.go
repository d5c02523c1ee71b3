package joindecomp

import (
	"fmt"
	"testing"

	"github.com/NicolasKol/reforge/internal/decomp"
	"github.com/NicolasKol/reforge/internal/dwarforacle"
	"github.com/NicolasKol/reforge/internal/envelope"
	"github.com/NicolasKol/reforge/internal/joindwts"
	"github.com/NicolasKol/reforge/internal/logging"
)

func testJoiner(t *testing.T) *Joiner {
	t.Helper()
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	j, err := New(DefaultProfile(), logger)
	if err != nil {
		t.Fatal(err)
	}
	return j
}

func u64p(v uint64) *uint64 { return &v }

func dwarfEntry(id, name string, low, high uint64) dwarforacle.FunctionEntry {
	return dwarforacle.FunctionEntry{
		FunctionID: id,
		Name:       name,
		Verdict:    dwarforacle.VerdictAccept,
		DeclFile:   "main.c",
		DeclLine:   1,
		Ranges: []dwarforacle.AddressRange{
			{Low: fmt.Sprintf("0x%x", low), High: fmt.Sprintf("0x%x", high)},
		},
		TotalRangeBytes: high - low,
	}
}

func matchPair(id string, ratio float64, nCandidates int) joindwts.Pair {
	return joindwts.Pair{
		DwarfFunctionID: id,
		Verdict:         joindwts.VerdictMatch,
		OverlapRatio:    ratio,
		NCandidates:     nCandidates,
		BestTsFuncID:    "tu.i:0:10:hash",
		Candidates:      make([]joindwts.CandidateScore, nCandidates),
	}
}

func decompFn(id string, entry, bodyStart, bodyEnd uint64, name string) decomp.FunctionRow {
	return decomp.FunctionRow{
		FunctionID:   id,
		EntryVA:      entry,
		Name:         name,
		BodyStartVA:  u64p(bodyStart),
		BodyEndVA:    u64p(bodyEnd),
		HasBodyRange: true,
		Verdict:      decomp.VerdictOK,
	}
}

func baseInputs(sha string) Inputs {
	env := envelope.Envelope{BinarySHA256: sha}
	return Inputs{
		ReceiptBinarySHA: sha,
		DwarfReport:      &dwarforacle.Report{Envelope: env},
		DwarfFunctions:   &dwarforacle.FunctionsDoc{Envelope: env},
		AlignmentPairs:   &joindwts.PairsDoc{Envelope: env},
		DecompReport:     &decomp.Report{Envelope: env},
	}
}

func TestJoinedStrongHighConfidence(t *testing.T) {
	in := baseInputs("sha1")
	in.DwarfFunctions.Functions = []dwarforacle.FunctionEntry{
		dwarfEntry("cu0x0:die0x10", "main", 0x1149, 0x1180),
	}
	in.AlignmentPairs.Pairs = []joindwts.Pair{matchPair("cu0x0:die0x10", 1.0, 1)}
	in.DecompFunctions = []decomp.FunctionRow{
		decompFn("fn@0x1149", 0x1149, 0x1149, 0x1180, "FUN_main"),
	}

	rows, report, err := testJoiner(t).Run(in)
	if err != nil {
		t.Fatal(err)
	}
	row := rows[0]
	if row.MatchKind != MatchJoinedStrong {
		t.Fatalf("match_kind = %s", row.MatchKind)
	}
	if row.PcOverlapRatio != 1.0 {
		t.Errorf("pc_overlap_ratio = %v", row.PcOverlapRatio)
	}
	if !row.IsHighConfidence {
		t.Errorf("row not high confidence: %+v", row)
	}
	if report.NHighConfidence != 1 || report.NJoinedStrong != 1 {
		t.Errorf("report = %+v", report)
	}
}

// A PLT thunk joins but never reaches high confidence.
func TestThunkJoinNotHighConfidence(t *testing.T) {
	in := baseInputs("sha1")
	in.DwarfFunctions.Functions = []dwarforacle.FunctionEntry{
		dwarfEntry("cu0x0:die0x20", "printf", 0x1040, 0x1050),
	}
	in.AlignmentPairs.Pairs = []joindwts.Pair{matchPair("cu0x0:die0x20", 1.0, 1)}
	thunk := decompFn("fn@0x1040", 0x1040, 0x1040, 0x1050, "printf")
	thunk.IsThunk = true
	in.DecompFunctions = []decomp.FunctionRow{thunk}

	rows, _, err := testJoiner(t).Run(in)
	if err != nil {
		t.Fatal(err)
	}
	row := rows[0]
	if row.MatchKind != MatchJoinedStrong {
		t.Fatalf("match_kind = %s", row.MatchKind)
	}
	if !row.IsThunk {
		t.Error("is_thunk not propagated")
	}
	if row.IsHighConfidence {
		t.Error("thunk row must not be high confidence")
	}
}

func TestMatchKindThresholds(t *testing.T) {
	p := DefaultProfile()
	tests := []struct {
		ratio float64
		ties  int
		want  MatchKind
	}{
		{1.0, 0, MatchJoinedStrong},
		{0.9, 0, MatchJoinedStrong},
		{0.89, 0, MatchJoinedWeak},
		{0.3, 0, MatchJoinedWeak},
		{0.29, 0, MatchNone},
		{0.0, 0, MatchNone},
		{0.95, 1, MatchMulti},
	}
	for _, tt := range tests {
		if got := classifyMatchKind(tt.ratio, tt.ties, p); got != tt.want {
			t.Errorf("classifyMatchKind(%v, %d) = %s, want %s", tt.ratio, tt.ties, got, tt.want)
		}
	}
}

func TestNoRangeNeverForceJoined(t *testing.T) {
	in := baseInputs("sha1")
	fn := dwarforacle.FunctionEntry{
		FunctionID: "cu0x0:die0x30",
		Name:       "rangeless",
		Verdict:    dwarforacle.VerdictReject,
		Reasons:    []string{dwarforacle.ReasonMissingRange},
	}
	in.DwarfFunctions.Functions = []dwarforacle.FunctionEntry{fn}
	in.AlignmentPairs.NonTargets = []joindwts.NonTarget{
		{DwarfFunctionID: "cu0x0:die0x30", DwarfVerdict: "REJECT"},
	}
	in.DecompFunctions = []decomp.FunctionRow{
		decompFn("fn@0x2000", 0x2000, 0x2000, 0x2100, "other"),
	}

	rows, report, err := testJoiner(t).Run(in)
	if err != nil {
		t.Fatal(err)
	}
	// REJECT rows are preserved, tagged NO_RANGE, never joined.
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1 (REJECT preserved)", len(rows))
	}
	if rows[0].MatchKind != MatchNoRange {
		t.Errorf("match_kind = %s", rows[0].MatchKind)
	}
	if rows[0].DecompFuncID != "" {
		t.Error("NO_RANGE row was force-joined")
	}
	if rows[0].ExclusionReason != ExclNoRange {
		t.Errorf("exclusion = %s", rows[0].ExclusionReason)
	}
	if report.NNoRange != 1 {
		t.Errorf("n_no_range = %d", report.NNoRange)
	}
}

func TestFatFunctionTagging(t *testing.T) {
	in := baseInputs("sha1")
	// Two DWARF functions overlapping the same decompiler body.
	in.DwarfFunctions.Functions = []dwarforacle.FunctionEntry{
		dwarfEntry("cu0x0:die0x10", "a", 0x1000, 0x1040),
		dwarfEntry("cu0x0:die0x20", "b", 0x1040, 0x1080),
	}
	in.AlignmentPairs.Pairs = []joindwts.Pair{
		matchPair("cu0x0:die0x10", 1.0, 1),
		matchPair("cu0x0:die0x20", 1.0, 1),
	}
	in.DecompFunctions = []decomp.FunctionRow{
		decompFn("fn@0x1000", 0x1000, 0x1000, 0x1080, "merged"),
	}

	rows, _, err := testJoiner(t).Run(in)
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range rows {
		if !row.FatFunctionMultiDwarf {
			t.Errorf("row %s not fat-tagged", row.DwarfFunctionID)
		}
		if row.FatFunctionDwarfCount != 2 {
			t.Errorf("fat count = %d", row.FatFunctionDwarfCount)
		}
	}
}

func TestHashMismatchIsHardFailure(t *testing.T) {
	in := baseInputs("sha1")
	in.DecompReport.BinarySHA256 = "sha-different"
	in.DwarfFunctions.Functions = []dwarforacle.FunctionEntry{
		dwarfEntry("cu0x0:die0x10", "main", 0x1000, 0x1010),
	}

	_, _, err := testJoiner(t).Run(in)
	if err == nil {
		t.Fatal("expected hard failure on binary_sha256 mismatch")
	}
}

func TestMultiMatchOnNearTie(t *testing.T) {
	in := baseInputs("sha1")
	in.DwarfFunctions.Functions = []dwarforacle.FunctionEntry{
		dwarfEntry("cu0x0:die0x10", "split", 0x1000, 0x1100),
	}
	in.AlignmentPairs.Pairs = []joindwts.Pair{matchPair("cu0x0:die0x10", 1.0, 1)}
	// Two candidates with near-equal overlap (0x80 vs 0x7d bytes, within 5%).
	in.DecompFunctions = []decomp.FunctionRow{
		decompFn("fn@0x1000", 0x1000, 0x1000, 0x1080, "first"),
		decompFn("fn@0x1083", 0x1083, 0x1083, 0x1100, "second"),
	}

	rows, _, err := testJoiner(t).Run(in)
	if err != nil {
		t.Fatal(err)
	}
	row := rows[0]
	if row.NNearTies != 1 {
		t.Fatalf("n_near_ties = %d, want 1 (overlap %d)", row.NNearTies, row.PcOverlapBytes)
	}
	if row.MatchKind != MatchMulti {
		t.Errorf("match_kind = %s, want MULTI_MATCH", row.MatchKind)
	}
	if row.IsHighConfidence {
		t.Error("MULTI_MATCH row must not be high confidence")
	}
}

func TestEligibilityTiers(t *testing.T) {
	in := baseInputs("sha1")
	warnFn := dwarfEntry("cu0x0:die0x10", "warned", 0x1000, 0x1010)
	warnFn.Verdict = dwarforacle.VerdictWarn
	auxFn := dwarfEntry("cu0x0:die0x20", "_start", 0x2000, 0x2010)
	in.DwarfFunctions.Functions = []dwarforacle.FunctionEntry{warnFn, auxFn}
	in.AlignmentPairs.Pairs = []joindwts.Pair{
		matchPair("cu0x0:die0x10", 1.0, 1),
		matchPair("cu0x0:die0x20", 1.0, 1),
	}

	rows, _, err := testJoiner(t).Run(in)
	if err != nil {
		t.Fatal(err)
	}
	byID := map[string]*JoinedRow{}
	for i := range rows {
		byID[rows[i].DwarfFunctionID] = &rows[i]
	}
	// WARN oracle verdict: join-eligible but not gold.
	if !byID["cu0x0:die0x10"].EligibleForJoin || byID["cu0x0:die0x10"].EligibleForGold {
		t.Errorf("warn row tiers = %+v", byID["cu0x0:die0x10"])
	}
	// Compiler auxiliary: join-eligible but not gold.
	if !byID["cu0x0:die0x20"].EligibleForJoin || byID["cu0x0:die0x20"].EligibleForGold {
		t.Errorf("aux row tiers = %+v", byID["cu0x0:die0x20"])
	}
}

func TestQualityWeight(t *testing.T) {
	in := baseInputs("sha1")
	in.DwarfFunctions.Functions = []dwarforacle.FunctionEntry{
		dwarfEntry("cu0x0:die0x10", "f", 0x1000, 0x1010),
	}
	in.AlignmentPairs.Pairs = []joindwts.Pair{matchPair("cu0x0:die0x10", 0.8, 2)}

	rows, _, err := testJoiner(t).Run(in)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].QualityWeight != 0.4 {
		t.Errorf("quality_weight = %v, want 0.4", rows[0].QualityWeight)
	}
}

func TestOverlapInvariant(t *testing.T) {
	in := baseInputs("sha1")
	in.DwarfFunctions.Functions = []dwarforacle.FunctionEntry{
		dwarfEntry("cu0x0:die0x10", "partial", 0x1000, 0x1100),
	}
	in.AlignmentPairs.Pairs = []joindwts.Pair{matchPair("cu0x0:die0x10", 1.0, 1)}
	// Decompiler body extends past the DWARF range; overlap must clamp.
	in.DecompFunctions = []decomp.FunctionRow{
		decompFn("fn@0x0f00", 0x0f00, 0x0f00, 0x1200, "wide"),
	}

	rows, _, err := testJoiner(t).Run(in)
	if err != nil {
		t.Fatal(err)
	}
	row := rows[0]
	if row.PcOverlapBytes > row.TotalRangeBytes {
		t.Errorf("overlap %d exceeds range %d", row.PcOverlapBytes, row.TotalRangeBytes)
	}
	if row.PcOverlapRatio != 1.0 {
		t.Errorf("ratio = %v, want 1.0", row.PcOverlapRatio)
	}
}
