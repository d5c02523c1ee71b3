package joindwts

import (
	"github.com/NicolasKol/reforge/internal/envelope"
)

// JoinVerdict classifies one alignment pair.
type JoinVerdict string

const (
	VerdictMatch     JoinVerdict = "MATCH"
	VerdictAmbiguous JoinVerdict = "AMBIGUOUS"
	VerdictNoMatch   JoinVerdict = "NO_MATCH"
)

// Alignment reason codes.
const (
	ReasonUniqueBest                 = "UNIQUE_BEST"
	ReasonNoCandidates               = "NO_CANDIDATES"
	ReasonNoOverlap                  = "NO_OVERLAP"
	ReasonLowOverlapRatio            = "LOW_OVERLAP_RATIO"
	ReasonBelowMinOverlap            = "BELOW_MIN_OVERLAP"
	ReasonOriginMapMissing           = "ORIGIN_MAP_MISSING"
	ReasonNearTie                    = "NEAR_TIE"
	ReasonPcLineGap                  = "PC_LINE_GAP"
	ReasonHeaderReplicationCollision = "HEADER_REPLICATION_COLLISION"
	ReasonMultiFileRangePropagated   = "MULTI_FILE_RANGE_PROPAGATED"
)

// CandidateScore is one scored TS candidate, kept for transparency.
type CandidateScore struct {
	TsFuncID     string  `json:"ts_func_id"`
	TuPath       string  `json:"tu_path"`
	FunctionName string  `json:"function_name,omitempty"`
	ContextHash  string  `json:"context_hash"`
	OverlapCount int     `json:"overlap_count"`
	OverlapRatio float64 `json:"overlap_ratio"`
	GapCount     int     `json:"gap_count"`
}

// Pair is one alignment result for an ACCEPT/WARN DWARF target.
type Pair struct {
	DwarfFunctionID   string `json:"dwarf_function_id"`
	DwarfFunctionName string `json:"dwarf_function_name,omitempty"`
	DwarfVerdict      string `json:"dwarf_verdict"`

	DeclFile   string `json:"decl_file,omitempty"`
	DeclLine   int    `json:"decl_line,omitempty"`
	DeclColumn int    `json:"decl_column,omitempty"`
	CompDir    string `json:"comp_dir,omitempty"`

	BestTsFuncID       string `json:"best_ts_func_id,omitempty"`
	BestTuPath         string `json:"best_tu_path,omitempty"`
	BestTsFunctionName string `json:"best_ts_function_name,omitempty"`

	OverlapCount int     `json:"overlap_count"`
	TotalCount   int     `json:"total_count"`
	OverlapRatio float64 `json:"overlap_ratio"`
	GapCount     int     `json:"gap_count"`

	NCandidates int              `json:"n_candidates"`
	Candidates  []CandidateScore `json:"candidates,omitempty"`

	Verdict JoinVerdict `json:"verdict"`
	Reasons []string    `json:"reasons,omitempty"`
}

// NonTarget is a DWARF REJECT entry passed through with its reasons.
type NonTarget struct {
	DwarfFunctionID   string   `json:"dwarf_function_id"`
	DwarfFunctionName string   `json:"dwarf_function_name,omitempty"`
	DwarfVerdict      string   `json:"dwarf_verdict"`
	DwarfReasons      []string `json:"dwarf_reasons,omitempty"`
	DeclFile          string   `json:"decl_file,omitempty"`
	DeclLine          int      `json:"decl_line,omitempty"`
	DeclColumn        int      `json:"decl_column,omitempty"`
	CompDir           string   `json:"comp_dir,omitempty"`
}

// PairsDoc is the alignment pairs artifact document.
type PairsDoc struct {
	envelope.Envelope

	BuildID        string `json:"build_id,omitempty"`
	DwarfProfileID string `json:"dwarf_profile_id"`
	TsProfileID    string `json:"ts_profile_id"`

	Pairs      []Pair      `json:"pairs"`
	NonTargets []NonTarget `json:"non_targets"`
}

// Report is the alignment summary report.
type Report struct {
	envelope.Envelope

	BuildID        string `json:"build_id,omitempty"`
	DwarfProfileID string `json:"dwarf_profile_id"`
	TsProfileID    string `json:"ts_profile_id"`

	TuHashes map[string]string `json:"tu_hashes,omitempty"`

	NMatch     int `json:"n_match"`
	NAmbiguous int `json:"n_ambiguous"`
	NNoMatch   int `json:"n_no_match"`
	NNonTarget int `json:"n_non_target"`

	ReasonCounts map[string]int `json:"reason_counts,omitempty"`

	Thresholds map[string]float64 `json:"thresholds"`

	ExcludedPathPrefixes []string `json:"excluded_path_prefixes"`
}

// Profile carries the join policy knobs.
type Profile struct {
	ProfileID            string
	OverlapThreshold     float64
	Epsilon              float64
	MinOverlapLines      int
	ExcludedPathPrefixes []string
}

// DefaultProfile returns the locked join profile. The near-tie epsilon is
// absolute on the ratio.
func DefaultProfile() Profile {
	return Profile{
		ProfileID:        "join-dwarf-ts",
		OverlapThreshold: 0.7,
		Epsilon:          0.02,
		MinOverlapLines:  1,
		ExcludedPathPrefixes: []string{
			"/usr/include",
			"/usr/lib/gcc",
		},
	}
}
