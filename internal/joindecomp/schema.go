// Package joindecomp joins the DWARF/tree-sitter oracle view to the
// decompiler view by address-range overlap, producing the experiment
// substrate: one joined row per DWARF function, REJECT rows preserved.
package joindecomp

import (
	"github.com/NicolasKol/reforge/internal/envelope"
)

// PackageName identifies the join stage in its output envelopes.
const PackageName = "join_oracles_decompile"

// MatchKind classifies one DWARF→decompiler mapping.
type MatchKind string

const (
	MatchJoinedStrong MatchKind = "JOINED_STRONG"
	MatchJoinedWeak   MatchKind = "JOINED_WEAK"
	MatchMulti        MatchKind = "MULTI_MATCH"
	MatchNone         MatchKind = "NO_MATCH"
	MatchNoRange      MatchKind = "NO_RANGE"
)

// Exclusion reasons for join eligibility.
const (
	ExclNoRange      = "NO_RANGE"
	ExclNonTarget    = "NON_TARGET"
	ExclOracleReject = "ORACLE_REJECT"
)

// JoinedRow is one row of joined_functions.jsonl: the DWARF entry joined
// with its alignment evidence and best decompiler match (or absence).
type JoinedRow struct {
	BinarySHA256 string `json:"binary_sha256"`

	// DWARF identity
	DwarfFunctionID string   `json:"dwarf_function_id"`
	Name            string   `json:"name,omitempty"`
	DeclFile        string   `json:"decl_file,omitempty"`
	DeclLine        int      `json:"decl_line,omitempty"`
	DeclColumn      int      `json:"decl_column,omitempty"`
	OracleVerdict   string   `json:"oracle_verdict"`
	OracleReasons   []string `json:"oracle_reasons,omitempty"`

	TotalRangeBytes uint64 `json:"total_range_bytes"`
	LowPc           string `json:"low_pc,omitempty"`
	HasRange        bool   `json:"has_range"`

	// Alignment evidence
	AlignVerdict      string   `json:"align_verdict,omitempty"`
	AlignOverlapRatio *float64 `json:"align_overlap_ratio,omitempty"`
	AlignNCandidates  *int     `json:"align_n_candidates,omitempty"`
	AlignReasons      []string `json:"align_reasons,omitempty"`
	BestTsFuncID      string   `json:"best_ts_func_id,omitempty"`
	QualityWeight     float64  `json:"quality_weight"`
	IsNonTarget       bool     `json:"is_non_target,omitempty"`

	// Eligibility
	EligibleForJoin bool   `json:"eligible_for_join"`
	EligibleForGold bool   `json:"eligible_for_gold"`
	ExclusionReason string `json:"exclusion_reason,omitempty"`

	// Decompiler match
	MatchKind       MatchKind `json:"match_kind"`
	DecompFuncID    string    `json:"decomp_func_id,omitempty"`
	DecompEntryVA   *uint64   `json:"decomp_entry_va,omitempty"`
	DecompName      string    `json:"decomp_name,omitempty"`
	PcOverlapBytes  uint64    `json:"pc_overlap_bytes"`
	PcOverlapRatio  float64   `json:"pc_overlap_ratio"`
	NNearTies       int       `json:"n_near_ties"`
	JoinWarnings    []string  `json:"join_warnings,omitempty"`
	DecompVerdict   string    `json:"decomp_verdict,omitempty"`
	DecompWarnings  []string  `json:"decomp_warnings,omitempty"`
	CfgCompleteness string    `json:"cfg_completeness,omitempty"`

	// Noise flags (additive; never drop rows)
	IsExternalBlock bool `json:"is_external_block,omitempty"`
	IsThunk         bool `json:"is_thunk,omitempty"`
	IsAuxFunction   bool `json:"is_aux_function,omitempty"`
	IsImportProxy   bool `json:"is_import_proxy,omitempty"`

	// Fat-function tagging
	FatFunctionMultiDwarf bool `json:"fat_function_multi_dwarf,omitempty"`
	FatFunctionDwarfCount int  `json:"fat_function_dwarf_count,omitempty"`

	// High-confidence gate
	IsHighConfidence bool `json:"is_high_confidence"`
}

// Report is join_report.json.
type Report struct {
	envelope.Envelope

	NoiseListVersion string `json:"noise_list_version"`

	NRows            int `json:"n_rows"`
	NJoinedStrong    int `json:"n_joined_strong"`
	NJoinedWeak      int `json:"n_joined_weak"`
	NMultiMatch      int `json:"n_multi_match"`
	NNoMatch         int `json:"n_no_match"`
	NNoRange         int `json:"n_no_range"`
	NHighConfidence  int `json:"n_high_confidence"`
	NEligibleForJoin int `json:"n_eligible_for_join"`
	NEligibleForGold int `json:"n_eligible_for_gold"`

	ExclusionCounts map[string]int `json:"exclusion_counts,omitempty"`
	WarningCounts   map[string]int `json:"warning_counts,omitempty"`

	Thresholds map[string]float64 `json:"thresholds"`
}

// Profile carries the join policy knobs. The near-tie epsilon here is
// relative (fraction of the best candidate's overlap bytes).
type Profile struct {
	ProfileID              string
	StrongOverlapThreshold float64
	WeakOverlapThreshold   float64
	NearTieEpsilon         float64
}

// DefaultProfile returns the locked join profile.
func DefaultProfile() Profile {
	return Profile{
		ProfileID:              "join-oracles-decompile",
		StrongOverlapThreshold: 0.9,
		WeakOverlapThreshold:   0.3,
		NearTieEpsilon:         0.05,
	}
}
