// Package dwarforacle extracts function-level ground truth from the DWARF
// debug information of a debug-variant ELF: per-function address ranges,
// line-row multisets, dominant-file evidence, and structured verdicts.
package dwarforacle

import (
	"fmt"

	"github.com/NicolasKol/reforge/internal/envelope"
)

// PackageName identifies the oracle in its output envelopes.
const PackageName = "oracle_dwarf"

// Verdict classifies a binary or a function.
type Verdict string

const (
	VerdictAccept Verdict = "ACCEPT"
	VerdictWarn   Verdict = "WARN"
	VerdictReject Verdict = "REJECT"
)

// Binary-level reject reasons. Any single one is fatal: function
// extraction is short-circuited.
const (
	ReasonNotElf          = "NOT_ELF"
	ReasonNoDebugInfo     = "NO_DEBUG_INFO"
	ReasonNoDebugLine     = "NO_DEBUG_LINE"
	ReasonUnsupportedArch = "UNSUPPORTED_ARCH"
	ReasonSplitDwarf      = "SPLIT_DWARF"
	ReasonDwarfParseError = "DWARF_PARSE_ERROR"
)

// Function-level reject reasons.
const (
	ReasonDeclarationOnly   = "DECLARATION_ONLY"
	ReasonMissingRange      = "MISSING_RANGE"
	ReasonNoLineRowsInRange = "NO_LINE_ROWS_IN_RANGE"
)

// Function-level warn reasons.
const (
	ReasonMultiFileRange       = "MULTI_FILE_RANGE"
	ReasonSystemHeaderDominant = "SYSTEM_HEADER_DOMINANT"
	ReasonRangesFragmented     = "RANGES_FRAGMENTED"
	ReasonNameMissing          = "NAME_MISSING"
)

// AddressRange is a half-open address range [low, high).
type AddressRange struct {
	Low  string `json:"low"`  // hex, 0x-prefixed
	High string `json:"high"` // hex, 0x-prefixed
}

// LineRowCount is one entry of the (file, line) → count multiset.
type LineRowCount struct {
	File  string `json:"file"`
	Line  int    `json:"line"`
	Count int    `json:"count"`
}

// FunctionEntry is one subprogram DIE after extraction and judging.
type FunctionEntry struct {
	FunctionID string `json:"function_id"` // "cu0x...:die0x..."
	CUOffset   uint64 `json:"cu_offset"`
	DIEOffset  uint64 `json:"die_offset"`

	Name        string `json:"name,omitempty"`
	LinkageName string `json:"linkage_name,omitempty"`

	Ranges          []AddressRange `json:"ranges"`
	TotalRangeBytes uint64         `json:"total_range_bytes"`

	IsDeclaration bool `json:"is_declaration,omitempty"`
	IsExternal    bool `json:"is_external,omitempty"`
	IsInlined     bool `json:"is_inlined,omitempty"`

	DeclFile          string `json:"decl_file,omitempty"`
	DeclLine          int    `json:"decl_line,omitempty"`
	DeclColumn        int    `json:"decl_column,omitempty"`
	CompDir           string `json:"comp_dir,omitempty"`
	DeclMissingReason string `json:"decl_missing_reason,omitempty"`

	DominantFile      string  `json:"dominant_file,omitempty"`
	DominantFileRatio float64 `json:"dominant_file_ratio"`
	LineMin           int     `json:"line_min,omitempty"`
	LineMax           int     `json:"line_max,omitempty"`
	NLineRows         int     `json:"n_line_rows"`

	// LineRows is the multiset of DWARF line evidence, sorted by
	// (file, line). Downstream joins consume it without re-parsing.
	LineRows []LineRowCount `json:"line_rows,omitempty"`

	// FileRowCounts maps contributing files to their row counts.
	FileRowCounts map[string]int `json:"file_row_counts,omitempty"`

	Verdict Verdict  `json:"verdict"`
	Reasons []string `json:"reasons,omitempty"`
}

// StableIdentity is the cross-optimization identity key of a function.
// DIE offsets are not stable across optimization levels; this tuple is.
// When decl_file is missing the entry is UNRESOLVED and must never be
// joined across optimizations.
func (f *FunctionEntry) StableIdentity(testCase string) string {
	name := f.Name
	if name == "" {
		name = fmt.Sprintf("<anon@%s>", f.FunctionID)
	}
	if f.DeclFile == "" {
		return fmt.Sprintf("UNRESOLVED:%s:%s", testCase, f.FunctionID)
	}
	return fmt.Sprintf("%s:%s:%d:%d:%s", testCase, f.DeclFile, f.DeclLine, f.DeclColumn, name)
}

// Report is the binary-level oracle report.
type Report struct {
	envelope.Envelope

	BuildID string `json:"build_id,omitempty"`

	Verdict Verdict  `json:"verdict"`
	Reasons []string `json:"reasons,omitempty"`

	NFunctions int `json:"n_functions"`
	NAccept    int `json:"n_accept"`
	NWarn      int `json:"n_warn"`
	NReject    int `json:"n_reject"`

	ReasonCounts map[string]int `json:"reason_counts,omitempty"`
}

// FunctionsDoc is the per-function artifact document.
type FunctionsDoc struct {
	envelope.Envelope

	BuildID   string          `json:"build_id,omitempty"`
	Functions []FunctionEntry `json:"functions"`
}

// Profile carries all oracle policy knobs. Core extraction contains no
// opinions; thresholds flow in here.
type Profile struct {
	ProfileID            string
	MinDominantFileRatio float64
	MaxFragmentsWarn     int
	ExcludePathPrefixes  []string
}

// DefaultProfile returns the locked oracle profile.
func DefaultProfile() Profile {
	return Profile{
		ProfileID:            "linux-x86_64-gcc-dwarf",
		MinDominantFileRatio: 0.7,
		MaxFragmentsWarn:     2,
		ExcludePathPrefixes: []string{
			"/usr/include",
			"/usr/lib/gcc",
			"<built-in>",
			"<command-line>",
		},
	}
}
