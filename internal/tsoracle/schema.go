// Package tsoracle indexes function definitions and structural nodes in
// preprocessed C translation units using the tree-sitter C grammar.
// Every function gets a stable content-addressed identifier; the context
// hash is the cross-TU dedup key.
package tsoracle

import (
	"github.com/NicolasKol/reforge/internal/envelope"
)

// PackageName identifies the oracle in its output envelopes.
const PackageName = "oracle_ts"

// Verdict classifies a TU or a function.
type Verdict string

const (
	VerdictAccept Verdict = "ACCEPT"
	VerdictWarn   Verdict = "WARN"
	VerdictReject Verdict = "REJECT"
)

// TU and function reason codes.
const (
	ReasonTuParseError = "TU_PARSE_ERROR"

	ReasonInvalidSpan         = "INVALID_SPAN"
	ReasonMissingFunctionName = "MISSING_FUNCTION_NAME"

	ReasonDuplicateFunctionName = "DUPLICATE_FUNCTION_NAME"
	ReasonDeepNesting           = "DEEP_NESTING"
	ReasonAnonymousAggregate    = "ANONYMOUS_AGGREGATE_PRESENT"
	ReasonNonstandardExtension  = "NONSTANDARD_EXTENSION_PATTERN"
)

// Span is a byte/line span. Lines are 0-based.
type Span struct {
	StartByte int `json:"start_byte"`
	EndByte   int `json:"end_byte"`
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// StructuralNode is one allow-listed node inside a function body.
type StructuralNode struct {
	NodeType    string `json:"node_type"`
	StartByte   int    `json:"start_byte"`
	EndByte     int    `json:"end_byte"`
	StartLine   int    `json:"start_line"`
	EndLine     int    `json:"end_line"`
	NodeHashRaw string `json:"node_hash_raw"`
	Depth       int    `json:"depth"`
}

// FunctionEntry is one function definition with stable identifiers.
type FunctionEntry struct {
	TuPath string `json:"tu_path"`
	Name   string `json:"name,omitempty"`

	StartByte int `json:"start_byte"`
	EndByte   int `json:"end_byte"`
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`

	SignatureSpan Span `json:"signature_span"`
	BodySpan      Span `json:"body_span"`
	PreambleSpan  Span `json:"preamble_span"`

	// SpanID is "{tu_path}:{start_byte}:{end_byte}".
	SpanID string `json:"span_id"`
	// ContextHash is SHA-256 of the normalized span: comments stripped,
	// whitespace collapsed to single spaces, no token rewriting.
	ContextHash string `json:"context_hash"`
	// TsFuncID is "{span_id}:{context_hash}", unique within a TU.
	TsFuncID string `json:"ts_func_id"`
	// NodeHashRaw is SHA-256 over the exact span bytes.
	NodeHashRaw string `json:"node_hash_raw"`

	Nodes []StructuralNode `json:"nodes,omitempty"`

	Verdict Verdict  `json:"verdict"`
	Reasons []string `json:"reasons,omitempty"`
}

// ParseErrorLoc is one error node location in a TU parse.
type ParseErrorLoc struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

// TuReport is the per-TU parse record.
type TuReport struct {
	TuPath      string          `json:"tu_path"`
	TuHash      string          `json:"tu_hash"`
	ParseStatus string          `json:"parse_status"` // OK | ERROR
	ParseErrors []ParseErrorLoc `json:"parse_errors,omitempty"`
	Verdict     Verdict         `json:"verdict"`
	Reasons     []string        `json:"reasons,omitempty"`
	NFunctions  int             `json:"n_functions"`
}

// Report is the oracle-level output document.
type Report struct {
	envelope.Envelope

	ParserVersion string     `json:"parser_version"`
	TuReports     []TuReport `json:"tu_reports"`

	NFunctions int `json:"n_functions"`
	NAccept    int `json:"n_accept"`
	NWarn      int `json:"n_warn"`
	NReject    int `json:"n_reject"`
}

// FunctionsDoc is the per-function artifact document.
type FunctionsDoc struct {
	envelope.Envelope

	Functions []FunctionEntry `json:"functions"`
}

// RecipeKind names a deterministic extraction slice.
type RecipeKind string

const (
	RecipeFunctionOnly     RecipeKind = "function_only"
	RecipeWithFilePreamble RecipeKind = "function_with_file_preamble"
)

// Recipe is a deterministic slice descriptor over a TU, not a
// compilation instruction.
type Recipe struct {
	TsFuncID string     `json:"ts_func_id"`
	TuPath   string     `json:"tu_path"`
	Kind     RecipeKind `json:"kind"`
	Spans    []Span     `json:"spans"`
}

// RecipesDoc is the extraction recipes document.
type RecipesDoc struct {
	envelope.Envelope

	Recipes []Recipe `json:"recipes"`
}

// Profile carries the oracle policy knobs.
type Profile struct {
	ProfileID            string
	DeepNestingThreshold int
}

// DefaultProfile returns the locked tree-sitter oracle profile.
func DefaultProfile() Profile {
	return Profile{
		ProfileID:            "source-c-treesitter",
		DeepNestingThreshold: 8,
	}
}
