package decomp

import (
	"github.com/NicolasKol/reforge/internal/envelope"
)

// FunctionVerdict classifies one decompiled function.
type FunctionVerdict string

const (
	VerdictOK   FunctionVerdict = "OK"
	VerdictWarn FunctionVerdict = "WARN"
	VerdictFail FunctionVerdict = "FAIL"
)

// CfgCompleteness grades the recovered control-flow graph.
type CfgCompleteness string

const (
	CfgHigh   CfgCompleteness = "HIGH"
	CfgMedium CfgCompleteness = "MEDIUM"
	CfgLow    CfgCompleteness = "LOW"
)

// StorageClass of a decompiler variable.
type StorageClass string

const (
	StorageStack    StorageClass = "STACK"
	StorageRegister StorageClass = "REGISTER"
	StorageMemory   StorageClass = "MEMORY"
	StorageUnique   StorageClass = "UNIQUE"
	StorageUnknown  StorageClass = "UNKNOWN"
)

// VarKind classifies a variable's role.
type VarKind string

const (
	VarParam     VarKind = "PARAM"
	VarLocal     VarKind = "LOCAL"
	VarGlobalRef VarKind = "GLOBAL_REF"
	VarTemp      VarKind = "TEMP"
)

// CallKind is the sum type of call dispatch.
type CallKind string

const (
	CallDirect   CallKind = "DIRECT"
	CallIndirect CallKind = "INDIRECT"
)

// FunctionRow is one reshaped function record (functions.jsonl).
// Virtual addresses are rebased by the summary image base.
type FunctionRow struct {
	BinarySHA256 string `json:"binary_sha256"`
	FunctionID   string `json:"function_id"` // "fn@0x{entry_va:x}"
	EntryVA      uint64 `json:"entry_va"`
	EntryHex     string `json:"entry_hex"`
	Name         string `json:"name"`
	Namespace    string `json:"namespace,omitempty"`

	BodyStartVA  *uint64 `json:"body_start_va"`
	BodyEndVA    *uint64 `json:"body_end_va"`
	SizeBytes    *int64  `json:"size_bytes"`
	SectionHint  string  `json:"section_hint,omitempty"`
	InsnCount    int     `json:"insn_count"`
	HasBodyRange bool    `json:"has_body_range"`

	IsExternalBlock bool `json:"is_external_block"`
	IsThunk         bool `json:"is_thunk"`
	IsImport        bool `json:"is_import"`
	IsPltOrStub     bool `json:"is_plt_or_stub"`
	IsInitFiniAux   bool `json:"is_init_fini_aux"`
	IsCompilerAux   bool `json:"is_compiler_aux"`
	IsLibraryLike   bool `json:"is_library_like"`

	CRaw       *string `json:"c_raw"`
	CLineCount int     `json:"c_line_count"`
	GotoCount  int     `json:"goto_count"`

	DecompileStatus string          `json:"decompile_status"` // OK | FAIL
	Error           *string         `json:"error"`
	Warnings        []string        `json:"warnings,omitempty"`
	Verdict         FunctionVerdict `json:"verdict"`
	Reasons         []string        `json:"reasons,omitempty"`
}

// VariableRow is one reshaped variable record (variables.jsonl).
type VariableRow struct {
	BinarySHA256 string `json:"binary_sha256"`
	FunctionID   string `json:"function_id"`
	EntryVA      uint64 `json:"entry_va"`

	// VarID is "{function_id}:{var_kind}:{storage_key}:{access_sig}".
	VarID   string  `json:"var_id"`
	VarKind VarKind `json:"var_kind"`
	Name    string  `json:"name"`
	TypeStr *string `json:"type_str"`

	SizeBytes *int `json:"size_bytes"`

	StorageClass StorageClass `json:"storage_class"`
	// StorageKey: "stack:off:±0xN" | "reg:NAME" | "mem:0xADDR" |
	// "uniq:NAME" | "unk:NAME".
	StorageKey   string  `json:"storage_key"`
	StackOffset  *int64  `json:"stack_offset"`
	RegisterName *string `json:"register_name"`
	AddrVA       *uint64 `json:"addr_va"`

	IsTempSingleton      bool    `json:"is_temp_singleton"`
	AccessSites          []int64 `json:"access_sites,omitempty"`
	AccessSitesTruncated bool    `json:"access_sites_truncated,omitempty"`
	AccessSig            string  `json:"access_sig"`
}

// BlockRow is one basic block with resolved successor ids.
type BlockRow struct {
	BlockID int    `json:"block_id"`
	StartVA uint64 `json:"start_va"`
	EndVA   uint64 `json:"end_va"`
	Succ    []int  `json:"succ"`
}

// CfgRow is one per-function CFG record (cfg.jsonl). Blocks own no
// pointers to each other; the edge set is carried by block ids.
type CfgRow struct {
	BinarySHA256 string `json:"binary_sha256"`
	FunctionID   string `json:"function_id"`
	EntryVA      uint64 `json:"entry_va"`

	BBCount    int `json:"bb_count"`
	EdgeCount  int `json:"edge_count"`
	Cyclomatic int `json:"cyclomatic"`

	HasIndirectJumps            bool `json:"has_indirect_jumps"`
	UnresolvedIndirectJumpCount int  `json:"unresolved_indirect_jump_count"`

	CfgCompleteness CfgCompleteness `json:"cfg_completeness"`
	Blocks          []BlockRow      `json:"blocks"`
}

// CallRow is one call site record (calls.jsonl), sorted by
// (caller_entry_va, callsite_va).
type CallRow struct {
	BinarySHA256 string `json:"binary_sha256"`
	CallerID     string `json:"caller_id"`
	CallerVA     uint64 `json:"caller_entry_va"`

	CallsiteVA uint64   `json:"callsite_va"`
	CallKind   CallKind `json:"call_kind"`

	CalleeEntryVA       *uint64 `json:"callee_entry_va"`
	CalleeName          *string `json:"callee_name"`
	IsExternalTarget    bool    `json:"is_external_target"`
	IsImportProxyTarget bool    `json:"is_import_proxy_target"`
}

// Report is the reshape stage report (report.json).
type Report struct {
	envelope.Envelope

	ToolVersion string `json:"tool_version"`
	ProgramArch string `json:"program_arch,omitempty"`

	ImageBase uint64 `json:"image_base"`
	Rebased   bool   `json:"rebased"`

	NoiseListVersion string `json:"noise_list_version"`

	Verdict string   `json:"verdict"` // ACCEPT | WARN
	Reasons []string `json:"reasons,omitempty"`

	NFunctions    int `json:"n_functions"`
	NOk           int `json:"n_ok"`
	NWarn         int `json:"n_warn"`
	NFail         int `json:"n_fail"`
	DecompileOK   int `json:"decompile_ok"`
	DecompileFail int `json:"decompile_fail"`

	WarningCounts map[string]int `json:"warning_counts,omitempty"`
}
