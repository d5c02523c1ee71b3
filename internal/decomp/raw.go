// Package decomp reshapes the raw newline-delimited JSON emitted by the
// headless decompiler into validated, deterministic per-function records:
// functions, variables, CFG, and call sites, each with a stable identity
// and a frozen warning taxonomy applied.
package decomp

import (
	"bufio"
	"encoding/json"
	"os"
	"sort"

	"github.com/NicolasKol/reforge/internal/logging"
	"github.com/NicolasKol/reforge/internal/stageerr"
)

// PackageName identifies the reshape stage in its output envelopes.
const PackageName = "decompile_reshape"

// RawVariable is a variable as emitted by the exporter.
type RawVariable struct {
	Name                 string  `json:"name"`
	IsParam              bool    `json:"is_param"`
	SizeBytes            int     `json:"size_bytes"`
	TypeStr              *string `json:"type_str"`
	StorageClass         string  `json:"storage_class"`
	StackOffset          *int64  `json:"stack_offset"`
	RegisterName         *string `json:"register_name"`
	AddrVA               *uint64 `json:"addr_va"`
	AccessSites          []int64 `json:"access_sites"`
	AccessSitesTruncated bool    `json:"access_sites_truncated"`
}

// RawBlock is a basic block as emitted by the exporter.
type RawBlock struct {
	BlockID int      `json:"block_id"`
	StartVA uint64   `json:"start_va"`
	EndVA   uint64   `json:"end_va"`
	SuccVA  []uint64 `json:"succ_va"`
}

// RawCall is a callsite as emitted by the exporter.
type RawCall struct {
	CallsiteVA          uint64  `json:"callsite_va"`
	CallKind            string  `json:"call_kind"` // DIRECT | INDIRECT
	CalleeEntryVA       *uint64 `json:"callee_entry_va"`
	CalleeName          *string `json:"callee_name"`
	IsExternalTarget    bool    `json:"is_external_target"`
	IsImportProxyTarget bool    `json:"is_import_proxy_target"`
}

// RawFunctionRecord is one function record from the raw JSONL.
// Unresolvable fields are explicit nulls, never omitted, per the
// decompiler contract.
type RawFunctionRecord struct {
	Type            string        `json:"_type"`
	EntryVA         uint64        `json:"entry_va"`
	Name            string        `json:"name"`
	Namespace       *string       `json:"namespace"`
	IsExternalBlock bool          `json:"is_external_block"`
	IsThunk         bool          `json:"is_thunk"`
	IsImport        bool          `json:"is_import"`
	BodyStartVA     *uint64       `json:"body_start_va"`
	BodyEndVA       *uint64       `json:"body_end_va"`
	SizeBytes       *int64        `json:"size_bytes"`
	SectionHint     *string       `json:"section_hint"`
	InsnCount       int           `json:"insn_count"`
	CRaw            *string       `json:"c_raw"`
	Error           *string       `json:"error"`
	WarningsRaw     []string      `json:"warnings_raw"`
	Variables       []RawVariable `json:"variables"`
	Blocks          []RawBlock    `json:"blocks"`
	Calls           []RawCall     `json:"calls"`
}

// RawSummary is the summary trailer record. ImageBase is critical for
// position-independent binaries: all virtual addresses are rebased by it
// before the address-overlap join.
type RawSummary struct {
	Type            string  `json:"_type"`
	ToolVersion     string  `json:"tool_version"`
	ProgramName     string  `json:"program_name"`
	ProgramArch     string  `json:"program_arch"`
	TotalFunctions  int     `json:"total_functions"`
	DecompileOK     int     `json:"decompile_ok"`
	DecompileFail   int     `json:"decompile_fail"`
	AnalysisOptions string  `json:"analysis_options"`
	ImageBase       *uint64 `json:"image_base"`
}

// ParseRawJSONL reads the exporter output line by line, separating
// function records from the summary trailer. Malformed lines are skipped
// with a warning; a missing summary yields a zero-value summary.
func ParseRawJSONL(path string, logger *logging.Logger) (*RawSummary, []RawFunctionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, stageerr.New(stageerr.InputUnreadable, "raw jsonl not found: "+path, err)
	}
	defer f.Close()

	summary := &RawSummary{}
	var functions []RawFunctionRecord

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var probe struct {
			Type string `json:"_type"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			logger.Warn("malformed raw jsonl line", map[string]interface{}{
				"path": path, "line": lineNum, "error": err.Error(),
			})
			continue
		}

		switch probe.Type {
		case "summary":
			if err := json.Unmarshal(line, summary); err != nil {
				logger.Warn("malformed summary record", map[string]interface{}{
					"path": path, "line": lineNum, "error": err.Error(),
				})
			}
		case "function", "":
			var fn RawFunctionRecord
			if err := json.Unmarshal(line, &fn); err != nil {
				logger.Warn("malformed function record", map[string]interface{}{
					"path": path, "line": lineNum, "error": err.Error(),
				})
				continue
			}
			functions = append(functions, fn)
		default:
			logger.Warn("unknown record type", map[string]interface{}{
				"path": path, "line": lineNum, "type": probe.Type,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, stageerr.New(stageerr.InputUnreadable, "failed to read "+path, err)
	}

	// Deterministic ordering by entry VA.
	sort.Slice(functions, func(i, j int) bool {
		return functions[i].EntryVA < functions[j].EntryVA
	})
	return summary, functions, nil
}
