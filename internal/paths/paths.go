// Package paths resolves the bit-stable on-disk layout of a build job.
//
// Layout under {root}/{name}/:
//
//	build_receipt.json
//	src/...
//	src.tar.zst
//	preprocess/{stem}.i + logs/
//	{O0..O3}/{debug|release|stripped}/obj, bin/{name}, logs
//	{O*}/debug/oracle/oracle_report.json + oracle_functions.json
//	oracle_ts/oracle_ts_report.json + oracle_ts_functions.json + extraction_recipes.json
//	{O*}/debug/join_dwarf_ts/alignment_report.json + alignment_pairs.json
//	{O*}/stripped/decompile/report.json + functions.jsonl + variables.jsonl + cfg.jsonl + calls.jsonl
//	{O*}/stripped/join_oracles_decompile/join_report.json + joined_functions.jsonl
package paths

import (
	"path/filepath"
	"strings"
)

// Layout resolves artifact paths for one named build job.
type Layout struct {
	Root string
	Name string
}

// NewLayout creates a layout rooted at root for the named job.
func NewLayout(root, name string) Layout {
	return Layout{Root: root, Name: name}
}

// JobDir returns {root}/{name}.
func (l Layout) JobDir() string {
	return filepath.Join(l.Root, l.Name)
}

// ReceiptPath returns the build receipt location.
func (l Layout) ReceiptPath() string {
	return filepath.Join(l.JobDir(), "build_receipt.json")
}

// SrcDir returns the snapshot directory.
func (l Layout) SrcDir() string {
	return filepath.Join(l.JobDir(), "src")
}

// SnapshotArchivePath returns the compressed snapshot archive location.
func (l Layout) SnapshotArchivePath() string {
	return filepath.Join(l.JobDir(), "src.tar.zst")
}

// PreprocessDir returns the directory holding .i outputs.
func (l Layout) PreprocessDir() string {
	return filepath.Join(l.JobDir(), "preprocess")
}

// PreprocessLogDir returns the preprocess log directory.
func (l Layout) PreprocessLogDir() string {
	return filepath.Join(l.PreprocessDir(), "logs")
}

// PreprocessedPath returns the .i path for a source TU relative path.
func (l Layout) PreprocessedPath(srcRel string) string {
	return filepath.Join(l.PreprocessDir(), Stem(srcRel)+".i")
}

// CellDir returns {root}/{name}/{opt}/{variant}.
func (l Layout) CellDir(opt, variant string) string {
	return filepath.Join(l.JobDir(), opt, variant)
}

// ObjDir returns the object directory of a cell.
func (l Layout) ObjDir(opt, variant string) string {
	return filepath.Join(l.CellDir(opt, variant), "obj")
}

// BinPath returns the linked binary path of a cell.
func (l Layout) BinPath(opt, variant string) string {
	return filepath.Join(l.CellDir(opt, variant), "bin", l.Name)
}

// CellLogDir returns the log directory of a cell.
func (l Layout) CellLogDir(opt, variant string) string {
	return filepath.Join(l.CellDir(opt, variant), "logs")
}

// OracleDir returns the DWARF oracle output directory for an optimization.
// The oracle always reads the debug variant.
func (l Layout) OracleDir(opt string) string {
	return filepath.Join(l.CellDir(opt, "debug"), "oracle")
}

// OracleReportPath returns oracle_report.json for an optimization.
func (l Layout) OracleReportPath(opt string) string {
	return filepath.Join(l.OracleDir(opt), "oracle_report.json")
}

// OracleFunctionsPath returns oracle_functions.json for an optimization.
func (l Layout) OracleFunctionsPath(opt string) string {
	return filepath.Join(l.OracleDir(opt), "oracle_functions.json")
}

// TsOracleDir returns the optimization-independent tree-sitter oracle dir.
func (l Layout) TsOracleDir() string {
	return filepath.Join(l.JobDir(), "oracle_ts")
}

// TsReportPath returns oracle_ts_report.json.
func (l Layout) TsReportPath() string {
	return filepath.Join(l.TsOracleDir(), "oracle_ts_report.json")
}

// TsFunctionsPath returns oracle_ts_functions.json.
func (l Layout) TsFunctionsPath() string {
	return filepath.Join(l.TsOracleDir(), "oracle_ts_functions.json")
}

// TsRecipesPath returns extraction_recipes.json.
func (l Layout) TsRecipesPath() string {
	return filepath.Join(l.TsOracleDir(), "extraction_recipes.json")
}

// JoinDwarfTsDir returns the alignment output directory for an optimization.
func (l Layout) JoinDwarfTsDir(opt string) string {
	return filepath.Join(l.CellDir(opt, "debug"), "join_dwarf_ts")
}

// AlignmentReportPath returns alignment_report.json for an optimization.
func (l Layout) AlignmentReportPath(opt string) string {
	return filepath.Join(l.JoinDwarfTsDir(opt), "alignment_report.json")
}

// AlignmentPairsPath returns alignment_pairs.json for an optimization.
func (l Layout) AlignmentPairsPath(opt string) string {
	return filepath.Join(l.JoinDwarfTsDir(opt), "alignment_pairs.json")
}

// DecompileDir returns the decompiler output directory for an optimization.
// The decompiler always reads the stripped variant.
func (l Layout) DecompileDir(opt string) string {
	return filepath.Join(l.CellDir(opt, "stripped"), "decompile")
}

// JoinDecompileDir returns the oracle↔decompiler join output directory.
func (l Layout) JoinDecompileDir(opt string) string {
	return filepath.Join(l.CellDir(opt, "stripped"), "join_oracles_decompile")
}

// JoinReportPath returns join_report.json for an optimization.
func (l Layout) JoinReportPath(opt string) string {
	return filepath.Join(l.JoinDecompileDir(opt), "join_report.json")
}

// JoinedFunctionsPath returns joined_functions.jsonl for an optimization.
func (l Layout) JoinedFunctionsPath(opt string) string {
	return filepath.Join(l.JoinDecompileDir(opt), "joined_functions.jsonl")
}

// Stem returns the base name of a path without its extension.
func Stem(rel string) string {
	base := filepath.Base(rel)
	if idx := strings.LastIndex(base, "."); idx > 0 {
		return base[:idx]
	}
	return base
}

// Normalize converts a path to forward slashes for artifact records.
func Normalize(path string) string {
	return filepath.ToSlash(path)
}
