// Package builder compiles a frozen source snapshot across the
// optimization × variant matrix and emits the single authoritative build
// receipt. The receipt is the only source of truth for downstream stages;
// every produced binary is resolvable by its sha256.
package builder

import (
	"github.com/NicolasKol/reforge/internal/buildprofile"
	"github.com/NicolasKol/reforge/internal/elfmeta"
	"github.com/NicolasKol/reforge/internal/snapshot"
)

// CellStatus is the terminal status of one build cell.
type CellStatus string

const (
	CellSuccess CellStatus = "SUCCESS"
	CellFailed  CellStatus = "FAILED"
	CellTimeout CellStatus = "TIMEOUT"
)

// PhaseStatus is the status of one phase within a cell.
type PhaseStatus string

const (
	PhaseSuccess PhaseStatus = "SUCCESS"
	PhaseFailed  PhaseStatus = "FAILED"
	PhaseTimeout PhaseStatus = "TIMEOUT"
	PhaseSkipped PhaseStatus = "SKIPPED"
)

// Flag marks a cell-level anomaly. Builder-only; no oracle semantics.
type Flag string

const (
	FlagBuildFailed          Flag = "BUILD_FAILED"
	FlagTimeout              Flag = "TIMEOUT"
	FlagNoArtifact           Flag = "NO_ARTIFACT"
	FlagCompileUnitFailed    Flag = "COMPILE_UNIT_FAILED"
	FlagLinkFailed           Flag = "LINK_FAILED"
	FlagDebugExpectedMissing Flag = "DEBUG_EXPECTED_MISSING"
	FlagStripFailed          Flag = "STRIP_FAILED"
	FlagStripExpectedMissing Flag = "STRIP_EXPECTED_MISSING"
	FlagNonElfOutput         Flag = "NON_ELF_OUTPUT"
)

// CompileUnitResult records compiling a single .c translation unit.
type CompileUnitResult struct {
	SourcePathRel string `json:"source_path_rel"`
	ObjectPathRel string `json:"object_path_rel"`
	ObjectSHA256  string `json:"object_sha256,omitempty"`
	ExitCode      int    `json:"exit_code"`
	StdoutPathRel string `json:"stdout_path_rel,omitempty"`
	StderrPathRel string `json:"stderr_path_rel,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
	Status        string `json:"status"`
}

// CompilePhase covers all .c → .o for one cell.
type CompilePhase struct {
	CommandTemplate string              `json:"command_template"`
	Units           []CompileUnitResult `json:"units"`
	CompiledUnits   int                 `json:"compiled_units"`
	FailedUnits     int                 `json:"failed_units"`
	Status          PhaseStatus         `json:"status"`
}

// LinkPhase covers all .o → executable for one cell.
type LinkPhase struct {
	Command       string      `json:"command,omitempty"`
	ExitCode      int         `json:"exit_code"`
	StdoutPathRel string      `json:"stdout_path_rel,omitempty"`
	StderrPathRel string      `json:"stderr_path_rel,omitempty"`
	DurationMs    int64       `json:"duration_ms"`
	Status        PhaseStatus `json:"status"`
}

// StripPhase covers the strip-all pass of the stripped variant.
type StripPhase struct {
	Command       string      `json:"command,omitempty"`
	ExitCode      int         `json:"exit_code"`
	StdoutPathRel string      `json:"stdout_path_rel,omitempty"`
	StderrPathRel string      `json:"stderr_path_rel,omitempty"`
	DurationMs    int64       `json:"duration_ms"`
	Status        PhaseStatus `json:"status"`
}

// PreprocessUnitResult records preprocessing a single .c → .i unit.
// Preprocessing is optimization-independent and failures are non-fatal.
type PreprocessUnitResult struct {
	SourcePathRel string `json:"source_path_rel"`
	OutputPathRel string `json:"output_path_rel"`
	OutputSHA256  string `json:"output_sha256,omitempty"`
	ExitCode      int    `json:"exit_code"`
	StdoutPathRel string `json:"stdout_path_rel,omitempty"`
	StderrPathRel string `json:"stderr_path_rel,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
	Status        string `json:"status"`
}

// PreprocessPhase covers all .c → .i. Top-level in the receipt, not
// per-cell.
type PreprocessPhase struct {
	CommandTemplate string                 `json:"command_template"`
	Units           []PreprocessUnitResult `json:"units"`
	Status          PhaseStatus            `json:"status"`
}

// DebugPresence is the debug-section presence check result.
type DebugPresence struct {
	HasDebugSections bool     `json:"has_debug_sections"`
	DebugSections    []string `json:"debug_sections,omitempty"`
}

// ArtifactMeta describes one produced binary artifact.
type ArtifactMeta struct {
	PathRel   string `json:"path_rel"`
	SHA256    string `json:"sha256"`
	SizeBytes int64  `json:"size_bytes"`

	ElfType string `json:"elf_type,omitempty"`
	Arch    string `json:"arch,omitempty"`
	BuildID string `json:"build_id,omitempty"`

	DebugPresence *DebugPresence `json:"debug_presence,omitempty"`
}

// Cell is the result of building one (optimization, variant) combination.
type Cell struct {
	Optimization string     `json:"optimization"`
	Variant      string     `json:"variant"`
	Status       CellStatus `json:"status"`
	Flags        []Flag     `json:"flags,omitempty"`
	Cflags       []string   `json:"cflags"`

	Compile CompilePhase `json:"compile"`
	Link    LinkPhase    `json:"link"`
	Strip   *StripPhase  `json:"strip,omitempty"`

	Artifact *ArtifactMeta `json:"artifact,omitempty"`
}

// BuilderInfo identifies the builder package.
type BuilderInfo struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	ProfileID    string `json:"profile_id"`
	LockTextHash string `json:"lock_text_hash"`
}

// ToolchainIdentity is the immutable record of the build environment.
type ToolchainIdentity struct {
	CompilerVersion string `json:"compiler_version"`
	StripVersion    string `json:"strip_version"`
	OSRelease       string `json:"os_release"`
	Kernel          string `json:"kernel"`
	Arch            string `json:"arch"`
}

// JobInfo is job-level metadata.
type JobInfo struct {
	JobID      string `json:"job_id"`
	Name       string `json:"name"`
	CreatedAt  string `json:"created_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Status     string `json:"status"` // BUILDING, SUCCESS, PARTIAL, FAILED
}

// Receipt is the single authoritative record of a build job.
type Receipt struct {
	Builder         BuilderInfo           `json:"builder"`
	Job             JobInfo               `json:"job"`
	Source          *snapshot.Snapshot    `json:"source"`
	ArchiveSHA256   string                `json:"archive_sha256,omitempty"`
	Toolchain       ToolchainIdentity     `json:"toolchain"`
	Profile         *buildprofile.Profile `json:"profile"`
	Preprocess      *PreprocessPhase      `json:"preprocess,omitempty"`
	Builds          []Cell                `json:"builds"`
	SchemaVersion   string                `json:"schema_version"`
	PackageName     string                `json:"package_name"`
	BuilderSoftware string                `json:"builder_software_version"`
}

// ComputeStatus derives the job status from the cell results.
func (r *Receipt) ComputeStatus() string {
	if len(r.Builds) == 0 {
		return "FAILED"
	}
	allOK := true
	anyOK := false
	for _, c := range r.Builds {
		if c.Status == CellSuccess {
			anyOK = true
		} else {
			allOK = false
		}
	}
	switch {
	case allOK:
		return "SUCCESS"
	case anyOK:
		return "PARTIAL"
	default:
		return "FAILED"
	}
}

// ArtifactByHash finds the cell holding the artifact with the given hash.
func (r *Receipt) ArtifactByHash(sha string) *Cell {
	for i := range r.Builds {
		if a := r.Builds[i].Artifact; a != nil && a.SHA256 == sha {
			return &r.Builds[i]
		}
	}
	return nil
}

// CellFor returns the cell for an (optimization, variant) pair.
func (r *Receipt) CellFor(opt string, variant buildprofile.Variant) *Cell {
	for i := range r.Builds {
		if r.Builds[i].Optimization == opt && r.Builds[i].Variant == string(variant) {
			return &r.Builds[i]
		}
	}
	return nil
}

func artifactMetaFrom(m *elfmeta.Meta, pathRel string, withDebugPresence bool) *ArtifactMeta {
	am := &ArtifactMeta{
		PathRel:   pathRel,
		SHA256:    m.FileSHA256,
		SizeBytes: m.SizeBytes,
		ElfType:   m.ElfType,
		Arch:      m.Machine,
		BuildID:   m.BuildID,
	}
	if withDebugPresence {
		am.DebugPresence = &DebugPresence{
			HasDebugSections: len(m.DebugSections) > 0,
			DebugSections:    m.DebugSections,
		}
	}
	return am
}
