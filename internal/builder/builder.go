package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NicolasKol/reforge/internal/buildprofile"
	"github.com/NicolasKol/reforge/internal/config"
	"github.com/NicolasKol/reforge/internal/elfmeta"
	"github.com/NicolasKol/reforge/internal/logging"
	"github.com/NicolasKol/reforge/internal/output"
	"github.com/NicolasKol/reforge/internal/paths"
	"github.com/NicolasKol/reforge/internal/snapshot"
	"github.com/NicolasKol/reforge/internal/stageerr"
	"github.com/NicolasKol/reforge/internal/version"
)

// PackageName identifies the builder in receipts.
const PackageName = "builder_synth"

// Builder executes build jobs against the on-disk layout.
type Builder struct {
	cfg    config.BuilderConfig
	par    int
	logger *logging.Logger
}

// New creates a builder. Parallelism bounds intra-job fan-out across
// translation units; a value below 1 means sequential.
func New(cfg config.BuilderConfig, parallelism int, logger *logging.Logger) *Builder {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Builder{cfg: cfg, par: parallelism, logger: logger}
}

// Job is one build request.
type Job struct {
	JobID    string
	Name     string
	Snapshot *snapshot.Snapshot
	Profile  *buildprofile.Profile
	LockHash string
	// Force allows replacing an existing job directory atomically.
	Force bool
}

// Run executes the full matrix for one job and writes the receipt.
//
// The job directory is written to a staging location first and renamed
// into place so a rebuild either replaces the whole directory or refuses.
// A cancelled context still flushes the receipt for the completed part.
func (b *Builder) Run(ctx context.Context, root string, job Job) (*Receipt, error) {
	final := paths.NewLayout(root, job.Name)
	if _, err := os.Stat(final.JobDir()); err == nil && !job.Force {
		return nil, stageerr.Newf(stageerr.ArtifactDirConflict,
			"job directory already exists: %s", final.JobDir())
	}

	staging := paths.NewLayout(root, "."+job.Name+".staging")
	_ = os.RemoveAll(staging.JobDir())
	if err := os.MkdirAll(staging.JobDir(), 0o755); err != nil {
		return nil, stageerr.New(stageerr.OutputWriteFailed, "failed to create staging dir", err)
	}

	receipt, runErr := b.runInto(ctx, staging, job)

	// Receipt is flushed even on cancellation; it is a valid partial
	// snapshot of whatever completed.
	if err := output.WriteJSONAtomic(staging.ReceiptPath(), receipt); err != nil {
		_ = os.RemoveAll(staging.JobDir())
		return nil, stageerr.New(stageerr.OutputWriteFailed, "failed to write receipt", err)
	}

	if err := output.ReplaceDirAtomic(staging.JobDir(), final.JobDir(), job.Force); err != nil {
		_ = os.RemoveAll(staging.JobDir())
		return nil, stageerr.New(stageerr.ArtifactDirConflict, "failed to publish job directory", err)
	}

	return receipt, runErr
}

func (b *Builder) runInto(ctx context.Context, layout paths.Layout, job Job) (*Receipt, error) {
	log := b.logger.With(map[string]interface{}{"job_id": job.JobID, "name": job.Name})

	receipt := &Receipt{
		Builder: BuilderInfo{
			Name:         PackageName,
			Version:      version.SchemaVersion,
			ProfileID:    job.Profile.ProfileID,
			LockTextHash: job.LockHash,
		},
		Job: JobInfo{
			JobID:     job.JobID,
			Name:      job.Name,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
			Status:    "BUILDING",
		},
		Source:          job.Snapshot,
		Profile:         job.Profile,
		SchemaVersion:   version.SchemaVersion,
		PackageName:     PackageName,
		BuilderSoftware: version.Version,
	}

	receipt.Toolchain = ToolchainIdentity{
		CompilerVersion: toolVersion(ctx, b.cfg.CompilerPath),
		StripVersion:    toolVersion(ctx, b.cfg.StripPath),
		OSRelease:       osRelease(),
		Kernel:          kernelVersion(),
		Arch:            runtime.GOARCH,
	}

	// ── Materialize snapshot ─────────────────────────────────────────
	if err := job.Snapshot.WriteTo(layout.SrcDir()); err != nil {
		receipt.Job.Status = "FAILED"
		receipt.Job.FinishedAt = time.Now().UTC().Format(time.RFC3339)
		return receipt, stageerr.New(stageerr.OutputWriteFailed, "failed to write snapshot", err)
	}
	archiveHash, err := job.Snapshot.WriteArchive(layout.SnapshotArchivePath())
	if err != nil {
		log.Warn("snapshot archive write failed", map[string]interface{}{"error": err.Error()})
	} else {
		receipt.ArchiveSHA256 = archiveHash
	}

	// ── Preprocess (optimization-independent, failures non-fatal) ────
	receipt.Preprocess = b.preprocess(ctx, layout, job)

	// ── Matrix ───────────────────────────────────────────────────────
	for _, opt := range job.Profile.EffectiveOptimizations() {
		for _, variant := range buildprofile.Variants {
			if ctx.Err() != nil {
				break
			}
			cell := b.buildCell(ctx, layout, job, opt, variant)
			receipt.Builds = append(receipt.Builds, cell)
			log.Debug("cell finished", map[string]interface{}{
				"opt": opt, "variant": string(variant), "status": string(cell.Status),
			})
		}
	}

	receipt.Job.Status = receipt.ComputeStatus()
	receipt.Job.FinishedAt = time.Now().UTC().Format(time.RFC3339)

	if ctx.Err() != nil {
		return receipt, stageerr.New(stageerr.JobCancelled, "build job cancelled", ctx.Err())
	}
	return receipt, nil
}

// preprocess runs the compiler's preprocess-only mode per TU with the base
// language flags plus include paths. No optimization, no debug flags.
func (b *Builder) preprocess(ctx context.Context, layout paths.Layout, job Job) *PreprocessPhase {
	flags := job.Profile.PreprocessFlags()
	phase := &PreprocessPhase{
		CommandTemplate: strings.Join(append([]string{b.cfg.CompilerPath, "-E"}, flags...), " ") + " {src} -o {out}",
		Status:          PhaseSuccess,
	}

	timeout := time.Duration(b.cfg.PreprocTimeoutMs) * time.Millisecond
	logDir := layout.PreprocessLogDir()

	for _, srcRel := range job.Snapshot.EntryCFiles {
		srcAbs := filepath.Join(layout.SrcDir(), filepath.FromSlash(srcRel))
		outAbs := layout.PreprocessedPath(srcRel)
		if err := os.MkdirAll(filepath.Dir(outAbs), 0o755); err != nil {
			continue
		}

		args := append([]string{"-E"}, flags...)
		args = append(args, srcAbs, "-o", outAbs)
		res := run(ctx, timeout, layout.SrcDir(), b.cfg.CompilerPath, args...)

		outRel, _ := filepath.Rel(layout.JobDir(), outAbs)
		unit := PreprocessUnitResult{
			SourcePathRel: srcRel,
			OutputPathRel: filepath.ToSlash(outRel),
			ExitCode:      res.ExitCode,
			DurationMs:    res.DurationMs,
			Status:        string(PhaseSuccess),
			StdoutPathRel: writeLog(layout.JobDir(), logDir, paths.Stem(srcRel)+".stdout", res.Stdout),
			StderrPathRel: writeLog(layout.JobDir(), logDir, paths.Stem(srcRel)+".stderr", res.Stderr),
		}

		switch {
		case res.TimedOut:
			unit.Status = string(PhaseTimeout)
			phase.Status = PhaseFailed
		case res.ExitCode != 0:
			unit.Status = string(PhaseFailed)
			phase.Status = PhaseFailed
		default:
			if sum, err := elfmeta.HashFile(outAbs); err == nil {
				unit.OutputSHA256 = sum
			}
		}
		phase.Units = append(phase.Units, unit)
	}
	return phase
}

// buildCell runs compile → link → strip for one matrix cell.
func (b *Builder) buildCell(ctx context.Context, layout paths.Layout, job Job, opt string, variant buildprofile.Variant) Cell {
	cflags := job.Profile.CellCflags(opt, variant)
	cell := Cell{
		Optimization: opt,
		Variant:      string(variant),
		Status:       CellFailed,
		Cflags:       cflags,
	}

	objDir := layout.ObjDir(opt, string(variant))
	logDir := layout.CellLogDir(opt, string(variant))
	_ = os.MkdirAll(objDir, 0o755)

	// ── Compile ──────────────────────────────────────────────────────
	cell.Compile = b.compileUnits(ctx, layout, job, opt, variant, cflags, objDir, logDir)
	if cell.Compile.FailedUnits > 0 {
		cell.Flags = append(cell.Flags, FlagCompileUnitFailed)
		if timedOut(cell.Compile.Units) {
			cell.Flags = append(cell.Flags, FlagTimeout)
			cell.Status = CellTimeout
		}
		cell.Flags = append(cell.Flags, FlagBuildFailed)
		cell.Link.Status = PhaseSkipped
		return cell
	}

	// ── Link ─────────────────────────────────────────────────────────
	binPath := layout.BinPath(opt, string(variant))
	_ = os.MkdirAll(filepath.Dir(binPath), 0o755)

	objects := make([]string, 0, len(cell.Compile.Units))
	for _, u := range cell.Compile.Units {
		objects = append(objects, filepath.Join(layout.JobDir(), filepath.FromSlash(u.ObjectPathRel)))
	}

	linkArgs := append([]string{}, objects...)
	linkArgs = append(linkArgs, "-o", binPath)
	linkArgs = append(linkArgs, job.Profile.LinkLibs...)

	linkRes := run(ctx, time.Duration(b.cfg.LinkTimeoutMs)*time.Millisecond,
		layout.JobDir(), b.cfg.CompilerPath, linkArgs...)

	cell.Link = LinkPhase{
		Command:       b.cfg.CompilerPath + " " + strings.Join(linkArgs, " "),
		ExitCode:      linkRes.ExitCode,
		DurationMs:    linkRes.DurationMs,
		Status:        PhaseSuccess,
		StdoutPathRel: writeLog(layout.JobDir(), logDir, "link.stdout", linkRes.Stdout),
		StderrPathRel: writeLog(layout.JobDir(), logDir, "link.stderr", linkRes.Stderr),
	}

	switch {
	case linkRes.TimedOut:
		cell.Link.Status = PhaseTimeout
		cell.Flags = append(cell.Flags, FlagTimeout, FlagLinkFailed, FlagBuildFailed)
		cell.Status = CellTimeout
		return cell
	case linkRes.ExitCode != 0:
		cell.Link.Status = PhaseFailed
		cell.Flags = append(cell.Flags, FlagLinkFailed, FlagBuildFailed)
		return cell
	}

	// ── Strip (stripped variant only) ────────────────────────────────
	if job.Profile.VariantDeltas[variant].Strip {
		stripRes := run(ctx, time.Duration(b.cfg.StripTimeoutMs)*time.Millisecond,
			layout.JobDir(), b.cfg.StripPath, "--strip-all", binPath)
		sp := &StripPhase{
			Command:       b.cfg.StripPath + " --strip-all " + binPath,
			ExitCode:      stripRes.ExitCode,
			DurationMs:    stripRes.DurationMs,
			Status:        PhaseSuccess,
			StdoutPathRel: writeLog(layout.JobDir(), logDir, "strip.stdout", stripRes.Stdout),
			StderrPathRel: writeLog(layout.JobDir(), logDir, "strip.stderr", stripRes.Stderr),
		}
		cell.Strip = sp
		switch {
		case stripRes.TimedOut:
			sp.Status = PhaseTimeout
			cell.Flags = append(cell.Flags, FlagTimeout, FlagStripFailed)
		case stripRes.ExitCode != 0:
			sp.Status = PhaseFailed
			cell.Flags = append(cell.Flags, FlagStripFailed)
		}
	}

	// ── Artifact inspection & post-conditions ────────────────────────
	if _, err := os.Stat(binPath); err != nil {
		cell.Flags = append(cell.Flags, FlagNoArtifact, FlagBuildFailed)
		return cell
	}
	if !elfmeta.IsELF(binPath) {
		cell.Flags = append(cell.Flags, FlagNonElfOutput, FlagBuildFailed)
		return cell
	}

	meta, err := elfmeta.Read(binPath)
	if err != nil {
		cell.Flags = append(cell.Flags, FlagNonElfOutput, FlagBuildFailed)
		return cell
	}

	relBin, _ := filepath.Rel(layout.JobDir(), binPath)
	delta := job.Profile.VariantDeltas[variant]
	cell.Artifact = artifactMetaFrom(meta, filepath.ToSlash(relBin), delta.DwarfPresenceCheck)

	// Variant post-conditions
	if delta.DwarfPresenceCheck && (!meta.HasDebugInfo || !meta.HasDebugLine) {
		cell.Flags = append(cell.Flags, FlagDebugExpectedMissing)
	}
	if delta.Strip && len(meta.DebugSections) > 0 {
		cell.Flags = append(cell.Flags, FlagStripExpectedMissing)
	}

	cell.Status = CellSuccess
	return cell
}

// compileUnits compiles every TU of the snapshot for one cell, bounded by
// the builder's intra-job parallelism.
func (b *Builder) compileUnits(ctx context.Context, layout paths.Layout, job Job, opt string, variant buildprofile.Variant, cflags []string, objDir, logDir string) CompilePhase {
	phase := CompilePhase{
		CommandTemplate: strings.Join(append([]string{b.cfg.CompilerPath, "-c"}, cflags...), " ") + " {src} -o {obj}",
		Status:          PhaseSuccess,
	}

	timeout := time.Duration(b.cfg.CompileTimeoutMs) * time.Millisecond
	units := make([]CompileUnitResult, len(job.Snapshot.EntryCFiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.par)
	for i, srcRel := range job.Snapshot.EntryCFiles {
		g.Go(func() error {
			srcAbs := filepath.Join(layout.SrcDir(), filepath.FromSlash(srcRel))
			objAbs := filepath.Join(objDir, paths.Stem(srcRel)+".o")

			args := append([]string{"-c"}, cflags...)
			args = append(args, srcAbs, "-o", objAbs)
			res := run(gctx, timeout, layout.SrcDir(), b.cfg.CompilerPath, args...)

			objRel, _ := filepath.Rel(layout.JobDir(), objAbs)
			name := fmt.Sprintf("compile_%s", paths.Stem(srcRel))
			unit := CompileUnitResult{
				SourcePathRel: srcRel,
				ObjectPathRel: filepath.ToSlash(objRel),
				ExitCode:      res.ExitCode,
				DurationMs:    res.DurationMs,
				Status:        string(PhaseSuccess),
				StdoutPathRel: writeLog(layout.JobDir(), logDir, name+".stdout", res.Stdout),
				StderrPathRel: writeLog(layout.JobDir(), logDir, name+".stderr", res.Stderr),
			}
			switch {
			case res.TimedOut:
				unit.Status = string(PhaseTimeout)
			case res.ExitCode != 0:
				unit.Status = string(PhaseFailed)
			default:
				if sum, err := elfmeta.HashFile(objAbs); err == nil {
					unit.ObjectSHA256 = sum
				}
			}
			units[i] = unit
			return nil
		})
	}
	_ = g.Wait()

	phase.Units = units
	for _, u := range units {
		if u.Status == string(PhaseSuccess) {
			phase.CompiledUnits++
		} else {
			phase.FailedUnits++
		}
	}
	if phase.FailedUnits > 0 {
		phase.Status = PhaseFailed
	}
	return phase
}

func timedOut(units []CompileUnitResult) bool {
	for _, u := range units {
		if u.Status == string(PhaseTimeout) {
			return true
		}
	}
	return false
}

// LoadReceipt reads and decodes the receipt for a named job.
func LoadReceipt(root, name string) (*Receipt, error) {
	path := paths.NewLayout(root, name).ReceiptPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stageerr.New(stageerr.InputUnreadable, "failed to read receipt "+path, err)
	}
	var r Receipt
	if err := decodeJSON(data, &r); err != nil {
		return nil, stageerr.New(stageerr.InputMalformed, "failed to decode receipt "+path, err)
	}
	return &r, nil
}
