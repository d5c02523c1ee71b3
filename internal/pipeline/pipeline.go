// Package pipeline wires the per-stage engines to the on-disk layout and
// the persistence layer. Each Run* method is a complete stage execution:
// read the immediately-preceding stage's artifacts, process, write this
// stage's outputs atomically. Panics inside a stage are recovered and
// returned as structured failures; they never poison the process.
package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/NicolasKol/reforge/internal/builder"
	"github.com/NicolasKol/reforge/internal/buildprofile"
	"github.com/NicolasKol/reforge/internal/config"
	"github.com/NicolasKol/reforge/internal/decomp"
	"github.com/NicolasKol/reforge/internal/dwarforacle"
	"github.com/NicolasKol/reforge/internal/joindecomp"
	"github.com/NicolasKol/reforge/internal/joindwts"
	"github.com/NicolasKol/reforge/internal/logging"
	"github.com/NicolasKol/reforge/internal/paths"
	"github.com/NicolasKol/reforge/internal/snapshot"
	"github.com/NicolasKol/reforge/internal/stageerr"
	"github.com/NicolasKol/reforge/internal/storage"
	"github.com/NicolasKol/reforge/internal/tsoracle"
)

// Pipeline executes stages against one artifact root.
type Pipeline struct {
	cfg    *config.Config
	db     *storage.DB
	logger *logging.Logger
}

// New creates a pipeline. db may be nil when persistence is not wanted
// (stage CLIs operate on the filesystem alone).
func New(cfg *config.Config, db *storage.DB, logger *logging.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, db: db, logger: logger}
}

// recoverStage converts a panic into a structured stage failure.
func recoverStage(err *error) {
	if r := recover(); r != nil {
		*err = stageerr.Newf(stageerr.StagePanic, "stage panicked: %v", r)
	}
}

// BuildRequest is one synthetic build submission.
type BuildRequest struct {
	JobID        string
	Name         string
	TestCategory string
	Files        []snapshot.Input
	ProfilePath  string // optional; locked profile when empty
	Force        bool
}

// RunBuild executes the builder stage and records the snapshot and every
// produced artifact in the database.
func (p *Pipeline) RunBuild(ctx context.Context, req BuildRequest) (receipt *builder.Receipt, err error) {
	defer recoverStage(&err)

	snap, err := snapshot.New(req.Files)
	if err != nil {
		return nil, err
	}

	profile, lockHash, err := p.loadProfile(req.ProfilePath)
	if err != nil {
		return nil, err
	}

	b := builder.New(p.cfg.Builder, p.cfg.Worker.IntraJobParallelism, p.logger)
	receipt, err = b.Run(ctx, p.cfg.ArtifactRoot, builder.Job{
		JobID:    req.JobID,
		Name:     req.Name,
		Snapshot: snap,
		Profile:  profile,
		LockHash: lockHash,
		Force:    req.Force,
	})
	if receipt != nil && p.db != nil {
		if dbErr := p.persistReceipt(req, receipt); dbErr != nil {
			p.logger.Warn("receipt persistence failed", map[string]interface{}{
				"name": req.Name, "error": dbErr.Error(),
			})
		}
	}
	return receipt, err
}

func (p *Pipeline) loadProfile(profilePath string) (*buildprofile.Profile, string, error) {
	if profilePath == "" {
		profilePath = p.cfg.Builder.ProfilePath
	}
	if profilePath == "" {
		return buildprofile.Locked()
	}
	return buildprofile.LoadFile(profilePath)
}

func (p *Pipeline) persistReceipt(req BuildRequest, receipt *builder.Receipt) error {
	codeID, err := p.db.UpsertSyntheticCode(storage.SyntheticCode{
		Name:           req.Name,
		TestCategory:   req.TestCategory,
		SnapshotSHA256: receipt.Source.SnapshotSHA256,
		SourceFiles:    receipt.Source.EntryCFiles,
		Status:         receipt.Job.Status,
	})
	if err != nil {
		return err
	}
	for _, cell := range receipt.Builds {
		if cell.Artifact == nil {
			continue
		}
		if err := p.db.UpsertBinary(storage.Binary{
			FileHash:          cell.Artifact.SHA256,
			SyntheticCodeID:   codeID,
			OptimizationLevel: cell.Optimization,
			VariantType:       cell.Variant,
			HasDebugInfo:      cell.Artifact.DebugPresence != nil && cell.Artifact.DebugPresence.HasDebugSections,
			IsStripped:        cell.Variant == string(buildprofile.VariantStripped),
			ElfType:           cell.Artifact.ElfType,
			Arch:              cell.Artifact.Arch,
			BuildID:           cell.Artifact.BuildID,
			SizeBytes:         cell.Artifact.SizeBytes,
			PathRel:           cell.Artifact.PathRel,
		}); err != nil {
			return err
		}
	}
	return nil
}

// RunDwarfOracle runs the DWARF oracle over the debug binary of one
// optimization level.
func (p *Pipeline) RunDwarfOracle(name, opt string) (report *dwarforacle.Report, err error) {
	defer recoverStage(&err)

	layout := paths.NewLayout(p.cfg.ArtifactRoot, name)
	binPath := layout.BinPath(opt, "debug")

	profile := dwarforacle.DefaultProfile()
	profile.MinDominantFileRatio = p.cfg.Oracle.MinDominantFileRatio
	profile.MaxFragmentsWarn = p.cfg.Oracle.MaxFragmentsWarn
	profile.ExcludePathPrefixes = p.cfg.Oracle.ExcludePathPrefixes

	oracle := dwarforacle.New(profile, p.logger)
	report, doc := oracle.Run(binPath)

	if err := dwarforacle.Write(layout.OracleReportPath(opt), layout.OracleFunctionsPath(opt), report, doc); err != nil {
		return nil, err
	}
	return report, nil
}

// RunTsOracle runs the tree-sitter oracle over the job's preprocessed
// units, or over an explicit list of .i paths.
func (p *Pipeline) RunTsOracle(ctx context.Context, name string, iPaths []string) (report *tsoracle.Report, err error) {
	defer recoverStage(&err)

	layout := paths.NewLayout(p.cfg.ArtifactRoot, name)
	if len(iPaths) == 0 {
		iPaths, err = discoverPreprocessed(layout)
		if err != nil {
			return nil, err
		}
	}

	profile := tsoracle.DefaultProfile()
	profile.DeepNestingThreshold = p.cfg.Oracle.DeepNestingThreshold

	oracle := tsoracle.New(profile, p.logger)
	rep, doc, recipes := oracle.Run(ctx, iPaths)

	if err := tsoracle.Write(layout.TsReportPath(), layout.TsFunctionsPath(), layout.TsRecipesPath(), rep, doc, recipes); err != nil {
		return nil, err
	}
	return rep, nil
}

func discoverPreprocessed(layout paths.Layout) ([]string, error) {
	entries, err := os.ReadDir(layout.PreprocessDir())
	if err != nil {
		return nil, stageerr.New(stageerr.InputUnreadable, "preprocess directory unreadable", err)
	}
	var iPaths []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".i" {
			iPaths = append(iPaths, filepath.Join(layout.PreprocessDir(), e.Name()))
		}
	}
	return iPaths, nil
}

// RunJoinDwarfTs aligns the DWARF oracle output of one optimization
// level to the tree-sitter index via the #line origin maps.
func (p *Pipeline) RunJoinDwarfTs(name, opt string) (report *joindwts.Report, err error) {
	defer recoverStage(&err)

	layout := paths.NewLayout(p.cfg.ArtifactRoot, name)

	dwarfReport, err := dwarforacle.LoadReport(layout.OracleReportPath(opt))
	if err != nil {
		return nil, err
	}
	dwarfFuncs, err := dwarforacle.LoadFunctions(layout.OracleFunctionsPath(opt))
	if err != nil {
		return nil, err
	}
	tsReport, err := tsoracle.LoadReport(layout.TsReportPath())
	if err != nil {
		return nil, err
	}
	tsFuncs, err := tsoracle.LoadFunctions(layout.TsFunctionsPath())
	if err != nil {
		return nil, err
	}

	// .i contents keyed exactly by the TU paths the TS oracle recorded.
	// A missing file means a missing origin map, not a stage failure.
	iContents := make(map[string]string)
	for _, tu := range tsReport.TuReports {
		data, err := os.ReadFile(tu.TuPath)
		if err != nil {
			p.logger.Warn("i file unreadable", map[string]interface{}{
				"tu": tu.TuPath, "error": err.Error(),
			})
			continue
		}
		iContents[tu.TuPath] = string(data)
	}

	profile := joindwts.DefaultProfile()
	profile.OverlapThreshold = p.cfg.Join.OverlapThreshold
	profile.Epsilon = p.cfg.Join.Epsilon
	profile.MinOverlapLines = p.cfg.Join.MinOverlapLines
	profile.ExcludedPathPrefixes = p.cfg.Oracle.ExcludePathPrefixes

	joiner := joindwts.New(profile, p.logger)
	pairs, rep, err := joiner.Run(joindwts.Inputs{
		DwarfReport:    dwarfReport,
		DwarfFunctions: dwarfFuncs,
		TsReport:       tsReport,
		TsFunctions:    tsFuncs,
		IContents:      iContents,
	})
	if err != nil {
		return nil, err
	}

	if err := joindwts.Write(layout.AlignmentReportPath(opt), layout.AlignmentPairsPath(opt), rep, pairs); err != nil {
		return nil, err
	}
	return rep, nil
}

// RunReshapeDecompile reshapes the raw decompiler JSONL of one
// optimization level into the validated row files.
func (p *Pipeline) RunReshapeDecompile(name, opt, rawPath string) (report *decomp.Report, err error) {
	defer recoverStage(&err)

	layout := paths.NewLayout(p.cfg.ArtifactRoot, name)
	if rawPath == "" {
		rawPath = filepath.Join(layout.DecompileDir(opt), "raw.jsonl")
	}

	summary, raw, err := decomp.ParseRawJSONL(rawPath, p.logger)
	if err != nil {
		return nil, err
	}

	// The provenance key is the hash of the stripped binary analyzed.
	receipt, err := builder.LoadReceipt(p.cfg.ArtifactRoot, name)
	if err != nil {
		return nil, err
	}
	cell := receipt.CellFor(opt, buildprofile.VariantStripped)
	if cell == nil || cell.Artifact == nil {
		return nil, stageerr.Newf(stageerr.InputUnreadable,
			"receipt has no stripped artifact for %s/%s", name, opt)
	}

	reshaper, err := decomp.New("", p.cfg.Decompile.HighDecompileFailRate, p.logger)
	if err != nil {
		return nil, err
	}
	res := reshaper.Run(summary, raw, cell.Artifact.SHA256)

	if err := res.Write(layout.DecompileDir(opt)); err != nil {
		return nil, err
	}
	return res.Report, nil
}

// RunJoinDecompile joins the oracle and alignment outputs of one
// optimization level to the reshaped decompiler rows.
func (p *Pipeline) RunJoinDecompile(name, opt string) (report *joindecomp.Report, err error) {
	defer recoverStage(&err)

	layout := paths.NewLayout(p.cfg.ArtifactRoot, name)

	receipt, err := builder.LoadReceipt(p.cfg.ArtifactRoot, name)
	if err != nil {
		return nil, err
	}
	cell := receipt.CellFor(opt, buildprofile.VariantStripped)
	receiptSHA := ""
	if cell != nil && cell.Artifact != nil {
		receiptSHA = cell.Artifact.SHA256
	}

	dwarfReport, err := dwarforacle.LoadReport(layout.OracleReportPath(opt))
	if err != nil {
		return nil, err
	}
	dwarfFuncs, err := dwarforacle.LoadFunctions(layout.OracleFunctionsPath(opt))
	if err != nil {
		return nil, err
	}
	pairs, err := joindwts.LoadPairs(layout.AlignmentPairsPath(opt))
	if err != nil {
		return nil, err
	}
	decompReport, err := decomp.LoadReport(filepath.Join(layout.DecompileDir(opt), "report.json"))
	if err != nil {
		return nil, err
	}
	decompFuncs, err := decomp.LoadFunctionRows(filepath.Join(layout.DecompileDir(opt), "functions.jsonl"))
	if err != nil {
		return nil, err
	}
	decompCfgs, err := decomp.LoadCfgRows(filepath.Join(layout.DecompileDir(opt), "cfg.jsonl"))
	if err != nil {
		return nil, err
	}

	profile := joindecomp.DefaultProfile()
	profile.StrongOverlapThreshold = p.cfg.Join.StrongOverlapRatio
	profile.WeakOverlapThreshold = p.cfg.Join.WeakOverlapRatio
	profile.NearTieEpsilon = p.cfg.Join.NearTieEpsilon

	joiner, err := joindecomp.New(profile, p.logger)
	if err != nil {
		return nil, err
	}
	rows, rep, err := joiner.Run(joindecomp.Inputs{
		ReceiptBinarySHA: receiptSHA,
		DwarfReport:      dwarfReport,
		DwarfFunctions:   dwarfFuncs,
		AlignmentPairs:   pairs,
		DecompReport:     decompReport,
		DecompFunctions:  decompFuncs,
		DecompCfgs:       decompCfgs,
	})
	if err != nil {
		return nil, err
	}

	if err := joindecomp.Write(layout.JoinReportPath(opt), layout.JoinedFunctionsPath(opt), rep, rows); err != nil {
		return nil, err
	}
	return rep, nil
}

// Optimizations returns the canonical optimization levels of a job's
// receipt, or the full matrix when the receipt is absent.
func (p *Pipeline) Optimizations(name string) []string {
	receipt, err := builder.LoadReceipt(p.cfg.ArtifactRoot, name)
	if err != nil {
		return buildprofile.OptLevels
	}
	return receipt.Profile.EffectiveOptimizations()
}
