package pipeline

import (
	"context"
	"encoding/json"

	"github.com/NicolasKol/reforge/internal/jobs"
	"github.com/NicolasKol/reforge/internal/snapshot"
	"github.com/NicolasKol/reforge/internal/stageerr"
)

// buildJobPayload mirrors the orchestration envelope for build jobs.
type buildJobPayload struct {
	Name          string            `json:"name"`
	TestCategory  string            `json:"test_category"`
	Files         map[string]string `json:"files"`
	Optimizations []string          `json:"optimizations,omitempty"`
	Force         bool              `json:"force,omitempty"`
}

// stageJobPayload mirrors the orchestration envelope for stage jobs.
type stageJobPayload struct {
	Name              string   `json:"name"`
	OptimizationLevel string   `json:"optimization_level"`
	IPaths            []string `json:"i_paths,omitempty"`
	RawPath           string   `json:"raw_path,omitempty"`
}

// RegisterHandlers binds every pipeline stage to its job kind.
func (p *Pipeline) RegisterHandlers(runner *jobs.Runner) {
	runner.RegisterHandler(jobs.KindBuild, p.handleBuildJob)

	runner.RegisterHandler(jobs.KindDwarfOracle, func(ctx context.Context, job *jobs.Job) (interface{}, error) {
		var payload stageJobPayload
		if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
			return nil, stageerr.New(stageerr.InputMalformed, "bad stage payload", err)
		}
		return p.RunDwarfOracle(payload.Name, payload.OptimizationLevel)
	})

	runner.RegisterHandler(jobs.KindTsOracle, func(ctx context.Context, job *jobs.Job) (interface{}, error) {
		var payload stageJobPayload
		if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
			return nil, stageerr.New(stageerr.InputMalformed, "bad stage payload", err)
		}
		return p.RunTsOracle(ctx, payload.Name, payload.IPaths)
	})

	runner.RegisterHandler(jobs.KindJoinDwarfTs, func(ctx context.Context, job *jobs.Job) (interface{}, error) {
		var payload stageJobPayload
		if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
			return nil, stageerr.New(stageerr.InputMalformed, "bad stage payload", err)
		}
		return p.RunJoinDwarfTs(payload.Name, payload.OptimizationLevel)
	})

	runner.RegisterHandler(jobs.KindReshapeDecomp, func(ctx context.Context, job *jobs.Job) (interface{}, error) {
		var payload stageJobPayload
		if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
			return nil, stageerr.New(stageerr.InputMalformed, "bad stage payload", err)
		}
		return p.RunReshapeDecompile(payload.Name, payload.OptimizationLevel, payload.RawPath)
	})

	runner.RegisterHandler(jobs.KindJoinDecompile, func(ctx context.Context, job *jobs.Job) (interface{}, error) {
		var payload stageJobPayload
		if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
			return nil, stageerr.New(stageerr.InputMalformed, "bad stage payload", err)
		}
		return p.RunJoinDecompile(payload.Name, payload.OptimizationLevel)
	})
}

func (p *Pipeline) handleBuildJob(ctx context.Context, job *jobs.Job) (interface{}, error) {
	var payload buildJobPayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return nil, stageerr.New(stageerr.InputMalformed, "bad build payload", err)
	}

	inputs := make([]snapshot.Input, 0, len(payload.Files))
	for path, content := range payload.Files {
		inputs = append(inputs, snapshot.Input{PathRel: path, Content: []byte(content)})
	}

	receipt, err := p.RunBuild(ctx, BuildRequest{
		JobID:        job.ID,
		Name:         payload.Name,
		TestCategory: payload.TestCategory,
		Files:        inputs,
		Force:        payload.Force,
	})
	if receipt == nil {
		return nil, err
	}
	// A partial receipt (cancellation) is still returned alongside the
	// error; the runner records a cancelled or failed job without a result.
	result := map[string]interface{}{
		"name":       receipt.Job.Name,
		"status":     receipt.Job.Status,
		"n_cells":    len(receipt.Builds),
		"lock_hash":  receipt.Builder.LockTextHash,
		"profile_id": receipt.Builder.ProfileID,
	}
	return result, err
}
