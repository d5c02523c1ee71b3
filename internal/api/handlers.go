package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/NicolasKol/reforge/internal/jobs"
	"github.com/NicolasKol/reforge/internal/snapshot"
	"github.com/NicolasKol/reforge/internal/stageerr"
	"github.com/NicolasKol/reforge/internal/version"
)

// handleHealth responds to liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, stageerr.Internal, "method not allowed")
		return
	}
	WriteJSON(w, map[string]interface{}{
		"status":  "ok",
		"version": version.Version,
	}, http.StatusOK)
}

// submitBuildRequest is the body of POST /submit-synthetic-build.
type submitBuildRequest struct {
	Name         string `json:"name"`
	TestCategory string `json:"test_category"`
	Files        []struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	} `json:"files"`
	Optimizations []string `json:"optimizations,omitempty"`
	Force         bool     `json:"force,omitempty"`
}

// buildPayload is the job-queue envelope payload for a build.
type buildPayload struct {
	Name          string            `json:"name"`
	TestCategory  string            `json:"test_category"`
	Files         map[string]string `json:"files"`
	Optimizations []string          `json:"optimizations,omitempty"`
	Force         bool              `json:"force,omitempty"`
}

func (s *Server) handleSubmitBuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, stageerr.Internal, "method not allowed")
		return
	}

	var req submitBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, stageerr.InputMalformed, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" || len(req.Files) == 0 {
		WriteError(w, http.StatusBadRequest, stageerr.SnapshotInvalid, "name and files are required")
		return
	}

	// Validate the snapshot up front so submission errors are synchronous.
	inputs := make([]snapshot.Input, 0, len(req.Files))
	files := make(map[string]string, len(req.Files))
	for _, f := range req.Files {
		inputs = append(inputs, snapshot.Input{PathRel: f.Path, Content: []byte(f.Content)})
		files[f.Path] = f.Content
	}
	if _, err := snapshot.New(inputs); err != nil {
		WriteStageError(w, err)
		return
	}

	job, err := jobs.New(jobs.KindBuild, buildPayload{
		Name:          req.Name,
		TestCategory:  req.TestCategory,
		Files:         files,
		Optimizations: req.Optimizations,
		Force:         req.Force,
	})
	if err != nil {
		InternalError(w, "failed to create job", err)
		return
	}
	if err := s.runner.Enqueue(job); err != nil {
		WriteError(w, http.StatusServiceUnavailable, stageerr.Internal, err.Error())
		return
	}

	WriteJSON(w, map[string]interface{}{
		"job_id": job.ID,
		"status": string(job.Status),
	}, http.StatusAccepted)
}

// stageRequest is the shared body of the run-* stage triggers.
type stageRequest struct {
	Name              string   `json:"name"`
	OptimizationLevel string   `json:"optimization_level"`
	Variant           string   `json:"variant,omitempty"`
	IPaths            []string `json:"i_paths,omitempty"`
	RawPath           string   `json:"raw_path,omitempty"`
}

func (s *Server) decodeStageRequest(w http.ResponseWriter, r *http.Request) (*stageRequest, bool) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, stageerr.Internal, "method not allowed")
		return nil, false
	}
	var req stageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, stageerr.InputMalformed, "invalid request body: "+err.Error())
		return nil, false
	}
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, stageerr.InputMalformed, "name is required")
		return nil, false
	}
	return &req, true
}

// optsFor resolves the optimization levels a stage request targets.
func (s *Server) optsFor(req *stageRequest) []string {
	if req.OptimizationLevel != "" {
		return []string{req.OptimizationLevel}
	}
	return s.pipeline.Optimizations(req.Name)
}

func (s *Server) handleRunDwarfOracle(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeStageRequest(w, r)
	if !ok {
		return
	}

	results := map[string]interface{}{}
	for _, opt := range s.optsFor(req) {
		report, err := s.pipeline.RunDwarfOracle(req.Name, opt)
		if err != nil {
			results[opt] = map[string]string{"error": err.Error()}
			continue
		}
		results[opt] = map[string]interface{}{
			"verdict":     report.Verdict,
			"n_functions": report.NFunctions,
			"n_accept":    report.NAccept,
			"n_warn":      report.NWarn,
			"n_reject":    report.NReject,
		}
	}
	WriteJSON(w, map[string]interface{}{"name": req.Name, "results": results}, http.StatusOK)
}

func (s *Server) handleRunTsOracle(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeStageRequest(w, r)
	if !ok {
		return
	}

	report, err := s.pipeline.RunTsOracle(r.Context(), req.Name, req.IPaths)
	if err != nil {
		WriteStageError(w, err)
		return
	}
	WriteJSON(w, map[string]interface{}{
		"name":        req.Name,
		"n_tus":       len(report.TuReports),
		"n_functions": report.NFunctions,
		"n_accept":    report.NAccept,
		"n_warn":      report.NWarn,
		"n_reject":    report.NReject,
	}, http.StatusOK)
}

func (s *Server) handleRunJoinDwarfTs(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeStageRequest(w, r)
	if !ok {
		return
	}

	results := map[string]interface{}{}
	for _, opt := range s.optsFor(req) {
		report, err := s.pipeline.RunJoinDwarfTs(req.Name, opt)
		if err != nil {
			results[opt] = map[string]string{"error": err.Error()}
			continue
		}
		results[opt] = map[string]interface{}{
			"n_match":      report.NMatch,
			"n_ambiguous":  report.NAmbiguous,
			"n_no_match":   report.NNoMatch,
			"n_non_target": report.NNonTarget,
		}
	}
	WriteJSON(w, map[string]interface{}{"name": req.Name, "results": results}, http.StatusOK)
}

func (s *Server) handleRunReshapeDecompile(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeStageRequest(w, r)
	if !ok {
		return
	}

	results := map[string]interface{}{}
	for _, opt := range s.optsFor(req) {
		report, err := s.pipeline.RunReshapeDecompile(req.Name, opt, req.RawPath)
		if err != nil {
			results[opt] = map[string]string{"error": err.Error()}
			continue
		}
		results[opt] = map[string]interface{}{
			"verdict":     report.Verdict,
			"n_functions": report.NFunctions,
			"n_ok":        report.NOk,
			"n_warn":      report.NWarn,
			"n_fail":      report.NFail,
		}
	}
	WriteJSON(w, map[string]interface{}{"name": req.Name, "results": results}, http.StatusOK)
}

func (s *Server) handleRunJoinDecompile(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeStageRequest(w, r)
	if !ok {
		return
	}

	results := map[string]interface{}{}
	for _, opt := range s.optsFor(req) {
		report, err := s.pipeline.RunJoinDecompile(req.Name, opt)
		if err != nil {
			results[opt] = map[string]string{"error": err.Error()}
			continue
		}
		results[opt] = map[string]interface{}{
			"n_rows":            report.NRows,
			"n_joined_strong":   report.NJoinedStrong,
			"n_joined_weak":     report.NJoinedWeak,
			"n_multi_match":     report.NMultiMatch,
			"n_no_match":        report.NNoMatch,
			"n_no_range":        report.NNoRange,
			"n_high_confidence": report.NHighConfidence,
		}
	}
	WriteJSON(w, map[string]interface{}{"name": req.Name, "results": results}, http.StatusOK)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, stageerr.Internal, "method not allowed")
		return
	}
	list, err := s.store.List(50)
	if err != nil {
		InternalError(w, "failed to list jobs", err)
		return
	}
	WriteJSON(w, map[string]interface{}{"jobs": list}, http.StatusOK)
}

func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/jobs/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		job, err := s.store.Get(parts[0])
		if err != nil {
			InternalError(w, "failed to load job", err)
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, stageerr.InputUnreadable, "job not found")
			return
		}
		WriteJSON(w, job, http.StatusOK)

	case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
		if !s.runner.Cancel(parts[0]) {
			WriteError(w, http.StatusNotFound, stageerr.InputUnreadable, "job not running")
			return
		}
		WriteJSON(w, map[string]string{"status": "cancelling"}, http.StatusAccepted)

	default:
		WriteError(w, http.StatusNotFound, stageerr.Internal, "unknown job route")
	}
}
