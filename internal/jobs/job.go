// Package jobs provides the background job runner: a single-producer /
// multi-consumer FIFO queue drained by a worker pool. Each job is
// processed in full by one worker; no in-memory state is shared between
// jobs, so workers may restart between jobs without loss.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Kind identifies the kind of work a job performs.
type Kind string

const (
	KindBuild         Kind = "build_synthetic"
	KindDwarfOracle   Kind = "run_dwarf_oracle"
	KindTsOracle      Kind = "run_ts_oracle"
	KindJoinDwarfTs   Kind = "run_join_dwarf_ts"
	KindReshapeDecomp Kind = "run_reshape_decompile"
	KindJoinDecompile Kind = "run_join_oracles_decompile"
)

// Job represents one unit of background work. The payload is an opaque
// JSON envelope; the transport never inspects it.
type Job struct {
	ID          string     `json:"job_id"`
	Kind        Kind       `json:"kind"`
	Payload     string     `json:"payload,omitempty"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Result      string     `json:"result,omitempty"`
}

// New creates a queued job with a JSON-encoded payload.
func New(kind Kind, payload interface{}) (*Job, error) {
	var payloadJSON string
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadJSON = string(data)
	}
	return &Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		Payload:   payloadJSON,
		Status:    StatusQueued,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed || j.Status == StatusCancelled
}

// MarkStarted transitions the job to running state.
func (j *Job) MarkStarted() {
	now := time.Now().UTC()
	j.Status = StatusRunning
	j.StartedAt = &now
}

// MarkCompleted transitions the job to completed state with result.
func (j *Job) MarkCompleted(result interface{}) error {
	now := time.Now().UTC()
	j.Status = StatusCompleted
	j.CompletedAt = &now
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		j.Result = string(data)
	}
	return nil
}

// MarkFailed transitions the job to failed state with error.
func (j *Job) MarkFailed(err error) {
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.CompletedAt = &now
	if err != nil {
		j.Error = err.Error()
	}
}

// MarkCancelled transitions the job to cancelled state.
func (j *Job) MarkCancelled() {
	now := time.Now().UTC()
	j.Status = StatusCancelled
	j.CompletedAt = &now
}
