package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/NicolasKol/reforge/internal/logging"
	"github.com/NicolasKol/reforge/internal/storage"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	db, err := storage.Open(filepath.Join(t.TempDir(), "jobs.db"), logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestJobLifecycle(t *testing.T) {
	job, err := New(KindBuild, map[string]string{"name": "t01"})
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != StatusQueued || job.IsTerminal() {
		t.Errorf("fresh job state: %+v", job)
	}

	job.MarkStarted()
	if job.Status != StatusRunning || job.StartedAt == nil {
		t.Errorf("started state: %+v", job)
	}

	if err := job.MarkCompleted(map[string]int{"cells": 12}); err != nil {
		t.Fatal(err)
	}
	if !job.IsTerminal() || job.Result == "" {
		t.Errorf("completed state: %+v", job)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := testStore(t)

	job, err := New(KindDwarfOracle, map[string]string{"name": "t01", "optimization_level": "O0"})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(job); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Kind != KindDwarfOracle || got.Status != StatusQueued {
		t.Errorf("got %+v", got)
	}

	job.MarkFailed(fmt.Errorf("boom"))
	if err := store.Save(job); err != nil {
		t.Fatal(err)
	}
	got, _ = store.Get(job.ID)
	if got.Status != StatusFailed || got.Error != "boom" {
		t.Errorf("got %+v", got)
	}
}

func TestRunnerProcessesJobs(t *testing.T) {
	store := testStore(t)
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	runner := NewRunner(store, logger, RunnerConfig{QueueSize: 4, WorkerCount: 1})

	done := make(chan string, 1)
	runner.RegisterHandler(KindBuild, func(ctx context.Context, job *Job) (interface{}, error) {
		done <- job.ID
		return map[string]string{"ok": "yes"}, nil
	})
	runner.Start()
	defer runner.Stop()

	job, _ := New(KindBuild, nil)
	if err := runner.Enqueue(job); err != nil {
		t.Fatal(err)
	}

	select {
	case id := <-done:
		if id != job.ID {
			t.Errorf("processed %s, want %s", id, job.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job never processed")
	}

	// Wait for the terminal save.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := store.Get(job.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got != nil && got.IsTerminal() {
			if got.Status != StatusCompleted {
				t.Errorf("status = %s", got.Status)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never reached terminal state")
}

func TestRunnerRecoversPanic(t *testing.T) {
	store := testStore(t)
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	runner := NewRunner(store, logger, RunnerConfig{QueueSize: 4, WorkerCount: 1})

	runner.RegisterHandler(KindBuild, func(ctx context.Context, job *Job) (interface{}, error) {
		panic("stage exploded")
	})
	runner.Start()
	defer runner.Stop()

	job, _ := New(KindBuild, nil)
	if err := runner.Enqueue(job); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := store.Get(job.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got != nil && got.IsTerminal() {
			if got.Status != StatusFailed {
				t.Errorf("status = %s, want failed", got.Status)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("panicked job never recorded")
}

func TestRunnerUnknownKindFails(t *testing.T) {
	store := testStore(t)
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	runner := NewRunner(store, logger, RunnerConfig{QueueSize: 4, WorkerCount: 1})
	runner.Start()
	defer runner.Stop()

	job, _ := New(Kind("bogus"), nil)
	if err := runner.Enqueue(job); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := store.Get(job.ID)
		if got != nil && got.IsTerminal() {
			if got.Status != StatusFailed {
				t.Errorf("status = %s", got.Status)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never failed")
}
