package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/NicolasKol/reforge/internal/logging"
)

// Handler executes one kind of job. It receives the job's payload JSON
// and returns a JSON-encodable result.
type Handler func(ctx context.Context, job *Job) (interface{}, error)

// Runner drains the FIFO queue with a worker pool.
type Runner struct {
	store    *Store
	logger   *logging.Logger
	handlers map[Kind]Handler

	queue       chan *Job
	workerCount int

	done   chan struct{}
	cancel map[string]context.CancelFunc

	mu sync.RWMutex
	wg sync.WaitGroup
}

// RunnerConfig contains configuration for the job runner.
type RunnerConfig struct {
	QueueSize   int
	WorkerCount int
}

// NewRunner creates a job runner.
func NewRunner(store *Store, logger *logging.Logger, config RunnerConfig) *Runner {
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	return &Runner{
		store:       store,
		logger:      logger,
		handlers:    make(map[Kind]Handler),
		queue:       make(chan *Job, config.QueueSize),
		workerCount: config.WorkerCount,
		done:        make(chan struct{}),
		cancel:      make(map[string]context.CancelFunc),
	}
}

// RegisterHandler binds a handler to a job kind.
func (r *Runner) RegisterHandler(kind Kind, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
}

// Start launches the worker pool.
func (r *Runner) Start() {
	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

// Stop drains the pool: no new jobs are accepted, running jobs are
// cancelled, and workers exit.
func (r *Runner) Stop() {
	close(r.done)
	r.mu.Lock()
	for _, cancel := range r.cancel {
		cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// Enqueue persists a queued job and hands it to the pool.
func (r *Runner) Enqueue(job *Job) error {
	select {
	case <-r.done:
		return fmt.Errorf("runner stopped")
	default:
	}
	if err := r.store.Save(job); err != nil {
		return err
	}
	select {
	case r.queue <- job:
		return nil
	case <-r.done:
		return fmt.Errorf("runner stopped")
	default:
		return fmt.Errorf("job queue full")
	}
}

// Cancel requests cancellation of a running job. The worker flushes a
// partial receipt/report for the completed portion before finishing.
func (r *Runner) Cancel(jobID string) bool {
	r.mu.RLock()
	cancel, ok := r.cancel[jobID]
	r.mu.RUnlock()
	if ok {
		cancel()
	}
	return ok
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()
	log := r.logger.With(map[string]interface{}{"worker": id})

	for {
		select {
		case <-r.done:
			return
		case job := <-r.queue:
			r.process(log, job)
		}
	}
}

// process runs one job to completion. A panic inside a handler is
// recorded as a structured failure; it never kills the worker.
func (r *Runner) process(log *logging.Logger, job *Job) {
	r.mu.RLock()
	handler, ok := r.handlers[job.Kind]
	r.mu.RUnlock()

	if !ok {
		job.MarkFailed(fmt.Errorf("no handler for job kind %q", job.Kind))
		_ = r.store.Save(job)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel[job.ID] = cancel
	r.mu.Unlock()
	defer func() {
		cancel()
		r.mu.Lock()
		delete(r.cancel, job.ID)
		r.mu.Unlock()
	}()

	job.MarkStarted()
	_ = r.store.Save(job)
	log.Info("job started", map[string]interface{}{"job_id": job.ID, "kind": string(job.Kind)})

	result, err := r.invoke(ctx, handler, job)
	switch {
	case ctx.Err() == context.Canceled:
		job.MarkCancelled()
	case err != nil:
		job.MarkFailed(err)
	default:
		if mcErr := job.MarkCompleted(result); mcErr != nil {
			job.MarkFailed(mcErr)
		}
	}
	_ = r.store.Save(job)

	log.Info("job finished", map[string]interface{}{
		"job_id": job.ID, "kind": string(job.Kind), "status": string(job.Status),
	})
}

func (r *Runner) invoke(ctx context.Context, handler Handler, job *Job) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job handler panicked: %v", p)
		}
	}()
	return handler(ctx, job)
}
