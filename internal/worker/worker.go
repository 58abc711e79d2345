// Package worker backs the admin HTTP surface with a supervised in-process
// job registry, replacing a fire-and-forget background task: a trigger
// enqueues a run and returns its id immediately, and the run itself executes
// on its own goroutine under recover, with its outcome visible to pollers
// for as long as the process stays up.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vision-digital/cnpj-ingestd/internal/logger"
)

// Status is the lifecycle state of one supervised run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one enqueued pipeline invocation, identified by an id independent
// of the release string so that re-running the same release twice (e.g.
// after a failure) produces two distinct, separately pollable runs.
type Run struct {
	ID         string     `json:"id"`
	Release    string     `json:"release"`
	Status     Status     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Runner is the subset of *pipeline.Pipeline the worker depends on.
type Runner interface {
	Run(ctx context.Context, release string) (string, error)
}

// Registry tracks every run enqueued since process start. It is intentionally
// in-memory and not persisted: durable release state lives in the version
// registry, which is what a client should trust across restarts. The run
// registry exists only to let a caller poll the one run it just triggered.
type Registry struct {
	mu     sync.Mutex
	runner Runner
	runs   map[string]*Run
}

// NewRegistry wraps runner in a supervised run registry.
func NewRegistry(runner Runner) *Registry {
	return &Registry{
		runner: runner,
		runs:   make(map[string]*Run),
	}
}

// Enqueue starts a new run for release (empty means "let the pipeline
// discover the target") and returns its run id immediately, without waiting
// for the pipeline to finish.
func (r *Registry) Enqueue(release string) string {
	run := &Run{
		ID:        uuid.NewString(),
		Release:   release,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}

	r.mu.Lock()
	r.runs[run.ID] = run
	r.mu.Unlock()

	go r.supervise(run)
	return run.ID
}

// Get returns the run with id, or ok=false if no such run is known.
func (r *Registry) Get(id string) (Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// supervise runs the pipeline on its own goroutine and records the outcome,
// recovering from a panic so one bad run can never take the admin surface
// down with it.
func (r *Registry) supervise(run *Run) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Logger.Error().Interface("panic", rec).Str("run_id", run.ID).Msg("supervised run panicked")
			r.finish(run.ID, StatusFailed, "internal error")
		}
	}()

	resolved, err := r.runner.Run(context.Background(), run.Release)
	if err != nil {
		r.finish(run.ID, StatusFailed, err.Error())
		return
	}

	r.mu.Lock()
	run.Release = resolved
	r.mu.Unlock()
	r.finish(run.ID, StatusCompleted, "")
}

func (r *Registry) finish(id string, status Status, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return
	}
	now := time.Now()
	run.Status = status
	run.Error = errMsg
	run.FinishedAt = &now
}
