// Package scheduler drives the pipeline on a cron schedule, for deployments
// that want an unattended periodic release check instead of (or alongside)
// the admin trigger endpoint.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/vision-digital/cnpj-ingestd/internal/logger"
)

// Runner is the subset of *pipeline.Pipeline the scheduler depends on.
type Runner interface {
	Run(ctx context.Context, release string) (string, error)
}

// Scheduler triggers a Runner.Run("") on a cron schedule, so each firing
// picks up whatever release the pipeline's own discovery logic finds next.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
}

// New builds a Scheduler from a standard five-field cron expression. An
// empty expr means the scheduler is disabled; New returns nil, nil in that
// case, and Start and Stop are no-ops on the nil *Scheduler.
func New(expr string, runner Runner) (*Scheduler, error) {
	if expr == "" {
		return nil, nil
	}

	c := cron.New()
	s := &Scheduler{cron: c, runner: runner}
	if _, err := c.AddFunc(expr, s.runOnce); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins firing the schedule. Safe to call on a nil *Scheduler.
func (s *Scheduler) Start() {
	if s == nil {
		return
	}
	s.cron.Start()
	logger.Logger.Info().Msg("scheduler started")
}

// Stop waits for any in-flight job to finish and halts further firings.
// Safe to call on a nil *Scheduler.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	<-s.cron.Stop().Done()
	logger.Logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runOnce() {
	release, err := s.runner.Run(context.Background(), "")
	if err != nil {
		logger.Logger.Error().Err(err).Msg("scheduled release run failed")
		return
	}
	logger.Logger.Info().Str("release", release).Msg("scheduled release run completed")
}
