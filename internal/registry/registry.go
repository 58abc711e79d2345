// Package registry tracks the lifecycle of each release import in
// data_versions: pending, running, completed, or failed.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Status is one of the four states a release import can be in.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Release is one row of data_versions: the lifecycle record for a single
// release's import, keyed uniquely by its "YYYY-MM" release string.
type Release struct {
	bun.BaseModel `bun:"table:data_versions,alias:dv"`

	ID         int64      `bun:"id,pk,autoincrement" json:"id"`
	Release    string     `bun:"release,unique,notnull" json:"release"`
	Status     Status     `bun:"status,notnull" json:"status"`
	StartedAt  time.Time  `bun:"started_at,notnull" json:"started_at"`
	FinishedAt *time.Time `bun:"finished_at" json:"finished_at,omitempty"`
	Note       *string    `bun:"note" json:"note,omitempty"`
}

// Store is the version registry, backed by data_versions.
type Store struct {
	db *bun.DB
}

// NewStore wraps db as a version registry.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates data_versions if it does not already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*Release)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create data_versions: %v", err)
	}
	return nil
}

// CurrentRelease returns the row with the highest surrogate id, i.e. the
// release whose row was inserted last, or nil if none has ever run. It
// orders by id rather than started_at. StartRelease reuses an existing
// release's row, so restarting an older release does not make it the
// current one.
func (s *Store) CurrentRelease(ctx context.Context) (*Release, error) {
	var r Release
	err := s.db.NewSelect().Model(&r).OrderExpr("id DESC").Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read current release: %v", err)
	}
	return &r, nil
}

// FindByRelease returns the registry row for release, or nil if it has never
// been started.
func (s *Store) FindByRelease(ctx context.Context, release string) (*Release, error) {
	var r Release
	err := s.db.NewSelect().Model(&r).Where("release = ?", release).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read release %s: %v", release, err)
	}
	return &r, nil
}

// StartRelease upserts release into state running, resetting finished_at
// and note. A release is unique, so re-running a prior release reuses its
// row rather than appending a new one.
func (s *Store) StartRelease(ctx context.Context, release string) error {
	var existing Release
	err := s.db.NewSelect().Model(&existing).Where("release = ?", release).Scan(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		r := &Release{
			Release:   release,
			Status:    StatusRunning,
			StartedAt: time.Now(),
		}
		if _, err := s.db.NewInsert().Model(r).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert release %s: %v", release, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to look up release %s: %v", release, err)
	}

	existing.Status = StatusRunning
	existing.StartedAt = time.Now()
	existing.FinishedAt = nil
	existing.Note = nil
	if _, err := s.db.NewUpdate().Model(&existing).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("failed to restart release %s: %v", release, err)
	}
	return nil
}

// FinishRelease marks release completed or failed, with an optional note
// (typically the error text on failure). A missing row is a silent no-op,
// mirroring start/finish being called in sequence by the same orchestrator
// run that created the row.
func (s *Store) FinishRelease(ctx context.Context, release string, success bool, note string) error {
	status := StatusCompleted
	if !success {
		status = StatusFailed
	}
	now := time.Now()

	var noteArg *string
	if note != "" {
		noteArg = &note
	}

	res, err := s.db.NewUpdate().
		Model((*Release)(nil)).
		Set("status = ?", status).
		Set("finished_at = ?", now).
		Set("note = ?", noteArg).
		Where("release = ?", release).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to finish release %s: %v", release, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}
	return nil
}
