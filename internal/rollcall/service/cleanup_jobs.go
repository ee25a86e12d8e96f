package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/ledger"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
)

var (
	ErrJobNotFound = errors.New("cleanup job not found")
	ErrJobExpired  = errors.New("cleanup job expired")
	ErrJobFinished = errors.New("cleanup job already finished")
)

const (
	DefaultCleanupBatchSize = 50
	DefaultJobTTL           = 2 * time.Hour
)

type CleanupConfig struct {
	BatchSize int
	TTL       time.Duration
}

// CleanupJobs clears a week's column in bounded batches. A job is started
// once and then driven by repeated ProcessBatch calls until it reports
// completed:
//
//	pending -> running -> completed | failed
type CleanupJobs struct {
	jobs   store.JobStore
	ledger *ledger.Adapter
	cfg    CleanupConfig
	now    func() time.Time
	logger *slog.Logger
}

func NewCleanupJobs(js store.JobStore, adapter *ledger.Adapter, cfg CleanupConfig, logger *slog.Logger) *CleanupJobs {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultCleanupBatchSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultJobTTL
	}
	return &CleanupJobs{
		jobs:   js,
		ledger: adapter,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With("component", "cleanup_jobs"),
	}
}

// Start captures the week's non-empty cells and persists a pending job.
func (c *CleanupJobs) Start(ctx context.Context, week int) (store.CleanupJob, error) {
	cells, err := c.ledger.FilledCells(ctx, week)
	if err != nil {
		return store.CleanupJob{}, err
	}
	now := c.now().UTC()
	job := store.CleanupJob{
		ID:        uuid.NewString(),
		Week:      week,
		Status:    store.JobPending,
		Cells:     cells,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		return store.CleanupJob{}, fmt.Errorf("create cleanup job: %w", err)
	}
	c.logger.Info("cleanup job started", "job_id", job.ID, "week", week, "cells", job.Total())
	return job, nil
}

// ProcessBatch clears the next batch of cells. Polling a completed job
// returns it unchanged.
func (c *CleanupJobs) ProcessBatch(ctx context.Context, id string) (store.CleanupJob, error) {
	job, err := c.Status(ctx, id)
	if err != nil {
		return store.CleanupJob{}, err
	}
	switch job.Status {
	case store.JobCompleted:
		return job, nil
	case store.JobFailed:
		return job, ErrJobFinished
	}

	end := min(job.Processed+c.cfg.BatchSize, job.Total())
	batch := job.Cells[job.Processed:end]
	updates := make([]store.RangeUpdate, 0, len(batch))
	for _, cell := range batch {
		updates = append(updates, store.RangeUpdate{Range: cell, Values: [][]string{{""}}})
	}

	job.Status = store.JobRunning
	if err := c.ledger.BatchWrite(ctx, updates); err != nil {
		job.Error = err.Error()
		if !errors.Is(err, ledger.ErrTransientStore) {
			job.Status = store.JobFailed
			c.logger.Error("cleanup job failed", "job_id", job.ID, "error", err)
		}
		job.UpdatedAt = c.now().UTC()
		if uerr := c.jobs.Update(ctx, job); uerr != nil {
			c.logger.Warn("cleanup job state not saved", "job_id", job.ID, "error", uerr)
		}
		return job, err
	}

	job.Processed = end
	job.Error = ""
	if job.Processed >= job.Total() {
		job.Status = store.JobCompleted
		c.logger.Info("cleanup job completed", "job_id", job.ID, "week", job.Week, "cells", job.Total())
	}
	job.UpdatedAt = c.now().UTC()
	if err := c.jobs.Update(ctx, job); err != nil {
		return job, fmt.Errorf("save cleanup job: %w", err)
	}
	return job, nil
}

// Status returns the job, discarding it when it is older than the TTL.
func (c *CleanupJobs) Status(ctx context.Context, id string) (store.CleanupJob, error) {
	job, err := c.jobs.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.CleanupJob{}, ErrJobNotFound
	}
	if err != nil {
		return store.CleanupJob{}, err
	}
	if c.now().Sub(job.CreatedAt) > c.cfg.TTL {
		if err := c.jobs.Delete(ctx, id); err != nil {
			c.logger.Warn("expired cleanup job not deleted", "job_id", id, "error", err)
		}
		return store.CleanupJob{}, ErrJobExpired
	}
	return job, nil
}
