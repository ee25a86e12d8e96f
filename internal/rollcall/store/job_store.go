package store

import (
	"context"
	"time"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

func (s JobStatus) Finished() bool {
	return s == JobCompleted || s == JobFailed
}

// CleanupJob is the persisted progress record of a bulk cell-clearing job.
// Cells is the work list captured at start; Processed counts how many of
// them have been cleared.
type CleanupJob struct {
	ID        string
	Week      int
	Status    JobStatus
	Cells     []string
	Processed int
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (j CleanupJob) Total() int { return len(j.Cells) }

type JobStore interface {
	Create(ctx context.Context, job CleanupJob) error
	// Get returns ErrNotFound for unknown IDs.
	Get(ctx context.Context, id string) (CleanupJob, error)
	Update(ctx context.Context, job CleanupJob) error
	Delete(ctx context.Context, id string) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
