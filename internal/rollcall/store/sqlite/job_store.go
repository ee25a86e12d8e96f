package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/rollcall/internal/db"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
)

type JobStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewJobStore(db *sql.DB, writer *dbpkg.Worker) *JobStore {
	return &JobStore{db: db, writer: writer}
}

func (s *JobStore) Create(ctx context.Context, job store.CleanupJob) error {
	cells, err := json.Marshal(nonNil(job.Cells))
	if err != nil {
		return fmt.Errorf("job Create encode cells: %w", err)
	}
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO cleanup_jobs(job_id, week, status, cells_json, processed, error, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`, job.ID, job.Week, string(job.Status), string(cells), job.Processed, job.Error,
			job.CreatedAt.UTC().UnixMilli(), job.UpdatedAt.UTC().UnixMilli()); err != nil {
			return fmt.Errorf("job Create: %w", err)
		}
		return nil
	})
}

func (s *JobStore) Get(ctx context.Context, id string) (store.CleanupJob, error) {
	var (
		job                  store.CleanupJob
		status, cells        string
		createdMs, updatedMs int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT job_id, week, status, cells_json, processed, error, created_at_ms, updated_at_ms
FROM cleanup_jobs
WHERE job_id = ?;
`, id).Scan(&job.ID, &job.Week, &status, &cells, &job.Processed, &job.Error, &createdMs, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return store.CleanupJob{}, store.ErrNotFound
	}
	if err != nil {
		return store.CleanupJob{}, fmt.Errorf("job Get: %w", err)
	}
	if err := json.Unmarshal([]byte(cells), &job.Cells); err != nil {
		return store.CleanupJob{}, fmt.Errorf("job Get decode cells: %w", err)
	}
	job.Status = store.JobStatus(status)
	job.CreatedAt = time.UnixMilli(createdMs).UTC()
	job.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return job, nil
}

// Update saves progress. The cell list is fixed at Create.
func (s *JobStore) Update(ctx context.Context, job store.CleanupJob) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE cleanup_jobs
SET status = ?, processed = ?, error = ?, updated_at_ms = ?
WHERE job_id = ?;
`, string(job.Status), job.Processed, job.Error, job.UpdatedAt.UTC().UnixMilli(), job.ID)
		if err != nil {
			return fmt.Errorf("job Update: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *JobStore) Delete(ctx context.Context, id string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM cleanup_jobs WHERE job_id = ?;`, id)
		return err
	})
}

func (s *JobStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM cleanup_jobs WHERE created_at_ms < ?;`, cutoff.UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("job PruneOlderThan: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
