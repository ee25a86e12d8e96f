package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store/sqlite"
)

func TestJobStore_Lifecycle(t *testing.T) {
	conn := openTestDB(t)
	s := sqlite.NewJobStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	created := time.UnixMilli(1760000000000).UTC()
	job := store.CleanupJob{
		ID: "job-1", Week: 5, Status: store.JobPending,
		Cells: []string{"G2", "G3"}, CreatedAt: created, UpdatedAt: created,
	}
	require.NoError(t, s.Create(ctx, job))

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job, got)

	job.Status = store.JobCompleted
	job.Processed = 2
	job.UpdatedAt = created.Add(time.Minute)
	require.NoError(t, s.Update(ctx, job))

	got, err = s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, store.JobCompleted, got.Status)
	assert.Equal(t, 2, got.Processed)
	assert.Equal(t, []string{"G2", "G3"}, got.Cells)

	assert.ErrorIs(t, s.Update(ctx, store.CleanupJob{ID: "nope", Status: store.JobRunning}), store.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "job-1"))
	_, err = s.Get(ctx, "job-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJobStore_PruneOlderThan(t *testing.T) {
	conn := openTestDB(t)
	s := sqlite.NewJobStore(conn, newTestWriter(t, conn))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Create(ctx, store.CleanupJob{ID: "old", Week: 1, Status: store.JobRunning, CreatedAt: now.Add(-3 * time.Hour), UpdatedAt: now}))
	require.NoError(t, s.Create(ctx, store.CleanupJob{ID: "new", Week: 1, Status: store.JobPending, CreatedAt: now, UpdatedAt: now}))

	n, err := s.PruneOlderThan(ctx, now.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = s.Get(ctx, "new")
	assert.NoError(t, err)
}
