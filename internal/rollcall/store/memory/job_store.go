package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
)

type JobStore struct {
	mu   sync.Mutex
	jobs map[string]store.CleanupJob
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]store.CleanupJob)}
}

func (s *JobStore) Create(_ context.Context, job store.CleanupJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Cells = slices.Clone(job.Cells)
	s.jobs[job.ID] = job
	return nil
}

func (s *JobStore) Get(_ context.Context, id string) (store.CleanupJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.CleanupJob{}, store.ErrNotFound
	}
	job.Cells = slices.Clone(job.Cells)
	return job, nil
}

func (s *JobStore) Update(_ context.Context, job store.CleanupJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return store.ErrNotFound
	}
	job.Cells = slices.Clone(job.Cells)
	s.jobs[job.ID] = job
	return nil
}

func (s *JobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *JobStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, job := range s.jobs {
		if job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}
