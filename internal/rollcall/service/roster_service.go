package service

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/types"
)

const DefaultRosterTTL = 60 * time.Second

// RosterSource lists the students on the ledger.
type RosterSource interface {
	Students(ctx context.Context) ([]types.Student, error)
}

// RosterService serves the student list from a short-lived cache.
type RosterService struct {
	src   RosterSource
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu       sync.Mutex
	students []types.Student
	expires  time.Time
}

func NewRosterService(src RosterSource, ttl time.Duration) *RosterService {
	if ttl <= 0 {
		ttl = DefaultRosterTTL
	}
	return &RosterService{src: src, ttl: ttl, now: time.Now}
}

// Students returns the roster ordered by student ID. Concurrent misses share
// one load.
func (r *RosterService) Students(ctx context.Context) ([]types.Student, error) {
	if students, ok := r.cached(); ok {
		return slices.Clone(students), nil
	}

	v, err, _ := r.group.Do("roster", func() (any, error) {
		if students, ok := r.cached(); ok {
			return students, nil
		}
		students, err := r.src.Students(ctx)
		if err != nil {
			return nil, err
		}
		if students == nil {
			students = []types.Student{}
		}
		sort.Slice(students, func(i, j int) bool { return students[i].StudentID < students[j].StudentID })

		r.mu.Lock()
		r.students = students
		r.expires = r.now().Add(r.ttl)
		r.mu.Unlock()
		return students, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]types.Student)), nil
}

func (r *RosterService) cached() ([]types.Student, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.students == nil || !r.now().Before(r.expires) {
		return nil, false
	}
	return r.students, true
}
