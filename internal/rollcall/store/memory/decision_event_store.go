package memory

import (
	"context"
	"sync"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
)

// DecisionEventStore is an in-memory append-only log of submission
// decisions. It is intended for use in tests and dev environments.
type DecisionEventStore struct {
	mu     sync.Mutex
	events []store.DecisionEventRecord
}

func NewDecisionEventStore() *DecisionEventStore {
	return &DecisionEventStore{}
}

func (s *DecisionEventStore) RecordEvent(_ context.Context, rec store.DecisionEventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, rec)
	return nil
}

func (s *DecisionEventStore) Recent(_ context.Context, limit int) ([]store.DecisionEventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]store.DecisionEventRecord, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

// Events returns a copy of all recorded events in insertion order. Test-only
// helper.
func (s *DecisionEventStore) Events() []store.DecisionEventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.DecisionEventRecord, len(s.events))
	copy(out, s.events)
	return out
}
