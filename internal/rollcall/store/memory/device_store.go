package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
)

type DeviceStore struct {
	mu      sync.RWMutex
	entries map[string]store.DeviceRecord
}

func NewDeviceStore() *DeviceStore {
	return &DeviceStore{entries: make(map[string]store.DeviceRecord)}
}

func (s *DeviceStore) Get(_ context.Context, studentID string) (store.DeviceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.entries[strings.TrimSpace(studentID)]
	if !ok {
		return store.DeviceRecord{}, store.ErrNotFound
	}
	return rec, nil
}

// List returns entries ordered by student ID.
func (s *DeviceStore) List(_ context.Context) ([]store.DeviceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.DeviceRecord, 0, len(s.entries))
	for _, rec := range s.entries {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (s *DeviceStore) Put(_ context.Context, rec store.DeviceRecord) error {
	if rec.RegisteredAt.IsZero() {
		rec.RegisteredAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[strings.TrimSpace(rec.StudentID)] = rec
	return nil
}

func (s *DeviceStore) Clear(_ context.Context, match func(store.DeviceRecord) bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cleared []string
	for id, rec := range s.entries {
		if rec.Cleared() || !match(rec) {
			continue
		}
		rec.Fingerprint = store.ClearedSentinel
		rec.HardwareSignature = store.ClearedSentinel
		s.entries[id] = rec
		cleared = append(cleared, id)
	}
	sort.Strings(cleared)
	return cleared, nil
}
