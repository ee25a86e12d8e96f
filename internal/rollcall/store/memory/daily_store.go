package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
)

// DailyDeviceStore is the default, process-local device/day state. It is
// lost on restart.
type DailyDeviceStore struct {
	mu      sync.RWMutex
	records map[string]store.DailyDeviceRecord
}

func NewDailyDeviceStore() *DailyDeviceStore {
	return &DailyDeviceStore{records: make(map[string]store.DailyDeviceRecord)}
}

func (s *DailyDeviceStore) UsedSince(_ context.Context, since time.Time) ([]store.DailyDeviceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.DailyDeviceRecord
	for _, rec := range s.records {
		if !rec.LastUsedAt.Before(since) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (s *DailyDeviceStore) Find(_ context.Context, hardware, fingerprint string) (store.DailyDeviceRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.records[hardware]; ok {
		return rec.Clone(), true, nil
	}
	if fingerprint == "" {
		return store.DailyDeviceRecord{}, false, nil
	}
	for _, rec := range s.records {
		if rec.HasFingerprint(fingerprint) {
			return rec.Clone(), true, nil
		}
	}
	return store.DailyDeviceRecord{}, false, nil
}

func (s *DailyDeviceStore) Put(_ context.Context, rec store.DailyDeviceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.HardwareSignature] = rec.Clone()
	return nil
}

func (s *DailyDeviceStore) Delete(_ context.Context, hardware string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, hardware)
	return nil
}

func (s *DailyDeviceStore) EvictFingerprint(_ context.Context, fp string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for hw, rec := range s.records {
		if rec.HasFingerprint(fp) {
			delete(s.records, hw)
			n++
		}
	}
	return n, nil
}
