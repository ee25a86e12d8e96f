package store

import (
	"context"
	"time"
)

// ClearedSentinel in the fingerprint and hardware fields means the entry was
// released by an admin and the next submission re-registers.
const ClearedSentinel = "CLEARED"

type DeviceRecord struct {
	StudentID         string
	Fingerprint       string
	HardwareSignature string
	IP                string
	RegisteredAt      time.Time
}

func (r DeviceRecord) Cleared() bool {
	return r.Fingerprint == ClearedSentinel || r.HardwareSignature == ClearedSentinel
}

// DeviceStore persists the one canonical device per student.
type DeviceStore interface {
	// Get returns ErrNotFound when the student has no entry.
	Get(ctx context.Context, studentID string) (DeviceRecord, error)
	List(ctx context.Context) ([]DeviceRecord, error)
	// Put overwrites the student's entry. It must be idempotent.
	Put(ctx context.Context, rec DeviceRecord) error
	// Clear marks every entry selected by match as cleared and returns the
	// student IDs it touched.
	Clear(ctx context.Context, match func(DeviceRecord) bool) ([]string, error)
}
