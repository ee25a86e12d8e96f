package store

import (
	"context"
	"slices"
	"time"
)

type DeviceUsage struct {
	StudentID   string    `json:"student_id"`
	At          time.Time `json:"at"`
	Fingerprint string    `json:"fingerprint"`
}

// DailyDeviceRecord binds one hardware signature to the student it last
// checked in for.
type DailyDeviceRecord struct {
	HardwareSignature string        `json:"hardware_signature"`
	StudentID         string        `json:"student_id"`
	Fingerprints      []string      `json:"fingerprints"`
	LastKnownIP       string        `json:"last_known_ip"`
	LastUsedAt        time.Time     `json:"last_used_at"`
	History           []DeviceUsage `json:"history"`
}

func (r DailyDeviceRecord) HasFingerprint(fp string) bool {
	return slices.Contains(r.Fingerprints, fp)
}

// Clone returns a deep copy so callers never share slices with a store.
func (r DailyDeviceRecord) Clone() DailyDeviceRecord {
	r.Fingerprints = slices.Clone(r.Fingerprints)
	r.History = slices.Clone(r.History)
	return r
}

// DailyDeviceStore holds the best-effort "which student used this device
// today" state. Implementations may lose everything at any time.
type DailyDeviceStore interface {
	// UsedSince returns records whose LastUsedAt is at or after since.
	UsedSince(ctx context.Context, since time.Time) ([]DailyDeviceRecord, error)
	// Find looks a record up by hardware signature, then by fingerprint
	// membership.
	Find(ctx context.Context, hardware, fingerprint string) (DailyDeviceRecord, bool, error)
	Put(ctx context.Context, rec DailyDeviceRecord) error
	Delete(ctx context.Context, hardware string) error
	// EvictFingerprint removes every record that knows fp.
	EvictFingerprint(ctx context.Context, fp string) (int, error)
}
