package store

import (
	"context"
	"time"
)

// DecisionEventRecord captures one submission outcome for the audit log.
// Only a short fingerprint prefix is kept.
type DecisionEventRecord struct {
	StudentID         string
	Week              int
	ClientIP          string
	FingerprintPrefix string
	Accepted          bool
	AlreadyAttended   bool
	Reason            string
	BlockedStudentID  string
	Fallback          bool
	DecidedAt         time.Time
}

// DecisionEventStore persists decisions as an append-only audit log.
type DecisionEventStore interface {
	RecordEvent(ctx context.Context, rec DecisionEventRecord) error
	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]DecisionEventRecord, error)
}
