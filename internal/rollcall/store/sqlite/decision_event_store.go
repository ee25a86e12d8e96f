package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/rollcall/internal/db"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
)

type DecisionEventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDecisionEventStore(db *sql.DB, writer *dbpkg.Worker) *DecisionEventStore {
	return &DecisionEventStore{db: db, writer: writer}
}

func (s *DecisionEventStore) RecordEvent(ctx context.Context, rec store.DecisionEventRecord) error {
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO decision_events(
  student_id, week, client_ip, fingerprint_prefix,
  accepted, already_attended, reason, blocked_student_id, fallback, decided_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.StudentID, rec.Week, rec.ClientIP, rec.FingerprintPrefix,
			boolInt(rec.Accepted), boolInt(rec.AlreadyAttended), rec.Reason, rec.BlockedStudentID,
			boolInt(rec.Fallback), rec.DecidedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("RecordEvent insert: %w", err)
		}
		return nil
	})
}

func (s *DecisionEventStore) Recent(ctx context.Context, limit int) ([]store.DecisionEventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT student_id, week, client_ip, fingerprint_prefix,
       accepted, already_attended, reason, blocked_student_id, fallback, decided_at_ms
FROM decision_events
ORDER BY event_id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("Recent query: %w", err)
	}
	defer rows.Close()

	var out []store.DecisionEventRecord
	for rows.Next() {
		var (
			rec                          store.DecisionEventRecord
			accepted, attended, fallback int
			decidedMs                    int64
		)
		if err := rows.Scan(&rec.StudentID, &rec.Week, &rec.ClientIP, &rec.FingerprintPrefix,
			&accepted, &attended, &rec.Reason, &rec.BlockedStudentID, &fallback, &decidedMs); err != nil {
			return nil, fmt.Errorf("Recent scan: %w", err)
		}
		rec.Accepted = accepted == 1
		rec.AlreadyAttended = attended == 1
		rec.Fallback = fallback == 1
		rec.DecidedAt = time.UnixMilli(decidedMs).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
