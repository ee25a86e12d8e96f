package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/rollcall/internal/db"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
)

type DeviceStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDeviceStore(db *sql.DB, writer *dbpkg.Worker) *DeviceStore {
	return &DeviceStore{db: db, writer: writer}
}

func (s *DeviceStore) Get(ctx context.Context, studentID string) (store.DeviceRecord, error) {
	var rec store.DeviceRecord
	var registeredMs int64
	err := s.db.QueryRowContext(ctx, `
SELECT student_id, fingerprint, hardware_signature, ip, registered_at_ms
FROM device_registry
WHERE student_id = ?;
`, strings.TrimSpace(studentID)).Scan(&rec.StudentID, &rec.Fingerprint, &rec.HardwareSignature, &rec.IP, &registeredMs)
	if errors.Is(err, sql.ErrNoRows) {
		return store.DeviceRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.DeviceRecord{}, fmt.Errorf("device Get: %w", err)
	}
	rec.RegisteredAt = time.UnixMilli(registeredMs).UTC()
	return rec, nil
}

func (s *DeviceStore) List(ctx context.Context) ([]store.DeviceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT student_id, fingerprint, hardware_signature, ip, registered_at_ms
FROM device_registry
ORDER BY student_id;
`)
	if err != nil {
		return nil, fmt.Errorf("device List: %w", err)
	}
	defer rows.Close()

	var out []store.DeviceRecord
	for rows.Next() {
		var rec store.DeviceRecord
		var registeredMs int64
		if err := rows.Scan(&rec.StudentID, &rec.Fingerprint, &rec.HardwareSignature, &rec.IP, &registeredMs); err != nil {
			return nil, fmt.Errorf("device List scan: %w", err)
		}
		rec.RegisteredAt = time.UnixMilli(registeredMs).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Put upserts the student's entry; replaying the same record is a no-op.
func (s *DeviceStore) Put(ctx context.Context, rec store.DeviceRecord) error {
	if rec.RegisteredAt.IsZero() {
		rec.RegisteredAt = time.Now().UTC()
	}
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO device_registry(student_id, fingerprint, hardware_signature, ip, registered_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(student_id) DO UPDATE SET
  fingerprint        = excluded.fingerprint,
  hardware_signature = excluded.hardware_signature,
  ip                 = excluded.ip,
  registered_at_ms   = excluded.registered_at_ms;
`, strings.TrimSpace(rec.StudentID), rec.Fingerprint, rec.HardwareSignature, rec.IP,
			rec.RegisteredAt.UTC().UnixMilli()); err != nil {
			return fmt.Errorf("device Put: %w", err)
		}
		return nil
	})
}

// Clear scans inside the write transaction so a concurrent Put cannot slip
// between the match and the update.
func (s *DeviceStore) Clear(ctx context.Context, match func(store.DeviceRecord) bool) ([]string, error) {
	var cleared []string
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cleared = cleared[:0]
		rows, err := tx.QueryContext(ctx, `
SELECT student_id, fingerprint, hardware_signature, ip
FROM device_registry
WHERE fingerprint <> ? AND hardware_signature <> ?
ORDER BY student_id;
`, store.ClearedSentinel, store.ClearedSentinel)
		if err != nil {
			return fmt.Errorf("device Clear scan: %w", err)
		}
		for rows.Next() {
			var rec store.DeviceRecord
			if err := rows.Scan(&rec.StudentID, &rec.Fingerprint, &rec.HardwareSignature, &rec.IP); err != nil {
				rows.Close()
				return fmt.Errorf("device Clear scan: %w", err)
			}
			if match(rec) {
				cleared = append(cleared, rec.StudentID)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range cleared {
			if _, err := tx.ExecContext(ctx, `
UPDATE device_registry
SET fingerprint = ?, hardware_signature = ?
WHERE student_id = ?;
`, store.ClearedSentinel, store.ClearedSentinel, id); err != nil {
				return fmt.Errorf("device Clear update: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cleared, nil
}
