package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/ledger"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/provenance"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/types"
)

// maxUsageHistory bounds the per-device usage history.
const maxUsageHistory = 32

// MarkedCellSource lists the present cells already written to the ledger.
type MarkedCellSource interface {
	MarkedCells(ctx context.Context) ([]ledger.MarkedCell, error)
}

// TrackResult is the outcome of DailyDeviceTracker.Track. An allowed result
// carries what Revert needs to undo the binding.
type TrackResult struct {
	Allowed          bool
	Reason           types.RejectionReason
	BlockedStudentID string
	// Source is "ledger" or "cache" for blocked results.
	Source string

	hardware string
	previous *store.DailyDeviceRecord
}

type TrackerConfig struct {
	// Location defines the calendar day. Defaults to time.Local.
	Location *time.Location
	Now      func() time.Time
}

// DailyDeviceTracker enforces one student per device per calendar day. It
// checks the durable ledger provenance and the best-effort local records;
// either can block.
type DailyDeviceTracker struct {
	store  store.DailyDeviceStore
	cells  MarkedCellSource
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger

	// mu serialises check-and-upsert on the local records.
	mu sync.Mutex
}

func NewDailyDeviceTracker(st store.DailyDeviceStore, cells MarkedCellSource, cfg TrackerConfig, logger *slog.Logger) *DailyDeviceTracker {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &DailyDeviceTracker{
		store:  st,
		cells:  cells,
		loc:    cfg.Location,
		now:    cfg.Now,
		logger: logger.With("component", "daily_tracker"),
	}
}

// DayWindow returns [midnight, next midnight) around t in the tracker's
// location.
func (t *DailyDeviceTracker) DayWindow(at time.Time) (start, end time.Time) {
	at = at.In(t.loc)
	start = time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, t.loc)
	return start, start.AddDate(0, 0, 1)
}

// Track decides whether the device may check in for studentID today and,
// if so, binds it to that student.
func (t *DailyDeviceTracker) Track(ctx context.Context, fp, studentID, ip, hw string) (TrackResult, error) {
	fp = strings.TrimSpace(fp)
	hw = strings.TrimSpace(hw)
	ip = strings.TrimSpace(ip)
	studentID = strings.TrimSpace(studentID)

	now := t.now()
	start, end := t.DayWindow(now)

	if res, blocked, err := t.checkLedger(ctx, fp, studentID, ip, hw, start, end); err != nil || blocked {
		return res, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	recs, err := t.store.UsedSince(ctx, start)
	if err != nil {
		// The local records are best-effort; the ledger check above stands.
		t.logger.Warn("daily device records unavailable", "error", err)
		return TrackResult{Allowed: true}, nil
	}
	for _, rec := range recs {
		if !rec.LastUsedAt.Before(end) || rec.LastKnownIP != ip || rec.StudentID == studentID {
			continue
		}
		if bestScore(rec, fp, hw) >= SameDeviceThreshold {
			t.logger.Info("device already used today",
				"student_id", studentID, "blocked_by", rec.StudentID, "source", "cache")
			return TrackResult{
				Reason:           types.ReasonDeviceAlreadyUsedToday,
				BlockedStudentID: rec.StudentID,
				Source:           "cache",
			}, nil
		}
	}

	return t.upsert(ctx, fp, studentID, ip, hw, now, start), nil
}

func (t *DailyDeviceTracker) checkLedger(ctx context.Context, fp, studentID, ip, hw string, start, end time.Time) (TrackResult, bool, error) {
	if t.cells == nil {
		return TrackResult{}, false, nil
	}
	cells, err := t.cells.MarkedCells(ctx)
	if err != nil {
		return TrackResult{}, false, err
	}
	for _, c := range cells {
		if c.StudentID == studentID || !c.Cell.HasDevice() || !sameDay(c.Cell, start, end) {
			continue
		}
		if !provenance.IPMatches(c.Cell.IP, ip) {
			continue
		}
		if CompareDevices(c.Cell.Fingerprint, c.Cell.Hardware, fp, hw).SameDevice(LedgerSameDeviceThreshold) {
			t.logger.Info("device already used today",
				"student_id", studentID, "blocked_by", c.StudentID, "source", "ledger", "cell", c.Range)
			return TrackResult{
				Reason:           types.ReasonDeviceAlreadyUsedToday,
				BlockedStudentID: c.StudentID,
				Source:           "ledger",
			}, true, nil
		}
	}
	return TrackResult{}, false, nil
}

func sameDay(c provenance.Cell, start, end time.Time) bool {
	return !c.Date.IsZero() && !c.Date.Before(start) && c.Date.Before(end)
}

func bestScore(rec store.DailyDeviceRecord, fp, hw string) int {
	best := CompareDevices("", rec.HardwareSignature, fp, hw).Score()
	for _, known := range rec.Fingerprints {
		if s := CompareDevices(known, rec.HardwareSignature, fp, hw).Score(); s > best {
			best = s
		}
	}
	return best
}

// upsert binds the device to studentID. Records from earlier days are
// reassigned rather than rejected. A record found only by fingerprint is
// taken over and re-keyed when it is stale or already bound to studentID;
// a record another student used today keeps its hardware binding. Must be
// called with t.mu held.
func (t *DailyDeviceTracker) upsert(ctx context.Context, fp, studentID, ip, hw string, now, dayStart time.Time) TrackResult {
	res := TrackResult{Allowed: true, hardware: hw}

	existing, found, err := t.store.Find(ctx, hw, fp)
	if err != nil {
		t.logger.Warn("daily device lookup failed", "error", err)
		found = false
	}
	if found && existing.HardwareSignature != hw &&
		existing.StudentID != studentID && !existing.LastUsedAt.Before(dayStart) {
		found = false
	}

	rec := store.DailyDeviceRecord{HardwareSignature: hw}
	if found {
		prev := existing.Clone()
		res.previous = &prev
		rec = existing.Clone()
		if rec.HardwareSignature != hw {
			if err := t.store.Delete(ctx, rec.HardwareSignature); err != nil {
				t.logger.Warn("daily device rekey failed", "error", err)
			}
			rec.HardwareSignature = hw
		}
	}

	rec.StudentID = studentID
	if fp != "" && !rec.HasFingerprint(fp) {
		rec.Fingerprints = append(rec.Fingerprints, fp)
	}
	rec.LastKnownIP = ip
	rec.LastUsedAt = now
	rec.History = append(rec.History, store.DeviceUsage{StudentID: studentID, At: now, Fingerprint: fp})
	if n := len(rec.History); n > maxUsageHistory {
		rec.History = rec.History[n-maxUsageHistory:]
	}

	if err := t.store.Put(ctx, rec); err != nil {
		t.logger.Warn("daily device record not saved", "error", err)
	}
	return res
}

// Revert undoes the binding made by an allowed Track call.
func (t *DailyDeviceTracker) Revert(ctx context.Context, res TrackResult) {
	if !res.Allowed || res.hardware == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.store.Delete(ctx, res.hardware); err != nil {
		t.logger.Warn("daily device revert failed", "error", err)
		return
	}
	if res.previous != nil {
		if err := t.store.Put(ctx, *res.previous); err != nil {
			t.logger.Warn("daily device revert failed", "error", err)
		}
	}
}

// Evict drops every local record that knows fp.
func (t *DailyDeviceTracker) Evict(ctx context.Context, fp string) (int, error) {
	fp = strings.TrimSpace(fp)
	if fp == "" {
		return 0, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.EvictFingerprint(ctx, fp)
}
