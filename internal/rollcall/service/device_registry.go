package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BrandonDHaskell/rollcall/internal/metrics"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/types"
)

// AmbiguousPolicy decides what happens when a submitted device matches
// neither the student's own registered device nor anyone else's.
type AmbiguousPolicy string

const (
	PolicyAllow AmbiguousPolicy = "allow"
	PolicyDeny  AmbiguousPolicy = "deny"
)

var ErrUnknownPolicy = errors.New("unknown ambiguous device policy")

func ParseAmbiguousPolicy(s string) (AmbiguousPolicy, error) {
	switch p := AmbiguousPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyAllow, PolicyDeny:
		return p, nil
	case "":
		return PolicyAllow, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// DeviceCheck is the outcome of a registry lookup. When Valid is true,
// Pending holds the entry to write once the submission is accepted. A
// fallback caused by a store failure has no Pending entry.
type DeviceCheck struct {
	Valid              bool
	Fallback           bool
	FirstUse           bool
	Reason             types.RejectionReason
	BlockedStudentID   string
	UnauthorizedDevice bool
	Pending            *store.DeviceRecord
}

type DeviceRegistry struct {
	store  store.DeviceStore
	policy AmbiguousPolicy
	now    func() time.Time
	logger *slog.Logger
}

func NewDeviceRegistry(st store.DeviceStore, policy AmbiguousPolicy, logger *slog.Logger) *DeviceRegistry {
	if policy == "" {
		policy = PolicyAllow
	}
	return &DeviceRegistry{
		store:  st,
		policy: policy,
		now:    time.Now,
		logger: logger.With("component", "device_registry"),
	}
}

func (r *DeviceRegistry) Policy() AmbiguousPolicy { return r.policy }

// ValidateStudentDevice checks the device and, when it is accepted, writes
// it through as the student's canonical device.
func (r *DeviceRegistry) ValidateStudentDevice(ctx context.Context, studentID, fp, hw, ip string) (DeviceCheck, error) {
	check, err := r.Check(ctx, studentID, fp, hw, ip)
	if err != nil || !check.Valid {
		return check, err
	}
	return check, r.Commit(ctx, check)
}

// Check looks the device up without writing anything.
func (r *DeviceRegistry) Check(ctx context.Context, studentID, fp, hw, ip string) (DeviceCheck, error) {
	studentID = strings.TrimSpace(studentID)
	pending := &store.DeviceRecord{
		StudentID:         studentID,
		Fingerprint:       strings.TrimSpace(fp),
		HardwareSignature: strings.TrimSpace(hw),
		IP:                strings.TrimSpace(ip),
		RegisteredAt:      r.now().UTC(),
	}

	own, err := r.store.Get(ctx, studentID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return DeviceCheck{Valid: true, FirstUse: true, Pending: pending}, nil
	case err != nil:
		return r.ambiguous(studentID, "registry lookup failed", err, nil)
	case own.Cleared():
		return DeviceCheck{Valid: true, FirstUse: true, Pending: pending}, nil
	}

	if identityMatches(own.HardwareSignature, hw) || identityMatches(own.Fingerprint, fp) {
		return DeviceCheck{Valid: true, Pending: pending}, nil
	}

	all, err := r.store.List(ctx)
	if err != nil {
		return r.ambiguous(studentID, "registry scan failed", err, nil)
	}
	for _, other := range all {
		if other.StudentID == studentID || other.Cleared() {
			continue
		}
		if identityMatches(other.HardwareSignature, hw) || identityMatches(other.Fingerprint, fp) {
			r.logger.Info("device registered to another student",
				"student_id", studentID, "owner", other.StudentID)
			return DeviceCheck{
				Reason:           types.ReasonDeviceBelongsToAnotherStudent,
				BlockedStudentID: other.StudentID,
			}, nil
		}
	}

	return r.ambiguous(studentID, "device matches no registered entry", nil, pending)
}

// Commit writes the pending entry of a passing check, replacing the
// student's previous device. Failed checks write nothing.
func (r *DeviceRegistry) Commit(ctx context.Context, check DeviceCheck) error {
	if !check.Valid || check.Pending == nil {
		return nil
	}
	if err := r.store.Put(ctx, *check.Pending); err != nil {
		return fmt.Errorf("register device for %s: %w", check.Pending.StudentID, err)
	}
	switch {
	case check.FirstUse:
		r.logger.Info("device registered", "student_id", check.Pending.StudentID)
	case check.Fallback:
		r.logger.Info("device re-registered after fallback", "student_id", check.Pending.StudentID)
	}
	return nil
}

// ClearByFingerprint releases every entry whose fingerprint matches fp and
// returns the affected student IDs.
func (r *DeviceRegistry) ClearByFingerprint(ctx context.Context, fp string) ([]string, error) {
	fp = strings.TrimSpace(fp)
	if fp == "" {
		return nil, nil
	}
	return r.store.Clear(ctx, func(rec store.DeviceRecord) bool {
		return identityMatches(rec.Fingerprint, fp)
	})
}

// ambiguous applies the policy. pending is nil when the registry could not
// be read, so an allowed pass then leaves the stored entry alone.
func (r *DeviceRegistry) ambiguous(studentID, why string, cause error, pending *store.DeviceRecord) (DeviceCheck, error) {
	if r.policy == PolicyAllow {
		metrics.PermissiveFallbacks.Inc()
		r.logger.Warn("permissive fallback: allowing device",
			"student_id", studentID, "reason", why, "error", cause)
		return DeviceCheck{Valid: true, Fallback: true, Pending: pending}, nil
	}
	if cause != nil {
		return DeviceCheck{}, fmt.Errorf("%s: %w", why, cause)
	}
	r.logger.Warn("unrecognised device denied", "student_id", studentID)
	return DeviceCheck{
		Reason:             types.ReasonUnauthorizedDevice,
		UnauthorizedDevice: true,
	}, nil
}
