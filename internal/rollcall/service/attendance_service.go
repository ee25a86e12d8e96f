package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/BrandonDHaskell/rollcall/internal/metrics"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/ledger"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/provenance"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/types"
)

// AttendanceService turns one submission into an accept/reject decision.
// Checks run fail-fast in a fixed order: structure, identity format,
// registry, daily tracker, ledger lookup, then the idempotent write.
//
// Rejections are returned as responses. Submit returns an error only when
// a store failed; the response then carries transient_store_error or
// internal_error and nothing was written.
type AttendanceService struct {
	validate   *validator.Validate
	registry   *DeviceRegistry
	tracker    *DailyDeviceTracker
	ledger     *ledger.Adapter
	eventStore store.DecisionEventStore
	now        func() time.Time
	logger     *slog.Logger
}

func NewAttendanceService(
	reg *DeviceRegistry,
	tracker *DailyDeviceTracker,
	adapter *ledger.Adapter,
	es store.DecisionEventStore,
	logger *slog.Logger,
) *AttendanceService {
	return &AttendanceService{
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		registry:   reg,
		tracker:    tracker,
		ledger:     adapter,
		eventStore: es,
		now:        time.Now,
		logger:     logger.With("component", "attendance"),
	}
}

func (s *AttendanceService) Submit(ctx context.Context, req types.SubmissionRequest) (types.SubmissionResponse, error) {
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.ClientIP = strings.TrimSpace(req.ClientIP)
	req.DeviceFingerprint = strings.TrimSpace(req.DeviceFingerprint)
	req.HardwareSignature = strings.TrimSpace(req.HardwareSignature)

	d := s.decide(ctx, req)
	d.resp.ServerTime = s.now().UTC().Format(time.RFC3339Nano)

	s.recordEvent(ctx, req, d)
	metrics.Submissions.WithLabelValues(outcome(d.resp)).Inc()
	if !d.resp.Accepted {
		s.logger.Info("submission rejected",
			"student_id", req.StudentID, "week", req.Week, "reason", d.resp.Reason,
			"blocked_by", d.resp.BlockedStudentID)
	}
	return d.resp, d.err
}

type decision struct {
	resp     types.SubmissionResponse
	err      error
	fallback bool
}

func (s *AttendanceService) decide(ctx context.Context, req types.SubmissionRequest) decision {
	if err := s.validate.Struct(req); err != nil {
		return decision{resp: types.Reject(types.ReasonInvalidInput, invalidInputMessage(err))}
	}

	if !IsValidFingerprint(req.DeviceFingerprint, req.HardwareSignature) {
		return decision{resp: types.Reject(types.ReasonInvalidDeviceIdentity,
			fmt.Sprintf("device fingerprint and hardware signature must be at least %d characters", MinIdentityLength))}
	}

	check, err := s.registry.Check(ctx, req.StudentID, req.DeviceFingerprint, req.HardwareSignature, req.ClientIP)
	if err != nil {
		return s.failed(err)
	}
	if !check.Valid {
		resp := types.Reject(check.Reason, "this device is registered to another student")
		if check.UnauthorizedDevice {
			resp.Error = "this device is not registered for this student"
		}
		resp.BlockedStudentID = check.BlockedStudentID
		resp.UnauthorizedDevice = check.UnauthorizedDevice
		return decision{resp: resp}
	}

	track, err := s.tracker.Track(ctx, req.DeviceFingerprint, req.StudentID, req.ClientIP, req.HardwareSignature)
	if err != nil {
		return s.failed(err)
	}
	if !track.Allowed {
		resp := types.Reject(track.Reason, "this device was already used today by another student")
		resp.BlockedStudentID = track.BlockedStudentID
		return decision{resp: resp, fallback: check.Fallback}
	}

	d := s.writeLedger(ctx, req)
	d.fallback = check.Fallback
	if !d.resp.Accepted {
		s.tracker.Revert(ctx, track)
		return d
	}

	if err := s.registry.Commit(ctx, check); err != nil {
		// The ledger already records the attendance; only the registry is
		// behind.
		s.logger.Warn("device registration failed", "student_id", req.StudentID, "error", err)
	}
	return d
}

func (s *AttendanceService) writeLedger(ctx context.Context, req types.SubmissionRequest) decision {
	ref, err := s.ledger.Locate(ctx, req.StudentID, req.Week)
	switch {
	case errors.Is(err, ledger.ErrStudentNotFound):
		return decision{resp: types.Reject(types.ReasonStudentNotFound, "student not found in the roster")}
	case errors.Is(err, ledger.ErrInvalidWeek):
		return decision{resp: types.Reject(types.ReasonInvalidWeek, "week is outside the semester")}
	case err != nil:
		return s.failed(err)
	}

	current, err := s.ledger.ReadCell(ctx, ref.Range)
	if err != nil {
		return s.failed(err)
	}
	if ledger.IsAlreadyMarked(current) {
		return decision{resp: types.SubmissionResponse{Accepted: true, IsAlreadyAttended: true}}
	}

	err = s.ledger.MarkPresent(ctx, ref, provenance.Cell{
		Present:     true,
		Fingerprint: req.DeviceFingerprint,
		Hardware:    req.HardwareSignature,
		IP:          req.ClientIP,
		Date:        s.now(),
	})
	if err != nil {
		return s.failed(err)
	}
	return decision{resp: types.SubmissionResponse{Accepted: true}}
}

func (s *AttendanceService) failed(err error) decision {
	if errors.Is(err, ledger.ErrTransientStore) {
		return decision{resp: types.Reject(types.ReasonTransientStoreError, "attendance store is busy, please try again later"), err: err}
	}
	return decision{resp: types.Reject(types.ReasonInternalError, "internal error"), err: err}
}

// recordEvent appends the decision to the audit log. A failed audit write
// never changes the decision.
func (s *AttendanceService) recordEvent(ctx context.Context, req types.SubmissionRequest, d decision) {
	if s.eventStore == nil {
		return
	}
	rec := store.DecisionEventRecord{
		StudentID:         req.StudentID,
		Week:              req.Week,
		ClientIP:          req.ClientIP,
		FingerprintPrefix: truncate(req.DeviceFingerprint, provenance.TruncateLen),
		Accepted:          d.resp.Accepted,
		AlreadyAttended:   d.resp.IsAlreadyAttended,
		Reason:            string(d.resp.Reason),
		BlockedStudentID:  d.resp.BlockedStudentID,
		Fallback:          d.fallback,
		DecidedAt:         s.now().UTC(),
	}
	if err := s.eventStore.RecordEvent(ctx, rec); err != nil {
		s.logger.Warn("decision event not recorded", "error", err)
	}
}

func outcome(resp types.SubmissionResponse) string {
	switch {
	case resp.IsAlreadyAttended:
		return "already_attended"
	case resp.Accepted:
		return "accepted"
	default:
		return string(resp.Reason)
	}
}

func invalidInputMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid submission"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldName(fe.Field()))
	case "min", "max":
		return fmt.Sprintf("%s must be between %d and %d", fieldName(fe.Field()), types.MinWeek, types.MaxWeek)
	default:
		return fmt.Sprintf("%s is invalid", fieldName(fe.Field()))
	}
}

func fieldName(f string) string {
	switch f {
	case "StudentID":
		return "student_id"
	case "Week":
		return "week"
	case "DeviceFingerprint":
		return "device_fingerprint"
	case "HardwareSignature":
		return "hardware_signature"
	}
	return strings.ToLower(f)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
