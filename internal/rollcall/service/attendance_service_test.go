package service_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/geo"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/ledger"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/provenance"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/service"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/types"
)

// ── scenario ─────────────────────────────────────────────────────────────────

func TestSubmit_ConcreteScenario(t *testing.T) {
	e := newEngine(t, service.PolicyAllow)
	ctx := context.Background()

	classroom := types.LatLng{Lat: 41.015137, Lng: 28.979530}
	student := classroom
	require.Zero(t, geo.DistanceKm(student, classroom))
	require.True(t, geo.WithinRadius(student, classroom, geo.DefaultMaxDistanceKm))

	fp := hex64("3fa9c2e18b7d")
	hw := hex64("7e1d0c9b8a6f")
	resp, err := e.svc.Submit(ctx, submission("150210001", 5, fp, hw, "10.0.0.5"))
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.False(t, resp.IsAlreadyAttended)
	assert.Empty(t, resp.Reason)
	assert.NotEmpty(t, resp.ServerTime)

	// Row 2 is 150210001; week 5 lives in column G.
	cell := e.mem.Cell("G2")
	assert.True(t, strings.HasPrefix(cell, "VAR"), "cell = %q", cell)
	decoded := provenance.Decode(cell)
	assert.Equal(t, fp[:8], decoded.Fingerprint)
	assert.Equal(t, hw[:8], decoded.Hardware)
	assert.Equal(t, "10.0.0.5", decoded.IP)

	rec, err := e.devices.Get(ctx, "150210001")
	require.NoError(t, err)
	assert.Equal(t, fp, rec.Fingerprint)
}

// ── idempotence ──────────────────────────────────────────────────────────────

func TestSubmit_SecondSubmissionIsAlreadyAttendedWithoutWrite(t *testing.T) {
	e := newEngine(t, service.PolicyAllow)
	ctx := context.Background()
	req := submission("150210002", 3, hex64("aa01"), hex64("bb01"), "10.0.0.5")

	first, err := e.svc.Submit(ctx, req)
	require.NoError(t, err)
	require.True(t, first.Accepted)
	require.False(t, first.IsAlreadyAttended)
	assert.Equal(t, 1, e.ledger.Writes())

	second, err := e.svc.Submit(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Accepted)
	assert.True(t, second.IsAlreadyAttended)
	assert.Equal(t, 1, e.ledger.Writes(), "no second ledger write")
}

func TestSubmit_ManuallyMarkedCellCountsAsAttended(t *testing.T) {
	e := newEngine(t, service.PolicyAllow)
	require.NoError(t, e.mem.UpdateRange(context.Background(), "C3", [][]string{{"VAR"}}))

	resp, err := e.svc.Submit(context.Background(), submission("150210002", 1, hex64("aa01"), hex64("bb01"), "10.0.0.5"))
	require.NoError(t, err)
	assert.True(t, resp.IsAlreadyAttended)
	assert.Zero(t, e.ledger.Writes())
}

// ── validation ───────────────────────────────────────────────────────────────

func TestSubmit_StructuralValidation(t *testing.T) {
	e := newEngine(t, service.PolicyAllow)
	fp, hw := hex64("aa"), hex64("bb")

	tests := []struct {
		name string
		req  types.SubmissionRequest
		want types.RejectionReason
	}{
		{"missing student", submission(" ", 5, fp, hw, "10.0.0.5"), types.ReasonInvalidInput},
		{"missing week", submission("150210001", 0, fp, hw, "10.0.0.5"), types.ReasonInvalidInput},
		{"week too large", submission("150210001", 17, fp, hw, "10.0.0.5"), types.ReasonInvalidInput},
		{"negative week", submission("150210001", -1, fp, hw, "10.0.0.5"), types.ReasonInvalidInput},
		{"missing fingerprint", submission("150210001", 5, "", hw, "10.0.0.5"), types.ReasonInvalidInput},
		{"short fingerprint", submission("150210001", 5, fp[:31], hw, "10.0.0.5"), types.ReasonInvalidDeviceIdentity},
		{"short hardware", submission("150210001", 5, fp, hw[:31], "10.0.0.5"), types.ReasonInvalidDeviceIdentity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := e.svc.Submit(context.Background(), tc.req)
			require.NoError(t, err)
			assert.False(t, resp.Accepted)
			assert.Equal(t, tc.want, resp.Reason)
			assert.NotEmpty(t, resp.Error)
		})
	}
	assert.Zero(t, e.ledger.Writes())
}

// ── device checks ────────────────────────────────────────────────────────────

func TestSubmit_SameDeviceSecondStudentBlocked(t *testing.T) {
	e := newEngine(t, service.PolicyAllow)
	ctx := context.Background()
	fp, hw := hex64("5eed01"), hex64("5eed02")

	resp, err := e.svc.Submit(ctx, submission("150210001", 5, fp, hw, "10.0.0.5"))
	require.NoError(t, err)
	require.True(t, resp.Accepted)

	resp, err = e.svc.Submit(ctx, submission("150210002", 5, fp, hw, "10.0.0.5"))
	require.NoError(t, err)
	assert.False(t, resp.Accepted)
	assert.Equal(t, types.ReasonDeviceAlreadyUsedToday, resp.Reason)
	assert.Equal(t, "150210001", resp.BlockedStudentID)
	assert.Empty(t, e.mem.Cell("G3"))
}

func TestSubmit_LedgerBlocksAfterLocalRecordsAreLost(t *testing.T) {
	e := newEngine(t, service.PolicyAllow)
	ctx := context.Background()
	fp, hw := hex64("5eed01"), hex64("5eed02")

	_, err := e.svc.Submit(ctx, submission("150210001", 5, fp, hw, "10.0.0.5"))
	require.NoError(t, err)

	// Simulate a restart: the local records are gone, the ledger is not.
	_, err = e.daily.EvictFingerprint(ctx, fp)
	require.NoError(t, err)

	resp, err := e.svc.Submit(ctx, submission("150210003", 5, fp, hw, "10.0.0.5"))
	require.NoError(t, err)
	assert.False(t, resp.Accepted)
	assert.Equal(t, "150210001", resp.BlockedStudentID)
}

func TestSubmit_DifferentDevicesSameDayBothAccepted(t *testing.T) {
	e := newEngine(t, service.PolicyAllow)
	ctx := context.Background()

	a, err := e.svc.Submit(ctx, submission("150210001", 5, hex64("a1"), hex64("a2"), "10.0.0.5"))
	require.NoError(t, err)
	b, err := e.svc.Submit(ctx, submission("150210002", 5, hex64("b1"), hex64("b2"), "10.0.0.6"))
	require.NoError(t, err)

	assert.True(t, a.Accepted)
	assert.True(t, b.Accepted)
}

func TestSubmit_DeviceBelongsToAnotherStudent(t *testing.T) {
	e := newEngine(t, service.PolicyAllow)
	ctx := context.Background()
	require.NoError(t, e.devices.Put(ctx, store.DeviceRecord{StudentID: "150210001", Fingerprint: hex64("01"), HardwareSignature: hex64("02")}))
	require.NoError(t, e.devices.Put(ctx, store.DeviceRecord{StudentID: "150210002", Fingerprint: hex64("03"), HardwareSignature: hex64("04")}))

	resp, err := e.svc.Submit(ctx, submission("150210001", 5, hex64("99"), hex64("04"), "10.0.0.5"))
	require.NoError(t, err)
	assert.False(t, resp.Accepted)
	assert.Equal(t, types.ReasonDeviceBelongsToAnotherStudent, resp.Reason)
	assert.Equal(t, "150210002", resp.BlockedStudentID)
}

func TestSubmit_UnknownDeviceUnderDenyPolicy(t *testing.T) {
	e := newEngine(t, service.PolicyDeny)
	ctx := context.Background()
	require.NoError(t, e.devices.Put(ctx, store.DeviceRecord{StudentID: "150210001", Fingerprint: hex64("01"), HardwareSignature: hex64("02")}))

	resp, err := e.svc.Submit(ctx, submission("150210001", 5, hex64("77"), hex64("88"), "10.0.0.5"))
	require.NoError(t, err)
	assert.False(t, resp.Accepted)
	assert.True(t, resp.UnauthorizedDevice)
}

func TestSubmit_FallbackIsAuditedDistinctly(t *testing.T) {
	e := newEngine(t, service.PolicyAllow)
	ctx := context.Background()
	require.NoError(t, e.devices.Put(ctx, store.DeviceRecord{StudentID: "150210001", Fingerprint: hex64("01"), HardwareSignature: hex64("02")}))

	resp, err := e.svc.Submit(ctx, submission("150210001", 5, hex64("77"), hex64("88"), "10.0.0.5"))
	require.NoError(t, err)
	assert.True(t, resp.Accepted)

	events := e.events.Events()
	require.Len(t, events, 1)
	assert.True(t, events[0].Accepted)
	assert.True(t, events[0].Fallback)
	assert.Equal(t, hex64("77")[:8], events[0].FingerprintPrefix)

	rec, err := e.devices.Get(ctx, "150210001")
	require.NoError(t, err)
	assert.Equal(t, hex64("77"), rec.Fingerprint, "accepted fallback device replaces the old one")
	assert.Equal(t, hex64("88"), rec.HardwareSignature)
}

// ── ledger lookup ────────────────────────────────────────────────────────────

func TestSubmit_StudentNotFoundRevertsDailyBinding(t *testing.T) {
	e := newEngine(t, service.PolicyAllow)
	ctx := context.Background()
	fp, hw := hex64("5eed01"), hex64("5eed02")

	resp, err := e.svc.Submit(ctx, submission("999999999", 5, fp, hw, "10.0.0.5"))
	require.NoError(t, err)
	assert.False(t, resp.Accepted)
	assert.Equal(t, types.ReasonStudentNotFound, resp.Reason)

	_, err = e.devices.Get(ctx, "999999999")
	assert.ErrorIs(t, err, store.ErrNotFound, "unknown student is not registered")

	resp, err = e.svc.Submit(ctx, submission("150210001", 5, fp, hw, "10.0.0.5"))
	require.NoError(t, err)
	assert.True(t, resp.Accepted, "the failed attempt must not block the device")
}

func TestSubmit_TransientStoreErrorSurfaces(t *testing.T) {
	e := newEngine(t, service.PolicyAllow)
	e.ledger.FailReads(&store.StatusError{Code: http.StatusTooManyRequests})

	resp, err := e.svc.Submit(context.Background(), submission("150210001", 5, hex64("aa"), hex64("bb"), "10.0.0.5"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrTransientStore)
	assert.False(t, resp.Accepted)
	assert.Equal(t, types.ReasonTransientStoreError, resp.Reason)
	assert.Zero(t, e.ledger.Writes())

	events := e.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, string(types.ReasonTransientStoreError), events[0].Reason)
}

func TestSubmit_RecordsEveryDecision(t *testing.T) {
	e := newEngine(t, service.PolicyAllow)
	ctx := context.Background()

	_, _ = e.svc.Submit(ctx, submission("150210001", 5, hex64("aa"), hex64("bb"), "10.0.0.5"))
	_, _ = e.svc.Submit(ctx, submission("150210001", 5, hex64("aa"), hex64("bb"), "10.0.0.5"))
	_, _ = e.svc.Submit(ctx, submission("150210001", 99, hex64("aa"), hex64("bb"), "10.0.0.5"))

	events := e.events.Events()
	require.Len(t, events, 3)
	assert.True(t, events[0].Accepted)
	assert.False(t, events[0].AlreadyAttended)
	assert.True(t, events[1].AlreadyAttended)
	assert.False(t, events[2].Accepted)
	assert.Equal(t, string(types.ReasonInvalidInput), events[2].Reason)
	assert.Equal(t, "10.0.0.5", events[0].ClientIP)
	assert.False(t, events[0].DecidedAt.IsZero())
}
