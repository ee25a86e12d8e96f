package service_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/ledger"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/service"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store/memory"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// hex64 returns a 64-character identity starting with prefix.
func hex64(prefix string) string {
	return prefix + strings.Repeat("0", 64-len(prefix))
}

func fastLedgerConfig() ledger.Config {
	cfg := ledger.DefaultConfig()
	cfg.MinCallInterval = 0
	cfg.Retry = ledger.RetryConfig{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxAttempts: 3}
	return cfg
}

func seedRoster() *memory.Ledger {
	l := memory.NewLedger()
	l.Seed([][]string{
		{"Student ID", "Name"},
		{"150210001", "Ada Lovelace"},
		{"150210002", "Grace Hopper"},
		{"150210003", "Alan Turing"},
	})
	return l
}

// countingLedger wraps a ledger and counts writes. It can also fail every
// read with a fixed error.
type countingLedger struct {
	store.Ledger

	mu      sync.Mutex
	writes  int
	failGet error
}

func (c *countingLedger) GetRange(ctx context.Context, rangeSpec string) ([][]string, error) {
	c.mu.Lock()
	err := c.failGet
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.Ledger.GetRange(ctx, rangeSpec)
}

func (c *countingLedger) UpdateRange(ctx context.Context, rangeSpec string, values [][]string) error {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.Ledger.UpdateRange(ctx, rangeSpec, values)
}

func (c *countingLedger) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func (c *countingLedger) FailReads(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failGet = err
}

type engine struct {
	svc     *service.AttendanceService
	mem     *memory.Ledger
	ledger  *countingLedger
	adapter *ledger.Adapter
	devices *memory.DeviceStore
	daily   *memory.DailyDeviceStore
	events  *memory.DecisionEventStore
	tracker *service.DailyDeviceTracker
}

func newEngine(t *testing.T, policy service.AmbiguousPolicy) *engine {
	t.Helper()
	mem := seedRoster()
	cl := &countingLedger{Ledger: mem}
	adapter, err := ledger.NewAdapter(cl, fastLedgerConfig(), discardLogger())
	require.NoError(t, err)

	devices := memory.NewDeviceStore()
	daily := memory.NewDailyDeviceStore()
	events := memory.NewDecisionEventStore()

	reg := service.NewDeviceRegistry(devices, policy, discardLogger())
	tracker := service.NewDailyDeviceTracker(daily, adapter, service.TrackerConfig{}, discardLogger())
	svc := service.NewAttendanceService(reg, tracker, adapter, events, discardLogger())

	return &engine{
		svc: svc, mem: mem, ledger: cl, adapter: adapter,
		devices: devices, daily: daily, events: events, tracker: tracker,
	}
}

func submission(studentID string, week int, fp, hw, ip string) types.SubmissionRequest {
	return types.SubmissionRequest{
		StudentID:         studentID,
		Week:              week,
		ClientIP:          ip,
		DeviceFingerprint: fp,
		HardwareSignature: hw,
	}
}
