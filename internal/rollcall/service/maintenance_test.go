package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/service"
)

func TestMaintenance_ClearDeviceAllowsReRegistration(t *testing.T) {
	e := newEngine(t, service.PolicyDeny)
	m := service.NewMaintenanceService(
		service.NewDeviceRegistry(e.devices, service.PolicyDeny, discardLogger()),
		e.tracker, discardLogger())
	ctx := context.Background()
	oldFP, oldHW := hex64("01d1"), hex64("01d2")

	resp, err := e.svc.Submit(ctx, submission("150210001", 1, oldFP, oldHW, "10.0.0.5"))
	require.NoError(t, err)
	require.True(t, resp.Accepted)

	resp, err = e.svc.Submit(ctx, submission("150210001", 2, hex64("ne01"), hex64("ne02"), "10.0.0.5"))
	require.NoError(t, err)
	require.True(t, resp.UnauthorizedDevice, "new phone is refused before clearing")

	cleared, err := m.ClearDevice(ctx, oldFP)
	require.NoError(t, err)
	assert.True(t, cleared)

	resp, err = e.svc.Submit(ctx, submission("150210001", 2, hex64("ne01"), hex64("ne02"), "10.0.0.5"))
	require.NoError(t, err)
	assert.True(t, resp.Accepted)

	cleared, err = m.ClearDevice(ctx, hex64("nobody"))
	require.NoError(t, err)
	assert.False(t, cleared)
}
