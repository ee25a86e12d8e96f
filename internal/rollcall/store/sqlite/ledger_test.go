package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/rollcall/internal/db"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store/sqlite"
)

func newTestLedger(t *testing.T) *sqlite.Ledger {
	t.Helper()
	conn := openTestDB(t)
	_, err := db.SeedRoster(context.Background(), conn, [][]string{
		{"ID", "Name", "W1"},
		{"1001", "Ada"},
		{"1002", "Grace", "VAR"},
	})
	require.NoError(t, err)
	return sqlite.NewLedger(conn, newTestWriter(t, conn))
}

func TestLedger_GetRangeTrimsAndPads(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	rows, err := l.GetRange(ctx, "A1:D")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"1001", "Ada", "", ""}, rows[1])
	assert.Equal(t, []string{"1002", "Grace", "VAR", ""}, rows[2])

	col, err := l.GetRange(ctx, "C2:C")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{""}, {"VAR"}}, col)

	bounded, err := l.GetRange(ctx, "A1:B2")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"ID", "Name"}, {"1001", "Ada"}}, bounded)

	empty, err := l.GetRange(ctx, "F1:F")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLedger_UpdateRangeLastWriteWinsAndEmptyDeletes(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.UpdateRange(ctx, "D2", [][]string{{"VAR (DF:aaaaaaaa)"}}))
	require.NoError(t, l.UpdateRange(ctx, "D2", [][]string{{"VAR (DF:bbbbbbbb)"}}))
	got, err := l.GetRange(ctx, "D2")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"VAR (DF:bbbbbbbb)"}}, got)

	require.NoError(t, l.UpdateRange(ctx, "D2", [][]string{{""}}))
	got, err = l.GetRange(ctx, "D2")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLedger_BatchUpdateValidatesFirst(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	err := l.BatchUpdate(ctx, []store.RangeUpdate{
		{Range: "C2", Values: [][]string{{"VAR"}}},
		{Range: "C3", Values: [][]string{{"too", "wide"}}},
	})
	assert.Error(t, err)

	got, err := l.GetRange(ctx, "C2")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, l.BatchUpdate(ctx, []store.RangeUpdate{
		{Range: "C2", Values: [][]string{{"VAR"}}},
		{Range: "C3", Values: [][]string{{""}}},
	}))
	col, err := l.GetRange(ctx, "C2:C")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"VAR"}}, col)
}
