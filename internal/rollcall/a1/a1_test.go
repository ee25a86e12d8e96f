package a1_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/a1"
)

func TestColumnLetter(t *testing.T) {
	cases := map[int]string{0: "A", 2: "C", 25: "Z", 26: "AA", 27: "AB", 51: "AZ", 52: "BA", 701: "ZZ", 702: "AAA"}
	for idx, want := range cases {
		assert.Equal(t, want, a1.ColumnLetter(idx), "idx %d", idx)

		back, err := a1.ColumnIndex(want)
		require.NoError(t, err)
		assert.Equal(t, idx, back, "letters %s", want)
	}
}

func TestColumnIndex_Rejects(t *testing.T) {
	for _, bad := range []string{"", "A1", "?"} {
		_, err := a1.ColumnIndex(bad)
		assert.ErrorIs(t, err, a1.ErrBadRange, "input %q", bad)
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want a1.Range
		str  string
	}{
		{"E7", a1.Range{StartCol: 4, StartRow: 7, EndCol: 4, EndRow: 7}, "E7"},
		{"A1:T40", a1.Range{StartCol: 0, StartRow: 1, EndCol: 19, EndRow: 40}, "A1:T40"},
		{"C2:C", a1.Range{StartCol: 2, StartRow: 2, EndCol: 2}, "C2:C"},
		{"A:B", a1.Range{StartCol: 0, StartRow: 1, EndCol: 1}, "A1:B"},
	}
	for _, tc := range cases {
		got, err := a1.Parse(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.str, got.String(), tc.in)
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, bad := range []string{"", "7", "C0", "D5:C5", "C9:C2", "C5:"} {
		_, err := a1.Parse(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestRange_Overlaps(t *testing.T) {
	sheet := a1.MustParse("A1:T")
	column := a1.MustParse("E2:E")
	cell := a1.MustParse("E9")
	other := a1.MustParse("F9")

	assert.True(t, sheet.Overlaps(cell))
	assert.True(t, column.Overlaps(cell))
	assert.True(t, cell.Overlaps(column))
	assert.False(t, column.Overlaps(other))
	assert.False(t, a1.MustParse("A1:B3").Overlaps(a1.MustParse("A4:B9")))
}

func TestRange_Contains(t *testing.T) {
	r := a1.MustParse("C2:D")
	assert.True(t, r.Contains(2, 2))
	assert.True(t, r.Contains(3, 500))
	assert.False(t, r.Contains(2, 1))
	assert.False(t, r.Contains(4, 2))
}
