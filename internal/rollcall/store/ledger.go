package store

import (
	"context"
	"fmt"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/a1"
)

// RangeUpdate is one entry of a batch write. Values are row-major and
// anchored at the top-left cell of Range.
type RangeUpdate struct {
	Range  string
	Values [][]string
}

// Ledger is a columnar attendance sheet addressed in A1 notation.
//
// There are no transactions and no concurrency tokens: concurrent writers
// to the same cell race and the last write wins. Reads are trimmed after the
// last non-empty row; rows inside the grid are padded to the requested width
// with "". Writing "" empties a cell.
type Ledger interface {
	GetRange(ctx context.Context, rangeSpec string) ([][]string, error)
	UpdateRange(ctx context.Context, rangeSpec string, values [][]string) error
	BatchUpdate(ctx context.Context, updates []RangeUpdate) error
}

// FitRange parses rangeSpec and checks that values fit inside it.
func FitRange(rangeSpec string, values [][]string) (a1.Range, error) {
	r, err := a1.Parse(rangeSpec)
	if err != nil {
		return a1.Range{}, err
	}
	width := r.EndCol - r.StartCol + 1
	for _, line := range values {
		if len(line) > width {
			return a1.Range{}, fmt.Errorf("%w: %d values for %d columns in %s", a1.ErrBadRange, len(line), width, rangeSpec)
		}
	}
	if !r.Open() && len(values) > r.EndRow-r.StartRow+1 {
		return a1.Range{}, fmt.Errorf("%w: %d rows for %s", a1.ErrBadRange, len(values), rangeSpec)
	}
	return r, nil
}
