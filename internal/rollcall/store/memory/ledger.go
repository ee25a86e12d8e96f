package memory

import (
	"context"
	"sync"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/a1"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
)

type cellKey struct {
	col int
	row int
}

// Ledger is a sparse in-memory sheet. It has the same last-write-wins
// semantics as the shared spreadsheet it stands in for.
type Ledger struct {
	mu    sync.RWMutex
	cells map[cellKey]string
}

func NewLedger() *Ledger {
	return &Ledger{cells: make(map[cellKey]string)}
}

// Seed writes rows starting at A1. Test and dev helper.
func (l *Ledger) Seed(rows [][]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.put(0, 1, rows)
}

// Cell returns the value at a single-cell address. Test-only helper.
func (l *Ledger) Cell(addr string) string {
	r, err := a1.Parse(addr)
	if err != nil {
		return ""
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cells[cellKey{r.StartCol, r.StartRow}]
}

func (l *Ledger) GetRange(_ context.Context, rangeSpec string) ([][]string, error) {
	r, err := a1.Parse(rangeSpec)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	last := 0
	for k, v := range l.cells {
		if v != "" && r.Contains(k.col, k.row) && k.row > last {
			last = k.row
		}
	}
	if last == 0 {
		return [][]string{}, nil
	}

	width := r.EndCol - r.StartCol + 1
	out := make([][]string, 0, last-r.StartRow+1)
	for row := r.StartRow; row <= last; row++ {
		line := make([]string, width)
		for c := 0; c < width; c++ {
			line[c] = l.cells[cellKey{r.StartCol + c, row}]
		}
		out = append(out, line)
	}
	return out, nil
}

func (l *Ledger) UpdateRange(_ context.Context, rangeSpec string, values [][]string) error {
	r, err := store.FitRange(rangeSpec, values)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.put(r.StartCol, r.StartRow, values)
	return nil
}

// BatchUpdate validates every range before writing any of them.
func (l *Ledger) BatchUpdate(_ context.Context, updates []store.RangeUpdate) error {
	ranges := make([]a1.Range, len(updates))
	for i, u := range updates {
		r, err := store.FitRange(u.Range, u.Values)
		if err != nil {
			return err
		}
		ranges[i] = r
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, u := range updates {
		l.put(ranges[i].StartCol, ranges[i].StartRow, u.Values)
	}
	return nil
}

func (l *Ledger) put(col, row int, values [][]string) {
	for i, line := range values {
		for j, v := range line {
			k := cellKey{col + j, row + i}
			if v == "" {
				delete(l.cells, k)
				continue
			}
			l.cells[k] = v
		}
	}
}
