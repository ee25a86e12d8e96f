package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/rollcall/internal/db"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/a1"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
)

// Ledger stores the attendance sheet as sparse cells in ledger_cells.
type Ledger struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewLedger(db *sql.DB, writer *dbpkg.Worker) *Ledger {
	return &Ledger{db: db, writer: writer}
}

func (l *Ledger) GetRange(ctx context.Context, rangeSpec string) ([][]string, error) {
	r, err := a1.Parse(rangeSpec)
	if err != nil {
		return nil, err
	}

	maxRow := r.EndRow
	if r.Open() {
		maxRow = -1
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT row_idx, col_idx, value
FROM ledger_cells
WHERE col_idx BETWEEN ? AND ?
  AND row_idx >= ?
  AND (? < 0 OR row_idx <= ?)
ORDER BY row_idx, col_idx;
`, r.StartCol, r.EndCol, r.StartRow, maxRow, maxRow)
	if err != nil {
		return nil, fmt.Errorf("GetRange query: %w", err)
	}
	defer rows.Close()

	width := r.EndCol - r.StartCol + 1
	out := [][]string{}
	for rows.Next() {
		var row, col int
		var v string
		if err := rows.Scan(&row, &col, &v); err != nil {
			return nil, fmt.Errorf("GetRange scan: %w", err)
		}
		for len(out) <= row-r.StartRow {
			out = append(out, make([]string, width))
		}
		out[row-r.StartRow][col-r.StartCol] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetRange rows: %w", err)
	}
	return out, nil
}

func (l *Ledger) UpdateRange(ctx context.Context, rangeSpec string, values [][]string) error {
	return l.BatchUpdate(ctx, []store.RangeUpdate{{Range: rangeSpec, Values: values}})
}

// BatchUpdate applies every update in one transaction.
func (l *Ledger) BatchUpdate(ctx context.Context, updates []store.RangeUpdate) error {
	ranges := make([]a1.Range, len(updates))
	for i, u := range updates {
		r, err := store.FitRange(u.Range, u.Values)
		if err != nil {
			return err
		}
		ranges[i] = r
	}
	now := time.Now().UTC().UnixMilli()

	return l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for i, u := range updates {
			for dr, line := range u.Values {
				for dc, v := range line {
					row, col := ranges[i].StartRow+dr, ranges[i].StartCol+dc
					if err := putCell(ctx, tx, row, col, v, now); err != nil {
						return fmt.Errorf("BatchUpdate %s: %w", a1.Cell(col, row), err)
					}
				}
			}
		}
		return nil
	})
}

func putCell(ctx context.Context, tx *sql.Tx, row, col int, v string, nowMs int64) error {
	if v == "" {
		_, err := tx.ExecContext(ctx, `DELETE FROM ledger_cells WHERE row_idx = ? AND col_idx = ?;`, row, col)
		return err
	}
	_, err := tx.ExecContext(ctx, `
INSERT INTO ledger_cells(row_idx, col_idx, value, updated_at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT(row_idx, col_idx) DO UPDATE SET
  value = excluded.value,
  updated_at_ms = excluded.updated_at_ms;
`, row, col, v, nowMs)
	return err
}
