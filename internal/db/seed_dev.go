package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DevRoster is the sample class used by dev databases: a header row, then
// student ID and name columns.
var DevRoster = [][]string{
	{"Student ID", "Name"},
	{"150210001", "Ada Lovelace"},
	{"150210002", "Grace Hopper"},
	{"150210003", "Alan Turing"},
	{"150210004", "Barbara Liskov"},
	{"150210005", "Edsger Dijkstra"},
}

// SeedRoster writes rows into the ledger from A1 without overwriting cells
// that already hold a value. Empty values are skipped.
func SeedRoster(ctx context.Context, db *sql.DB, rows [][]string) (int, error) {
	now := time.Now().UTC().UnixMilli()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("seed roster: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	n := 0
	for i, row := range rows {
		for col, v := range row {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			res, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO ledger_cells(row_idx, col_idx, value, updated_at_ms)
VALUES (?, ?, ?, ?);`, i+1, col, v, now)
			if err != nil {
				return 0, fmt.Errorf("seed roster cell (%d,%d): %w", i+1, col, err)
			}
			if k, _ := res.RowsAffected(); k > 0 {
				n++
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("seed roster: commit: %w", err)
	}
	return n, nil
}
