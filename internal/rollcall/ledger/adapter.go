// Package ledger adapts the shared attendance sheet to the decision engine:
// student rows, week columns, provenance cells, retries and read caching.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/a1"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/provenance"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/store"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/types"
)

var (
	ErrStudentNotFound = errors.New("ledger: student not found")
	ErrInvalidWeek     = errors.New("ledger: invalid week")
)

// Sheet layout: column A holds the student ID, column B the name, and one
// column per week starts at FirstWeekColumn.
const (
	idColumn   = 0
	nameColumn = 1
)

type Config struct {
	FirstWeekColumn string
	HeaderRows      int
	CacheTTL        time.Duration
	MinCallInterval time.Duration
	Retry           RetryConfig
	MaskIP          bool
}

func DefaultConfig() Config {
	return Config{
		FirstWeekColumn: "C",
		HeaderRows:      1,
		CacheTTL:        60 * time.Second,
		MinCallInterval: 100 * time.Millisecond,
		Retry:           DefaultRetryConfig(),
	}
}

// CellRef addresses one student's cell for one week.
type CellRef struct {
	StudentID string
	Row       int
	Week      int
	Range     string
}

// MarkedCell is a present cell found while scanning the sheet.
type MarkedCell struct {
	CellRef
	Cell provenance.Cell
}

type Adapter struct {
	ledger    store.Ledger
	cfg       Config
	firstWeek int
	retrier   *Retrier
	limiter   *rate.Limiter
	cache     *rangeCache
	logger    *slog.Logger
}

func NewAdapter(l store.Ledger, cfg Config, logger *slog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.FirstWeekColumn) == "" {
		cfg.FirstWeekColumn = DefaultConfig().FirstWeekColumn
	}
	first, err := a1.ColumnIndex(cfg.FirstWeekColumn)
	if err != nil {
		return nil, fmt.Errorf("first week column: %w", err)
	}
	if first <= nameColumn {
		return nil, fmt.Errorf("first week column %s overlaps the roster columns", cfg.FirstWeekColumn)
	}
	if cfg.HeaderRows < 0 {
		cfg.HeaderRows = 0
	}

	limit := rate.Inf
	if cfg.MinCallInterval > 0 {
		limit = rate.Every(cfg.MinCallInterval)
	}

	logger = logger.With("component", "ledger")
	return &Adapter{
		ledger:    l,
		cfg:       cfg,
		firstWeek: first,
		retrier:   NewRetrier(cfg.Retry, logger),
		limiter:   rate.NewLimiter(limit, 1),
		cache:     newRangeCache(cfg.CacheTTL, time.Now),
		logger:    logger,
	}, nil
}

// sheetRange covers the roster columns and every week column.
func (a *Adapter) sheetRange() a1.Range {
	return a1.Range{StartCol: idColumn, StartRow: 1, EndCol: a.firstWeek + types.MaxWeek - 1}
}

// call spaces ledger calls globally and retries transient failures.
func (a *Adapter) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return a.retrier.Do(ctx, op, func(ctx context.Context) error {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		return fn(ctx)
	})
}

// Sheet returns the whole attendance grid, served from the TTL cache when
// possible. Row i of the result is sheet row i+1.
func (a *Adapter) Sheet(ctx context.Context) ([][]string, error) {
	rng := a.sheetRange()
	return a.cache.get(ctx, rng, func(ctx context.Context) ([][]string, error) {
		var rows [][]string
		err := a.call(ctx, "get_range", func(ctx context.Context) error {
			var err error
			rows, err = a.ledger.GetRange(ctx, rng.String())
			return err
		})
		return rows, err
	})
}

// FindStudentRow returns the index into rows of the student's row.
// Header rows are skipped.
func (a *Adapter) FindStudentRow(rows [][]string, studentID string) (int, error) {
	studentID = strings.TrimSpace(studentID)
	for i := a.cfg.HeaderRows; i < len(rows); i++ {
		if len(rows[i]) > idColumn && strings.TrimSpace(rows[i][idColumn]) == studentID {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrStudentNotFound, studentID)
}

// WeekColumn returns the zero-based column index of week.
func (a *Adapter) WeekColumn(week int) (int, error) {
	if week < types.MinWeek || week > types.MaxWeek {
		return 0, fmt.Errorf("%w: %d", ErrInvalidWeek, week)
	}
	return a.firstWeek + week - 1, nil
}

// CellRange returns the A1 address of a (one-based) sheet row and week.
func (a *Adapter) CellRange(row, week int) (string, error) {
	col, err := a.WeekColumn(week)
	if err != nil {
		return "", err
	}
	if row < 1 {
		return "", fmt.Errorf("ledger: row %d out of range", row)
	}
	return a1.Cell(col, row), nil
}

// Locate finds the cell for studentID and week.
func (a *Adapter) Locate(ctx context.Context, studentID string, week int) (CellRef, error) {
	if _, err := a.WeekColumn(week); err != nil {
		return CellRef{}, err
	}
	rows, err := a.Sheet(ctx)
	if err != nil {
		return CellRef{}, err
	}
	idx, err := a.FindStudentRow(rows, studentID)
	if err != nil {
		return CellRef{}, err
	}
	rng, err := a.CellRange(idx+1, week)
	if err != nil {
		return CellRef{}, err
	}
	return CellRef{StudentID: strings.TrimSpace(studentID), Row: idx + 1, Week: week, Range: rng}, nil
}

// ReadCell reads a single cell directly from the ledger, bypassing the
// cache.
func (a *Adapter) ReadCell(ctx context.Context, rangeSpec string) (string, error) {
	var rows [][]string
	err := a.call(ctx, "read_cell", func(ctx context.Context) error {
		var err error
		rows, err = a.ledger.GetRange(ctx, rangeSpec)
		return err
	})
	if err != nil {
		return "", err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return "", nil
	}
	return rows[0][0], nil
}

func (a *Adapter) WriteCell(ctx context.Context, rangeSpec, value string) error {
	rng, err := a1.Parse(rangeSpec)
	if err != nil {
		return err
	}
	err = a.call(ctx, "update_range", func(ctx context.Context) error {
		return a.ledger.UpdateRange(ctx, rangeSpec, [][]string{{value}})
	})
	a.cache.invalidate(rng)
	return err
}

func (a *Adapter) BatchWrite(ctx context.Context, updates []store.RangeUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	ranges := make([]a1.Range, 0, len(updates))
	for _, u := range updates {
		rng, err := a1.Parse(u.Range)
		if err != nil {
			return err
		}
		ranges = append(ranges, rng)
	}
	err := a.call(ctx, "batch_update", func(ctx context.Context) error {
		return a.ledger.BatchUpdate(ctx, updates)
	})
	for _, rng := range ranges {
		a.cache.invalidate(rng)
	}
	return err
}

// IsAlreadyMarked reports whether a cell value records attendance.
func IsAlreadyMarked(cellValue string) bool {
	return provenance.IsMarked(cellValue)
}

// MarkPresent writes a provenance-tagged present cell.
func (a *Adapter) MarkPresent(ctx context.Context, ref CellRef, cell provenance.Cell) error {
	if a.cfg.MaskIP {
		cell.IP = provenance.MaskIP(cell.IP)
	}
	return a.WriteCell(ctx, ref.Range, provenance.Encode(cell))
}

// MarkedCells decodes every present cell in the week columns.
func (a *Adapter) MarkedCells(ctx context.Context) ([]MarkedCell, error) {
	rows, err := a.Sheet(ctx)
	if err != nil {
		return nil, err
	}
	var out []MarkedCell
	for i := a.cfg.HeaderRows; i < len(rows); i++ {
		row := rows[i]
		if len(row) <= idColumn {
			continue
		}
		studentID := strings.TrimSpace(row[idColumn])
		for week := types.MinWeek; week <= types.MaxWeek; week++ {
			col := a.firstWeek + week - 1
			if col >= len(row) || !provenance.IsMarked(row[col]) {
				continue
			}
			out = append(out, MarkedCell{
				CellRef: CellRef{StudentID: studentID, Row: i + 1, Week: week, Range: a1.Cell(col, i+1)},
				Cell:    provenance.Decode(row[col]),
			})
		}
	}
	return out, nil
}

// FilledCells returns the addresses of every non-empty cell in a week's
// column, read directly from the ledger.
func (a *Adapter) FilledCells(ctx context.Context, week int) ([]string, error) {
	col, err := a.WeekColumn(week)
	if err != nil {
		return nil, err
	}
	first := a.cfg.HeaderRows + 1
	rng := a1.Range{StartCol: col, StartRow: first, EndCol: col}

	var rows [][]string
	err = a.call(ctx, "get_range", func(ctx context.Context) error {
		var err error
		rows, err = a.ledger.GetRange(ctx, rng.String())
		return err
	})
	if err != nil {
		return nil, err
	}
	var out []string
	for i, r := range rows {
		if len(r) > 0 && strings.TrimSpace(r[0]) != "" {
			out = append(out, a1.Cell(col, first+i))
		}
	}
	return out, nil
}

// Students returns the roster rows of the sheet.
func (a *Adapter) Students(ctx context.Context) ([]types.Student, error) {
	rows, err := a.Sheet(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.Student
	for i := a.cfg.HeaderRows; i < len(rows); i++ {
		row := rows[i]
		if len(row) <= idColumn || strings.TrimSpace(row[idColumn]) == "" {
			continue
		}
		s := types.Student{StudentID: strings.TrimSpace(row[idColumn])}
		if len(row) > nameColumn {
			s.StudentName = strings.TrimSpace(row[nameColumn])
		}
		out = append(out, s)
	}
	return out, nil
}
