// Package a1 converts between sheet-style A1 addresses and zero-based
// column indexes / one-based row numbers.
package a1

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrBadRange = errors.New("a1: malformed range")

// Range is an inclusive rectangle. Columns are zero-based, rows one-based.
// EndRow == 0 means the range is open towards the bottom of the sheet.
type Range struct {
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// ColumnLetter returns the letters for a zero-based column index
// (0 -> "A", 25 -> "Z", 26 -> "AA").
func ColumnLetter(idx int) string {
	if idx < 0 {
		return ""
	}
	var b []byte
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// ColumnIndex is the inverse of ColumnLetter.
func ColumnIndex(letters string) (int, error) {
	letters = strings.ToUpper(strings.TrimSpace(letters))
	if letters == "" {
		return 0, fmt.Errorf("%w: empty column", ErrBadRange)
	}
	n := 0
	for _, r := range letters {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("%w: column %q", ErrBadRange, letters)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1, nil
}

// Cell formats a single-cell address such as "E7".
func Cell(col, row int) string {
	return ColumnLetter(col) + strconv.Itoa(row)
}

// Parse accepts "C5", "C5:F9", "C2:C" and "A:T".
func Parse(s string) (Range, error) {
	s = strings.TrimSpace(s)
	start, end, isSpan := strings.Cut(s, ":")

	c1, r1, err := parseRef(start)
	if err != nil {
		return Range{}, err
	}
	if !isSpan {
		if r1 == 0 {
			return Range{StartCol: c1, StartRow: 1, EndCol: c1}, nil
		}
		return Range{StartCol: c1, StartRow: r1, EndCol: c1, EndRow: r1}, nil
	}

	c2, r2, err := parseRef(end)
	if err != nil {
		return Range{}, err
	}
	if r1 == 0 {
		r1 = 1
	}
	if c2 < c1 || (r2 != 0 && r2 < r1) {
		return Range{}, fmt.Errorf("%w: %q is inverted", ErrBadRange, s)
	}
	return Range{StartCol: c1, StartRow: r1, EndCol: c2, EndRow: r2}, nil
}

// MustParse is Parse for compile-time constant ranges.
func MustParse(s string) Range {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

func parseRef(ref string) (col, row int, err error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	i := 0
	for i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z' {
		i++
	}
	if i == 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadRange, ref)
	}
	col, err = ColumnIndex(ref[:i])
	if err != nil {
		return 0, 0, err
	}
	if i == len(ref) {
		return col, 0, nil
	}
	row, err = strconv.Atoi(ref[i:])
	if err != nil || row < 1 {
		return 0, 0, fmt.Errorf("%w: row in %q", ErrBadRange, ref)
	}
	return col, row, nil
}

// Open reports whether the range has no bottom bound.
func (r Range) Open() bool { return r.EndRow == 0 }

func (r Range) Contains(col, row int) bool {
	if col < r.StartCol || col > r.EndCol || row < r.StartRow {
		return false
	}
	return r.Open() || row <= r.EndRow
}

func (r Range) Overlaps(o Range) bool {
	if r.EndCol < o.StartCol || o.EndCol < r.StartCol {
		return false
	}
	if !r.Open() && r.EndRow < o.StartRow {
		return false
	}
	if !o.Open() && o.EndRow < r.StartRow {
		return false
	}
	return true
}

func (r Range) String() string {
	if r.StartCol == r.EndCol && r.StartRow == r.EndRow {
		return Cell(r.StartCol, r.StartRow)
	}
	start := Cell(r.StartCol, r.StartRow)
	if r.Open() {
		return start + ":" + ColumnLetter(r.EndCol)
	}
	return start + ":" + Cell(r.EndCol, r.EndRow)
}
