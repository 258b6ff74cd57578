// Package tabular reads row-oriented CSV and XLSX files into a header-indexed
// Table shared by the bar, panel and detector loaders.
package tabular

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Table is a header plus raw string rows. Column lookups ignore case,
// whitespace, underscores and hyphens, so "Volume Z-Score" and
// "volume_zscore" name the same column.
type Table struct {
	Source string
	Header []string
	Rows   [][]string

	index map[string]int
}

// New builds a Table and indexes its header. The first occurrence of a
// column name wins.
func New(source string, header []string, rows [][]string) *Table {
	t := &Table{
		Source: source,
		Header: header,
		Rows:   rows,
		index:  make(map[string]int, len(header)),
	}
	for i, name := range header {
		key := normalizeName(name)
		if key == "" {
			continue
		}
		if _, exists := t.index[key]; !exists {
			t.index[key] = i
		}
	}
	return t
}

// Len returns the number of data rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Column returns the position of the first matching column among names
func (t *Table) Column(names ...string) (int, bool) {
	if t == nil {
		return -1, false
	}
	for _, name := range names {
		if i, ok := t.index[normalizeName(name)]; ok {
			return i, true
		}
	}
	return -1, false
}

// HasColumn reports whether any of names is present
func (t *Table) HasColumn(names ...string) bool {
	_, ok := t.Column(names...)
	return ok
}

// Cell returns the trimmed value at col, or "" when the row is short
func Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// LineNumber maps a data row position to its 1-based line in the source file
func LineNumber(rowIndex int) int {
	return rowIndex + 2
}

func normalizeName(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch r {
		case ' ', '_', '-', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var dateFormats = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
}

// ParseDate parses the date formats seen in bar, panel and detector files
// and truncates the result to its calendar day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateFormats {
		if d, err := time.Parse(layout, s); err == nil {
			y, m, day := d.Date()
			return time.Date(y, m, day, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}

// ParseFloat parses a finite float
func ParseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

// ParseIndex parses a non-negative integer offset. Integral floats such
// as "5.0" are accepted because spreadsheet tools write them.
func ParseIndex(s string) (int, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.Atoi(s); err == nil {
		if i < 0 {
			return 0, fmt.Errorf("negative index %d", i)
		}
		return i, nil
	}
	f, err := ParseFloat(s)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	if f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	if f < 0 {
		return 0, fmt.Errorf("negative index %q", s)
	}
	return int(f), nil
}

// ParseFlag reports whether a flag cell is truthy: any nonzero number, or a
// boolean word such as true/false.
func ParseFlag(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, fmt.Errorf("empty flag")
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) {
			return false, fmt.Errorf("invalid flag %q", s)
		}
		return f != 0, nil
	}
	b, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return false, fmt.Errorf("invalid flag %q", s)
	}
	return b, nil
}
