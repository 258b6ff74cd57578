package domain

import (
	"sort"
	"time"
)

// PanelRow is one fully warmed-up row of the feature panel
type PanelRow struct {
	Ticker       string    `json:"ticker"`
	Date         time.Time `json:"date"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
	DailyReturn  float64   `json:"daily_return"`
	Volatility   float64   `json:"volatility"`
	VolumeZScore float64   `json:"volume_zscore"`
}

// Key returns the canonical key of the row
func (r PanelRow) Key() Key {
	return NewKey(r.Ticker, r.Date)
}

// Panel is the immutable per-(ticker, date) feature table produced once per run.
// Rows are held in ascending (date, ticker) order.
type Panel struct {
	rows []PanelRow
}

// NewPanel copies rows, normalizes their dates and orders them by (date, ticker).
// It does not reject duplicate keys; callers that depend on key uniqueness
// check DuplicateKeys before use.
func NewPanel(rows []PanelRow) *Panel {
	sorted := make([]PanelRow, len(rows))
	copy(sorted, rows)
	for i := range sorted {
		sorted[i].Date = NormalizeDate(sorted[i].Date)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Key().Less(sorted[j].Key())
	})

	return &Panel{rows: sorted}
}

// Len returns the total number of panel rows
func (p *Panel) Len() int {
	if p == nil {
		return 0
	}
	return len(p.rows)
}

// Row returns the row at the given absolute offset
func (p *Panel) Row(i int) (PanelRow, bool) {
	if p == nil || i < 0 || i >= len(p.rows) {
		return PanelRow{}, false
	}
	return p.rows[i], true
}

// Rows returns a copy of all rows in (date, ticker) order
func (p *Panel) Rows() []PanelRow {
	if p == nil {
		return nil
	}
	out := make([]PanelRow, len(p.rows))
	copy(out, p.rows)
	return out
}

// Each calls fn for every row in order without copying the table
func (p *Panel) Each(fn func(i int, row PanelRow)) {
	if p == nil {
		return
	}
	for i, row := range p.rows {
		fn(i, row)
	}
}

// Tickers returns the distinct tickers in ascending order
func (p *Panel) Tickers() []string {
	seen := make(map[string]struct{})
	p.Each(func(_ int, row PanelRow) {
		seen[row.Ticker] = struct{}{}
	})

	tickers := make([]string, 0, len(seen))
	for t := range seen {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// RowsPerTicker counts panel rows for each ticker
func (p *Panel) RowsPerTicker() map[string]int {
	counts := make(map[string]int)
	p.Each(func(_ int, row PanelRow) {
		counts[row.Ticker]++
	})
	return counts
}

// DuplicateKeys returns every key that occurs more than once, in panel order
func (p *Panel) DuplicateKeys() []Key {
	seen := make(map[Key]int)
	var dups []Key
	p.Each(func(_ int, row PanelRow) {
		k := row.Key()
		seen[k]++
		if seen[k] == 2 {
			dups = append(dups, k)
		}
	})
	return dups
}

// DateRange returns the first and last date covered by the panel
func (p *Panel) DateRange() (start, end time.Time, ok bool) {
	if p.Len() == 0 {
		return time.Time{}, time.Time{}, false
	}
	return p.rows[0].Date, p.rows[len(p.rows)-1].Date, true
}
