package domain

import (
	"time"
)

// DateLayout is the canonical on-disk date format for bars, panels and detector files
const DateLayout = "2006-01-02"

// RawBar represents a single daily OHLCV bar for a ticker as delivered by the data fetcher
type RawBar struct {
	Ticker string    `json:"ticker" validate:"required"`
	Date   time.Time `json:"date" validate:"required"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume" validate:"min=0"`
}

// Key returns the canonical (ticker, date) key of the bar
func (b RawBar) Key() Key {
	return NewKey(b.Ticker, b.Date)
}

// Key is the canonical (ticker, date) pair that identifies a Panel row.
// Dates are normalized to midnight UTC so keys compare with ==.
type Key struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"`
}

// NewKey builds a normalized key
func NewKey(ticker string, date time.Time) Key {
	return Key{Ticker: ticker, Date: NormalizeDate(date)}
}

// String renders the key as TICKER@YYYY-MM-DD
func (k Key) String() string {
	return k.Ticker + "@" + k.Date.Format(DateLayout)
}

// Less orders keys by (date, ticker), the global Panel order
func (k Key) Less(other Key) bool {
	if !k.Date.Equal(other.Date) {
		return k.Date.Before(other.Date)
	}
	return k.Ticker < other.Ticker
}

// NormalizeDate truncates a timestamp to its calendar day in UTC
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
