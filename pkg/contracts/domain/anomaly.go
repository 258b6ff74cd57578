package domain

import (
	"fmt"
	"time"
)

// Convention names the row-addressing scheme a detector used for its output
type Convention int

const (
	// ConventionUnknown means the detector output matched no addressing scheme
	ConventionUnknown Convention = iota
	// ConventionExplicitKey addresses rows by (ticker, date[, close])
	ConventionExplicitKey
	// ConventionAbsoluteOffset addresses rows by offset into the whole (date, ticker)-sorted panel
	ConventionAbsoluteOffset
	// ConventionPerTickerOffset addresses rows by offset into one ticker's date-sorted rows
	ConventionPerTickerOffset
)

// String returns the string representation of the convention
func (c Convention) String() string {
	switch c {
	case ConventionExplicitKey:
		return "explicit_key"
	case ConventionAbsoluteOffset:
		return "absolute_offset"
	case ConventionPerTickerOffset:
		return "per_ticker_offset"
	default:
		return "unknown"
	}
}

// Address is the tagged variant carried by an AnomalyRecord.
// The concrete types are ExplicitKey, AbsoluteOffset and PerTickerOffset.
type Address interface {
	Convention() Convention
	fmt.Stringer
	sealed()
}

// ExplicitKey carries a canonical key, optionally with the close price the detector saw
type ExplicitKey struct {
	Ticker   string
	Date     time.Time
	Close    float64
	HasClose bool
}

func (ExplicitKey) Convention() Convention { return ConventionExplicitKey }
func (a ExplicitKey) String() string       { return NewKey(a.Ticker, a.Date).String() }
func (ExplicitKey) sealed()                {}

// AbsoluteOffset is a 0-based offset into the full panel in (date, ticker) order
type AbsoluteOffset struct {
	Index int
}

func (AbsoluteOffset) Convention() Convention { return ConventionAbsoluteOffset }
func (a AbsoluteOffset) String() string       { return fmt.Sprintf("index=%d", a.Index) }
func (AbsoluteOffset) sealed()                {}

// PerTickerOffset is a 0-based offset into one ticker's date-ascending panel rows
type PerTickerOffset struct {
	Ticker string
	Index  int
}

func (PerTickerOffset) Convention() Convention { return ConventionPerTickerOffset }
func (a PerTickerOffset) String() string       { return fmt.Sprintf("%s[%d]", a.Ticker, a.Index) }
func (PerTickerOffset) sealed()                {}

// AnomalyRecord is a flagged detector row awaiting reconciliation
type AnomalyRecord struct {
	DetectorID string  `json:"detector_id"`
	SourceRow  int     `json:"source_row"` // 1-based line in the detector file, header is line 1
	Address    Address `json:"-"`
}

// CanonicalAnomaly is a detector flag resolved to an existing Panel row
type CanonicalAnomaly struct {
	Ticker     string    `json:"ticker"`
	Date       time.Time `json:"date"`
	Close      float64   `json:"close"`
	DetectorID string    `json:"detector_id"`
}

// Key returns the canonical key of the anomaly
func (a CanonicalAnomaly) Key() Key {
	return NewKey(a.Ticker, a.Date)
}

// OverlapRecord is a key flagged by both compared detectors
type OverlapRecord struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"`
}

// TickerCount is a per-ticker anomaly tally
type TickerCount struct {
	Ticker string `json:"ticker"`
	Count  int    `json:"count"`
}
