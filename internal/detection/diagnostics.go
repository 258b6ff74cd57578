package detection

import (
	"fmt"
	"sort"
)

// Diagnostic kinds. Every recovered record- or input-scope problem is
// reported as exactly one of these.
const (
	KindEmptyInput    = "empty_input"
	KindSchema        = "schema"
	KindInvalidFlag   = "invalid_flag"
	KindInvalidDate   = "invalid_date"
	KindInvalidIndex  = "invalid_index"
	KindInvalidClose  = "invalid_close"
	KindMissingTicker = "missing_ticker"
	KindUnresolvable  = "unresolvable_index"
	KindDuplicateFlag = "duplicate_flag"
	KindCloseMismatch = "close_mismatch"
)

// Diagnostic describes one recovered problem in a detector's output
type Diagnostic struct {
	Kind       string `json:"kind"`
	DetectorID string `json:"detector_id"`
	Row        int    `json:"row,omitempty"` // 1-based source line, 0 for input-scope problems
	Message    string `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Row > 0 {
		return fmt.Sprintf("%s %s line %d: %s", d.DetectorID, d.Kind, d.Row, d.Message)
	}
	return fmt.Sprintf("%s %s: %s", d.DetectorID, d.Kind, d.Message)
}

// Diagnostics is an ordered list of diagnostics
type Diagnostics []Diagnostic

// Add appends a diagnostic
func (d *Diagnostics) Add(kind, detectorID string, row int, format string, args ...any) {
	*d = append(*d, Diagnostic{
		Kind:       kind,
		DetectorID: detectorID,
		Row:        row,
		Message:    fmt.Sprintf(format, args...),
	})
}

// Count returns how many diagnostics have the given kind
func (d Diagnostics) Count(kind string) int {
	n := 0
	for _, diag := range d {
		if diag.Kind == kind {
			n++
		}
	}
	return n
}

// Counts tallies diagnostics by kind
func (d Diagnostics) Counts() map[string]int {
	counts := make(map[string]int)
	for _, diag := range d {
		counts[diag.Kind]++
	}
	return counts
}

// Kinds returns the distinct kinds present, sorted
func (d Diagnostics) Kinds() []string {
	counts := d.Counts()
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
