package domain

// DetectorSummary holds one detector's reconciled output and its statistics
type DetectorSummary struct {
	DetectorID  string             `json:"detector_id"`
	Convention  string             `json:"convention"`
	Total       int                `json:"total"`
	Rate        float64            `json:"rate_percent"`
	Counts      []TickerCount      `json:"counts_by_ticker"`
	Top         []TickerCount      `json:"top_tickers"`
	Anomalies   []CanonicalAnomaly `json:"anomalies"`
	Diagnostics map[string]int     `json:"diagnostics,omitempty"`
}

// Comparison is the in-memory result handed to reporting
type Comparison struct {
	PanelRows     int             `json:"panel_rows"`
	A             DetectorSummary `json:"a"`
	B             DetectorSummary `json:"b"`
	Overlap       []OverlapRecord `json:"overlap"`
	OverlapCounts []TickerCount   `json:"overlap_by_ticker"`
	OverlapRate   float64         `json:"overlap_rate_percent"`
}

// Detector returns the summary for a detector ID
func (c *Comparison) Detector(id string) (DetectorSummary, bool) {
	switch id {
	case c.A.DetectorID:
		return c.A, true
	case c.B.DetectorID:
		return c.B, true
	}
	return DetectorSummary{}, false
}
