// Package comparison computes per-ticker counts, rates and cross-detector
// overlap from reconciled anomaly sets.
package comparison

import (
	"sort"

	"panelrecon/pkg/contracts/domain"
)

// Input is one detector's reconciled set and its load/reconcile diagnostics
type Input struct {
	DetectorID  string
	Convention  domain.Convention
	Anomalies   []domain.CanonicalAnomaly
	Diagnostics map[string]int
}

// CountsByTicker tallies anomalies per ticker, highest count first and ties
// broken by ticker name.
func CountsByTicker(set []domain.CanonicalAnomaly) []domain.TickerCount {
	counts := make(map[string]int)
	for _, a := range set {
		counts[a.Ticker]++
	}
	return sortedCounts(counts)
}

// TopN returns the first n entries of CountsByTicker
func TopN(set []domain.CanonicalAnomaly, n int) []domain.TickerCount {
	return head(CountsByTicker(set), n)
}

// Overlap returns the keys present in both sets, ordered by (date, ticker).
// It is a hash join and symmetric in its arguments.
func Overlap(a, b []domain.CanonicalAnomaly) []domain.OverlapRecord {
	inA := make(map[domain.Key]struct{}, len(a))
	for _, x := range a {
		inA[x.Key()] = struct{}{}
	}

	emitted := make(map[domain.Key]struct{})
	out := make([]domain.OverlapRecord, 0)
	for _, y := range b {
		k := y.Key()
		if _, ok := inA[k]; !ok {
			continue
		}
		if _, done := emitted[k]; done {
			continue
		}
		emitted[k] = struct{}{}
		out = append(out, domain.OverlapRecord{Ticker: k.Ticker, Date: k.Date})
	}

	sort.Slice(out, func(i, j int) bool {
		return domain.NewKey(out[i].Ticker, out[i].Date).Less(domain.NewKey(out[j].Ticker, out[j].Date))
	})
	return out
}

// OverlapCountsByTicker tallies overlap records per ticker with the
// CountsByTicker ordering
func OverlapCountsByTicker(overlap []domain.OverlapRecord) []domain.TickerCount {
	counts := make(map[string]int)
	for _, o := range overlap {
		counts[o.Ticker]++
	}
	return sortedCounts(counts)
}

// Rate returns 100 * |set| / totalPanelRows, or 0 for an empty panel
func Rate(set []domain.CanonicalAnomaly, totalPanelRows int) float64 {
	return percent(len(set), totalPanelRows)
}

// Compare summarizes two detectors against the same panel. Both rates use
// the panel row count as denominator.
func Compare(panelRows int, a, b Input, topN int) domain.Comparison {
	overlap := Overlap(a.Anomalies, b.Anomalies)

	return domain.Comparison{
		PanelRows:     panelRows,
		A:             summarize(a, panelRows, topN),
		B:             summarize(b, panelRows, topN),
		Overlap:       overlap,
		OverlapCounts: head(OverlapCountsByTicker(overlap), topN),
		OverlapRate:   percent(len(overlap), panelRows),
	}
}

func summarize(in Input, panelRows, topN int) domain.DetectorSummary {
	counts := CountsByTicker(in.Anomalies)
	anomalies := make([]domain.CanonicalAnomaly, len(in.Anomalies))
	copy(anomalies, in.Anomalies)

	return domain.DetectorSummary{
		DetectorID:  in.DetectorID,
		Convention:  in.Convention.String(),
		Total:       len(in.Anomalies),
		Rate:        Rate(in.Anomalies, panelRows),
		Counts:      counts,
		Top:         head(counts, topN),
		Anomalies:   anomalies,
		Diagnostics: in.Diagnostics,
	}
}

func sortedCounts(counts map[string]int) []domain.TickerCount {
	out := make([]domain.TickerCount, 0, len(counts))
	for ticker, n := range counts {
		out = append(out, domain.TickerCount{Ticker: ticker, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}

func head(counts []domain.TickerCount, n int) []domain.TickerCount {
	if n < 0 {
		n = 0
	}
	if n > len(counts) {
		n = len(counts)
	}
	out := make([]domain.TickerCount, n)
	copy(out, counts[:n])
	return out
}

func percent(n, total int) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}
