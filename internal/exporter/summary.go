package exporter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"panelrecon/pkg/contracts/domain"
)

// WriteSummaryText writes the plain-text anomaly summary
func WriteSummaryText(path string, cmp domain.Comparison) error {
	return writeFile(path, func(w io.Writer) error {
		return RenderSummaryText(w, cmp)
	})
}

// RenderSummaryText renders totals, overlap and per-ticker tables
func RenderSummaryText(w io.Writer, cmp domain.Comparison) error {
	bw := bufio.NewWriter(w)

	a, b := title(cmp.A.DetectorID), title(cmp.B.DetectorID)
	fmt.Fprintf(bw, "%s total: %d\n", a, cmp.A.Total)
	fmt.Fprintf(bw, "%s total: %d\n", b, cmp.B.Total)
	fmt.Fprintf(bw, "Overlap: %d\n\n", len(cmp.Overlap))

	fmt.Fprintf(bw, "Panel rows: %d\n", cmp.PanelRows)
	fmt.Fprintf(bw, "%s rate: %s%%\n", a, formatFloat(cmp.A.Rate))
	fmt.Fprintf(bw, "%s rate: %s%%\n", b, formatFloat(cmp.B.Rate))
	fmt.Fprintf(bw, "Overlap rate: %s%%\n", formatFloat(cmp.OverlapRate))

	for _, s := range []domain.DetectorSummary{cmp.A, cmp.B} {
		fmt.Fprintf(bw, "\n%s anomalies per ticker:\n", title(s.DetectorID))
		if len(s.Counts) == 0 {
			fmt.Fprintf(bw, "No %s anomalies found.\n", s.DetectorID)
			continue
		}
		for _, c := range s.Counts {
			fmt.Fprintf(bw, "%s: %d\n", c.Ticker, c.Count)
		}
	}

	if len(cmp.OverlapCounts) > 0 {
		fmt.Fprintf(bw, "\nOverlapping anomalies per ticker:\n")
		for _, c := range cmp.OverlapCounts {
			fmt.Fprintf(bw, "%s: %d\n", c.Ticker, c.Count)
		}
	}

	for _, s := range []domain.DetectorSummary{cmp.A, cmp.B} {
		if len(s.Diagnostics) == 0 {
			continue
		}
		fmt.Fprintf(bw, "\n%s diagnostics (%s):\n", title(s.DetectorID), s.Convention)
		for _, kind := range sortedKeys(s.Diagnostics) {
			fmt.Fprintf(bw, "%s: %d\n", kind, s.Diagnostics[kind])
		}
	}

	return bw.Flush()
}

// WriteSummaryJSON writes the full comparison as indented JSON
func WriteSummaryJSON(path string, cmp domain.Comparison) error {
	return writeFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cmp)
	})
}

// WriteAnomaliesCSV writes one detector's canonical anomaly set
func WriteAnomaliesCSV(path string, set []domain.CanonicalAnomaly) error {
	records := make([][]string, len(set))
	for i, a := range set {
		records[i] = []string{
			a.Date.Format(domain.DateLayout),
			a.Ticker,
			formatValue(a.Close),
			a.DetectorID,
		}
	}
	return NewCSVWriter("").WriteCSV(path, WriteOptions{
		Headers: []string{"Date", "Ticker", "Close", "Detector"},
		Records: records,
	})
}

// WriteOverlapCSV writes the overlap set
func WriteOverlapCSV(path string, overlap []domain.OverlapRecord) error {
	records := make([][]string, len(overlap))
	for i, o := range overlap {
		records[i] = []string{o.Date.Format(domain.DateLayout), o.Ticker}
	}
	return NewCSVWriter("").WriteCSV(path, WriteOptions{
		Headers: []string{"Date", "Ticker"},
		Records: records,
	})
}

// WriteTickerCountsCSV writes a per-ticker count table
func WriteTickerCountsCSV(path string, counts []domain.TickerCount) error {
	records := make([][]string, len(counts))
	for i, c := range counts {
		records[i] = []string{c.Ticker, formatInt(c.Count)}
	}
	return NewCSVWriter("").WriteCSV(path, WriteOptions{
		Headers: []string{"Ticker", "Count"},
		Records: records,
	})
}

func writeFile(path string, render func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := render(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
