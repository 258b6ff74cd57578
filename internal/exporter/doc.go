// Package exporter persists the feature panel and comparison results.
//
// CSVWriter is the shared CSV primitive with optional streaming. WritePanel
// writes the panel as CSV, XLSX or Parquet depending on the file extension.
// WriteSummaryText reproduces the plain-text anomaly summary, and
// WriteSummaryJSON writes the full Comparison for machine consumers.
//
// Example usage:
//
//	if err := exporter.WritePanel("data/features.csv", panel); err != nil {
//		return err
//	}
//	err := exporter.WriteSummaryText("output/anomaly_summary.txt", cmp)
package exporter
