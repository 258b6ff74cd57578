package exporter

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"panelrecon/internal/features"
	"panelrecon/pkg/contracts/domain"
)

var day0 = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func samplePanel() *domain.Panel {
	return domain.NewPanel([]domain.PanelRow{
		{Ticker: "MSFT", Date: day0, Close: 410.25, Volume: 2e6, DailyReturn: 0.0123456789, Volatility: 0.02, VolumeZScore: -1.5},
		{Ticker: "AAPL", Date: day0, Close: 190.1, Volume: 5e6, DailyReturn: -0.001, Volatility: 0.015, VolumeZScore: 0.3},
		{Ticker: "AAPL", Date: day0.AddDate(0, 0, 1), Close: 191.3, Volume: 4.5e6, DailyReturn: 0.0063, Volatility: 0.014, VolumeZScore: 2.25},
	})
}

func sampleComparison() domain.Comparison {
	return domain.Comparison{
		PanelRows: 200,
		A: domain.DetectorSummary{
			DetectorID: "sliding",
			Convention: "explicit_key",
			Total:      3,
			Rate:       1.5,
			Counts:     []domain.TickerCount{{Ticker: "AAPL", Count: 2}, {Ticker: "MSFT", Count: 1}},
			Diagnostics: map[string]int{
				"unresolvable_index": 2,
				"close_mismatch":     1,
			},
		},
		B: domain.DetectorSummary{
			DetectorID: "heap",
			Convention: "unknown",
			Diagnostics: map[string]int{
				"empty_input": 1,
			},
		},
		Overlap:       []domain.OverlapRecord{},
		OverlapCounts: []domain.TickerCount{},
	}
}

func TestWritePanel_CSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "features.csv")
	panel := samplePanel()

	require.NoError(t, WritePanel(path, panel))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Date,Ticker,Close,Volume,Daily Return,Volatility,Volume Z-Score", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2024-06-03,AAPL,190.1,"))

	loaded, err := features.LoadPanel(path, nil)
	require.NoError(t, err)
	assert.Equal(t, panel.Rows(), loaded.Rows())
}

func TestWritePanel_XLSXRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.xlsx")
	panel := samplePanel()

	require.NoError(t, WritePanel(path, panel))

	loaded, err := features.LoadPanel(path, nil)
	require.NoError(t, err)
	require.Equal(t, panel.Len(), loaded.Len())
	for i, want := range panel.Rows() {
		got, _ := loaded.Row(i)
		assert.Equal(t, want.Key(), got.Key())
		assert.InDelta(t, want.VolumeZScore, got.VolumeZScore, 1e-9)
	}
}

func TestWritePanel_Parquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.parquet")
	require.NoError(t, WritePanel(path, samplePanel()))

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(panelParquetRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	require.Equal(t, int64(3), pr.GetNumRows())
	rows := make([]panelParquetRow, 3)
	require.NoError(t, pr.Read(&rows))

	assert.Equal(t, "AAPL", rows[0].Ticker)
	assert.Equal(t, int32(day0.Unix()/secondsPerDay), rows[0].Date)
	assert.Equal(t, "MSFT", rows[1].Ticker)
	assert.Equal(t, 2.25, rows[2].VolumeZScore)
}

func TestRenderSummaryText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderSummaryText(&buf, sampleComparison()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "Sliding total: 3\nHeap total: 0\nOverlap: 0\n\n"))
	assert.Contains(t, out, "Sliding rate: 1.50%")
	assert.Contains(t, out, "Sliding anomalies per ticker:\nAAPL: 2\nMSFT: 1\n")
	assert.Contains(t, out, "Heap anomalies per ticker:\nNo heap anomalies found.\n")
	assert.Contains(t, out, "Sliding diagnostics (explicit_key):\nclose_mismatch: 1\nunresolvable_index: 2\n")
	assert.Contains(t, out, "Heap diagnostics (unknown):\nempty_input: 1\n")
	assert.NotContains(t, out, "Overlapping anomalies per ticker")
}

func TestWriteSummaryJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "anomaly_summary.json")
	require.NoError(t, WriteSummaryJSON(path, sampleComparison()))

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded domain.Comparison
	require.NoError(t, json.Unmarshal(content, &decoded))
	assert.Equal(t, 200, decoded.PanelRows)
	assert.Equal(t, "sliding", decoded.A.DetectorID)
	assert.Equal(t, 2, decoded.A.Diagnostics["unresolvable_index"])
}

func TestWriteAnomaliesAndOverlapCSV(t *testing.T) {
	dir := t.TempDir()

	set := []domain.CanonicalAnomaly{{Ticker: "AAPL", Date: day0, Close: 190.1, DetectorID: "heap"}}
	require.NoError(t, WriteAnomaliesCSV(filepath.Join(dir, "heap_canonical.csv"), set))
	require.NoError(t, WriteOverlapCSV(filepath.Join(dir, "overlap.csv"), []domain.OverlapRecord{{Ticker: "AAPL", Date: day0}}))
	require.NoError(t, WriteTickerCountsCSV(filepath.Join(dir, "counts.csv"), []domain.TickerCount{{Ticker: "AAPL", Count: 4}}))

	content, err := os.ReadFile(filepath.Join(dir, "heap_canonical.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Date,Ticker,Close,Detector\n2024-06-03,AAPL,190.1,heap\n", string(content))

	content, err = os.ReadFile(filepath.Join(dir, "overlap.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Date,Ticker\n2024-06-03,AAPL\n", string(content))

	content, err = os.ReadFile(filepath.Join(dir, "counts.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Ticker,Count\nAAPL,4\n", string(content))
}

func TestCSVWriter_AppendAndStream(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir)

	require.NoError(t, w.WriteCSV("log.csv", WriteOptions{Headers: []string{"a"}, Records: [][]string{{"1"}}, BOMPrefix: true}))
	require.NoError(t, w.WriteCSV("log.csv", WriteOptions{Records: [][]string{{"2"}}, Append: true}))

	content, err := os.ReadFile(filepath.Join(dir, "log.csv"))
	require.NoError(t, err)
	assert.Equal(t, "\xEF\xBB\xBFa\n1\n2\n", string(content))

	sw, err := w.CreateStreamWriter("nested/stream.csv", []string{"x", "y"})
	require.NoError(t, err)
	require.NoError(t, sw.WriteRecord([]string{"1", "2"}))
	require.NoError(t, sw.Close())

	content, err = os.ReadFile(filepath.Join(dir, "nested", "stream.csv"))
	require.NoError(t, err)
	assert.Equal(t, "x,y\n1,2\n", string(content))
}

func TestStreamWriter_AbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()

	sw, err := NewCSVWriter(dir).CreateStreamWriter("partial.csv", []string{"x"})
	require.NoError(t, err)
	require.NoError(t, sw.WriteRecord([]string{"1"}))
	sw.Abort()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
