package features

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "panelrecon/internal/errors"
	"panelrecon/internal/shared/testutil"
	"panelrecon/internal/tabular"
)

func TestLoadBarsTable(t *testing.T) {
	table := tabular.New("bars.csv",
		[]string{"Date", "Open", "High", "Low", "Close", "Volume", "Ticker", "Dividends"},
		[][]string{
			{"2024-01-02", "10", "11", "9", "10.5", "1000", "AAPL", "0"},
			{"2024-01-03 00:00:00", "10", "11", "9", "10.7", "1100", "AAPL", "0"},
			{"bad-date", "10", "11", "9", "10.7", "1100", "AAPL", "0"},
			{"2024-01-04", "10", "11", "9", "", "1100", "AAPL", "0"},
		})

	bars, err := LoadBarsTable(table, nil)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, "AAPL", bars[1].Ticker)
	assert.Equal(t, 10.7, bars[1].Close)
	assert.Equal(t, 11.0, bars[1].High)
	assert.Equal(t, "2024-01-03", bars[1].Date.Format("2006-01-02"))
}

func TestLoadBarsTable_LogsSkippedRows(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	table := tabular.New("bars.csv",
		[]string{"Date", "Close", "Volume", "Ticker"},
		[][]string{
			{"2024-01-02", "10.5", "1000", "AAPL"},
			{"bad-date", "10.7", "1100", "AAPL"},
			{"2024-01-04", "", "1100", "AAPL"},
		})

	bars, err := LoadBarsTable(table, logger)
	require.NoError(t, err)
	require.Len(t, bars, 1)

	assert.Equal(t, 3, logs.Count(slog.LevelWarn), "one warning per bad row plus the summary")
	rec, ok := logs.Find(slog.LevelWarn, "bars skipped while loading")
	require.True(t, ok)
	assert.Equal(t, int64(2), rec.Attrs["skipped"])
	assert.Equal(t, "bars.csv", rec.Attrs["source"])
}

func TestLoadPanelTable_LogsIncompleteRows(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	table := tabular.New("features.csv",
		[]string{"Date", "Ticker", "Close", "Volume", "Daily Return", "Volatility", "Volume Z-Score"},
		[][]string{
			{"2024-01-02", "AAPL", "180", "1000", "", "", ""},
			{"2024-02-01", "AAPL", "180", "1000", "-0.01", "0.03", "-0.5"},
		})

	panel, err := LoadPanelTable(table, logger)
	require.NoError(t, err)
	assert.Equal(t, 1, panel.Len())

	_, ok := logs.Find(slog.LevelDebug, "panel row skipped")
	assert.True(t, ok)
	rec, ok := logs.Find(slog.LevelWarn, "incomplete panel rows skipped")
	require.True(t, ok)
	assert.Equal(t, int64(1), rec.Attrs["skipped"])
}

func TestLoadBarsTable_MissingColumn(t *testing.T) {
	table := tabular.New("bars.csv", []string{"Date", "Close", "Volume"}, nil)

	_, err := LoadBarsTable(table, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeSchema))
}

func TestLoadBars_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stock_data.csv")
	content := "Date,Open,High,Low,Close,Volume,Ticker\n2024-01-02,1,1,1,1,100,MSFT\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	bars, err := LoadBars(path, nil)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "MSFT", bars[0].Ticker)

	_, err = LoadBars(filepath.Join(t.TempDir(), "missing.csv"), nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
}

func TestLoadPanelTable(t *testing.T) {
	table := tabular.New("features.csv",
		[]string{"", "Date", "Ticker", "Close", "Volume", "Daily Return", "Volatility", "Volume Z-Score"},
		[][]string{
			{"41", "2024-02-01", "MSFT", "400", "2000", "0.01", "0.02", "1.5"},
			{"20", "2024-02-01", "AAPL", "180", "1000", "-0.01", "0.03", "-0.5"},
			{"0", "2024-01-02", "AAPL", "180", "1000", "", "", ""},
		})

	panel, err := LoadPanelTable(table, nil)
	require.NoError(t, err)
	require.Equal(t, 2, panel.Len())

	row, ok := panel.Row(0)
	require.True(t, ok)
	assert.Equal(t, "AAPL", row.Ticker)
	assert.Equal(t, -0.5, row.VolumeZScore)
}

func TestLoadPanelTable_MissingFeature(t *testing.T) {
	table := tabular.New("features.csv", []string{"Date", "Ticker", "Close", "Volume", "Daily Return"}, nil)

	_, err := LoadPanelTable(table, nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeSchema))
}
