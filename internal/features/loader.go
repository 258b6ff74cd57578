package features

import (
	"fmt"
	"log/slog"

	apperrors "panelrecon/internal/errors"
	"panelrecon/internal/tabular"
	"panelrecon/pkg/contracts/domain"
)

var (
	tickerColumns = []string{"Ticker", "Symbol"}
	dateColumns   = []string{"Date"}
)

func loaderLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// LoadBars reads raw OHLCV bars from a CSV or XLSX file. A nil logger
// means slog.Default.
func LoadBars(path string, logger *slog.Logger) ([]domain.RawBar, error) {
	table, err := tabular.Read(path)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read bars", err).WithContext("path", path)
	}
	return LoadBarsTable(table, logger)
}

// LoadBarsTable converts a table into bars. Date, Ticker, Close and Volume
// are required; Open, High and Low are read when present. Unparseable rows
// are logged and skipped.
func LoadBarsTable(table *tabular.Table, logger *slog.Logger) ([]domain.RawBar, error) {
	logger = loaderLogger(logger)
	dateCol, tickerCol, err := keyColumns(table)
	if err != nil {
		return nil, err
	}
	closeCol, ok := table.Column("Close")
	if !ok {
		return nil, missingColumn(table, "Close")
	}
	volumeCol, ok := table.Column("Volume")
	if !ok {
		return nil, missingColumn(table, "Volume")
	}
	openCol, _ := table.Column("Open")
	highCol, _ := table.Column("High")
	lowCol, _ := table.Column("Low")

	bars := make([]domain.RawBar, 0, table.Len())
	skipped := 0
	for i, row := range table.Rows {
		bar, err := parseBar(row, dateCol, tickerCol, closeCol, volumeCol)
		if err != nil {
			skipped++
			logger.Warn("failed to parse bar",
				"source", table.Source,
				"line", tabular.LineNumber(i),
				"error", err)
			continue
		}
		bar.Open = optionalFloat(row, openCol)
		bar.High = optionalFloat(row, highCol)
		bar.Low = optionalFloat(row, lowCol)
		bars = append(bars, bar)
	}

	if skipped > 0 {
		logger.Warn("bars skipped while loading", "source", table.Source, "skipped", skipped)
	}
	return bars, nil
}

func parseBar(row []string, dateCol, tickerCol, closeCol, volumeCol int) (domain.RawBar, error) {
	ticker := tabular.Cell(row, tickerCol)
	if ticker == "" {
		return domain.RawBar{}, fmt.Errorf("empty ticker")
	}
	date, err := tabular.ParseDate(tabular.Cell(row, dateCol))
	if err != nil {
		return domain.RawBar{}, err
	}
	closePrice, err := tabular.ParseFloat(tabular.Cell(row, closeCol))
	if err != nil {
		return domain.RawBar{}, fmt.Errorf("parse close: %w", err)
	}
	volume, err := tabular.ParseFloat(tabular.Cell(row, volumeCol))
	if err != nil {
		return domain.RawBar{}, fmt.Errorf("parse volume: %w", err)
	}

	return domain.RawBar{
		Ticker: ticker,
		Date:   date,
		Close:  closePrice,
		Volume: volume,
	}, nil
}

func optionalFloat(row []string, col int) float64 {
	if col < 0 {
		return 0
	}
	v, err := tabular.ParseFloat(tabular.Cell(row, col))
	if err != nil {
		return 0
	}
	return v
}

// LoadPanel reads a previously written feature panel file
func LoadPanel(path string, logger *slog.Logger) (*domain.Panel, error) {
	table, err := tabular.Read(path)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read panel", err).WithContext("path", path)
	}
	return LoadPanelTable(table, logger)
}

// LoadPanelTable converts a table with the panel output columns into a
// Panel. Rows with any missing feature are skipped, so the result never
// contains warm-up rows.
func LoadPanelTable(table *tabular.Table, logger *slog.Logger) (*domain.Panel, error) {
	logger = loaderLogger(logger)
	dateCol, tickerCol, err := keyColumns(table)
	if err != nil {
		return nil, err
	}

	cols := make(map[string]int)
	for _, name := range []string{"Close", "Volume", "Daily Return", "Volatility", "Volume Z-Score"} {
		col, ok := table.Column(name)
		if !ok {
			return nil, missingColumn(table, name)
		}
		cols[name] = col
	}

	rows := make([]domain.PanelRow, 0, table.Len())
	skipped := 0
	for i, raw := range table.Rows {
		row, err := parsePanelRow(raw, dateCol, tickerCol, cols)
		if err != nil {
			skipped++
			logger.Debug("panel row skipped",
				"source", table.Source,
				"line", tabular.LineNumber(i),
				"error", err)
			continue
		}
		rows = append(rows, row)
	}

	if skipped > 0 {
		logger.Warn("incomplete panel rows skipped", "source", table.Source, "skipped", skipped)
	}
	return domain.NewPanel(rows), nil
}

func parsePanelRow(raw []string, dateCol, tickerCol int, cols map[string]int) (domain.PanelRow, error) {
	ticker := tabular.Cell(raw, tickerCol)
	if ticker == "" {
		return domain.PanelRow{}, fmt.Errorf("empty ticker")
	}
	date, err := tabular.ParseDate(tabular.Cell(raw, dateCol))
	if err != nil {
		return domain.PanelRow{}, err
	}

	values := make(map[string]float64, len(cols))
	for name, col := range cols {
		v, err := tabular.ParseFloat(tabular.Cell(raw, col))
		if err != nil {
			return domain.PanelRow{}, fmt.Errorf("parse %s: %w", name, err)
		}
		values[name] = v
	}

	return domain.PanelRow{
		Ticker:       ticker,
		Date:         date,
		Close:        values["Close"],
		Volume:       values["Volume"],
		DailyReturn:  values["Daily Return"],
		Volatility:   values["Volatility"],
		VolumeZScore: values["Volume Z-Score"],
	}, nil
}

func keyColumns(table *tabular.Table) (dateCol, tickerCol int, err error) {
	dateCol, ok := table.Column(dateColumns...)
	if !ok {
		return -1, -1, missingColumn(table, "Date")
	}
	tickerCol, ok = table.Column(tickerColumns...)
	if !ok {
		return -1, -1, missingColumn(table, "Ticker")
	}
	return dateCol, tickerCol, nil
}

func missingColumn(table *tabular.Table, name string) error {
	return apperrors.NewSchemaError(fmt.Sprintf("missing required column %q", name)).
		WithContext("source", table.Source)
}
