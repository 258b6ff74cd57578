package exporter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"github.com/xuri/excelize/v2"

	"panelrecon/pkg/contracts/domain"
)

// PanelHeaders is the column order of every tabular panel output
var PanelHeaders = []string{"Date", "Ticker", "Close", "Volume", "Daily Return", "Volatility", "Volume Z-Score"}

// PanelSheet is the worksheet name used for XLSX panels
const PanelSheet = "Features"

// WritePanel writes the panel in (date, ticker) order, choosing the format
// from the extension: .xlsx, .parquet, anything else is CSV.
func WritePanel(path string, panel *domain.Panel) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return WritePanelXLSX(path, panel)
	case ".parquet":
		return WritePanelParquet(path, panel)
	default:
		return WritePanelCSV(path, panel)
	}
}

func panelRecord(row domain.PanelRow) []string {
	return []string{
		row.Date.Format(domain.DateLayout),
		row.Ticker,
		formatValue(row.Close),
		formatValue(row.Volume),
		formatValue(row.DailyReturn),
		formatValue(row.Volatility),
		formatValue(row.VolumeZScore),
	}
}

// WritePanelCSV streams the panel to a CSV file
func WritePanelCSV(path string, panel *domain.Panel) error {
	sw, err := NewCSVWriter("").CreateStreamWriter(path, PanelHeaders)
	if err != nil {
		return err
	}

	var writeErr error
	panel.Each(func(i int, row domain.PanelRow) {
		if writeErr != nil {
			return
		}
		if err := sw.WriteRecord(panelRecord(row)); err != nil {
			writeErr = fmt.Errorf("failed to write panel row %d: %w", i, err)
		}
	})
	if writeErr != nil {
		sw.Abort()
		return writeErr
	}
	return sw.Close()
}

// WritePanelXLSX writes the panel to a single worksheet using the excelize
// stream writer
func WritePanelXLSX(path string, panel *domain.Panel) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", PanelSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(PanelSheet)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	header := make([]interface{}, len(PanelHeaders))
	for i, h := range PanelHeaders {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	var writeErr error
	panel.Each(func(i int, row domain.PanelRow) {
		if writeErr != nil {
			return
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			writeErr = err
			return
		}
		writeErr = sw.SetRow(cell, []interface{}{
			row.Date.Format(domain.DateLayout),
			row.Ticker,
			row.Close,
			row.Volume,
			row.DailyReturn,
			row.Volatility,
			row.VolumeZScore,
		})
	})
	if writeErr != nil {
		return fmt.Errorf("failed to write panel rows: %w", writeErr)
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	return f.SaveAs(path)
}

type panelParquetRow struct {
	Date         int32   `parquet:"name=date, type=INT32, convertedtype=DATE"`
	Ticker       string  `parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8"`
	Close        float64 `parquet:"name=close, type=DOUBLE"`
	Volume       float64 `parquet:"name=volume, type=DOUBLE"`
	DailyReturn  float64 `parquet:"name=daily_return, type=DOUBLE"`
	Volatility   float64 `parquet:"name=volatility, type=DOUBLE"`
	VolumeZScore float64 `parquet:"name=volume_zscore, type=DOUBLE"`
}

const secondsPerDay = 24 * 60 * 60

// WritePanelParquet writes the panel as a snappy-compressed Parquet file
// with dates stored as days since the Unix epoch
func WritePanelParquet(path string, panel *domain.Panel) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(panelParquetRow), 1)
	if err != nil {
		return fmt.Errorf("new parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	var writeErr error
	panel.Each(func(i int, row domain.PanelRow) {
		if writeErr != nil {
			return
		}
		rec := panelParquetRow{
			Date:         int32(row.Date.Unix() / secondsPerDay),
			Ticker:       row.Ticker,
			Close:        row.Close,
			Volume:       row.Volume,
			DailyReturn:  row.DailyReturn,
			Volatility:   row.Volatility,
			VolumeZScore: row.VolumeZScore,
		}
		if err := pw.Write(rec); err != nil {
			writeErr = fmt.Errorf("write panel row %d: %w", i, err)
		}
	})
	if writeErr != nil {
		pw.WriteStop()
		return writeErr
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize panel parquet: %w", err)
	}
	return nil
}
