package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrEmptyFile is returned when a file has no header row
var ErrEmptyFile = errors.New("file has no header row")

// Read loads a table, choosing the reader from the file extension
func Read(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(path, "")
	default:
		return ReadCSV(path)
	}
}

// ReadCSV loads a comma-separated file with a header row
func ReadCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	return ParseCSV(path, file)
}

// ParseCSV reads CSV from r. Rows may have differing field counts.
func ParseCSV(source string, r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: %w", source, ErrEmptyFile)
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", source, err)
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", source, err)
		}
		rows = append(rows, record)
	}

	return New(source, header, rows), nil
}

// ReadXLSX loads a worksheet whose first row is the header. An empty sheet
// name selects the first sheet in the workbook.
func ReadXLSX(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s: %w", path, ErrEmptyFile)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s of %s: %w", sheet, path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}

	return New(path, rows[0], rows[1:]), nil
}
