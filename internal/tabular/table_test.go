package tabular

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestTable_ColumnLookup(t *testing.T) {
	table := New("mem", []string{"", "Date", "Volume Z-Score", "Ticker", "ticker"}, nil)

	col, ok := table.Column("volume_zscore")
	require.True(t, ok)
	assert.Equal(t, 2, col)

	col, ok = table.Column("TICKER")
	require.True(t, ok)
	assert.Equal(t, 3, col, "first occurrence wins")

	_, ok = table.Column("")
	assert.False(t, ok, "unnamed columns are never matched")

	col, ok = table.Column("Symbol", "Date")
	require.True(t, ok)
	assert.Equal(t, 1, col)

	assert.False(t, table.HasColumn("index"))
}

func TestCell(t *testing.T) {
	row := []string{" a ", "b"}
	assert.Equal(t, "a", Cell(row, 0))
	assert.Equal(t, "", Cell(row, 5))
	assert.Equal(t, "", Cell(row, -1))
}

func TestParseCSV(t *testing.T) {
	input := "\ufeffDate,Ticker,Close\n2024-01-02,AAPL,185.5\n2024-01-03,AAPL\n"

	table, err := ParseCSV("mem.csv", strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 2, table.Len())
	assert.True(t, table.HasColumn("date"), "byte order mark is ignored")
	assert.Equal(t, []string{"2024-01-03", "AAPL"}, table.Rows[1])
}

func TestParseCSV_Empty(t *testing.T) {
	_, err := ParseCSV("empty.csv", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestRead_DispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "bars.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("index,Anomaly\n3,1\n"), 0o644))

	xlsxPath := filepath.Join(dir, "bars.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"index", "Anomaly"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{3, 1}))
	require.NoError(t, f.SaveAs(xlsxPath))
	require.NoError(t, f.Close())

	for _, path := range []string{csvPath, xlsxPath} {
		table, err := Read(path)
		require.NoError(t, err, path)
		require.Equal(t, 1, table.Len(), path)

		col, ok := table.Column("index")
		require.True(t, ok)
		assert.Equal(t, "3", Cell(table.Rows[0], col), path)
	}
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	for _, in := range []string{
		"2024-01-02",
		"2024-01-02 00:00:00",
		"2024-01-02 00:00:00-05:00",
		"2024-01-02T09:30:00Z",
		"01/02/2024",
	} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
	}

	_, err := ParseDate("not a date")
	assert.Error(t, err)
	_, err = ParseDate("")
	assert.Error(t, err)
}

func TestParseIndex(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"5", 5, false},
		{" 0 ", 0, false},
		{"7.0", 7, false},
		{"-1", 0, true},
		{"2.5", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIndex(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFlag(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"1", true, false},
		{"0", false, false},
		{"-1", true, false},
		{"1.0", true, false},
		{"0.0", false, false},
		{"True", true, false},
		{"false", false, false},
		{"", false, true},
		{"yes", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFlag(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFloat(t *testing.T) {
	v, err := ParseFloat(" 1.25 ")
	require.NoError(t, err)
	assert.Equal(t, 1.25, v)

	_, err = ParseFloat("NaN")
	assert.Error(t, err)
	_, err = ParseFloat("")
	assert.Error(t, err)
}
