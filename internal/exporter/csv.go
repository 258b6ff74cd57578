package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter writes CSV files below a base directory. Fresh files are
// written to a temporary sibling and renamed into place on success, so a
// failed export never leaves a truncated file behind.
type CSVWriter struct {
	baseDir string
}

func NewCSVWriter(baseDir string) *CSVWriter {
	return &CSVWriter{baseDir: baseDir}
}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	Headers   []string
	Records   [][]string
	Append    bool
	BOMPrefix bool // UTF-8 BOM for Excel
}

// WriteCSV writes headers and records to filePath. With Append set the
// records are added to the existing file and headers are not repeated.
func (w *CSVWriter) WriteCSV(filePath string, options WriteOptions) error {
	fullPath := w.resolvePath(filePath)
	slog.Debug("writing CSV file",
		slog.String("path", fullPath),
		slog.Int("record_count", len(options.Records)),
		slog.Bool("append", options.Append))

	if options.Append {
		return appendRecords(fullPath, options.Records)
	}

	sw, err := w.createStream(fullPath, options.Headers, options.BOMPrefix)
	if err != nil {
		return err
	}
	for i, record := range options.Records {
		if err := sw.WriteRecord(record); err != nil {
			sw.Abort()
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	return sw.Close()
}

func appendRecords(path string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}

	cw := csv.NewWriter(file)
	if err := cw.WriteAll(records); err != nil {
		file.Close()
		return fmt.Errorf("failed to append records: %w", err)
	}
	return file.Close()
}

// StreamWriter writes CSV records one at a time. Close publishes the file;
// Abort discards it.
type StreamWriter struct {
	file   *os.File
	target string
	writer *csv.Writer
}

// CreateStreamWriter opens a stream for filePath and writes the headers
func (w *CSVWriter) CreateStreamWriter(filePath string, headers []string) (*StreamWriter, error) {
	return w.createStream(w.resolvePath(filePath), headers, false)
}

func (w *CSVWriter) createStream(target string, headers []string, bom bool) (*StreamWriter, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	sw := &StreamWriter{file: file, target: target, writer: csv.NewWriter(file)}
	if bom {
		if _, err := file.Write(utf8BOM); err != nil {
			sw.Abort()
			return nil, fmt.Errorf("failed to write BOM: %w", err)
		}
	}
	if len(headers) > 0 {
		if err := sw.writer.Write(headers); err != nil {
			sw.Abort()
			return nil, fmt.Errorf("failed to write headers: %w", err)
		}
	}
	return sw, nil
}

func (s *StreamWriter) WriteRecord(record []string) error {
	return s.writer.Write(record)
}

// Close flushes the stream and renames it onto the target path
func (s *StreamWriter) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.Abort()
		return err
	}
	if err := s.file.Close(); err != nil {
		os.Remove(s.file.Name())
		return err
	}
	if err := os.Chmod(s.file.Name(), 0644); err != nil {
		os.Remove(s.file.Name())
		return err
	}
	if err := os.Rename(s.file.Name(), s.target); err != nil {
		os.Remove(s.file.Name())
		return fmt.Errorf("failed to publish %s: %w", s.target, err)
	}
	return nil
}

// Abort closes and removes the temporary file
func (s *StreamWriter) Abort() {
	s.file.Close()
	os.Remove(s.file.Name())
}

func (w *CSVWriter) resolvePath(filePath string) string {
	if filepath.IsAbs(filePath) || w.baseDir == "" {
		return filePath
	}
	return filepath.Join(w.baseDir, filePath)
}
