// Package testutil holds test helpers shared across packages.
package testutil

import (
	"context"
	"log/slog"
	"sync"
	"testing"
)

// LogRecord is a captured log record
type LogRecord struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// LogCapture is a slog.Handler that keeps every record it receives
type LogCapture struct {
	mu      *sync.Mutex
	records *[]LogRecord
	attrs   []slog.Attr
	t       testing.TB
}

// NewTestLogger returns a debug-level logger and the handler capturing its
// records
func NewTestLogger(t testing.TB) (*slog.Logger, *LogCapture) {
	h := &LogCapture{mu: &sync.Mutex{}, records: &[]LogRecord{}, t: t}
	return slog.New(h), h
}

// Enabled implements slog.Handler
func (h *LogCapture) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler
func (h *LogCapture) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	*h.records = append(*h.records, LogRecord{Level: r.Level, Message: r.Message, Attrs: attrs})
	h.mu.Unlock()

	if h.t != nil {
		h.t.Logf("[%s] %s %v", r.Level, r.Message, attrs)
	}
	return nil
}

// WithAttrs implements slog.Handler
func (h *LogCapture) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

// WithGroup implements slog.Handler. Groups are flattened.
func (h *LogCapture) WithGroup(string) slog.Handler { return h }

// Records returns a copy of every captured record
func (h *LogCapture) Records() []LogRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]LogRecord(nil), *h.records...)
}

// Find returns the first record at level with message msg
func (h *LogCapture) Find(level slog.Level, msg string) (LogRecord, bool) {
	for _, r := range h.Records() {
		if r.Level == level && r.Message == msg {
			return r, true
		}
	}
	return LogRecord{}, false
}

// Count returns how many records were logged at level
func (h *LogCapture) Count(level slog.Level) int {
	n := 0
	for _, r := range h.Records() {
		if r.Level == level {
			n++
		}
	}
	return n
}
