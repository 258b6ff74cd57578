// Package reconcile maps detector addresses onto canonical (ticker, date)
// keys using the feature panel as the only source of truth.
package reconcile

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"panelrecon/internal/detection"
	apperrors "panelrecon/internal/errors"
	"panelrecon/pkg/contracts/domain"
)

// closeTolerance is the relative difference above which a detector's close
// is reported as disagreeing with the panel
const closeTolerance = 1e-6

// Engine resolves anomaly records against one Panel. It is read-only after
// NewEngine returns and safe for concurrent use.
type Engine struct {
	panel  *domain.Panel
	logger *slog.Logger

	byKey map[domain.Key]int
	// perTicker holds each ticker's absolute panel offsets in date order
	perTicker map[string][]int
}

// NewEngine verifies that panel keys are unique and indexes the panel. A
// duplicate key is an invariant violation and no engine is returned.
func NewEngine(panel *domain.Panel, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dups := panel.DuplicateKeys(); len(dups) > 0 {
		keys := make([]string, len(dups))
		for i, k := range dups {
			keys[i] = k.String()
		}
		err := apperrors.NewInvariantViolation(
			fmt.Sprintf("panel has %d duplicate (ticker, date) keys", len(dups))).
			WithContext("keys", keys)
		logger.Error("panel invariant violated, reconciliation aborted",
			"duplicates", len(dups),
			"keys", strings.Join(keys, ","))
		return nil, err
	}

	e := &Engine{
		panel:     panel,
		logger:    logger,
		byKey:     make(map[domain.Key]int, panel.Len()),
		perTicker: make(map[string][]int),
	}
	// panel order is (date, ticker), so appending keeps each ticker's dates ascending
	panel.Each(func(i int, row domain.PanelRow) {
		e.byKey[row.Key()] = i
		e.perTicker[row.Ticker] = append(e.perTicker[row.Ticker], i)
	})

	return e, nil
}

// Panel returns the panel the engine resolves against
func (e *Engine) Panel() *domain.Panel {
	return e.panel
}

// TickerLen returns the length of a ticker's panel sub-sequence
func (e *Engine) TickerLen(ticker string) int {
	return len(e.perTicker[ticker])
}

// Resolve maps one record to a CanonicalAnomaly. Any address that does not
// land on an existing panel row returns an UNRESOLVABLE_INDEX error;
// offsets are never clamped or wrapped.
func (e *Engine) Resolve(rec domain.AnomalyRecord) (domain.CanonicalAnomaly, error) {
	a, _, err := e.resolve(rec)
	return a, err
}

func (e *Engine) resolve(rec domain.AnomalyRecord) (domain.CanonicalAnomaly, bool, error) {
	switch addr := rec.Address.(type) {
	case domain.ExplicitKey:
		key := domain.NewKey(addr.Ticker, addr.Date)
		offset, ok := e.byKey[key]
		if !ok {
			return domain.CanonicalAnomaly{}, false, unresolvable(rec, "key %s not in panel", key)
		}
		row, _ := e.panel.Row(offset)
		if !addr.HasClose {
			return canonical(rec, row), false, nil
		}
		a := canonical(rec, row)
		a.Close = addr.Close
		return a, !closeMatches(addr.Close, row.Close), nil

	case domain.AbsoluteOffset:
		row, ok := e.panel.Row(addr.Index)
		if !ok {
			return domain.CanonicalAnomaly{}, false, unresolvable(rec,
				"offset %d outside panel of %d rows", addr.Index, e.panel.Len())
		}
		return canonical(rec, row), false, nil

	case domain.PerTickerOffset:
		offsets, ok := e.perTicker[addr.Ticker]
		if !ok {
			return domain.CanonicalAnomaly{}, false, unresolvable(rec, "ticker %s not in panel", addr.Ticker)
		}
		if addr.Index < 0 || addr.Index >= len(offsets) {
			return domain.CanonicalAnomaly{}, false, unresolvable(rec,
				"offset %d outside %s sub-sequence of %d rows", addr.Index, addr.Ticker, len(offsets))
		}
		row, _ := e.panel.Row(offsets[addr.Index])
		return canonical(rec, row), false, nil

	default:
		return domain.CanonicalAnomaly{}, false, unresolvable(rec, "record has no address")
	}
}

// ResolveAll resolves a detector's records into a set of canonical
// anomalies ordered by (date, ticker). Records that cannot be resolved are
// dropped, repeated keys collapse to the first occurrence, and each case is
// reported as a diagnostic.
func (e *Engine) ResolveAll(records []domain.AnomalyRecord) ([]domain.CanonicalAnomaly, detection.Diagnostics) {
	var diags detection.Diagnostics
	seen := make(map[domain.Key]struct{}, len(records))
	out := make([]domain.CanonicalAnomaly, 0, len(records))

	for _, rec := range records {
		a, mismatch, err := e.resolve(rec)
		if err != nil {
			diags.Add(detection.KindUnresolvable, rec.DetectorID, rec.SourceRow, "%s", err.Error())
			continue
		}
		if mismatch {
			row, _ := e.panel.Row(e.byKey[a.Key()])
			diags.Add(detection.KindCloseMismatch, rec.DetectorID, rec.SourceRow,
				"%s close %g differs from panel close %g", a.Key(), a.Close, row.Close)
		}
		if _, dup := seen[a.Key()]; dup {
			diags.Add(detection.KindDuplicateFlag, rec.DetectorID, rec.SourceRow,
				"%s already flagged", a.Key())
			continue
		}
		seen[a.Key()] = struct{}{}
		out = append(out, a)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Key().Less(out[j].Key())
	})

	if len(records) > 0 {
		detectorID := records[0].DetectorID
		e.logger.Info("detector records reconciled",
			"detector", detectorID,
			"records", len(records),
			"resolved", len(out),
			"unresolvable", diags.Count(detection.KindUnresolvable),
			"duplicates", diags.Count(detection.KindDuplicateFlag),
			"close_mismatches", diags.Count(detection.KindCloseMismatch))
		if n := diags.Count(detection.KindUnresolvable); n > 0 {
			e.logger.Warn("detector records dropped as unresolvable",
				"detector", detectorID,
				"count", n)
		}
		for _, d := range diags {
			e.logger.Debug("reconcile diagnostic", "detector", d.DetectorID, "kind", d.Kind, "row", d.Row, "message", d.Message)
		}
	}

	return out, diags
}

func canonical(rec domain.AnomalyRecord, row domain.PanelRow) domain.CanonicalAnomaly {
	return domain.CanonicalAnomaly{
		Ticker:     row.Ticker,
		Date:       row.Date,
		Close:      row.Close,
		DetectorID: rec.DetectorID,
	}
}

func closeMatches(a, b float64) bool {
	return math.Abs(a-b) <= closeTolerance*math.Max(1, math.Abs(b))
}

func unresolvable(rec domain.AnomalyRecord, format string, args ...any) error {
	return apperrors.NewUnresolvableError(fmt.Sprintf(format, args...)).
		WithContext("detector", rec.DetectorID).
		WithContext("row", rec.SourceRow)
}
