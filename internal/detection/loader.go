// Package detection loads detector output, validates its schema, keeps the
// flagged rows and tags each with the addressing convention its columns imply.
package detection

import (
	"context"
	"errors"
	"log/slog"

	apperrors "panelrecon/internal/errors"
	"panelrecon/internal/tabular"
	"panelrecon/pkg/contracts/domain"
)

// DefaultFlagColumn is the flag column written by both detectors
const DefaultFlagColumn = "Anomaly"

var (
	tickerColumns = []string{"Ticker", "Symbol"}
	dateColumns   = []string{"Date"}
	indexColumns  = []string{"index", "idx"}
	closeColumns  = []string{"Close"}
)

// Source names a detector and where its output lives
type Source struct {
	DetectorID string
	Path       string
}

// Options controls loading
type Options struct {
	FlagColumn string
	Logger     *slog.Logger
}

func (o Options) flagColumn() string {
	if o.FlagColumn == "" {
		return DefaultFlagColumn
	}
	return o.FlagColumn
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// Result is one detector's flagged records plus everything dropped on the way
type Result struct {
	DetectorID  string
	Convention  domain.Convention
	Rows        int
	Records     []domain.AnomalyRecord
	Diagnostics Diagnostics
}

// Load reads a detector's output file. A missing or unreadable file yields
// an empty Result with an empty_input diagnostic, never an error.
func Load(ctx context.Context, src Source, opts Options) Result {
	logger := opts.logger()

	if err := ctx.Err(); err != nil {
		res := Result{DetectorID: src.DetectorID}
		res.Diagnostics.Add(KindEmptyInput, src.DetectorID, 0, "load cancelled: %v", err)
		return res
	}

	table, err := tabular.Read(src.Path)
	if err != nil {
		warn := apperrors.NewEmptyInputWarning("detector output unavailable", err).
			WithContext("path", src.Path)
		logger.WarnContext(ctx, "detector output treated as empty",
			"detector", src.DetectorID,
			"path", src.Path,
			"empty_file", errors.Is(err, tabular.ErrEmptyFile),
			"error", warn.Error())

		res := Result{DetectorID: src.DetectorID}
		res.Diagnostics.Add(KindEmptyInput, src.DetectorID, 0, "%s", warn.Error())
		return res
	}

	res := LoadTable(src.DetectorID, table, opts)
	logger.InfoContext(ctx, "detector output loaded",
		"detector", src.DetectorID,
		"path", src.Path,
		"convention", res.Convention.String(),
		"rows", res.Rows,
		"records", len(res.Records),
		"diagnostics", len(res.Diagnostics))
	return res
}

// DetectConvention chooses the addressing convention from column presence.
// Date and Ticker give ExplicitKey, Ticker and index give PerTickerOffset,
// index alone gives AbsoluteOffset. Index magnitude is never consulted.
func DetectConvention(header []string) (domain.Convention, error) {
	return detectConvention(tabular.New("", header, nil))
}

func detectConvention(t *tabular.Table) (domain.Convention, error) {
	hasTicker := t.HasColumn(tickerColumns...)
	hasDate := t.HasColumn(dateColumns...)
	hasIndex := t.HasColumn(indexColumns...)

	switch {
	case hasTicker && hasDate:
		return domain.ConventionExplicitKey, nil
	case hasTicker && hasIndex:
		return domain.ConventionPerTickerOffset, nil
	case hasIndex && !hasDate:
		return domain.ConventionAbsoluteOffset, nil
	case hasDate:
		return domain.ConventionUnknown, apperrors.NewSchemaError(
			"date column present without a ticker column; tickers are never synthesized")
	default:
		return domain.ConventionUnknown, apperrors.NewSchemaError(
			"no addressing columns: need {Date, Ticker[, Close]}, {index} or {Ticker, index}")
	}
}

// LoadTable validates a detector table and returns its flagged records.
// Schema problems empty the whole result; row problems drop only that row.
func LoadTable(detectorID string, t *tabular.Table, opts Options) Result {
	res := Result{DetectorID: detectorID, Rows: t.Len()}
	logger := opts.logger()

	flagCol, ok := t.Column(opts.flagColumn())
	if !ok {
		err := apperrors.NewSchemaError("missing flag column " + opts.flagColumn())
		res.Diagnostics.Add(KindSchema, detectorID, 0, "%s", err.Error())
		logger.Warn("detector schema rejected", "detector", detectorID, "error", err.Error())
		return res
	}

	convention, err := detectConvention(t)
	if err != nil {
		res.Diagnostics.Add(KindSchema, detectorID, 0, "%s", err.Error())
		logger.Warn("detector schema rejected", "detector", detectorID, "error", err.Error())
		return res
	}
	res.Convention = convention

	p := rowParser{
		detectorID: detectorID,
		convention: convention,
		flagCol:    flagCol,
		tickerCol:  column(t, tickerColumns),
		dateCol:    column(t, dateColumns),
		indexCol:   column(t, indexColumns),
		closeCol:   column(t, closeColumns),
	}

	for i, row := range t.Rows {
		line := tabular.LineNumber(i)
		rec, flagged := p.parse(row, line, &res.Diagnostics)
		if flagged {
			res.Records = append(res.Records, rec)
		}
	}

	return res
}

func column(t *tabular.Table, names []string) int {
	col, ok := t.Column(names...)
	if !ok {
		return -1
	}
	return col
}

type rowParser struct {
	detectorID string
	convention domain.Convention
	flagCol    int
	tickerCol  int
	dateCol    int
	indexCol   int
	closeCol   int
}

// parse returns the record and true when the row is flagged and well formed
func (p rowParser) parse(row []string, line int, diags *Diagnostics) (domain.AnomalyRecord, bool) {
	flag, err := tabular.ParseFlag(tabular.Cell(row, p.flagCol))
	if err != nil {
		diags.Add(KindInvalidFlag, p.detectorID, line, "%v", err)
		return domain.AnomalyRecord{}, false
	}
	if !flag {
		return domain.AnomalyRecord{}, false
	}

	rec := domain.AnomalyRecord{DetectorID: p.detectorID, SourceRow: line}

	switch p.convention {
	case domain.ConventionExplicitKey:
		ticker := tabular.Cell(row, p.tickerCol)
		if ticker == "" {
			diags.Add(KindMissingTicker, p.detectorID, line, "empty ticker")
			return rec, false
		}
		date, err := tabular.ParseDate(tabular.Cell(row, p.dateCol))
		if err != nil {
			diags.Add(KindInvalidDate, p.detectorID, line, "%v", err)
			return rec, false
		}
		addr := domain.ExplicitKey{Ticker: ticker, Date: date}
		if raw := tabular.Cell(row, p.closeCol); raw != "" {
			closePrice, err := tabular.ParseFloat(raw)
			if err != nil {
				diags.Add(KindInvalidClose, p.detectorID, line, "close %q: %v", raw, err)
				return rec, false
			}
			addr.Close = closePrice
			addr.HasClose = true
		}
		rec.Address = addr

	case domain.ConventionPerTickerOffset:
		ticker := tabular.Cell(row, p.tickerCol)
		if ticker == "" {
			diags.Add(KindMissingTicker, p.detectorID, line, "empty ticker")
			return rec, false
		}
		index, err := tabular.ParseIndex(tabular.Cell(row, p.indexCol))
		if err != nil {
			diags.Add(KindInvalidIndex, p.detectorID, line, "%v", err)
			return rec, false
		}
		rec.Address = domain.PerTickerOffset{Ticker: ticker, Index: index}

	case domain.ConventionAbsoluteOffset:
		index, err := tabular.ParseIndex(tabular.Cell(row, p.indexCol))
		if err != nil {
			diags.Add(KindInvalidIndex, p.detectorID, line, "%v", err)
			return rec, false
		}
		rec.Address = domain.AbsoluteOffset{Index: index}

	default:
		return rec, false
	}

	return rec, true
}
