// Package features builds the per-ticker rolling feature panel from raw bars.
package features

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	apperrors "panelrecon/internal/errors"
	"panelrecon/pkg/contracts/domain"
)

// Config holds the rolling window sizes and fan-out width
type Config struct {
	VolatilityWindow int
	ZScoreWindow     int
	MaxConcurrency   int
}

// DefaultConfig returns the standard 10/20 windows
func DefaultConfig() Config {
	return Config{
		VolatilityWindow: 10,
		ZScoreWindow:     20,
		MaxConcurrency:   4,
	}
}

// WarmUp returns how many leading bars per ticker never reach the panel
func (c Config) WarmUp() int {
	// daily_return consumes one bar before the volatility window can fill
	warm := c.VolatilityWindow
	if c.ZScoreWindow-1 > warm {
		warm = c.ZScoreWindow - 1
	}
	return warm
}

// Builder computes the feature panel
type Builder struct {
	cfg    Config
	logger *slog.Logger
}

// NewBuilder creates a new panel builder
func NewBuilder(cfg Config, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &Builder{cfg: cfg, logger: logger}
}

// Build groups bars by ticker, computes daily return, volatility and volume
// z-score per group and returns the warmed-up rows as an immutable Panel.
// A repeated (ticker, date) in the input is an invariant violation.
func (b *Builder) Build(ctx context.Context, bars []domain.RawBar) (*domain.Panel, error) {
	if b.cfg.VolatilityWindow < 2 || b.cfg.ZScoreWindow < 2 {
		return nil, apperrors.NewAppValidationError(
			fmt.Sprintf("rolling windows must be at least 2, got volatility=%d zscore=%d",
				b.cfg.VolatilityWindow, b.cfg.ZScoreWindow))
	}

	groups, err := groupByTicker(bars)
	if err != nil {
		return nil, err
	}

	tickers := make([]string, 0, len(groups))
	for t := range groups {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	results := make([][]domain.PanelRow, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.MaxConcurrency)
	for i, ticker := range tickers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = ComputeTicker(groups[ticker], b.cfg)
			b.logger.DebugContext(gctx, "ticker features computed",
				"ticker", ticker,
				"bars", len(groups[ticker]),
				"rows", len(results[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compute features: %w", err)
	}

	var rows []domain.PanelRow
	var short []string
	for i, ticker := range tickers {
		if len(results[i]) == 0 {
			short = append(short, ticker)
		}
		rows = append(rows, results[i]...)
	}

	panel := domain.NewPanel(rows)

	b.logger.InfoContext(ctx, "feature panel built",
		"bars", len(bars),
		"tickers", len(tickers),
		"panel_rows", panel.Len(),
		"volatility_window", b.cfg.VolatilityWindow,
		"zscore_window", b.cfg.ZScoreWindow)
	if len(short) > 0 {
		b.logger.InfoContext(ctx, "tickers without enough history for the panel",
			"count", len(short),
			"tickers", strings.Join(short, ","))
	}

	return panel, nil
}

// ComputeTicker derives the panel rows for one ticker. bars must all belong
// to the same ticker; they are sorted by date here.
func ComputeTicker(bars []domain.RawBar, cfg Config) []domain.PanelRow {
	sorted := make([]domain.RawBar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	closes := make([]float64, len(sorted))
	volumes := make([]float64, len(sorted))
	for i, bar := range sorted {
		closes[i] = bar.Close
		volumes[i] = bar.Volume
	}

	returns := PctChange(closes)
	volatility := RollingStd(returns, cfg.VolatilityWindow)
	zscores := ZScore(volumes, cfg.ZScoreWindow)

	var rows []domain.PanelRow
	for i, bar := range sorted {
		if !finite(returns[i]) || !finite(volatility[i]) || !finite(zscores[i]) {
			continue
		}
		rows = append(rows, domain.PanelRow{
			Ticker:       bar.Ticker,
			Date:         domain.NormalizeDate(bar.Date),
			Close:        bar.Close,
			Volume:       bar.Volume,
			DailyReturn:  returns[i],
			Volatility:   volatility[i],
			VolumeZScore: zscores[i],
		})
	}
	return rows
}

func groupByTicker(bars []domain.RawBar) (map[string][]domain.RawBar, error) {
	groups := make(map[string][]domain.RawBar)
	seen := make(map[domain.Key]struct{}, len(bars))
	var dups []string

	for _, bar := range bars {
		k := bar.Key()
		if _, ok := seen[k]; ok {
			dups = append(dups, k.String())
			continue
		}
		seen[k] = struct{}{}
		groups[bar.Ticker] = append(groups[bar.Ticker], bar)
	}

	if len(dups) > 0 {
		return nil, apperrors.NewInvariantViolation(
			fmt.Sprintf("%d duplicate (ticker, date) bars in input", len(dups))).
			WithContext("keys", dups)
	}
	return groups, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
