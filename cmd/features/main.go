// Command features builds the rolling feature panel from raw daily bars and
// writes it as CSV, XLSX or Parquet depending on the output extension.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"panelrecon/internal/config"
	"panelrecon/internal/features"
	"panelrecon/internal/infrastructure"
	"panelrecon/internal/operations"
	"panelrecon/internal/validation"
	"panelrecon/pkg/contracts"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		slog.Error("feature build failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("features", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to panelrecon.yaml (optional)")
	bars := fs.String("bars", "", "raw bars file, .csv or .xlsx (overrides paths.bars_file)")
	out := fs.String("out", "", "panel output file, .csv, .xlsx or .parquet (overrides paths.panel_file)")
	volWindow := fs.Int("vol-window", 0, "volatility window (overrides features.volatility_window)")
	zWindow := fs.Int("z-window", 0, "volume z-score window (overrides features.zscore_window)")
	version := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *version {
		fmt.Fprintln(stderr, contracts.GetFullVersionString("features"))
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *bars != "" {
		cfg.Paths.BarsFile = *bars
	}
	if *out != "" {
		cfg.Paths.PanelFile = *out
	}
	if *volWindow > 0 {
		cfg.Features.VolatilityWindow = *volWindow
	}
	if *zWindow > 0 {
		cfg.Features.ZScoreWindow = *zWindow
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := validation.NewFileValidator(nil).ValidatePanelBuild(cfg); err != nil {
		return err
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer providers.Shutdown(context.WithoutCancel(ctx))

	metrics, err := infrastructure.NewPipelineMetrics(providers.Meter)
	if err != nil {
		return err
	}

	builder := features.NewBuilder(operations.FeatureConfig(cfg), logger)
	registry := operations.NewRegistry()
	if err := registry.Register(operations.NewBuildFeaturesStep(cfg.Paths.BarsFile, cfg.Paths.PanelFile, builder, logger)); err != nil {
		return err
	}

	logger.InfoContext(ctx, "building feature panel",
		slog.String("bars", cfg.Paths.BarsFile),
		slog.String("out", cfg.Paths.PanelFile),
		slog.Int("volatility_window", cfg.Features.VolatilityWindow),
		slog.Int("zscore_window", cfg.Features.ZScoreWindow))

	manager := operations.NewManager(registry, logger,
		operations.WithTracer(providers.Tracer),
		operations.WithMetrics(metrics))
	state, err := manager.Execute(ctx)
	if err != nil {
		return err
	}

	panel := state.Panel()
	start, end, _ := panel.DateRange()
	fmt.Fprintf(stderr, "wrote %d rows for %d tickers (%s to %s) to %s\n",
		panel.Len(), len(panel.Tickers()),
		start.Format("2006-01-02"), end.Format("2006-01-02"),
		cfg.Paths.PanelFile)
	return nil
}
