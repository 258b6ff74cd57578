// Command compare reconciles two detectors' anomaly output against the
// feature panel, writes the comparison summary and optionally serves it
// over HTTP until interrupted.
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

	"panelrecon/internal/app"
	"panelrecon/internal/config"
	"panelrecon/internal/exporter"
	"panelrecon/internal/operations"
	"panelrecon/internal/validation"
	"panelrecon/pkg/contracts"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("comparison failed", "error", err)
		os.Exit(1)
	}
}

type flags struct {
	config  string
	panel   string
	bars    string
	sliding string
	heap    string
	out     string
	topN    int
	serve   bool
	addr    string
	version bool
}

func parseFlags(args []string, stderr io.Writer) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.config, "config", "", "path to panelrecon.yaml (optional)")
	fs.StringVar(&f.panel, "panel", "", "feature panel file (overrides paths.panel_file)")
	fs.StringVar(&f.bars, "bars", "", "build the panel from this raw bars file instead of loading it")
	fs.StringVar(&f.sliding, "sliding", "", "sliding detector output (overrides detectors.sliding.path)")
	fs.StringVar(&f.heap, "heap", "", "heap detector output (overrides detectors.heap.path)")
	fs.StringVar(&f.out, "out", "", "output directory (overrides paths.output_dir)")
	fs.IntVar(&f.topN, "top", 0, "tickers listed per detector (overrides report.top_n)")
	fs.BoolVar(&f.serve, "serve", false, "serve the comparison over HTTP after the run")
	fs.StringVar(&f.addr, "addr", "", "listen address for -serve (overrides server.addr)")
	fs.BoolVar(&f.version, "version", false, "print version and exit")
	err := fs.Parse(args)
	return f, err
}

func (f flags) apply(cfg *config.Config) operations.PipelineMode {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Paths.PanelFile, f.panel)
	set(&cfg.Detectors.Sliding.Path, f.sliding)
	set(&cfg.Detectors.Heap.Path, f.heap)
	set(&cfg.Paths.OutputDir, f.out)
	set(&cfg.Server.Addr, f.addr)
	if f.topN > 0 {
		cfg.Report.TopN = f.topN
	}
	if f.bars != "" {
		cfg.Paths.BarsFile = f.bars
		return operations.ModeBuildPanel
	}
	return operations.ModeLoadPanel
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if f.version {
		fmt.Fprintln(stdout, contracts.GetFullVersionString("compare"))
		return nil
	}

	cfg, err := config.Load(f.config)
	if err != nil {
		return err
	}
	mode := f.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := validation.NewFileValidator(nil).ValidateRun(cfg, mode == operations.ModeBuildPanel); err != nil {
		return err
	}

	application, err := app.NewApplication(cfg, mode)
	if err != nil {
		return err
	}
	defer application.Close(context.WithoutCancel(ctx))

	state, err := application.RunPipeline(ctx)
	if err != nil {
		return fmt.Errorf("run %s: %w", state.ID, err)
	}

	cmp, _ := state.Comparison()
	if err := exporter.RenderSummaryText(stdout, cmp); err != nil {
		return err
	}

	if !f.serve {
		return nil
	}
	return application.Serve(ctx)
}
