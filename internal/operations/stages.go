package operations

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"panelrecon/internal/comparison"
	"panelrecon/internal/detection"
	"panelrecon/internal/exporter"
	"panelrecon/internal/features"
	"panelrecon/internal/infrastructure"
	"panelrecon/internal/reconcile"
	"panelrecon/pkg/contracts/domain"
)

// Step IDs
const (
	StepIDBuildFeatures = "build_features"
	StepIDLoadPanel     = "load_panel"
	StepIDLoadDetectors = "load_detectors"
	StepIDReconcile     = "reconcile"
	StepIDCompare       = "compare"
	StepIDExport        = "export"
)

func stepLogger(logger *slog.Logger, id string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("step", id))
}

// BuildFeaturesStep loads raw bars and builds the panel, optionally
// persisting it
type BuildFeaturesStep struct {
	BaseStep
	barsPath  string
	panelPath string
	builder   *features.Builder
	logger    *slog.Logger
}

// NewBuildFeaturesStep creates the panel-building step. An empty panelPath
// keeps the panel in memory only.
func NewBuildFeaturesStep(barsPath, panelPath string, builder *features.Builder, logger *slog.Logger) *BuildFeaturesStep {
	return &BuildFeaturesStep{
		BaseStep:  NewBaseStep(StepIDBuildFeatures, "Build feature panel", nil),
		barsPath:  barsPath,
		panelPath: panelPath,
		builder:   builder,
		logger:    stepLogger(logger, StepIDBuildFeatures),
	}
}

// Execute builds the panel from the bars file
func (s *BuildFeaturesStep) Execute(ctx context.Context, state *RunState) error {
	bars, err := features.LoadBars(s.barsPath, s.logger)
	if err != nil {
		return err
	}

	panel, err := s.builder.Build(ctx, bars)
	if err != nil {
		return err
	}
	state.SetPanel(panel)

	if s.panelPath != "" {
		if err := exporter.WritePanel(s.panelPath, panel); err != nil {
			return fmt.Errorf("write panel: %w", err)
		}
		state.AddOutput(s.panelPath)
		s.logger.InfoContext(ctx, "panel written", "path", s.panelPath, "rows", panel.Len())
	}
	return nil
}

// LoadPanelStep reads a previously written panel
type LoadPanelStep struct {
	BaseStep
	path   string
	logger *slog.Logger
}

// NewLoadPanelStep creates the panel-loading step
func NewLoadPanelStep(path string, logger *slog.Logger) *LoadPanelStep {
	return &LoadPanelStep{
		BaseStep: NewBaseStep(StepIDLoadPanel, "Load feature panel", nil),
		path:     path,
		logger:   stepLogger(logger, StepIDLoadPanel),
	}
}

// Execute loads the panel file
func (s *LoadPanelStep) Execute(ctx context.Context, state *RunState) error {
	panel, err := features.LoadPanel(s.path, s.logger)
	if err != nil {
		return err
	}
	state.SetPanel(panel)
	s.logger.InfoContext(ctx, "panel loaded", "path", s.path, "rows", panel.Len())
	return nil
}

// LoadDetectorsStep loads every detector's output concurrently
type LoadDetectorsStep struct {
	BaseStep
	sources []detection.Source
	opts    detection.Options
	logger  *slog.Logger
}

// NewLoadDetectorsStep creates the detector-loading step
func NewLoadDetectorsStep(sources []detection.Source, opts detection.Options, logger *slog.Logger) *LoadDetectorsStep {
	logger = stepLogger(logger, StepIDLoadDetectors)
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &LoadDetectorsStep{
		BaseStep: NewBaseStep(StepIDLoadDetectors, "Load detector output", nil),
		sources:  sources,
		opts:     opts,
		logger:   logger,
	}
}

// Execute loads each source. Unavailable sources become empty results, so
// this step only fails on cancellation.
func (s *LoadDetectorsStep) Execute(ctx context.Context, state *RunState) error {
	results := make([]detection.Result, len(s.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = detection.Load(gctx, src, s.opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, res := range results {
		state.SetDetectorResult(res)
	}
	return nil
}

// ReconcileStep resolves every loaded detector against the panel
type ReconcileStep struct {
	BaseStep
	metrics *infrastructure.PipelineMetrics
	logger  *slog.Logger
}

// NewReconcileStep creates the reconcile step running after panelStepID
func NewReconcileStep(panelStepID string, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *ReconcileStep {
	return &ReconcileStep{
		BaseStep: NewBaseStep(StepIDReconcile, "Reconcile detector addresses",
			[]string{panelStepID, StepIDLoadDetectors}),
		metrics: metrics,
		logger:  stepLogger(logger, StepIDReconcile),
	}
}

// Execute checks the panel invariant, then resolves each detector. The
// reconciled sets are published only after every detector resolved.
func (s *ReconcileStep) Execute(ctx context.Context, state *RunState) error {
	panel := state.Panel()
	if panel == nil {
		return NewInvalidStateError(s.ID(), "no panel in run state")
	}

	engine, err := reconcile.NewEngine(panel, s.logger)
	if err != nil {
		return NewFatalError(s.ID(), "panel integrity check failed", err)
	}

	sets := make(map[string][]domain.CanonicalAnomaly)
	diags := make(map[string]detection.Diagnostics)
	for _, id := range state.DetectorIDs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, _ := state.DetectorResult(id)
		set, d := engine.ResolveAll(res.Records)
		sets[id] = set
		diags[id] = d
	}

	state.SetCanonical(sets, diags)
	for id, set := range sets {
		s.metrics.RecordDetector(ctx, id, len(set), state.Diagnostics(id).Counts())
	}
	if s.metrics != nil {
		s.metrics.PanelRows.Record(ctx, int64(panel.Len()))
	}
	return nil
}

// CompareStep compares two reconciled detectors
type CompareStep struct {
	BaseStep
	a, b    string
	topN    int
	metrics *infrastructure.PipelineMetrics
	logger  *slog.Logger
}

// NewCompareStep creates the comparison step for detectors a and b
func NewCompareStep(a, b string, topN int, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *CompareStep {
	return &CompareStep{
		BaseStep: NewBaseStep(StepIDCompare, "Compare detectors", []string{StepIDReconcile}),
		a:        a,
		b:        b,
		topN:     topN,
		metrics:  metrics,
		logger:   stepLogger(logger, StepIDCompare),
	}
}

// Execute computes counts, rates and overlap
func (s *CompareStep) Execute(ctx context.Context, state *RunState) error {
	in := func(id string) (comparison.Input, error) {
		set, ok := state.Canonical(id)
		if !ok {
			return comparison.Input{}, NewInvalidStateError(s.ID(), "no reconciled set for detector "+id)
		}
		res, _ := state.DetectorResult(id)
		return comparison.Input{
			DetectorID:  id,
			Convention:  res.Convention,
			Anomalies:   set,
			Diagnostics: state.Diagnostics(id).Counts(),
		}, nil
	}

	a, err := in(s.a)
	if err != nil {
		return err
	}
	b, err := in(s.b)
	if err != nil {
		return err
	}

	cmp := comparison.Compare(state.Panel().Len(), a, b, s.topN)
	state.SetComparison(cmp)

	if s.metrics != nil {
		s.metrics.OverlapTotal.Record(ctx, int64(len(cmp.Overlap)))
	}
	s.logger.InfoContext(ctx, "detectors compared",
		"panel_rows", cmp.PanelRows,
		s.a+"_total", cmp.A.Total,
		s.b+"_total", cmp.B.Total,
		"overlap", len(cmp.Overlap))
	return nil
}

// ExportStep writes the comparison outputs
type ExportStep struct {
	BaseStep
	outputDir string
	logger    *slog.Logger
}

// Output file names written by ExportStep
const (
	SummaryTextFile = "anomaly_summary.txt"
	SummaryJSONFile = "anomaly_summary.json"
	OverlapFile     = "overlap_anomalies.csv"
)

// NewExportStep creates the export step
func NewExportStep(outputDir string, logger *slog.Logger) *ExportStep {
	return &ExportStep{
		BaseStep:  NewBaseStep(StepIDExport, "Export summary", []string{StepIDCompare}),
		outputDir: outputDir,
		logger:    stepLogger(logger, StepIDExport),
	}
}

// Execute writes the summary, the overlap set and each canonical set
func (s *ExportStep) Execute(ctx context.Context, state *RunState) error {
	cmp, ok := state.Comparison()
	if !ok {
		return NewInvalidStateError(s.ID(), "no comparison in run state")
	}

	type output struct {
		name  string
		write func(string) error
	}
	outputs := []output{
		{SummaryTextFile, func(p string) error { return exporter.WriteSummaryText(p, cmp) }},
		{SummaryJSONFile, func(p string) error { return exporter.WriteSummaryJSON(p, cmp) }},
		{OverlapFile, func(p string) error { return exporter.WriteOverlapCSV(p, cmp.Overlap) }},
	}
	for _, d := range []domain.DetectorSummary{cmp.A, cmp.B} {
		anomalies := d.Anomalies
		outputs = append(outputs, output{
			d.DetectorID + "_canonical.csv",
			func(p string) error { return exporter.WriteAnomaliesCSV(p, anomalies) },
		})
	}

	for _, o := range outputs {
		path := filepath.Join(s.outputDir, o.name)
		if err := o.write(path); err != nil {
			return fmt.Errorf("write %s: %w", o.name, err)
		}
		state.AddOutput(path)
	}

	s.logger.InfoContext(ctx, "summary exported", "dir", s.outputDir, "files", len(outputs))
	return nil
}
