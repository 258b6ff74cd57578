package operations

import (
	"log/slog"

	"panelrecon/internal/config"
	"panelrecon/internal/detection"
	"panelrecon/internal/features"
	"panelrecon/internal/infrastructure"
)

// PipelineMode selects how the run obtains its panel
type PipelineMode int

const (
	// ModeLoadPanel reads the panel file written by an earlier build
	ModeLoadPanel PipelineMode = iota
	// ModeBuildPanel builds the panel from raw bars and writes it out
	ModeBuildPanel
)

// NewPipelineRegistry registers the comparison run's steps from cfg
func NewPipelineRegistry(cfg *config.Config, mode PipelineMode, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry()

	var panelStep Step
	switch mode {
	case ModeBuildPanel:
		builder := features.NewBuilder(FeatureConfig(cfg), logger)
		panelStep = NewBuildFeaturesStep(cfg.Paths.BarsFile, cfg.Paths.PanelFile, builder, logger)
	default:
		panelStep = NewLoadPanelStep(cfg.Paths.PanelFile, logger)
	}

	sources := []detection.Source{
		{DetectorID: cfg.Detectors.Sliding.ID, Path: cfg.Detectors.Sliding.Path},
		{DetectorID: cfg.Detectors.Heap.ID, Path: cfg.Detectors.Heap.Path},
	}

	steps := []Step{
		panelStep,
		NewLoadDetectorsStep(sources, detection.Options{FlagColumn: cfg.Detectors.FlagColumn}, logger),
		NewReconcileStep(panelStep.ID(), metrics, logger),
		NewCompareStep(cfg.Detectors.Sliding.ID, cfg.Detectors.Heap.ID, cfg.Report.TopN, metrics, logger),
		NewExportStep(cfg.Paths.OutputDir, logger),
	}
	for _, s := range steps {
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// FeatureConfig maps the configured windows onto the builder config
func FeatureConfig(cfg *config.Config) features.Config {
	return features.Config{
		VolatilityWindow: cfg.Features.VolatilityWindow,
		ZScoreWindow:     cfg.Features.ZScoreWindow,
		MaxConcurrency:   cfg.Features.MaxConcurrency,
	}
}
