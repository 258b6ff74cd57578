package operations

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelrecon/internal/config"
	"panelrecon/internal/detection"
	apperrors "panelrecon/internal/errors"
	"panelrecon/internal/exporter"
	"panelrecon/internal/infrastructure"
	"panelrecon/pkg/contracts/domain"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func testPanel(days int, tickers ...string) *domain.Panel {
	var rows []domain.PanelRow
	for i := 0; i < days; i++ {
		for j, ticker := range tickers {
			rows = append(rows, domain.PanelRow{
				Ticker:       ticker,
				Date:         day0.AddDate(0, 0, i),
				Close:        float64(100*(j+1) + i),
				Volume:       1000,
				DailyReturn:  0.01,
				Volatility:   0.02,
				VolumeZScore: 0.5,
			})
		}
	}
	return domain.NewPanel(rows)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// fixture writes a 3-ticker panel plus both detector files. With rows
// ordered (date, ticker) sliding flags AAPL d0, GOOG d1, MSFT d2 and heap
// flags AAPL d0, GOOG d2, MSFT d2.
func fixture(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Paths.PanelFile = filepath.Join(dir, "features.csv")
	cfg.Paths.OutputDir = filepath.Join(dir, "output")
	cfg.Detectors.Sliding = config.DetectorConfig{ID: "sliding", Path: filepath.Join(dir, "sliding_anomalies.csv")}
	cfg.Detectors.Heap = config.DetectorConfig{ID: "heap", Path: filepath.Join(dir, "heap_anomalies.csv")}

	require.NoError(t, exporter.WritePanelCSV(cfg.Paths.PanelFile, testPanel(5, "AAPL", "GOOG", "MSFT")))
	writeFile(t, cfg.Detectors.Sliding.Path, "index,Volume,Anomaly\n0,1000,1\n1,1000,0\n4,1000,1\n8,1000,1\n")
	writeFile(t, cfg.Detectors.Heap.Path, "Ticker,index,Anomaly\nAAPL,0,1\nGOOG,2,True\nMSFT,2,1\nMSFT,3,0\n")
	return cfg
}

func newPipelineManager(t *testing.T, cfg *config.Config) *Manager {
	t.Helper()
	metrics, err := infrastructure.NewPipelineMetrics(nil)
	require.NoError(t, err)

	reg, err := NewPipelineRegistry(cfg, ModeLoadPanel, metrics, nil)
	require.NoError(t, err)
	return NewManager(reg, nil, WithMetrics(metrics))
}

func TestManager_Pipeline(t *testing.T) {
	cfg := fixture(t)
	mgr := newPipelineManager(t, cfg)

	state, err := mgr.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, state.GetStatus())
	assert.NotEmpty(t, state.ID)

	cmp, ok := state.Comparison()
	require.True(t, ok)
	assert.Equal(t, 15, cmp.PanelRows)
	assert.Equal(t, 3, cmp.A.Total)
	assert.Equal(t, 3, cmp.B.Total)
	assert.InDelta(t, 20.0, cmp.A.Rate, 1e-9)
	require.Len(t, cmp.Overlap, 2)
	assert.Equal(t, "AAPL", cmp.Overlap[0].Ticker)
	assert.Equal(t, "MSFT", cmp.Overlap[1].Ticker)

	for _, name := range []string{SummaryTextFile, SummaryJSONFile, OverlapFile, "sliding_canonical.csv", "heap_canonical.csv"} {
		assert.FileExists(t, filepath.Join(cfg.Paths.OutputDir, name))
	}
	assert.Len(t, state.Outputs(), 5)

	last, ok := mgr.LastRun()
	require.True(t, ok)
	assert.Equal(t, state.ID, last.ID)

	_, ok = mgr.Comparison()
	assert.True(t, ok)
}

func TestManager_MissingDetectorFile(t *testing.T) {
	cfg := fixture(t)
	require.NoError(t, os.Remove(cfg.Detectors.Heap.Path))
	mgr := newPipelineManager(t, cfg)

	state, err := mgr.Execute(context.Background())
	require.NoError(t, err)

	cmp, ok := state.Comparison()
	require.True(t, ok)
	assert.Equal(t, 3, cmp.A.Total)
	assert.Equal(t, 0, cmp.B.Total)
	assert.Empty(t, cmp.Overlap)
	assert.Equal(t, 1, cmp.B.Diagnostics[detection.KindEmptyInput])
}

func TestManager_DuplicatePanelKeyAborts(t *testing.T) {
	cfg := fixture(t)
	rows := testPanel(5, "AAPL", "GOOG", "MSFT").Rows()
	rows = append(rows, rows[0])
	require.NoError(t, exporter.WritePanelCSV(cfg.Paths.PanelFile, domain.NewPanel(rows)))
	mgr := newPipelineManager(t, cfg)

	state, err := mgr.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.True(t, apperrors.IsInvariantViolation(err))

	assert.Equal(t, RunStatusFailed, state.GetStatus())
	assert.Zero(t, state.CanonicalCount())
	_, ok := state.Comparison()
	assert.False(t, ok)

	assert.Equal(t, StepStatusFailed, state.Step(StepIDReconcile).GetStatus())
	assert.Equal(t, StepStatusSkipped, state.Step(StepIDCompare).GetStatus())
	assert.Equal(t, StepStatusSkipped, state.Step(StepIDExport).GetStatus())
	assert.NoFileExists(t, filepath.Join(cfg.Paths.OutputDir, SummaryTextFile))
}

func TestManager_FatalErrorClearsCanonical(t *testing.T) {
	reg := NewRegistry()

	publish := newFakeStep("publish")
	publish.run = func(ctx context.Context, state *RunState) error {
		state.SetCanonical(map[string][]domain.CanonicalAnomaly{
			"sliding": {{Ticker: "AAPL", Date: day0, DetectorID: "sliding"}},
		}, nil)
		return nil
	}
	verify := newFakeStep("verify", "publish")
	verify.run = func(ctx context.Context, state *RunState) error {
		require.Equal(t, 1, state.CanonicalCount())
		return apperrors.NewInvariantViolation("duplicate key AAPL/2024-03-01")
	}
	require.NoError(t, reg.Register(publish))
	require.NoError(t, reg.Register(verify))

	state, err := NewManager(reg, nil).Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrorTypeFatal, GetErrorType(err))
	assert.Zero(t, state.CanonicalCount())
}

func TestManager_ComparisonSurvivesLaterFailure(t *testing.T) {
	reg := NewRegistry()
	fail := false

	compare := newFakeStep("compare")
	compare.run = func(ctx context.Context, state *RunState) error {
		if fail {
			return errors.New("detector file locked")
		}
		state.SetComparison(domain.Comparison{PanelRows: 42})
		return nil
	}
	require.NoError(t, reg.Register(compare))
	m := NewManager(reg, nil)

	_, ok := m.Comparison()
	assert.False(t, ok)

	first, err := m.Execute(context.Background())
	require.NoError(t, err)

	fail = true
	second, err := m.Execute(context.Background())
	require.Error(t, err)

	last, ok := m.LastRun()
	require.True(t, ok)
	assert.Equal(t, second.ID, last.ID)

	cmp, ok := m.Comparison()
	require.True(t, ok)
	assert.Equal(t, 42, cmp.PanelRows)
	_, ok = first.Comparison()
	assert.True(t, ok)
}

func TestManager_StepFailureSkipsRest(t *testing.T) {
	reg := NewRegistry()
	var ran []string

	for _, s := range []*fakeStep{newFakeStep("a"), newFakeStep("b", "a"), newFakeStep("c")} {
		id := s.ID()
		s.run = func(ctx context.Context, state *RunState) error {
			ran = append(ran, id)
			if id == "b" {
				return errors.New("boom")
			}
			return nil
		}
		require.NoError(t, reg.Register(s))
	}

	state, err := NewManager(reg, nil).Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrorTypeExecution, GetErrorType(err))
	assert.False(t, IsFatal(err))

	assert.Equal(t, []string{"a", "b"}, ran)
	assert.Equal(t, StepStatusCompleted, state.Step("a").GetStatus())
	assert.Equal(t, StepStatusFailed, state.Step("b").GetStatus())
	assert.Equal(t, StepStatusSkipped, state.Step("c").GetStatus())
	assert.Equal(t, RunStatusFailed, state.GetStatus())
}

func TestManager_Cancelled(t *testing.T) {
	reg := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	first := newFakeStep("first")
	first.run = func(context.Context, *RunState) error {
		cancel()
		return nil
	}
	require.NoError(t, reg.Register(first))
	require.NoError(t, reg.Register(newFakeStep("second", "first")))

	state, err := NewManager(reg, nil).Execute(ctx)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeCancellation, GetErrorType(err))
	assert.Equal(t, RunStatusCancelled, state.GetStatus())
	assert.Equal(t, StepStatusSkipped, state.Step("second").GetStatus())
}

func TestManager_StepTimeout(t *testing.T) {
	reg := NewRegistry()
	slow := newFakeStep("slow")
	slow.run = func(ctx context.Context, _ *RunState) error {
		<-ctx.Done()
		return ctx.Err()
	}
	require.NoError(t, reg.Register(slow))

	_, err := NewManager(reg, nil, WithStepTimeout(10*time.Millisecond)).Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrorTypeCancellation, GetErrorType(err))
}
