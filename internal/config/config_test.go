package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "panelrecon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// chdirTemp moves into an empty directory so Load finds no config file
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Features.VolatilityWindow)
	assert.Equal(t, 20, cfg.Features.ZScoreWindow)
	assert.Equal(t, "Anomaly", cfg.Detectors.FlagColumn)
	assert.Equal(t, "sliding", cfg.Detectors.Sliding.ID)
	assert.Equal(t, "heap", cfg.Detectors.Heap.ID)
	assert.Equal(t, filepath.Join("output", "sliding_anomalies.csv"), cfg.Detectors.Sliding.Path)
	assert.Equal(t, filepath.Join("output", "heap_anomalies.csv"), cfg.Detectors.Heap.Path)
	assert.Equal(t, 10, cfg.Report.TopN)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PANELRECON_FEATURES_Z_SCORE_WINDOW", "30")
	t.Setenv("PANELRECON_DETECTORS_HEAP_ID", "heap-v2")
	t.Setenv("PANELRECON_LOGGING_LEVEL", "debug")

	cfg, err := Load(writeConfigFile(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Features.ZScoreWindow)
	assert.Equal(t, "heap-v2", cfg.Detectors.Heap.ID)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_IgnoresUnprefixedEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PATH", "/usr/bin:/bin")
	t.Setenv("ID", "stray")
	t.Setenv("LEVEL", "verbose")
	t.Setenv("OUTPUT", "syslog")
	t.Setenv("ADDR", ":1")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sliding", cfg.Detectors.Sliding.ID)
	assert.Equal(t, "heap", cfg.Detectors.Heap.ID)
	assert.Equal(t, filepath.Join("output", "sliding_anomalies.csv"), cfg.Detectors.Sliding.Path)
	assert.Equal(t, filepath.Join("output", "heap_anomalies.csv"), cfg.Detectors.Heap.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Output)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_EnvOnly(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PANELRECON_DETECTORS_SLIDING_PATH", "/runs/window.csv")
	t.Setenv("PANELRECON_DETECTORS_HEAP_ID", "mad")
	t.Setenv("PANELRECON_PATHS_OUTPUT_DIR", "results")
	t.Setenv("PANELRECON_REPORT_TOP_N", "5")
	t.Setenv("PANELRECON_SERVER_RATE_LIMIT_RPS", "2.5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/runs/window.csv", cfg.Detectors.Sliding.Path)
	assert.Equal(t, "sliding", cfg.Detectors.Sliding.ID)
	assert.Equal(t, "mad", cfg.Detectors.Heap.ID)
	assert.Equal(t, filepath.Join("results", "heap_anomalies.csv"), cfg.Detectors.Heap.Path)
	assert.Equal(t, 5, cfg.Report.TopN)
	assert.Equal(t, 2.5, cfg.Server.RateLimitRPS)
}

func TestLoad_FileOverlay(t *testing.T) {
	t.Setenv("PANELRECON_REPORT_TOP_N", "3")

	path := writeConfigFile(t, `
features:
  volatility_window: 5
detectors:
  sliding:
    id: window
    path: /data/window.csv
report:
  top_n: 7
server:
  read_timeout: 2s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Features.VolatilityWindow)
	assert.Equal(t, 20, cfg.Features.ZScoreWindow, "keys absent from the file keep their defaults")
	assert.Equal(t, "window", cfg.Detectors.Sliding.ID)
	assert.Equal(t, "/data/window.csv", cfg.Detectors.Sliding.Path)
	assert.Equal(t, 7, cfg.Report.TopN)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_BaseDir(t *testing.T) {
	base := t.TempDir()
	path := writeConfigFile(t, "paths:\n  base_dir: "+base+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "data", "features.csv"), cfg.Paths.PanelFile)
	assert.Equal(t, filepath.Join(base, "output", "heap_anomalies.csv"), cfg.Detectors.Heap.Path)
	assert.Equal(t, "/abs/file.csv", cfg.Resolve("/abs/file.csv"))
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"window too small", "features:\n  volatility_window: 1\n"},
		{"bad log level", "logging:\n  level: verbose\n"},
		{"same detector ids", "detectors:\n  sliding:\n    id: x\n  heap:\n    id: x\n"},
		{"top n zero", "report:\n  top_n: 0\n"},
		{"malformed yaml", "features: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfigFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, filepath.Join("output", "summary.txt"), cfg.OutputPath("summary.txt"))
}
