package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelrecon/internal/config"
	apperrors "panelrecon/internal/errors"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("Date,Ticker\n"), 0o644))
}

func TestValidateFile(t *testing.T) {
	v := NewFileValidator(nil)
	dir := t.TempDir()
	path := filepath.Join(dir, "bars.csv")
	touch(t, path)

	assert.NoError(t, v.ValidateFile(path))
	assert.ErrorContains(t, v.ValidateFile(filepath.Join(dir, "missing.csv")), "does not exist")
	assert.ErrorContains(t, v.ValidateFile(dir), "is a directory")
}

func TestValidateExtension(t *testing.T) {
	v := NewFileValidator(nil)

	assert.NoError(t, v.ValidateExtension("a/B.XLSX", InputExtensions...))
	assert.NoError(t, v.ValidateExtension("panel.parquet", PanelOutputExtensions...))
	assert.Error(t, v.ValidateExtension("panel.parquet", InputExtensions...))
	assert.Error(t, v.ValidateExtension("notes.txt", InputExtensions...))
}

func TestValidateOutputDirectory(t *testing.T) {
	v := NewFileValidator(nil)
	dir := filepath.Join(t.TempDir(), "nested", "out")

	require.NoError(t, v.ValidateOutputDirectory(dir))
	assert.DirExists(t, dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestValidateRun(t *testing.T) {
	v := NewFileValidator(nil)
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Paths.PanelFile = filepath.Join(dir, "features.csv")
	cfg.Paths.BarsFile = filepath.Join(dir, "stock_data.csv")
	cfg.Paths.OutputDir = filepath.Join(dir, "output")
	cfg.Detectors.Sliding.Path = filepath.Join(dir, "sliding.csv")
	cfg.Detectors.Heap.Path = filepath.Join(dir, "heap.csv")

	t.Run("missing panel", func(t *testing.T) {
		err := v.ValidateRun(cfg, false)
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
		assert.Contains(t, err.Error(), "features.csv")
	})

	t.Run("missing detectors only warn", func(t *testing.T) {
		touch(t, cfg.Paths.PanelFile)
		assert.NoError(t, v.ValidateRun(cfg, false))
	})

	t.Run("parquet panel cannot be loaded", func(t *testing.T) {
		parquet := *cfg
		parquet.Paths.PanelFile = filepath.Join(dir, "features.parquet")
		touch(t, parquet.Paths.PanelFile)
		assert.Error(t, v.ValidateRun(&parquet, false))
	})

	t.Run("build mode", func(t *testing.T) {
		build := *cfg
		build.Paths.PanelFile = filepath.Join(dir, "panel", "features.parquet")
		assert.Error(t, v.ValidateRun(&build, true))

		touch(t, build.Paths.BarsFile)
		assert.NoError(t, v.ValidateRun(&build, true))
		assert.NoError(t, v.ValidatePanelBuild(&build))
	})
}
