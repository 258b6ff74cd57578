// Package validation checks a run's input and output locations before any
// step executes, so a misconfigured path fails fast with a clear message.
package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"panelrecon/internal/config"
	apperrors "panelrecon/internal/errors"
)

// Extensions accepted for tabular input and for panel output
var (
	InputExtensions       = []string{".csv", ".xlsx", ".xlsm"}
	PanelOutputExtensions = []string{".csv", ".xlsx", ".parquet"}
)

// FileValidator provides file checks shared by the commands
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{logger: logger}
}

// ValidateFile checks that path exists, is a regular file and can be opened
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	file.Close()

	v.logger.Debug("file validated", slog.String("file", path), slog.Int64("size", info.Size()))
	return nil
}

// ValidateExtension checks that path ends in one of allowed
func (v *FileValidator) ValidateExtension(path string, allowed ...string) error {
	ext := strings.ToLower(filepath.Ext(path))
	for _, a := range allowed {
		if ext == a {
			return nil
		}
	}
	return fmt.Errorf("%s: unsupported extension %q, want one of %s", path, ext, strings.Join(allowed, ", "))
}

// ValidateOutputDirectory ensures dir exists or can be created, and is writable
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".write_test")
	if err != nil {
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	tmp.Close()
	os.Remove(tmp.Name())

	v.logger.Debug("output directory validated", slog.String("directory", dir))
	return nil
}

// ValidateRun checks every location a pipeline run touches. With
// buildPanel the bars file is read and the panel file written; otherwise
// the panel file is read. Missing detector files only warn because the
// run treats them as empty output.
func (v *FileValidator) ValidateRun(cfg *config.Config, buildPanel bool) error {
	problems := v.panelProblems(cfg, buildPanel)

	for _, d := range []config.DetectorConfig{cfg.Detectors.Sliding, cfg.Detectors.Heap} {
		if err := v.ValidateFile(d.Path); err != nil {
			v.logger.Warn("detector output unavailable, it will count as empty",
				slog.String("detector", d.ID),
				slog.String("error", err.Error()))
			continue
		}
		problems = appendErr(problems, v.ValidateExtension(d.Path, InputExtensions...))
	}

	if cfg.Paths.OutputDir != "" {
		problems = appendErr(problems, v.ValidateOutputDirectory(cfg.Paths.OutputDir))
	}
	return validationError("invalid run inputs", problems)
}

// ValidatePanelBuild checks the locations a standalone panel build touches
func (v *FileValidator) ValidatePanelBuild(cfg *config.Config) error {
	return validationError("invalid panel build inputs", v.panelProblems(cfg, true))
}

func (v *FileValidator) panelProblems(cfg *config.Config, buildPanel bool) []string {
	var problems []string
	if buildPanel {
		problems = appendErr(problems, v.ValidateFile(cfg.Paths.BarsFile))
		problems = appendErr(problems, v.ValidateExtension(cfg.Paths.BarsFile, InputExtensions...))
		problems = appendErr(problems, v.ValidateExtension(cfg.Paths.PanelFile, PanelOutputExtensions...))
		problems = appendErr(problems, v.ValidateOutputDirectory(filepath.Dir(cfg.Paths.PanelFile)))
		return problems
	}
	// the panel is read back through the tabular readers, so no parquet here
	problems = appendErr(problems, v.ValidateFile(cfg.Paths.PanelFile))
	problems = appendErr(problems, v.ValidateExtension(cfg.Paths.PanelFile, InputExtensions...))
	return problems
}

func appendErr(problems []string, err error) []string {
	if err != nil {
		problems = append(problems, err.Error())
	}
	return problems
}

func validationError(msg string, problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return apperrors.NewAppValidationError(msg+": "+strings.Join(problems, "; ")).
		WithContext("problems", problems)
}
