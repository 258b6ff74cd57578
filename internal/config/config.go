package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable read by Load
const EnvPrefix = "PANELRECON"

// Config represents the complete application configuration
type Config struct {
	Features  FeaturesConfig  `yaml:"features" envconfig:"FEATURES"`
	Detectors DetectorsConfig `yaml:"detectors" envconfig:"DETECTORS"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Report    ReportConfig    `yaml:"report" envconfig:"REPORT"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
}

// FeaturesConfig controls the rolling-window feature builder
type FeaturesConfig struct {
	VolatilityWindow int `yaml:"volatility_window" split_words:"true" default:"10" validate:"min=2"`
	ZScoreWindow     int `yaml:"zscore_window" split_words:"true" default:"20" validate:"min=2"`
	MaxConcurrency   int `yaml:"max_concurrency" split_words:"true" default:"4" validate:"min=1,max=256"`
}

// DetectorConfig names one detector and where its output lives.
// Leaf fields carry split_words, not envconfig names: an envconfig name is
// also looked up unprefixed, and ID or PATH must never come from there.
type DetectorConfig struct {
	ID   string `yaml:"id" split_words:"true" validate:"required"`
	Path string `yaml:"path" split_words:"true"`
}

// DetectorsConfig holds the two detectors being compared
type DetectorsConfig struct {
	FlagColumn string         `yaml:"flag_column" split_words:"true" default:"Anomaly" validate:"required"`
	Sliding    DetectorConfig `yaml:"sliding" envconfig:"SLIDING"`
	Heap       DetectorConfig `yaml:"heap" envconfig:"HEAP"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	BaseDir   string `yaml:"base_dir" split_words:"true"`
	BarsFile  string `yaml:"bars_file" split_words:"true" default:"data/stock_data.csv"`
	PanelFile string `yaml:"panel_file" split_words:"true" default:"data/features.csv"`
	OutputDir string `yaml:"output_dir" split_words:"true" default:"output"`
}

// ReportConfig controls summary output
type ReportConfig struct {
	TopN int `yaml:"top_n" split_words:"true" default:"10" validate:"min=1"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" split_words:"true" default:"info" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" split_words:"true" default:"json" validate:"oneof=json text"`
	Output   string `yaml:"output" split_words:"true" default:"console" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" split_words:"true" default:"logs/panelrecon.log"`
}

// TelemetryConfig controls OpenTelemetry tracing and metrics
type TelemetryConfig struct {
	Environment    string  `yaml:"environment" split_words:"true" default:"development"`
	TraceExporter  string  `yaml:"trace_exporter" split_words:"true" default:"none" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" split_words:"true" default:"prometheus" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" split_words:"true" default:"1.0" validate:"gte=0,lte=1"`
}

// ServerConfig contains the read-only report server configuration
type ServerConfig struct {
	Addr            string        `yaml:"addr" split_words:"true" default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true" default:"15s" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true" default:"15s" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true" default:"10s" validate:"gt=0"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" split_words:"true" default:"50" validate:"gte=0"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" split_words:"true" default:"100" validate:"gte=0"`
}

// Load builds the configuration from defaults and PANELRECON_* environment
// variables, then overlays the YAML file at path when one is given or found
// in a default location. Keys present in the file win over the environment.
func Load(path string) (*Config, error) {
	var cfg Config

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	cfg.applyDetectorDefaults()
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile overlays YAML keys onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyDetectorDefaults fills the historical detector IDs and output locations
func (c *Config) applyDetectorDefaults() {
	if c.Detectors.Sliding.ID == "" {
		c.Detectors.Sliding.ID = "sliding"
	}
	if c.Detectors.Sliding.Path == "" {
		c.Detectors.Sliding.Path = filepath.Join(c.Paths.OutputDir, "sliding_anomalies.csv")
	}
	if c.Detectors.Heap.ID == "" {
		c.Detectors.Heap.ID = "heap"
	}
	if c.Detectors.Heap.Path == "" {
		c.Detectors.Heap.Path = filepath.Join(c.Paths.OutputDir, "heap_anomalies.csv")
	}
}

// resolvePaths anchors relative paths at BaseDir when one is configured
func (c *Config) resolvePaths() {
	if c.Paths.BaseDir == "" {
		return
	}
	c.Paths.BarsFile = c.Resolve(c.Paths.BarsFile)
	c.Paths.PanelFile = c.Resolve(c.Paths.PanelFile)
	c.Paths.OutputDir = c.Resolve(c.Paths.OutputDir)
	c.Detectors.Sliding.Path = c.Resolve(c.Detectors.Sliding.Path)
	c.Detectors.Heap.Path = c.Resolve(c.Detectors.Heap.Path)
	c.Logging.FilePath = c.Resolve(c.Logging.FilePath)
}

// Resolve returns p anchored at BaseDir unless it is absolute or empty
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Paths.BaseDir == "" {
		return p
	}
	return filepath.Join(c.Paths.BaseDir, p)
}

// OutputPath returns a file name inside the output directory
func (c *Config) OutputPath(name string) string {
	return filepath.Join(c.Paths.OutputDir, name)
}

// Validate checks struct constraints and cross-field rules
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}

	if c.Detectors.Sliding.ID == c.Detectors.Heap.ID {
		return fmt.Errorf("detector IDs must differ, both are %q", c.Detectors.Sliding.ID)
	}

	return nil
}

// findConfigFile returns the first config file found in common locations
func findConfigFile() string {
	locations := []string{
		"panelrecon.yaml",
		"configs/panelrecon.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration without consulting env or files
func Default() *Config {
	cfg := &Config{
		Features: FeaturesConfig{
			VolatilityWindow: 10,
			ZScoreWindow:     20,
			MaxConcurrency:   4,
		},
		Detectors: DetectorsConfig{
			FlagColumn: "Anomaly",
		},
		Paths: PathsConfig{
			BarsFile:  "data/stock_data.csv",
			PanelFile: "data/features.csv",
			OutputDir: "output",
		},
		Report: ReportConfig{TopN: 10},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/panelrecon.log",
		},
		Telemetry: TelemetryConfig{
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimitRPS:    50,
			RateLimitBurst:  100,
		},
	}
	cfg.applyDetectorDefaults()
	return cfg
}
