// Package config handles configuration loading, validation, and management for seqsentry.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"seqsentry/internal/sequence"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete seqsentry configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Model configuration for training and scoring.
	Model ModelConfig `toml:"model" json:"model" yaml:"model"`

	// Tokens are the sentinel tokens used by the model.
	Tokens sequence.Tokens `toml:"tokens" json:"tokens" yaml:"tokens"`

	// Input configuration for session files.
	Input InputConfig `toml:"input" json:"input" yaml:"input"`

	// Storage configuration for scoring results.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics configuration.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// Watch configuration for rescoring on input change.
	Watch WatchConfig `toml:"watch" json:"watch" yaml:"watch"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// ModelConfig holds model training and scoring options.
type ModelConfig struct {
	// WindowLength is the sliding window length used for scoring.
	WindowLength int `toml:"window_length" json:"window_length" yaml:"window_length"`

	// UseStartEndTokens prepends the start token and appends the end token
	// to each session.
	UseStartEndTokens bool `toml:"use_start_end_tokens" json:"use_start_end_tokens" yaml:"use_start_end_tokens"`

	// UseGeoMean raises each window likelihood to the power 1/window_length.
	UseGeoMean bool `toml:"use_geo_mean" json:"use_geo_mean" yaml:"use_geo_mean"`

	// ModelType is "auto", "commands", "params" or "values".
	ModelType string `toml:"model_type" json:"model_type" yaml:"model_type"`
}

// InputConfig holds session input options.
type InputConfig struct {
	// Format is "sequence", "keyed" or "tabular". Empty selects by file
	// extension.
	Format string `toml:"format" json:"format" yaml:"format"`

	// MaxFileSize is the maximum input size in bytes.
	MaxFileSize int64 `toml:"max_file_size" json:"max_file_size" yaml:"max_file_size"`
}

// StorageConfig holds result persistence configuration.
type StorageConfig struct {
	// Enabled determines whether runs are recorded.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path is the path to the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log destination: "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when output is "file" or "both").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum size of a log file before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the maximum number of rotated log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of rotated log files.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether to gzip rotated log files.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`

	// AddSource adds source file and line to log records.
	AddSource bool `toml:"add_source" json:"add_source" yaml:"add_source"`

	// RedactPatterns are regular expressions whose matches are masked in
	// logged string values.
	RedactPatterns []string `toml:"redact_patterns,omitempty" json:"redact_patterns,omitempty" yaml:"redact_patterns,omitempty"`
}

// MetricsConfig holds metrics exposition configuration.
type MetricsConfig struct {
	// Enabled determines whether the metrics endpoint is served in watch mode.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Addr is the listen address of the metrics endpoint.
	Addr string `toml:"addr" json:"addr" yaml:"addr"`

	// Path is the HTTP path of the metrics endpoint.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// WatchConfig holds file watching configuration.
type WatchConfig struct {
	// DebounceMs is the debounce interval in milliseconds.
	// Files must be stable for this duration before rescoring.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Model: ModelConfig{
			WindowLength:      3,
			UseStartEndTokens: true,
			UseGeoMean:        false,
			ModelType:         "auto",
		},
		Tokens: sequence.DefaultTokens(),
		Input: InputConfig{
			Format:      "",
			MaxFileSize: 256 * 1024 * 1024, // 256MB
		},
		Storage: StorageConfig{
			Enabled: true,
			Path:    filepath.Join(dir, "results.db"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "seqsentry.log"),
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
			Path:    "/metrics",
		},
		Watch: WatchConfig{
			DebounceMs: 500,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configuration points at.
func (c *Config) EnsureDirectories() error {
	var dirs []string
	if c.Storage.Enabled {
		dirs = append(dirs, filepath.Dir(c.Storage.Path))
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// DataDir returns the base seqsentry data directory.
// Uses platform-specific paths or the SEQSENTRY_DATA_DIR environment override.
func DataDir() string {
	if envDir := os.Getenv("SEQSENTRY_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with SEQSENTRY_ and use underscores.
// Unparseable numeric or boolean values are ignored.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Model overrides
	if v := os.Getenv("SEQSENTRY_WINDOW_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Model.WindowLength = n
		}
	}
	if v := os.Getenv("SEQSENTRY_USE_START_END_TOKENS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Model.UseStartEndTokens = b
		}
	}
	if v := os.Getenv("SEQSENTRY_USE_GEO_MEAN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Model.UseGeoMean = b
		}
	}
	if v := os.Getenv("SEQSENTRY_MODEL_TYPE"); v != "" {
		c.Model.ModelType = v
	}

	// Input overrides
	if v := os.Getenv("SEQSENTRY_INPUT_FORMAT"); v != "" {
		c.Input.Format = v
	}

	// Storage overrides
	if v := os.Getenv("SEQSENTRY_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}

	// Logging overrides
	if v := os.Getenv("SEQSENTRY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SEQSENTRY_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("SEQSENTRY_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}

	// Metrics overrides
	if v := os.Getenv("SEQSENTRY_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version: c.Version,
		Model:   c.Model,
		Tokens:  c.Tokens,
		Input:   c.Input,
		Storage: c.Storage,
		Logging: c.Logging,
		Metrics: c.Metrics,
		Watch:   c.Watch,
	}
	if c.Logging.RedactPatterns != nil {
		clone.Logging.RedactPatterns = append([]string(nil), c.Logging.RedactPatterns...)
	}
	return clone
}

// ScoringOptions returns the sliding-window options of the model section.
func (c *Config) ScoringOptions() sequence.SlidingOptions {
	return sequence.SlidingOptions{
		UseStartEndTokens: c.Model.UseStartEndTokens,
		UseGeoMean:        c.Model.UseGeoMean,
	}
}

// ModelOptions returns the model construction options of the configuration.
// A model type of "auto" or "" detects the type from the training data.
func (c *Config) ModelOptions() (sequence.Options, error) {
	opts := sequence.Options{Tokens: c.Tokens}
	switch c.Model.ModelType {
	case "", "auto":
		opts.DetectType = true
	default:
		mt, err := sequence.ParseModelType(c.Model.ModelType)
		if err != nil {
			return opts, err
		}
		opts.ModelType = mt
	}
	return opts, nil
}
