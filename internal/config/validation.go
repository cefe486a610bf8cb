package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"seqsentry/internal/sequence"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is lets errors.Is match ErrInvalidConfig.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Fields returns the names of the offending fields.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, err := range e {
		fields[i] = err.Field
	}
	return fields
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateModel(&c.Model)...)
	errs = append(errs, validateTokens(&c.Tokens)...)
	errs = append(errs, validateInput(&c.Input)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)
	errs = append(errs, validateWatch(&c.Watch)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateModel(m *ModelConfig) ValidationErrors {
	var errs ValidationErrors

	if m.WindowLength < 1 {
		errs = append(errs, ValidationError{
			Field:   "model.window_length",
			Message: "window length must be at least 1",
		})
	}

	switch m.ModelType {
	case "", "auto":
	default:
		if _, err := sequence.ParseModelType(m.ModelType); err != nil {
			errs = append(errs, ValidationError{
				Field:   "model.model_type",
				Message: fmt.Sprintf("invalid model type: %s (valid: auto, commands, params, values)", m.ModelType),
			})
		}
	}

	return errs
}

func validateTokens(t *sequence.Tokens) ValidationErrors {
	if err := t.Validate(); err != nil {
		return ValidationErrors{{Field: "tokens", Message: err.Error()}}
	}
	return nil
}

func validateInput(in *InputConfig) ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(in.Format) {
	case "", "sequence", "json", "keyed", "yaml", "tabular", "csv":
	default:
		errs = append(errs, ValidationError{
			Field:   "input.format",
			Message: fmt.Sprintf("invalid input format: %s (valid: sequence, keyed, tabular)", in.Format),
		})
	}

	if in.MaxFileSize < 0 {
		errs = append(errs, ValidationError{
			Field:   "input.max_file_size",
			Message: "max file size cannot be negative",
		})
	}

	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	if s.Enabled && s.Path == "" {
		return ValidationErrors{{
			Field:   "storage.path",
			Message: "database path is required when storage is enabled",
		}}
	}
	return nil
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
		// Valid formats
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	for i, p := range l.RedactPatterns {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("logging.redact_patterns[%d]", i),
				Message: fmt.Sprintf("invalid pattern: %v", err),
			})
		}
	}

	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	if !m.Enabled {
		return nil
	}

	var errs ValidationErrors
	if _, _, err := net.SplitHostPort(m.Addr); err != nil {
		errs = append(errs, ValidationError{
			Field:   "metrics.addr",
			Message: fmt.Sprintf("invalid listen address: %s", m.Addr),
		})
	}
	if !strings.HasPrefix(m.Path, "/") {
		errs = append(errs, ValidationError{
			Field:   "metrics.path",
			Message: "path must start with /",
		})
	}
	return errs
}

func validateWatch(w *WatchConfig) ValidationErrors {
	if w.DebounceMs < 100 {
		return ValidationErrors{{
			Field:   "watch.debounce_ms",
			Message: "debounce must be at least 100ms",
		}}
	}
	return nil
}
