package logging

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"ERROR", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	for _, s := range []string{"debug", "info", "warn", "error"} {
		level, err := ParseLevel(s)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", s, err)
		}
		if got := LevelString(level); got != s {
			t.Errorf("expected %q, got %q", s, got)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("expected json, got %v (%v)", f, err)
	}
	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("expected text, got %v (%v)", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level Info, got %v", cfg.Level)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected default output stderr, got %s", cfg.Output)
	}
	if cfg.Component != "seqsentry" {
		t.Errorf("expected component seqsentry, got %s", cfg.Component)
	}
}

func newBufferLogger(t *testing.T, mutate func(*Config)) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = FormatJSON
	cfg.Writer = &buf
	if mutate != nil {
		mutate(cfg)
	}
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return l, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", buf.String(), err)
	}
	buf.Reset()
	return entry
}

func TestJSONFormat(t *testing.T) {
	logger, buf := newBufferLogger(t, nil)

	logger.Info("trained", "sessions", 3)
	entry := decodeLine(t, buf)

	if entry["msg"] != "trained" {
		t.Errorf("unexpected msg: %v", entry["msg"])
	}
	if entry["component"] != "seqsentry" {
		t.Errorf("unexpected component: %v", entry["component"])
	}
	if entry["sessions"] != float64(3) {
		t.Errorf("unexpected sessions: %v", entry["sessions"])
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(t, func(c *Config) { c.Level = LevelWarn })

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level: %s", buf.String())
	}
	logger.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn should be logged")
	}
}

func TestLoggerWithRunID(t *testing.T) {
	logger, buf := newBufferLogger(t, nil)

	logger.WithRunID("run-123").Info("scored")
	if entry := decodeLine(t, buf); entry["run_id"] != "run-123" {
		t.Errorf("expected run_id, got %v", entry)
	}

	ctx := ContextWithRunID(context.Background(), "run-456")
	logger.WithContext(ctx).Info("scored")
	if entry := decodeLine(t, buf); entry["run_id"] != "run-456" {
		t.Errorf("expected run_id from context, got %v", entry)
	}

	if logger.WithContext(context.Background()) != logger {
		t.Error("WithContext without a run ID should return the same logger")
	}
}

func TestLoggerWithComponent(t *testing.T) {
	logger, buf := newBufferLogger(t, func(c *Config) { c.Format = FormatText })

	logger.WithComponent("runner").Info("hello")
	if !strings.Contains(buf.String(), "component=runner") {
		t.Errorf("expected component attribute: %s", buf.String())
	}
}

func TestRunIDContext(t *testing.T) {
	if RunIDFromContext(nil) != "" {
		t.Error("nil context should have no run ID")
	}
	if RunIDFromContext(context.Background()) != "" {
		t.Error("empty context should have no run ID")
	}
	if RunIDFromContext(ContextWithRunID(context.Background(), "x")) != "x" {
		t.Error("run ID not round-tripped")
	}
}

func TestShouldRedact(t *testing.T) {
	tests := []struct {
		key      string
		expected bool
	}{
		{"password", true},
		{"db_password", true},
		{"API_KEY", true},
		{"client_secret", true},
		{"access_token", true},
		{"session_id", false},
		{"unknown_token_count", false},
		{"window_length", false},
	}

	for _, test := range tests {
		t.Run(test.key, func(t *testing.T) {
			if got := shouldRedact(test.key); got != test.expected {
				t.Errorf("shouldRedact(%q) = %v, want %v", test.key, got, test.expected)
			}
		})
	}
}

func TestRedaction(t *testing.T) {
	logger, buf := newBufferLogger(t, func(c *Config) {
		c.RedactPatterns = []string{`--password=\S+`}
	})

	logger.Info("cmd", "password", "hunter2", "window", "mysql --password=hunter2 -u root")
	entry := decodeLine(t, buf)

	if entry["password"] != redacted {
		t.Errorf("password not redacted: %v", entry["password"])
	}
	if entry["window"] != "mysql "+redacted+" -u root" {
		t.Errorf("pattern not redacted: %v", entry["window"])
	}
}

func TestInvalidRedactPattern(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Writer = io.Discard
	cfg.RedactPatterns = []string{"("}
	if _, err := New(cfg); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("discarded")
	if err := l.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "seqsentry.log")
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = logPath

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	logger.Info("to file")
	if err := logger.Sync(); err != nil {
		t.Errorf("sync failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file missing entry: %s", data)
	}
}

func TestFileRotatorRequiresPath(t *testing.T) {
	if _, err := NewFileRotator(&Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestFileRotatorRotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	cfg := &Config{
		FilePath:   logPath,
		MaxSize:    1, // 1 MB
		MaxAge:     7,
		MaxBackups: 2,
		Compress:   true,
	}

	rotator, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer rotator.Close()

	line := []byte(strings.Repeat("x", 1023) + "\n")
	// Roughly 3.5 MB forces three rotations.
	for i := 0; i < 3600; i++ {
		if _, err := rotator.Write(line); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	files, err := rotator.LogFiles()
	if err != nil {
		t.Fatalf("failed to get log files: %v", err)
	}
	if files[0] != logPath {
		t.Errorf("expected current file first, got %s", files[0])
	}

	rotated := files[1:]
	if len(rotated) != cfg.MaxBackups {
		t.Fatalf("expected %d backups, got %d: %v", cfg.MaxBackups, len(rotated), rotated)
	}

	for _, f := range rotated {
		if !strings.HasSuffix(f, ".gz") {
			t.Errorf("expected compressed backup, got %s", f)
			continue
		}
		fh, err := os.Open(f)
		if err != nil {
			t.Fatalf("open backup: %v", err)
		}
		gz, err := gzip.NewReader(fh)
		if err != nil {
			fh.Close()
			t.Fatalf("gzip reader: %v", err)
		}
		n, _ := io.Copy(io.Discard, gz)
		gz.Close()
		fh.Close()
		if n == 0 || n > 1024*1024 {
			t.Errorf("unexpected backup size %d", n)
		}
	}

	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatalf("stat current log: %v", err)
	}
	if info.Size() > 1024*1024 {
		t.Errorf("current log exceeds max size: %d", info.Size())
	}
}
