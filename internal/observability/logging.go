// Package observability provides structured logging and Prometheus metrics
// for the orchestration core.
package observability

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Format specifies output format: "json" or "text".
	Format string `yaml:"format"`

	// Output is the writer for log output (defaults to os.Stderr).
	Output io.Writer `yaml:"-"`
}

// DefaultRedactPatterns covers bearer tokens and API keys that could leak
// through provider error payloads.
var DefaultRedactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer)\s+[a-zA-Z0-9_\-\.]{16,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9_\-]{20,}`),
	regexp.MustCompile(`(?i)(api[_-]?key)[\s:=]+["']?[a-zA-Z0-9_\-]{16,}["']?`),
}

// Redact replaces sensitive substrings in s with a placeholder. Applied to
// raw provider payloads before logging.
func Redact(s string) string {
	for _, re := range DefaultRedactPatterns {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// NewLogger creates a structured slog logger with the given configuration.
func NewLogger(config LogConfig) *slog.Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	level := slog.LevelInfo
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(config.Format) == "text" {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}
	return slog.New(handler)
}
