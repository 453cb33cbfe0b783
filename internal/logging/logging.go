// Package logging provides structured logging for netrecon on top of log/slog.
// It supports text and JSON output, configurable levels, and component
// scoped helpers used by the discovery, scanning and topology engines.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	// File permissions for directories and log files.
	logDirPerm  = 0750
	logFilePerm = 0600
)

// LogLevel represents the available log levels.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFormat represents the available log formats.
type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// Config holds logging configuration.
type Config struct {
	Level     LogLevel  `yaml:"level" json:"level"`
	Format    LogFormat `yaml:"format" json:"format"`
	Output    string    `yaml:"output" json:"output"`
	AddSource bool      `yaml:"add_source" json:"add_source"`
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:     LevelInfo,
		Format:    FormatText,
		Output:    "stdout",
		AddSource: false,
	}
}

// Logger wraps slog.Logger with additional functionality.
type Logger struct {
	*slog.Logger
	config Config
}

// New creates a new structured logger with the given configuration.
func New(cfg Config) (*Logger, error) {
	// Determine output writer
	var writer io.Writer
	switch cfg.Output {
	case "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		// Assume it's a file path
		if err := os.MkdirAll(filepath.Dir(cfg.Output), logDirPerm); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
		if err != nil {
			return nil, err
		}
		writer = file
	}

	return NewWithWriter(writer, cfg), nil
}

// NewWithWriter creates a logger that writes to w instead of the configured output.
func NewWithWriter(w io.Writer, cfg Config) *Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		config: cfg,
	}
}

func parseLevel(l LogLevel) slog.Level {
	switch strings.ToLower(string(l)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewDefault creates a logger with default configuration.
func NewDefault() *Logger {
	logger, _ := New(DefaultConfig())
	return logger
}

type scanIDKey struct{}

// ContextWithScanID stores a scan ID so loggers derived with WithContext carry it.
func ContextWithScanID(ctx context.Context, scanID string) context.Context {
	return context.WithValue(ctx, scanIDKey{}, scanID)
}

// WithContext returns a logger tagged with the scan ID stored in ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if id, ok := ctx.Value(scanIDKey{}).(string); ok && id != "" {
		return l.WithScanID(id)
	}
	return l
}

// WithFields adds structured fields to the logger.
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger: l.With(fields...),
		config: l.config,
	}
}

// WithComponent adds a component field to the logger.
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithScanID adds a scan ID field to the logger.
func (l *Logger) WithScanID(scanID string) *Logger {
	return l.WithFields("scan_id", scanID)
}

// WithTarget adds a target field to the logger.
func (l *Logger) WithTarget(target string) *Logger {
	return l.WithFields("target", target)
}

// InfoScan logs scan-related information.
func (l *Logger) InfoScan(msg, target string, fields ...any) {
	allFields := append([]any{"target", target}, fields...)
	l.Info(msg, allFields...)
}

// ErrorScan logs scan-related errors.
func (l *Logger) ErrorScan(msg, target string, err error, fields ...any) {
	allFields := append([]any{"target", target, "error", err}, fields...)
	l.Error(msg, allFields...)
}

// InfoDiscovery logs discovery-related information.
func (l *Logger) InfoDiscovery(msg, network string, fields ...any) {
	allFields := append([]any{"network", network}, fields...)
	l.Info(msg, allFields...)
}

// ErrorDiscovery logs discovery-related errors.
func (l *Logger) ErrorDiscovery(msg, network string, err error, fields ...any) {
	allFields := append([]any{"network", network, "error", err}, fields...)
	l.Error(msg, allFields...)
}

// InfoTopology logs gateway and route detection information.
func (l *Logger) InfoTopology(msg string, fields ...any) {
	allFields := append([]any{"component", "topology"}, fields...)
	l.Info(msg, allFields...)
}

// WarnStrategy logs a discovery strategy that degraded to an empty result.
func (l *Logger) WarnStrategy(msg, strategy string, err error, fields ...any) {
	allFields := append([]any{"strategy", strategy, "error", err}, fields...)
	l.Warn(msg, allFields...)
}

// Global logger instance - can be replaced for testing.
var defaultLogger = NewDefault()

// SetDefault sets the default logger instance.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}

// Default returns the default logger instance.
func Default() *Logger {
	return defaultLogger
}

// Info logs at info level using the default logger.
func Info(msg string, fields ...any) {
	defaultLogger.Info(msg, fields...)
}

// Warn logs at warn level using the default logger.
func Warn(msg string, fields ...any) {
	defaultLogger.Warn(msg, fields...)
}

// WithComponent returns the default logger scoped to a component.
func WithComponent(component string) *Logger {
	return defaultLogger.WithComponent(component)
}
