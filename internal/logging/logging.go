package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kappaborg/HIJACK-Audio/internal/conf"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu                  sync.RWMutex
	structuredLogger    *slog.Logger
	humanReadableLogger *slog.Logger

	// Shared by every handler so SetLevel takes effect without rebuilding loggers.
	level = new(slog.LevelVar)
)

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

// Add trace and fatal level names.
var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		lvl, ok := a.Value.Any().(slog.Level)
		if !ok {
			return a
		}
		label, exists := levelNames[lvl]
		if !exists {
			label = lvl.String()
		}
		a.Value = slog.StringValue(label)
	}
	return a
}

func handlerOptions() *slog.HandlerOptions {
	return &slog.HandlerOptions{Level: level, ReplaceAttr: replaceLevel}
}

// Init initializes the logging system with structured and human-readable loggers.
// Both write to stderr so that command output on stdout stays machine readable.
func Init() {
	SetOutput(os.Stderr, os.Stderr)
}

// SetLevel sets the minimum logging level for every logger created by this package.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// ParseLevel converts a config level name into a slog level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetOutput redirects logger output, e.g. to a buffer in tests.
func SetOutput(structuredOutput, humanReadableOutput io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	structuredLogger = slog.New(slog.NewJSONHandler(structuredOutput, handlerOptions()))
	humanReadableLogger = slog.New(slog.NewTextHandler(humanReadableOutput, handlerOptions()))

	slog.SetDefault(structuredLogger)
}

// Structured returns the globally configured structured (JSON) logger.
func Structured() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if structuredLogger == nil {
		return slog.Default()
	}
	return structuredLogger
}

// HumanReadable returns the globally configured human-readable (Text) logger.
func HumanReadable() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if humanReadableLogger == nil {
		return slog.Default()
	}
	return humanReadableLogger
}

// ForService creates a new logger instance with the 'service' attribute added.
// Before Init it derives from slog.Default so callers never receive nil.
func ForService(serviceName string) *slog.Logger {
	return Structured().With("service", serviceName)
}

// Debug logs a debug message using the default slog logger.
func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

// Info logs an info message using the default slog logger.
func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

// Warn logs a warning message using the default slog logger.
func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}

// Error logs an error message using the default slog logger.
func Error(msg string, args ...any) {
	slog.Error(msg, args...)
}

// Fatal logs a fatal message using the custom Fatal level and then exits.
func Fatal(msg string, args ...any) {
	slog.Log(context.Background(), LevelFatal, msg, args...)
	os.Exit(1)
}

// Trace logs a trace message using the custom Trace level.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}

// rotationPolicy maps a rotation type onto lumberjack limits.
func rotationPolicy(cfg conf.LogConfig) (maxSizeMB, maxBackups, maxAgeDays int) {
	maxSizeMB, maxBackups, maxAgeDays = 100, 3, 28

	if mb := int(cfg.MaxSize / (1024 * 1024)); mb > 0 {
		maxSizeMB = mb
	}

	switch cfg.Rotation {
	case conf.RotationDaily:
		maxAgeDays, maxBackups = 1, 30
	case conf.RotationWeekly:
		maxAgeDays, maxBackups = 7, 4
	case conf.RotationSize, "":
	default:
		slog.Warn("Unknown log rotation type in config, using size-based defaults", "configuredType", cfg.Rotation)
	}
	return maxSizeMB, maxBackups, maxAgeDays
}

// NewFileLogger creates a logger writing JSON to cfg.Path with lumberjack rotation.
// It returns the logger and a function closing the underlying writer.
func NewFileLogger(cfg conf.LogConfig, serviceName string) (*slog.Logger, func() error, error) {
	logDir := filepath.Dir(cfg.Path)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	maxSizeMB, maxBackups, maxAge := rotationPolicy(cfg)
	logWriter := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
	}

	logger := slog.New(slog.NewJSONHandler(logWriter, handlerOptions())).With("service", serviceName)
	return logger, logWriter.Close, nil
}

// Configure applies the logging section of settings: it sets the level and,
// when file logging is enabled, tees structured logs into the rotated file.
// The returned function flushes and closes the file writer.
func Configure(settings *conf.Settings) (func() error, error) {
	lvl := ParseLevel(settings.Main.Log.Level)
	if settings.Debug && lvl > slog.LevelDebug {
		lvl = slog.LevelDebug
	}
	SetLevel(lvl)

	if !settings.Main.Log.Enabled {
		return func() error { return nil }, nil
	}

	if dir := filepath.Dir(settings.Main.Log.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}
	maxSizeMB, maxBackups, maxAge := rotationPolicy(settings.Main.Log)
	fileWriter := &lumberjack.Logger{
		Filename:   settings.Main.Log.Path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
	}

	SetOutput(io.MultiWriter(os.Stderr, fileWriter), os.Stderr)
	return fileWriter.Close, nil
}
