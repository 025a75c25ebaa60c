// Package logging provides config-driven categorized file logging for briefly.
// Logs are written to <config dir>/logs/ with one rotating file per category.
// Logging is controlled by logging.debug_mode - when false, no logs are written
// and no files are created, so the terminal UI is never disturbed.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Category represents a log category/subsystem
type Category string

const (
	CategoryBoot    Category = "boot"    // Startup and config
	CategoryAPI     Category = "api"     // Backend HTTP calls
	CategoryPoll    Category = "poll"    // Block summary polling
	CategorySession Category = "session" // Upload, session info, clear
	CategoryExport  Category = "export"  // Conversation export
	CategoryStore   Category = "store"   // Transcript archive
	CategoryUI      Category = "ui"      // TUI events
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	DebugMode  bool
	Categories map[string]bool
	Level      string
	JSONFormat bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger writes printf-style messages for one category.
// The zero Logger is a no-op.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
	sink     *lumberjack.Logger
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	config    Config
	configMu  sync.RWMutex
	level     zapcore.Level = zapcore.InfoLevel
)

// Initialize sets up the logs directory under dir and applies cfg.
// Call once at startup; calling again replaces the configuration and
// closes any open log files.
func Initialize(dir string, cfg Config) error {
	if dir == "" {
		return fmt.Errorf("logging directory required")
	}

	CloseAll()

	configMu.Lock()
	config = cfg
	level = parseLevel(cfg.Level)
	logsDir = filepath.Join(dir, "logs")
	configMu.Unlock()

	if !cfg.DebugMode {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== briefly logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", level)
	if len(cfg.Categories) == 0 {
		boot.Info("All categories enabled (no category filter)")
	}
	for cat, enabled := range cfg.Categories {
		boot.Debug("Category '%s': %v", cat, enabled)
	}
	return nil
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// Dir returns the directory log files are written to.
func Dir() string {
	configMu.RLock()
	defer configMu.RUnlock()
	return logsDir
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	configMu.RLock()
	cfg := config
	dir := logsDir
	lvl := level
	configMu.RUnlock()

	sink := &lumberjack.Logger{
		Filename:   filepath.Join(dir, string(category)+".log"),
		MaxSize:    orDefault(cfg.MaxSizeMB, 10),
		MaxBackups: orDefault(cfg.MaxBackups, 3),
		MaxAge:     orDefault(cfg.MaxAgeDays, 14),
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if cfg.JSONFormat {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(sink), zap.NewAtomicLevelAt(lvl))
	l := &Logger{
		category: category,
		sugar:    zap.New(core).Named(string(category)).Sugar(),
		sink:     sink,
	}
	loggers[category] = l
	return l
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// With returns a child logger that attaches the key/value pairs to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	if l.sugar == nil {
		return l
	}
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...), sink: l.sink}
}

// Enabled reports whether the logger writes anywhere.
func (l *Logger) Enabled() bool { return l.sugar != nil }

// CloseAll flushes and closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		_ = l.sugar.Sync()
		if l.sink != nil {
			_ = l.sink.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// API logs to the api category
func API(format string, args ...interface{}) {
	Get(CategoryAPI).Info(format, args...)
}

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) {
	Get(CategoryAPI).Debug(format, args...)
}

// Session logs to the session category
func Session(format string, args ...interface{}) {
	Get(CategorySession).Info(format, args...)
}

// Export logs to the export category
func Export(format string, args ...interface{}) {
	Get(CategoryExport).Info(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// UI logs debug to the ui category
func UI(format string, args ...interface{}) {
	Get(CategoryUI).Debug(format, args...)
}
