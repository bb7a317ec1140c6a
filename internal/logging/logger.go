// Package logging provides categorized structured logging for memlab.
// Each subsystem logs under its own named category; the backing zap core
// is configured once at startup and shared.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup and configuration loading
	CategoryCampaign Category = "campaign" // Campaign orchestration, stage transitions
	CategoryExtract  Category = "extract"  // Feature extraction
	CategoryClassify Category = "classify" // Scoring and classification
	CategoryRegistry Category = "registry" // Device state registry
	CategoryStore    Category = "store"    // SQLite persistence
	CategoryBench    Category = "bench"    // Bench/instrument execution
	CategorySpool    Category = "spool"    // Sweep spool watching
	CategorySelector Category = "selector" // Final selection
)

// Logger is a category-scoped printf-style logger.
type Logger struct {
	s *zap.SugaredLogger
}

func (l *Logger) Debug(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.s.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.s.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.s.Errorf(format, args...) }

// With returns a child logger carrying the given structured key/value
// pairs on every entry.
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{s: l.s.With(kv...)}
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	loggers = make(map[Category]*Logger)
)

// Initialize builds the shared zap core. level is one of
// debug/info/warn/error, format is json or console, and file redirects
// output from stderr when set. Safe to call again to reconfigure.
func Initialize(level, format, file string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("logging: bad level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	if format == "console" {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	if file != "" {
		cfg.OutputPaths = []string{file}
	}
	cfg.ErrorOutputPaths = cfg.OutputPaths

	built, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("logging: build core: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	base = built
	loggers = make(map[Category]*Logger)
	return nil
}

// UseCore swaps in an externally built zap logger (used by the CLI and by
// tests that capture output).
func UseCore(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	base = l
	loggers = make(map[Category]*Logger)
}

// Get returns the logger for a category, creating it on first use.
func Get(cat Category) *Logger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	l := &Logger{s: base.Named(string(cat)).Sugar()}
	loggers[cat] = l
	return l
}

// Sync flushes buffered entries. Call before process exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

// Campaign logs at info level under the campaign category.
func Campaign(format string, args ...interface{}) {
	Get(CategoryCampaign).Info(format, args...)
}

// CampaignDebug logs at debug level under the campaign category.
func CampaignDebug(format string, args ...interface{}) {
	Get(CategoryCampaign).Debug(format, args...)
}

// Registry logs at debug level under the registry category; stage traffic
// is chatty so it stays below info.
func Registry(format string, args ...interface{}) {
	Get(CategoryRegistry).Debug(format, args...)
}

// Spool logs at info level under the spool category.
func Spool(format string, args ...interface{}) {
	Get(CategorySpool).Info(format, args...)
}
