// Package logging provides categorized structured logging for adforge.
// Each subsystem logs under its own named category so campaign runs can be
// debugged per concern (bus traffic, generation calls, store writes) without
// wading through unrelated output. Backed by zap.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup and wiring
	CategoryCampaign   Category = "campaign"   // Campaign orchestration and state machine
	CategoryBus        Category = "bus"        // Message bus publish/deliver
	CategoryAgents     Category = "agents"     // Analyst/strategist agent activity
	CategoryGeneration Category = "generation" // Visual generation pipeline
	CategoryStore      Category = "store"      // Context store reads/writes
	CategoryCache      Category = "cache"      // Generation cache hits/misses
	CategoryAPI        Category = "api"        // External provider calls
	CategoryConfig     Category = "config"     // Configuration loading
	CategoryPrompt     Category = "prompt"     // Prompt template registry
)

// Logger wraps a zap sugared logger bound to one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu        sync.RWMutex
	root      *zap.Logger
	loggers   = make(map[Category]*Logger)
	debugMode bool
)

// Options configures the logging system.
type Options struct {
	// Dir is where log files are written. Empty means stderr only.
	Dir string
	// Debug enables debug-level output.
	Debug bool
	// Console mirrors log output to stderr in addition to files.
	Console bool
}

// Initialize sets up the logging backend. Safe to call once at startup;
// callers that never initialize get a no-op logger.
func Initialize(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}
	debugMode = opts.Debug

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		path := filepath.Join(opts.Dir, "adforge.log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level))
	}
	if opts.Console || opts.Dir == "" {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(os.Stderr), level))
	}

	root = zap.New(zapcore.NewTee(cores...))
	loggers = make(map[Category]*Logger)
	return nil
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
	base := root
	if base == nil {
		base = zap.NewNop()
	}
	l := &Logger{
		category: cat,
		sugar:    base.Named(string(cat)).Sugar(),
	}
	loggers[cat] = l
	return l
}

// Sync flushes any buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}

// Debug logs at debug level with printf formatting.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs at info level with printf formatting.
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs at warn level with printf formatting.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs at error level with printf formatting.
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Convenience helpers for the most chatty categories. These keep call sites
// short: logging.Campaign("state %s -> %s", from, to).

// Boot logs to the boot category at info level.
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// Campaign logs to the campaign category at info level.
func Campaign(format string, args ...interface{}) { Get(CategoryCampaign).Info(format, args...) }

// CampaignDebug logs to the campaign category at debug level.
func CampaignDebug(format string, args ...interface{}) { Get(CategoryCampaign).Debug(format, args...) }

// Bus logs to the bus category at info level.
func Bus(format string, args ...interface{}) { Get(CategoryBus).Info(format, args...) }

// BusDebug logs to the bus category at debug level.
func BusDebug(format string, args ...interface{}) { Get(CategoryBus).Debug(format, args...) }

// Agents logs to the agents category at info level.
func Agents(format string, args ...interface{}) { Get(CategoryAgents).Info(format, args...) }

// Generation logs to the generation category at info level.
func Generation(format string, args ...interface{}) { Get(CategoryGeneration).Info(format, args...) }

// GenerationDebug logs to the generation category at debug level.
func GenerationDebug(format string, args ...interface{}) {
	Get(CategoryGeneration).Debug(format, args...)
}

// Store logs to the store category at info level.
func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

// StoreDebug logs to the store category at debug level.
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

// CacheLog logs to the cache category at info level.
func CacheLog(format string, args ...interface{}) { Get(CategoryCache).Info(format, args...) }

// API logs to the api category at info level.
func API(format string, args ...interface{}) { Get(CategoryAPI).Info(format, args...) }

// APIDebug logs to the api category at debug level.
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }

// DebugEnabled reports whether debug logging is on.
func DebugEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return debugMode
}
