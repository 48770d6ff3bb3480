// Package logging provides categorized file-based logging for taskrelay.
// Logs are written to <dir>/logs/ with separate files per category.
// Logging is a no-op unless debug mode is enabled at Initialize time.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup and wiring
	CategoryListener   Category = "listener"   // Channel polling
	CategoryFilter     Category = "filter"     // Self/duplicate filtering
	CategoryProcessor  Category = "processor"  // Message analysis and task creation
	CategoryDispatcher Category = "dispatcher" // Channel replies
	CategoryMemory     Category = "memory"     // Conversation memory sync
	CategoryStore      Category = "store"      // SQLite store operations
	CategoryAPI        Category = "api"        // AI engine calls
	CategoryEmbedding  Category = "embedding"  // Embedding engine
	CategoryAuth       Category = "auth"       // Platform token lifecycle
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	debugMode bool
	logLevel  = LevelInfo
)

// Initialize sets up the logging directory. With debug disabled this is a
// silent no-op and every logger returned by Get discards its output.
func Initialize(dir string, debug bool, level string) error {
	debugMode = debug
	switch level {
	case "debug":
		logLevel = LevelDebug
	case "info", "":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}

	if !debugMode {
		return nil
	}

	if dir == "" {
		return fmt.Errorf("log directory required")
	}
	logsDir = filepath.Join(dir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== taskrelay logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %d", logLevel)
	return nil
}

// IsDebugMode returns whether debug logging is enabled.
func IsDebugMode() bool {
	return debugMode
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled.
func Get(category Category) *Logger {
	if !debugMode || logsDir == "" {
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

	// Date prefix keeps rotation a matter of deleting old files.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info).
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn).
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// Listener logs to the listener category
func Listener(format string, args ...interface{}) {
	Get(CategoryListener).Info(format, args...)
}

// ListenerDebug logs debug to the listener category
func ListenerDebug(format string, args ...interface{}) {
	Get(CategoryListener).Debug(format, args...)
}

// ListenerWarn logs warning to the listener category
func ListenerWarn(format string, args ...interface{}) {
	Get(CategoryListener).Warn(format, args...)
}

// Filter logs to the filter category
func Filter(format string, args ...interface{}) {
	Get(CategoryFilter).Info(format, args...)
}

// FilterDebug logs debug to the filter category
func FilterDebug(format string, args ...interface{}) {
	Get(CategoryFilter).Debug(format, args...)
}

// Processor logs to the processor category
func Processor(format string, args ...interface{}) {
	Get(CategoryProcessor).Info(format, args...)
}

// ProcessorDebug logs debug to the processor category
func ProcessorDebug(format string, args ...interface{}) {
	Get(CategoryProcessor).Debug(format, args...)
}

// ProcessorError logs error to the processor category
func ProcessorError(format string, args ...interface{}) {
	Get(CategoryProcessor).Error(format, args...)
}

// Dispatcher logs to the dispatcher category
func Dispatcher(format string, args ...interface{}) {
	Get(CategoryDispatcher).Info(format, args...)
}

// DispatcherWarn logs warning to the dispatcher category
func DispatcherWarn(format string, args ...interface{}) {
	Get(CategoryDispatcher).Warn(format, args...)
}

// Memory logs to the memory category
func Memory(format string, args ...interface{}) {
	Get(CategoryMemory).Info(format, args...)
}

// MemoryWarn logs warning to the memory category
func MemoryWarn(format string, args ...interface{}) {
	Get(CategoryMemory).Warn(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// API logs to the api category
func API(format string, args ...interface{}) {
	Get(CategoryAPI).Info(format, args...)
}

// APIError logs error to the api category
func APIError(format string, args ...interface{}) {
	Get(CategoryAPI).Error(format, args...)
}

// Embedding logs to the embedding category
func Embedding(format string, args ...interface{}) {
	Get(CategoryEmbedding).Info(format, args...)
}

// EmbeddingWarn logs warning to the embedding category
func EmbeddingWarn(format string, args ...interface{}) {
	Get(CategoryEmbedding).Warn(format, args...)
}

// Auth logs to the auth category
func Auth(format string, args ...interface{}) {
	Get(CategoryAuth).Info(format, args...)
}

// AuthDebug logs debug to the auth category
func AuthDebug(format string, args ...interface{}) {
	Get(CategoryAuth).Debug(format, args...)
}

// AuthWarn logs warning to the auth category
func AuthWarn(format string, args ...interface{}) {
	Get(CategoryAuth).Warn(format, args...)
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}
