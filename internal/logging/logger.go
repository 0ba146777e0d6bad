// Package logging writes the application log to a dated file under the data
// directory. The terminal belongs to the TUI, so nothing is ever printed to
// stdout or stderr here.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// Logger is the global logger. Nil until Init succeeds; the package
	// helpers and WithPrefix degrade to no-ops before that.
	Logger *log.Logger

	logFile *os.File
)

// Init opens today's log file and builds the global logger. The level
// defaults to info; CNJP_LOG_LEVEL (debug, info, warn, error) overrides it.
func Init() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	logDir := filepath.Join(homeDir, ".cnjp", "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("cnjp-%s.log", time.Now().Format("2006-01-02")))
	logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	Logger = log.NewWithOptions(logFile, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           levelFromEnv(),
	})

	Logger.Info("CNJP started", "level", Logger.GetLevel())
	return nil
}

func levelFromEnv() log.Level {
	v := os.Getenv("CNJP_LOG_LEVEL")
	if v == "" {
		return log.InfoLevel
	}
	level, err := log.ParseLevel(v)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// Close flushes and closes the log file.
func Close() {
	if Logger != nil {
		Logger.Info("CNJP shutting down")
	}
	if logFile != nil {
		logFile.Close()
	}
}

// WithPrefix returns a component-scoped logger. Safe to call and use before
// Init; the returned logger discards everything until then.
func WithPrefix(prefix string) *log.Logger {
	if Logger == nil {
		return log.New(io.Discard)
	}
	return Logger.WithPrefix(prefix)
}

// Info logs at info level on the global logger.
func Info(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Info(msg, keyvals...)
	}
}

// Debug logs at debug level on the global logger.
func Debug(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Debug(msg, keyvals...)
	}
}

// Warn logs at warn level on the global logger.
func Warn(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Warn(msg, keyvals...)
	}
}

// Error logs at error level on the global logger.
func Error(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Error(msg, keyvals...)
	}
}
