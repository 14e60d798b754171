// Package log provides the structured logging interface used across gwlearn.
//
// The interface is a minimal, slog-compatible surface so that the engine can
// log through log/slog by default and through zerolog when the application
// already standardises on it. Standard attribute keys live in attributes.go.
//
// Example usage:
//
//	logger := log.GetLoggerWithName("gw").With(
//	    log.ModelNameKey, "GWClassifier",
//	    log.EstimatorIDKey, id,
//	)
//	logger.Info("Fitting local models",
//	    log.OperationKey, log.OperationFit,
//	    log.SamplesKey, 1000,
//	    log.BandwidthKey, 150.0,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are alternating key/value pairs. Error may receive an error value as
// its first field; implementations record it under the "error" key.
type Logger interface {
	// Debug logs detailed diagnostic information, such as per-batch progress.
	Debug(msg string, fields ...any)

	// Info logs general operational information.
	Info(msg string, fields ...any)

	// Warn logs potentially problematic situations that do not stop the fit.
	Warn(msg string, fields ...any)

	// Error logs error conditions that should be investigated.
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits log records at the given level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates named loggers. It allows tests and applications to
// swap the process-wide logging backend.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum log level for loggers created by this provider.
	SetLevel(level Level)
}
