package beanstalk

import (
	"io"
	"log/slog"
)

// Logger is the interface for structured logging.
// It is designed to be compatible with *slog.Logger from the standard library.
// The client reports connection lifecycle (connect, retry, disconnect) at
// Info and Warn, and per-frame traffic at Debug.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, args ...any)
	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, args ...any)
	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, args ...any)
	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, args ...any)
}

// defaultLogger returns the default slog logger from the standard library.
func defaultLogger() Logger {
	return slog.Default()
}

// discardLogger drops everything.
func discardLogger() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
