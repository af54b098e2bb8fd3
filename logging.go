// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zsock

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "ERROR"
	case LogLevelWarn:
		return "WARN"
	case LogLevelInfo:
		return "INFO"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelTrace:
		return "TRACE"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LogLevelError:
		return zerolog.ErrorLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelInfo:
		return zerolog.InfoLevel
	case LogLevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// Logger provides structured logging with levels
type Logger struct {
	zl    zerolog.Logger
	level LogLevel
}

// NewLogger creates a new Logger writing human readable lines to stderr.
func NewLogger(level LogLevel) *Logger {
	return NewLoggerWithWriter(zerolog.ConsoleWriter{Out: os.Stderr}, level)
}

// NewLoggerWithWriter creates a new Logger with custom writer and level.
// Events are written as JSON unless w formats them itself.
func NewLoggerWithWriter(w io.Writer, level LogLevel) *Logger {
	zl := zerolog.New(w).Level(level.zerolog()).With().Timestamp().Str("lib", "zsock").Logger()
	return &Logger{zl: zl, level: level}
}

// With returns a sub-logger annotating every event with key=value.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{
		zl:    l.zl.With().Interface(key, value).Logger(),
		level: l.level,
	}
}

// SetLevel sets the minimum logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
	l.zl = l.zl.Level(level.zerolog())
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

// IsEnabled checks if a log level is enabled
func (l *Logger) IsEnabled(level LogLevel) bool {
	return level <= l.level
}

// Error logs at error level
func (l *Logger) Error(format string, args ...interface{}) {
	if l.IsEnabled(LogLevelError) {
		l.zl.Error().Msgf(format, args...)
	}
}

// Warn logs at warning level
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.IsEnabled(LogLevelWarn) {
		l.zl.Warn().Msgf(format, args...)
	}
}

// Info logs at info level
func (l *Logger) Info(format string, args ...interface{}) {
	if l.IsEnabled(LogLevelInfo) {
		l.zl.Info().Msgf(format, args...)
	}
}

// Debug logs at debug level
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.IsEnabled(LogLevelDebug) {
		l.zl.Debug().Msgf(format, args...)
	}
}

// Trace logs at trace level (most verbose)
func (l *Logger) Trace(format string, args ...interface{}) {
	if l.IsEnabled(LogLevelTrace) {
		l.zl.Trace().Msgf(format, args...)
	}
}

// Default loggers for different levels
var (
	// DevNull logger that discards all output
	DevNullLogger = NewLoggerWithWriter(io.Discard, LogLevelError)

	// Default logger at info level
	DefaultLogger = NewLogger(LogLevelInfo)

	// Error-only logger for production use
	ErrorLogger = NewLogger(LogLevelError)

	// Debug logger for development
	DebugLogger = NewLogger(LogLevelDebug)

	// Trace logger for detailed debugging
	TraceLogger = NewLogger(LogLevelTrace)
)
