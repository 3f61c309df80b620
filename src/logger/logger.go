package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger defines the interface for logging throughout the application.
// Different implementations can be used for different contexts (console, silent, structured, etc.)
type Logger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// ConsoleLogger writes human-readable logs to stderr through zerolog.
// Used for normal operation and debugging.
type ConsoleLogger struct {
	zl zerolog.Logger
}

// NewConsoleLogger creates a logger at info level.
func NewConsoleLogger() *ConsoleLogger {
	return NewConsoleLoggerWithLevel("info")
}

// NewConsoleLoggerWithLevel creates a logger at the given level
// (debug, info, warn, error). Unknown levels fall back to info.
func NewConsoleLoggerWithLevel(level string) *ConsoleLogger {
	return NewLogger(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}, level)
}

// NewLogger creates a logger writing to w.
func NewLogger(w io.Writer, level string) *ConsoleLogger {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	return &ConsoleLogger{
		zl: zerolog.New(w).Level(parsed).With().Timestamp().Logger(),
	}
}

func (c *ConsoleLogger) Info(msg string, args ...interface{}) {
	c.zl.Info().Msgf(msg, args...)
}

func (c *ConsoleLogger) Warn(msg string, args ...interface{}) {
	c.zl.Warn().Msgf(msg, args...)
}

func (c *ConsoleLogger) Error(msg string, args ...interface{}) {
	c.zl.Error().Msgf(msg, args...)
}

func (c *ConsoleLogger) Debug(msg string, args ...interface{}) {
	c.zl.Debug().Msgf(msg, args...)
}

// SilentLogger discards all log messages.
// Used in tests and wherever log output would interfere with command output.
type SilentLogger struct{}

func NewSilentLogger() *SilentLogger {
	return &SilentLogger{}
}

func (s *SilentLogger) Info(msg string, args ...interface{})  {}
func (s *SilentLogger) Warn(msg string, args ...interface{})  {}
func (s *SilentLogger) Error(msg string, args ...interface{}) {}
func (s *SilentLogger) Debug(msg string, args ...interface{}) {}
