package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys used by the logger
type ContextKey string

const (
	// LoggerKey is the context key for the logger instance
	LoggerKey ContextKey = "logger"
)

// Output formats accepted by NewFromConfig.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New creates a console logger at info level
func New() zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(zerolog.InfoLevel).With().Timestamp().Caller().Logger()
}

// NewWithWriter creates a JSON logger writing to w
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

// NewFromConfig builds the process logger from a level name ("debug",
// "info", ...) and an output format ("console" or "json").
func NewFromConfig(level, format string) (zerolog.Logger, error) {
	return newFromConfig(os.Stdout, level, format)
}

func newFromConfig(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("logger: invalid level %q: %w", level, err)
		}
		lvl = parsed
	}

	var out io.Writer
	switch strings.ToLower(format) {
	case "", FormatConsole:
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case FormatJSON:
		out = w
	default:
		return zerolog.Nop(), fmt.Errorf("logger: unknown format %q", format)
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Caller().Logger(), nil
}

// Component returns a child logger tagged with the component name
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// WithContext adds the logger to the context
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from the context or returns a default logger
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return New()
}

// WithFields adds structured fields to a logger
func WithFields(logger zerolog.Logger, fields map[string]interface{}) zerolog.Logger {
	ctx := logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return ctx.Logger()
}
