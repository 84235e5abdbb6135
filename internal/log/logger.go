// Package log wraps slog with the field vocabulary used across the
// financas binaries, so "definition_id" means the same thing in the API
// server, the materializer, and the ledger sync worker.
package log

import (
	"log/slog"
	"os"
)

// Logger is a slog.Logger with the component baked in as an attribute.
type Logger struct {
	*slog.Logger
	component string
}

type Config struct {
	Level     slog.Level
	Component string
	Handler   slog.Handler
}

func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Component: ComponentAPI,
	}
}

// New builds a logger that stamps every record with the component. A nil
// Handler means text to stdout at the configured level.
func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.Level,
		})
	}
	return &Logger{
		Logger:    slog.New(handler).With(FieldComponent, config.Component),
		component: config.Component,
	}
}

// With returns a logger carrying the extra attributes on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		component: l.component,
	}
}

func (l *Logger) Component() string {
	return l.component
}

// SetDefault routes bare slog calls in library code through this logger.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}
