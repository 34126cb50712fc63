package annidx

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with annidx-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // unreachable
	}))
}

// WithIndex adds an index name field to the logger.
func (l *Logger) WithIndex(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("index", name),
	}
}

// WithDimension adds a dimension field to the logger.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dimension", dim),
	}
}

// LogPut logs a store write.
func (l *Logger) LogPut(ctx context.Context, key any, replaced bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "put failed",
			"key", key,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "put completed",
			"key", key,
			"replaced", replaced,
		)
	}
}

// LogRemove logs a store delete. staleClusters reports that the
// clustering index now requires a rebuild.
func (l *Logger) LogRemove(ctx context.Context, key any, staleClusters bool, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "remove failed",
			"key", key,
			"error", err,
		)
	case staleClusters:
		l.WarnContext(ctx, "remove completed; clustering index is stale until rebuilt",
			"key", key,
		)
	default:
		l.DebugContext(ctx, "remove completed",
			"key", key,
		)
	}
}

// LogBuild logs a clustering build.
func (l *Logger) LogBuild(ctx context.Context, vectors, k, iterations int, converged bool, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "build failed",
			"vectors", vectors,
			"k", k,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "build completed",
			"vectors", vectors,
			"k", k,
			"iterations", iterations,
			"converged", converged,
			"elapsed", elapsed,
		)
	}
}

// LogInsert logs a graph insert.
func (l *Logger) LogInsert(ctx context.Context, key any, err error) {
	if err != nil {
		l.ErrorContext(ctx, "graph insert failed",
			"key", key,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "graph insert completed",
			"key", key,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, index string, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"index", index,
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"index", index,
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogSnapshot logs a snapshot save or load.
func (l *Logger) LogSnapshot(ctx context.Context, op, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"op", op,
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot completed",
			"op", op,
			"name", name,
		)
	}
}
