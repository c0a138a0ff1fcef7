package lexkv

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with lexkv-specific context.
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
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithStore adds a store field to the logger.
func (l *Logger) WithStore(store string) *Logger {
	return &Logger{Logger: l.Logger.With("store", store)}
}

// LogAdd logs an add operation.
func (l *Logger) LogAdd(ctx context.Context, store string, count int, err error) {
	if err != nil {
		l.DebugContext(ctx, "add failed", "store", store, "count", count, "error", err)
		return
	}
	l.DebugContext(ctx, "add completed", "store", store, "count", count)
}

// LogPut logs a put operation.
func (l *Logger) LogPut(ctx context.Context, store string, count int, err error) {
	if err != nil {
		l.DebugContext(ctx, "put failed", "store", store, "count", count, "error", err)
		return
	}
	l.DebugContext(ctx, "put completed", "store", store, "count", count)
}

// LogDelete logs a delete or clear operation. removed is -1 for clear.
func (l *Logger) LogDelete(ctx context.Context, store string, removed int, err error) {
	if err != nil {
		l.DebugContext(ctx, "delete failed", "store", store, "error", err)
		return
	}
	if removed < 0 {
		l.DebugContext(ctx, "store cleared", "store", store)
		return
	}
	l.DebugContext(ctx, "delete completed", "store", store, "removed", removed)
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, store, query string, results int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed", "store", store, "query", query, "error", err)
		return
	}
	l.DebugContext(ctx, "search completed", "store", store, "query", query, "results", results)
}

// LogSnapshot logs a full-text snapshot write.
func (l *Logger) LogSnapshot(ctx context.Context, store string, generation uint64, size int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed", "store", store, "generation", generation, "error", err)
		return
	}
	l.DebugContext(ctx, "snapshot saved", "store", store, "generation", generation, "bytes", size)
}

// LogRecovery logs how a full-text index was loaded at open: "restore" from
// its snapshot or "rebuild" from the store.
func (l *Logger) LogRecovery(ctx context.Context, store, method string, documents int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "fulltext recovery failed", "store", store, "method", method, "error", err)
		return
	}
	l.InfoContext(ctx, "fulltext recovery completed",
		"store", store,
		"method", method,
		"documents", documents,
		"elapsed", elapsed,
	)
}

// LogMigration logs the outcome of opening a database at a version.
func (l *Logger) LogMigration(ctx context.Context, from, to int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed", "version", to, "error", err)
		return
	}
	if from == to {
		l.DebugContext(ctx, "database opened", "version", to)
		return
	}
	l.InfoContext(ctx, "database upgraded", "from", from, "to", to)
}
