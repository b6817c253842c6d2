package gvsingest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with ingest-specific context.
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

// NewJSONLogger creates a Logger that writes JSON-formatted logs to w.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that writes human-readable text logs to w.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithRunID adds a run_id field to the logger.
func (l *Logger) WithRunID(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("run_id", id),
	}
}

// WithFile adds a file field to the logger.
func (l *Logger) WithFile(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("file", path),
	}
}

// LogProgress logs the running record count.
func (l *Logger) LogProgress(ctx context.Context, records int64) {
	l.InfoContext(ctx, "records read",
		"records", records,
	)
}

// LogFile logs the end of one record file.
func (l *Logger) LogFile(ctx context.Context, path string, records, documents int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "file failed",
			"file", path,
			"records", records,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "file bundled",
			"file", path,
			"records", records,
			"documents", documents,
		)
	}
}

// LogWindow logs one submitted window.
func (l *Logger) LogWindow(ctx context.Context, window int64, documents, failed int, duration time.Duration) {
	if failed > 0 {
		l.WarnContext(ctx, "window completed with failures",
			"window", window,
			"documents", documents,
			"failed", failed,
			"success", documents-failed,
			"duration", duration,
		)
	} else {
		l.DebugContext(ctx, "window completed",
			"window", window,
			"documents", documents,
			"duration", duration,
		)
	}
}

// LogWriteFailure logs one document that was not created.
func (l *Logger) LogWriteFailure(ctx context.Context, f *WriteFailure) {
	args := []any{
		"id", f.DocumentID,
		"partition_key", f.PartitionKey,
		"outcome", f.Outcome.String(),
	}
	if f.Outcome == OutcomeUnsuccessful {
		args = append(args, "status", f.StatusCode, "sub_status", f.SubStatusCode)
	}
	if f.Err != nil {
		args = append(args, "error", f.Err)
	}
	l.ErrorContext(ctx, "document write failed", args...)
}

// LogSummary logs the totals of a run.
func (l *Logger) LogSummary(ctx context.Context, s Stats) {
	l.InfoContext(ctx, "ingest completed",
		"records", s.Records,
		"documents", s.Documents,
		"windows", s.Windows,
		"succeeded", s.Succeeded,
		"failed", s.Failed,
		"duration", s.Duration,
	)
}
