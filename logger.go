package cachebench

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with the attribute names used across cachebench.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler.
// If handler is nil, uses a text handler to stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger discards all output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// LogIteration logs the outcome of one comparison iteration.
func (l *Logger) LogIteration(ctx context.Context, op Op, id string, s Sample, err error) {
	if err != nil {
		l.WarnContext(ctx, "comparison failed",
			"op", op,
			"id", id,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "comparison completed",
		"op", op,
		"id", id,
		"blob_ms", millis(s.Blob),
		"kv_ms", millis(s.KV),
	)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
