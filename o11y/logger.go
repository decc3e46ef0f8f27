package o11y

import (
	"context"
	"log/slog"
)

// LoggerFromContext returns a logger that appends its output to the
// span active in ctx, so per-request logs travel with the trace.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	span := GetSpan(ctx)
	return slog.New(slog.NewJSONHandler(span, nil))
}
