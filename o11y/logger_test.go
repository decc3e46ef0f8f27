package o11y

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFromContext(t *testing.T) {
	ctx, span := Trace(context.Background(), "handle-callback")
	defer span.End()

	LoggerFromContext(ctx).Info("callback accepted", "requestId", "R1")

	require.Len(t, span.Logs, 1)
	assert.Contains(t, string(span.Logs[0]), "callback accepted")
	assert.Contains(t, string(span.Logs[0]), "R1")
}

func TestLoggerFromContextWithoutSpan(t *testing.T) {
	// Logging outside a traced request is a no-op, not a panic.
	assert.NotPanics(t, func() {
		LoggerFromContext(context.Background()).Info("no span active")
	})
}
