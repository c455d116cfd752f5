package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationIDContext(t *testing.T) {
	t.Run("stores and retrieves correlation ID", func(t *testing.T) {
		ctx := context.Background()
		ctx = WithCorrelationID(ctx, "corr-123")

		result := CorrelationIDFromContext(ctx)
		assert.Equal(t, "corr-123", result)
	})

	t.Run("returns empty string when not set", func(t *testing.T) {
		ctx := context.Background()
		result := CorrelationIDFromContext(ctx)
		assert.Equal(t, "", result)
	})
}

func TestRunIDContext(t *testing.T) {
	t.Run("stores and retrieves run ID", func(t *testing.T) {
		ctx := context.Background()
		ctx = WithRunID(ctx, "run-456")

		result := RunIDFromContext(ctx)
		assert.Equal(t, "run-456", result)
	})

	t.Run("returns empty string when not set", func(t *testing.T) {
		ctx := context.Background()
		result := RunIDFromContext(ctx)
		assert.Equal(t, "", result)
	})
}

func TestTraceSpanContext(t *testing.T) {
	t.Run("stores and retrieves trace and span IDs", func(t *testing.T) {
		ctx := context.Background()
		ctx = WithTraceSpan(ctx, "trace-abc", "span-xyz")

		traceID, spanID := TraceSpanFromContext(ctx)
		assert.Equal(t, "trace-abc", traceID)
		assert.Equal(t, "span-xyz", spanID)
	})

	t.Run("returns empty strings when not set", func(t *testing.T) {
		ctx := context.Background()
		traceID, spanID := TraceSpanFromContext(ctx)
		assert.Equal(t, "", traceID)
		assert.Equal(t, "", spanID)
	})
}

func TestRunScope(t *testing.T) {
	t.Run("stores and retrieves full run scope", func(t *testing.T) {
		ctx := context.Background()
		rs := RunScope{
			CorrelationID: "corr-123",
			RunID:         "run-456",
			TraceID:       "trace-abc",
			SpanID:        "span-xyz",
		}

		ctx = WithRunScope(ctx, rs)
		result := RunScopeFromContext(ctx)

		assert.Equal(t, rs, result)
	})

	t.Run("handles partial scope", func(t *testing.T) {
		ctx := context.Background()
		rs := RunScope{
			CorrelationID: "corr-only",
		}

		ctx = WithRunScope(ctx, rs)
		result := RunScopeFromContext(ctx)

		assert.Equal(t, "corr-only", result.CorrelationID)
		assert.Equal(t, "", result.RunID)
		assert.Equal(t, "", result.TraceID)
	})

	t.Run("returns empty scope when nothing set", func(t *testing.T) {
		ctx := context.Background()
		result := RunScopeFromContext(ctx)

		assert.Equal(t, RunScope{}, result)
	})
}

func TestContextOverwrite(t *testing.T) {
	ctx := context.Background()

	ctx = WithCorrelationID(ctx, "corr-1")
	ctx = WithCorrelationID(ctx, "corr-2")

	assert.Equal(t, "corr-2", CorrelationIDFromContext(ctx))
}
