package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	runIDKey         contextKey = "run_id"
	traceIDKey       contextKey = "trace_id"
	spanIDKey        contextKey = "span_id"
)

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext retrieves the correlation ID from context.
// Returns empty string if not present.
func CorrelationIDFromContext(ctx context.Context) string {
	if v := ctx.Value(correlationIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithRunID adds a discovery run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext retrieves the discovery run ID from context.
// Returns empty string if not present.
func RunIDFromContext(ctx context.Context) string {
	if v := ctx.Value(runIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithTraceSpan adds trace and span IDs to the context.
func WithTraceSpan(ctx context.Context, traceID, spanID string) context.Context {
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	ctx = context.WithValue(ctx, spanIDKey, spanID)
	return ctx
}

// TraceSpanFromContext retrieves trace and span IDs from context.
// Returns empty strings if not present.
func TraceSpanFromContext(ctx context.Context) (traceID, spanID string) {
	if v := ctx.Value(traceIDKey); v != nil {
		if id, ok := v.(string); ok {
			traceID = id
		}
	}
	if v := ctx.Value(spanIDKey); v != nil {
		if id, ok := v.(string); ok {
			spanID = id
		}
	}
	return traceID, spanID
}

// RunScope contains all the context data carried through a discovery run.
type RunScope struct {
	CorrelationID string
	RunID         string
	TraceID       string
	SpanID        string
}

// WithRunScope adds all run scope data to the context.
func WithRunScope(ctx context.Context, rs RunScope) context.Context {
	if rs.CorrelationID != "" {
		ctx = WithCorrelationID(ctx, rs.CorrelationID)
	}
	if rs.RunID != "" {
		ctx = WithRunID(ctx, rs.RunID)
	}
	if rs.TraceID != "" || rs.SpanID != "" {
		ctx = WithTraceSpan(ctx, rs.TraceID, rs.SpanID)
	}
	return ctx
}

// RunScopeFromContext extracts all run scope data from the context.
func RunScopeFromContext(ctx context.Context) RunScope {
	traceID, spanID := TraceSpanFromContext(ctx)

	return RunScope{
		CorrelationID: CorrelationIDFromContext(ctx),
		RunID:         RunIDFromContext(ctx),
		TraceID:       traceID,
		SpanID:        spanID,
	}
}
