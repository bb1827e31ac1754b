package observability

import (
	"context"

	"github.com/rs/zerolog"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	runIDKey     contextKey = "run_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithRunID adds an acquisition or verification run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext retrieves the run ID from context.
// Returns empty string if not present.
func RunIDFromContext(ctx context.Context) string {
	if v := ctx.Value(runIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// LoggerFromContext returns base enriched with the run and request IDs carried by ctx.
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	runID := RunIDFromContext(ctx)
	requestID := RequestIDFromContext(ctx)
	if runID == "" && requestID == "" {
		return base
	}
	lc := base.With()
	if runID != "" {
		lc = lc.Str("run_id", runID)
	}
	if requestID != "" {
		lc = lc.Str("request_id", requestID)
	}
	return lc.Logger()
}
