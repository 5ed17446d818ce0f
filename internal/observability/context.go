package observability

import (
	"context"

	"github.com/rs/zerolog"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	cycleIDKey   contextKey = "cycle_id"
	triggerKey   contextKey = "trigger"
)

func stringValue(ctx context.Context, key contextKey) string {
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithCycle adds the ingestion cycle ID and what triggered it
// ("scheduler", "api", "event", "workflow", "cli") to the context.
func WithCycle(ctx context.Context, cycleID, trigger string) context.Context {
	ctx = context.WithValue(ctx, cycleIDKey, cycleID)
	ctx = context.WithValue(ctx, triggerKey, trigger)
	return ctx
}

// CycleFromContext retrieves the cycle ID and trigger from context.
// Returns empty strings if not present.
func CycleFromContext(ctx context.Context) (cycleID, trigger string) {
	return stringValue(ctx, cycleIDKey), stringValue(ctx, triggerKey)
}

// LoggerFromContext returns logger enriched with the request and cycle
// fields the context carries.
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	lc := logger.With()
	if id := RequestIDFromContext(ctx); id != "" {
		lc = lc.Str("request_id", id)
	}
	cycleID, trigger := CycleFromContext(ctx)
	if cycleID != "" {
		lc = lc.Str("cycle_id", cycleID)
	}
	if trigger != "" {
		lc = lc.Str("trigger", trigger)
	}
	return lc.Logger()
}
