package api

import "context"

// contextKey is a private type to prevent context key collisions across packages.
type contextKey string

const (
	// ContextKeyRequestID stores the unique request identifier (string)
	ContextKeyRequestID contextKey = "request_id"
)

// WithRequestID adds the request identifier to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// GetRequestID extracts the request identifier from the context.
func GetRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ContextKeyRequestID).(string)
	return id, ok && id != ""
}

// GetRequestIDOrDefault returns the request identifier or "unknown".
func GetRequestIDOrDefault(ctx context.Context) string {
	if id, ok := GetRequestID(ctx); ok {
		return id
	}
	return "unknown"
}
