package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyRequestID contextKey = "request_id"
	keyCallerID  contextKey = "caller_id"
)

// WithRequestID adds request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID extracts request ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithCallerID 记录已认证调用方（API Key 名称或 JWT subject）
func WithCallerID(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, keyCallerID, callerID)
}

// CallerID extracts caller ID from context.
func CallerID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyCallerID).(string)
	return v, ok && v != ""
}
