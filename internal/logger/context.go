package logger

import "context"

type ctxKey int

const requestIDKey ctxKey = iota

// WithRequestID stores the request id for log correlation downstream.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the stored request id, or "" when none is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
