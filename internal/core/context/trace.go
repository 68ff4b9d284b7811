package context

import (
	"context"

	"github.com/google/uuid"
)

// TraceContext identifies the request or job a piece of work belongs to.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, tc *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// GetRequestID returns request ID from context or empty string.
func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

// NewJobTrace starts a trace for work no request asked for, such as a
// scheduled snapshot sync. The request id reads "<job>:<short id>".
func NewJobTrace(job string) *TraceContext {
	id := uuid.NewString()
	return &TraceContext{
		TraceID:   id,
		SpanID:    id[:16],
		RequestID: job + ":" + id[:8],
	}
}
