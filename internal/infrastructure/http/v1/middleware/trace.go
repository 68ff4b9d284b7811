package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	appctx "stockledger/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// gin context keys
const (
	ginRequestID = "request_id"
	ginTraceID   = "trace_id"
)

var traceContext = propagation.TraceContext{}

// Trace assigns request and trace identifiers. A W3C traceparent header wins
// over X-Trace-ID; missing identifiers are generated.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := traceContext.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		tc := &appctx.TraceContext{
			RequestID: firstNonEmpty(c.GetHeader(HeaderRequestID), uuid.NewString()),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			tc.TraceID = sc.TraceID().String()
			tc.SpanID = sc.SpanID().String()
		} else {
			tc.TraceID = firstNonEmpty(c.GetHeader(HeaderTraceID), uuid.NewString())
			tc.SpanID = uuid.NewString()[:16]
		}

		c.Request = c.Request.WithContext(appctx.WithTrace(ctx, tc))
		c.Set(ginTraceID, tc.TraceID)
		c.Set(ginRequestID, tc.RequestID)
		c.Header(HeaderRequestID, tc.RequestID)
		c.Header(HeaderTraceID, tc.TraceID)

		c.Next()
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
