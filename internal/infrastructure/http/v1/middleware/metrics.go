package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	httpMetricsOnce sync.Once
	httpRequests    metric.Int64Counter
	httpDuration    metric.Float64Histogram
)

// Metrics records request count and latency per route template.
func Metrics() gin.HandlerFunc {
	httpMetricsOnce.Do(func() {
		meter := otel.Meter("stockledger/http")
		httpRequests, _ = meter.Int64Counter("http_requests",
			metric.WithDescription("HTTP requests by route and status"))
		httpDuration, _ = meter.Float64Histogram("http_request_duration",
			metric.WithDescription("HTTP request latency"),
			metric.WithUnit("s"))
	})

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.String("status", strconv.Itoa(c.Writer.Status())),
		)
		ctx := c.Request.Context()
		httpRequests.Add(ctx, 1, attrs)
		httpDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}
