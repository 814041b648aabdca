package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics exposes inbound HTTP instruments.
type HTTPMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// NewHTTPMetrics configures HTTP server instruments.
func NewHTTPMetrics(cfg Config, provider metric.MeterProvider) (*HTTPMetrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "pantheon"
	}
	meter := provider.Meter(name)

	requests, err := meter.Int64Counter("pantheon_http_requests_total")
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("pantheon_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &HTTPMetrics{requests: requests, duration: duration}, nil
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		attrs := FilterAttributes(
			attribute.String("endpoint", route),
			attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
		)
		ctx := c.Request.Context()
		m.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
		m.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
	}
}
