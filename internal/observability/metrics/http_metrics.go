package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics exposes server-level request instruments.
type HTTPMetrics struct {
	requests  metric.Int64Counter
	duration  metric.Float64Histogram
	inFlight  metric.Int64UpDownCounter
	bodyBytes metric.Int64Counter
}

// NewHTTPMetrics configures the HTTP server instruments.
func NewHTTPMetrics(cfg Config, provider metric.MeterProvider) (*HTTPMetrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "zarver"
	}
	meter := provider.Meter(name)

	requests, err := meter.Int64Counter("zarver_http_requests_total")
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("zarver_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}
	inFlight, err := meter.Int64UpDownCounter("zarver_http_requests_in_flight")
	if err != nil {
		return nil, err
	}
	bodyBytes, err := meter.Int64Counter("zarver_http_response_bytes_total")
	if err != nil {
		return nil, err
	}

	return &HTTPMetrics{
		requests:  requests,
		duration:  duration,
		inFlight:  inFlight,
		bodyBytes: bodyBytes,
	}, nil
}

// GinMiddleware records request counts, durations and in-flight gauges per
// route.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		m.inFlight.Add(ctx, 1)
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.String("status", strconv.Itoa(c.Writer.Status())),
		)

		m.inFlight.Add(ctx, -1)
		m.requests.Add(ctx, 1, attrs)
		m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		if size := c.Writer.Size(); size > 0 {
			m.bodyBytes.Add(ctx, int64(size), attrs)
		}
	}
}
