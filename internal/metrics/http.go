package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AdminMetricsMiddleware records every admin request as a check: which route was hit
// and whether it reported healthy. Failed instrument creation yields a pass-through.
func AdminMetricsMiddleware(meterProvider metric.MeterProvider, namespace string) gin.HandlerFunc {
	meter := meterProvider.Meter(namespace)

	checks, err := meter.Int64Counter(
		fmt.Sprintf("%s_admin_checks_total", namespace),
		metric.WithDescription("Admin check requests by route and result"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return passThrough
	}

	latency, err := meter.Float64Histogram(
		fmt.Sprintf("%s_admin_check_duration_seconds", namespace),
		metric.WithDescription("Admin check latency in seconds, including readiness checks"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return passThrough
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := metric.WithAttributes(
			attribute.String("check", checkName(c.FullPath())),
			attribute.String("result", checkResult(c.Writer.Status())),
		)
		checks.Add(c.Request.Context(), 1, attrs)
		latency.Record(c.Request.Context(), time.Since(start).Seconds(), attrs)
	}
}

func passThrough(c *gin.Context) {
	c.Next()
}

// checkName is the matched route, or "unmatched" so unknown paths share one series.
func checkName(route string) string {
	if route == "" {
		return "unmatched"
	}
	return route
}

func checkResult(status int) string {
	switch {
	case status == http.StatusServiceUnavailable:
		return "not_ready"
	case status >= 200 && status < 300:
		return "ok"
	default:
		return "error"
	}
}
