package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// NoInstance labels backend calls that failed before an instance was selected.
const NoInstance = "none"

// BackendMetrics records calls made to backend plugin instances.
type BackendMetrics interface {
	// RecordCall records one dispatched call, retries included, against instanceID.
	RecordCall(ctx context.Context, instanceID, operation, status string, duration time.Duration)
}

type backendMetrics struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewBackendMetrics creates BackendMetrics with instruments prefixed by namespace.
func NewBackendMetrics(meterProvider metric.MeterProvider, namespace string) (BackendMetrics, error) {
	meter := meterProvider.Meter(namespace)

	calls, err := meter.Int64Counter(
		fmt.Sprintf("%s_backend_calls_total", namespace),
		metric.WithDescription("Backend plugin calls by instance, operation and status"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend call counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		fmt.Sprintf("%s_backend_call_duration_seconds", namespace),
		metric.WithDescription("Backend plugin call duration in seconds, retries included"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend call histogram: %w", err)
	}

	return &backendMetrics{calls: calls, duration: duration}, nil
}

func (b *backendMetrics) RecordCall(
	ctx context.Context,
	instanceID, operation, status string,
	duration time.Duration,
) {
	attrs := metric.WithAttributes(
		attribute.String("backend", instanceID),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	b.calls.Add(ctx, 1, attrs)
	b.duration.Record(ctx, duration.Seconds(), attrs)
}

type noOpBackendMetrics struct{}

// NewNoOpBackendMetrics returns BackendMetrics that records nothing.
func NewNoOpBackendMetrics() BackendMetrics {
	return noOpBackendMetrics{}
}

func (noOpBackendMetrics) RecordCall(context.Context, string, string, string, time.Duration) {}
