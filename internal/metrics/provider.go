// Package metrics records credential store metrics with OpenTelemetry and exposes them
// in Prometheus format: gateway operations, backend calls, breaker states and admin checks.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// breakerStateValues maps a breaker state to the value reported by the state gauge.
var breakerStateValues = map[string]int64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

// Provider owns the meter provider and the Prometheus registry it exports to.
type Provider struct {
	namespace     string
	meterProvider *metric.MeterProvider
	registry      *prometheus.Registry
}

// NewProvider creates a Provider whose instruments are prefixed with namespace.
func NewProvider(namespace string) (*Provider, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	return &Provider{
		namespace:     namespace,
		meterProvider: metric.NewMeterProvider(metric.WithReader(exporter)),
		registry:      registry,
	}, nil
}

// Handler serves the registry in Prometheus exposition format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// MeterProvider returns the provider instruments are created from.
func (p *Provider) MeterProvider() *metric.MeterProvider {
	return p.meterProvider
}

// ObserveBreakers registers a gauge reporting the breaker state of every backend
// instance returned by states (0 closed, 1 half-open, 2 open). states is called on
// each scrape.
func (p *Provider) ObserveBreakers(states func() map[string]string) error {
	meter := p.meterProvider.Meter(p.namespace)

	gauge, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_backend_breaker_state", p.namespace),
		otelmetric.WithDescription("Circuit breaker state per backend instance (0 closed, 1 half-open, 2 open)"),
	)
	if err != nil {
		return fmt.Errorf("failed to create breaker state gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o otelmetric.Observer) error {
		for instanceID, state := range states() {
			value, ok := breakerStateValues[state]
			if !ok {
				continue
			}
			o.ObserveInt64(gauge, value, otelmetric.WithAttributes(attribute.String("backend", instanceID)))
		}
		return nil
	}, gauge)
	if err != nil {
		return fmt.Errorf("failed to register breaker state callback: %w", err)
	}
	return nil
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}
