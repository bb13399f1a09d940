package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/allisson/credstore/internal/http"
	"github.com/allisson/credstore/internal/worker"
)

// HTTPServer returns the admin HTTP server exposing health and readiness checks.
func (c *Container) HTTPServer() (*http.Server, error) {
	err := c.lazy(&c.httpServerInit, "httpServer", func() error {
		var err error
		c.httpServer, err = c.initHTTPServer()
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.httpServer, nil
}

// MetricsServer returns the Prometheus metrics server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	err := c.lazy(&c.metricsServerInit, "metricsServer", func() error {
		provider, err := c.MetricsProvider()
		if err != nil {
			return fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
		}
		if provider == nil {
			return nil
		}
		c.metricsServer = http.NewMetricsServer(
			c.config.MetricsHost,
			c.config.MetricsPort,
			c.Logger(),
			provider,
			c.breakerStates,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.metricsServer, nil
}

// Workers returns the background maintenance jobs enabled by configuration.
func (c *Container) Workers() ([]*worker.Periodic, error) {
	var workers []*worker.Periodic

	if c.config.KekReloadInterval > 0 {
		kekUseCase, err := c.KekUseCase()
		if err != nil {
			return nil, err
		}
		workers = append(workers, worker.NewPeriodic("kek-reload", c.config.KekReloadInterval,
			func(ctx context.Context) (int, error) {
				return 0, kekUseCase.Load(ctx)
			}, c.Logger()))
	}

	if c.config.RewrapInterval > 0 {
		rewrapUseCase, err := c.RewrapUseCase()
		if err != nil {
			return nil, err
		}
		workers = append(workers, worker.NewPeriodic("rewrap", c.config.RewrapInterval,
			func(ctx context.Context) (int, error) {
				return rewrapUseCase.RewrapAll(ctx, c.config.RewrapBatchSize)
			}, c.Logger()))
	}

	if c.config.AuditSweepInterval > 0 {
		auditUseCase, err := c.AuditUseCase()
		if err != nil {
			return nil, err
		}
		workers = append(workers, worker.NewPeriodic("audit-sweep", c.config.AuditSweepInterval,
			func(ctx context.Context) (int, error) {
				n, err := auditUseCase.SweepAll(ctx, false)
				return int(n), err
			}, c.Logger()))
	}

	return workers, nil
}

// initHTTPServer creates the admin server and registers the backend readiness check.
func (c *Container) initHTTPServer() (*http.Server, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}

	selector, err := c.Selector()
	if err != nil {
		return nil, fmt.Errorf("failed to get selector for http server: %w", err)
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}

	server := http.NewServer(db, c.config.ServerHost, c.config.ServerPort, c.Logger())
	server.AddReadinessCheck("backend", func(ctx context.Context) error {
		_, err := selector.SelectActive(ctx)
		return err
	})

	var meterProvider metric.MeterProvider
	if provider != nil {
		meterProvider = provider.MeterProvider()
	}
	server.SetupRouter(meterProvider, c.config.MetricsNamespace)

	return server, nil
}
