package backend

import (
	"context"
	"time"

	"github.com/allisson/credstore/internal/metrics"
	"github.com/allisson/credstore/internal/resilience"
)

// Dispatcher is the Plugin the core talks to. Every call selects the active instance and
// runs through the instance's breaker and the retry executor.
type Dispatcher struct {
	selector *Selector
	executor *resilience.Executor
	metrics  metrics.BackendMetrics
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(selector *Selector, executor *resilience.Executor, m metrics.BackendMetrics) *Dispatcher {
	return &Dispatcher{selector: selector, executor: executor, metrics: m}
}

func (d *Dispatcher) call(ctx context.Context, operation string, fn func(ctx context.Context, p Plugin) error) error {
	start := time.Now()

	instanceID := metrics.NoInstance
	handle, err := d.selector.SelectActive(ctx)
	if err == nil {
		instanceID = handle.InstanceID
		err = d.executor.Do(ctx, handle.Breaker, func(ctx context.Context) error {
			return fn(ctx, handle.Plugin)
		})
	}

	d.metrics.RecordCall(ctx, instanceID, operation, metrics.Status(err), time.Since(start))

	return err
}

// UpsertSecret stores material through the active backend.
func (d *Dispatcher) UpsertSecret(
	ctx context.Context,
	secretID, secretTypeID string,
	value []byte,
	parameters map[string]any,
) error {
	return d.call(ctx, "upsert_secret", func(ctx context.Context, p Plugin) error {
		return p.UpsertSecret(ctx, secretID, secretTypeID, value, parameters)
	})
}

// GetSecretMaterial reads material through the active backend.
func (d *Dispatcher) GetSecretMaterial(ctx context.Context, secretID, secretTypeID string) (*Material, error) {
	var material *Material
	err := d.call(ctx, "get_secret_material", func(ctx context.Context, p Plugin) error {
		m, err := p.GetSecretMaterial(ctx, secretID, secretTypeID)
		if err != nil {
			return err
		}
		material = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return material, nil
}

// DeleteSecret removes material through the active backend.
func (d *Dispatcher) DeleteSecret(ctx context.Context, secretID, secretTypeID string) error {
	return d.call(ctx, "delete_secret", func(ctx context.Context, p Plugin) error {
		return p.DeleteSecret(ctx, secretID, secretTypeID)
	})
}
