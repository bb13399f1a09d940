package app

import (
	"context"
	"fmt"

	"github.com/allisson/credstore/internal/backend"
	"github.com/allisson/credstore/internal/backend/embedded"
	embeddedMySQL "github.com/allisson/credstore/internal/backend/embedded/repository/mysql"
	embeddedPostgreSQL "github.com/allisson/credstore/internal/backend/embedded/repository/postgresql"
	"github.com/allisson/credstore/internal/backend/memory"
	"github.com/allisson/credstore/internal/backend/vault"
	"github.com/allisson/credstore/internal/resilience"
)

// BlobRepository returns the repository of the embedded backend.
func (c *Container) BlobRepository() (embedded.BlobRepository, error) {
	err := c.lazy(&c.blobRepositoryInit, "blobRepository", func() error {
		db, err := c.DB()
		if err != nil {
			return fmt.Errorf("failed to get database for blob repository: %w", err)
		}
		switch c.config.DBDriver {
		case "postgres":
			c.blobRepository = embeddedPostgreSQL.NewPostgreSQLBlobRepository(db)
		case "mysql":
			c.blobRepository = embeddedMySQL.NewMySQLBlobRepository(db)
		default:
			return c.unsupportedDriver()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.blobRepository, nil
}

// Breakers returns the per-instance circuit breakers.
func (c *Container) Breakers() *resilience.BreakerSet {
	c.breakersInit.Do(func() {
		c.breakers = resilience.NewBreakerSet(c.config.BreakerFailureThreshold, c.config.BreakerCooldown)
	})
	return c.breakers
}

// breakerStates snapshots the breaker of every backend instance used so far.
func (c *Container) breakerStates() map[string]string {
	states := c.Breakers().States()
	out := make(map[string]string, len(states))
	for id, state := range states {
		out[id] = string(state)
	}
	return out
}

// Executor returns the retry executor wrapping every backend call.
func (c *Container) Executor() *resilience.Executor {
	c.executorInit.Do(func() {
		c.executor = resilience.NewExecutor(c.retryPolicy(), c.Logger())
	})
	return c.executor
}

func (c *Container) retryPolicy() resilience.Policy {
	return resilience.Policy{
		MaxAttempts:     c.config.RetryMaxAttempts,
		InitialInterval: c.config.RetryInitialInterval,
		MaxInterval:     c.config.RetryMaxInterval,
		Timeout:         c.config.BackendTimeout,
	}
}

// BackendRegistry returns the registry of configured backend instances.
func (c *Container) BackendRegistry() (*backend.StaticRegistry, error) {
	err := c.lazy(&c.registryInit, "backendRegistry", func() error {
		registry, err := backend.NewStaticRegistry(c.config.Backends, c.backendFactories())
		if err != nil {
			return fmt.Errorf("failed to create backend registry: %w", err)
		}
		c.registry = registry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.registry, nil
}

// Selector returns the backend selector.
func (c *Container) Selector() (*backend.Selector, error) {
	err := c.lazy(&c.selectorInit, "selector", func() error {
		registry, err := c.BackendRegistry()
		if err != nil {
			return err
		}
		c.selector = backend.NewSelector(registry, c.Breakers(), c.Logger())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.selector, nil
}

// Backend returns the plugin the core talks to: selection, breaker and retries in one.
func (c *Container) Backend() (*backend.Dispatcher, error) {
	err := c.lazy(&c.dispatcherInit, "dispatcher", func() error {
		selector, err := c.Selector()
		if err != nil {
			return fmt.Errorf("failed to get selector for backend dispatcher: %w", err)
		}
		backendMetrics, err := c.BackendMetrics()
		if err != nil {
			return fmt.Errorf("failed to get backend metrics for backend dispatcher: %w", err)
		}
		c.dispatcher = backend.NewDispatcher(selector, c.Executor(), backendMetrics)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.dispatcher, nil
}

// backendFactories maps each backend kind to the constructor of its plugin.
func (c *Container) backendFactories() map[string]backend.Factory {
	return map[string]backend.Factory{
		"embedded": func(ctx context.Context, instanceID string) (backend.Plugin, error) {
			txManager, err := c.TxManager()
			if err != nil {
				return nil, err
			}
			blobRepository, err := c.BlobRepository()
			if err != nil {
				return nil, err
			}
			engine, err := c.Engine()
			if err != nil {
				return nil, err
			}
			return embedded.NewStore(txManager, blobRepository, engine), nil
		},
		"vault": func(ctx context.Context, instanceID string) (backend.Plugin, error) {
			return vault.NewStore(vault.Config{
				Address:   c.config.VaultAddress,
				Token:     c.config.VaultToken,
				MountPath: c.config.VaultMountPath,
				Timeout:   c.config.BackendTimeout,
			})
		},
		"memory": func(ctx context.Context, instanceID string) (backend.Plugin, error) {
			return memory.NewStore(), nil
		},
	}
}
