package backend_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/credstore/internal/backend"
	"github.com/allisson/credstore/internal/backend/mocks"
	apperrors "github.com/allisson/credstore/internal/errors"
	"github.com/allisson/credstore/internal/metrics"
	"github.com/allisson/credstore/internal/resilience"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type testRegistry struct {
	instances []backend.Instance
	plugins   map[string]backend.Plugin
}

func (r *testRegistry) Instances(ctx context.Context) ([]backend.Instance, error) {
	return r.instances, nil
}

func (r *testRegistry) Handle(ctx context.Context, instanceID string) (backend.Plugin, error) {
	p, ok := r.plugins[instanceID]
	if !ok {
		return nil, apperrors.ErrUnavailable
	}
	return p, nil
}

type encryptingPlugin struct {
	mocks.MockPlugin
}

func (p *encryptingPlugin) EncryptsAtRest() bool {
	return true
}

func newThreeInstanceRegistry() (*testRegistry, map[string]*mocks.MockPlugin) {
	plugins := map[string]*mocks.MockPlugin{"p10": {}, "p20": {}, "p30": {}}
	return &testRegistry{
		// deliberately unsorted
		instances: []backend.Instance{{ID: "p30", Priority: 30}, {ID: "p10", Priority: 10}, {ID: "p20", Priority: 20}},
		plugins: map[string]backend.Plugin{
			"p10": plugins["p10"], "p20": plugins["p20"], "p30": plugins["p30"],
		},
	}, plugins
}

func TestSelector_SelectActive(t *testing.T) {
	ctx := context.Background()

	t.Run("lowest priority wins while eligible", func(t *testing.T) {
		registry, _ := newThreeInstanceRegistry()
		selector := backend.NewSelector(registry, resilience.NewBreakerSet(5, time.Minute), discardLogger)

		for range 3 {
			h, err := selector.SelectActive(ctx)
			require.NoError(t, err)
			assert.Equal(t, "p10", h.InstanceID)
		}
	})

	t.Run("open breaker fails over to next priority", func(t *testing.T) {
		registry, _ := newThreeInstanceRegistry()
		breakers := resilience.NewBreakerSet(1, time.Minute)
		selector := backend.NewSelector(registry, breakers, discardLogger)

		breakers.Get("p10").Failure()

		h, err := selector.SelectActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, "p20", h.InstanceID)
	})

	t.Run("ties broken by instance id", func(t *testing.T) {
		registry := &testRegistry{
			instances: []backend.Instance{{ID: "b", Priority: 1}, {ID: "a", Priority: 1}},
			plugins:   map[string]backend.Plugin{"a": &mocks.MockPlugin{}, "b": &mocks.MockPlugin{}},
		}
		selector := backend.NewSelector(registry, resilience.NewBreakerSet(1, time.Minute), discardLogger)

		h, err := selector.SelectActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a", h.InstanceID)
	})

	t.Run("unconstructable instance is skipped", func(t *testing.T) {
		registry, _ := newThreeInstanceRegistry()
		delete(registry.plugins, "p10")
		selector := backend.NewSelector(registry, resilience.NewBreakerSet(5, time.Minute), discardLogger)

		h, err := selector.SelectActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, "p20", h.InstanceID)
	})

	t.Run("encryption required skips plaintext plugins", func(t *testing.T) {
		registry := &testRegistry{
			instances: []backend.Instance{{ID: "plain", Priority: 1}, {ID: "sealed", Priority: 2}},
			plugins: map[string]backend.Plugin{
				"plain":  &mocks.MockPlugin{},
				"sealed": &encryptingPlugin{},
			},
		}
		selector := backend.NewSelector(registry, resilience.NewBreakerSet(1, time.Minute), discardLogger)

		h, err := selector.SelectActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, "plain", h.InstanceID)

		h, err = selector.SelectActive(backend.WithEncryptionRequired(ctx))
		require.NoError(t, err)
		assert.Equal(t, "sealed", h.InstanceID)

		delete(registry.plugins, "sealed")
		_, err = selector.SelectActive(backend.WithEncryptionRequired(ctx))
		assert.ErrorIs(t, err, apperrors.ErrPluginUnavailable)
	})

	t.Run("none eligible", func(t *testing.T) {
		registry, _ := newThreeInstanceRegistry()
		breakers := resilience.NewBreakerSet(1, time.Minute)
		for _, id := range []string{"p10", "p20", "p30"} {
			breakers.Get(id).Failure()
		}
		selector := backend.NewSelector(registry, breakers, discardLogger)

		_, err := selector.SelectActive(ctx)
		assert.ErrorIs(t, err, apperrors.ErrPluginUnavailable)
	})
}

func newTestDispatcher(registry backend.Registry, breakers *resilience.BreakerSet, attempts int) *backend.Dispatcher {
	executor := resilience.NewExecutor(resilience.Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Timeout:         time.Second,
	}, discardLogger)
	return backend.NewDispatcher(backend.NewSelector(registry, breakers, discardLogger), executor,
		metrics.NewNoOpBackendMetrics())
}

// recordedCall is one RecordCall observed by callRecorder.
type recordedCall struct {
	instanceID, operation, status string
}

type callRecorder struct {
	calls []recordedCall
}

func (r *callRecorder) RecordCall(_ context.Context, instanceID, operation, status string, _ time.Duration) {
	r.calls = append(r.calls, recordedCall{instanceID, operation, status})
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()

	t.Run("routes to active instance", func(t *testing.T) {
		registry, plugins := newThreeInstanceRegistry()
		material := &backend.Material{SecretTypeID: "api-key", Value: []byte("v")}
		plugins["p10"].On("GetSecretMaterial", mock.Anything, "s1", "api-key").Return(material, nil)

		d := newTestDispatcher(registry, resilience.NewBreakerSet(5, time.Minute), 1)
		got, err := d.GetSecretMaterial(ctx, "s1", "api-key")
		require.NoError(t, err)
		assert.Same(t, material, got)
		plugins["p20"].AssertNotCalled(t, "GetSecretMaterial", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("breaker trips then next call fails over", func(t *testing.T) {
		registry, plugins := newThreeInstanceRegistry()
		breakers := resilience.NewBreakerSet(5, time.Minute)
		plugins["p10"].On("UpsertSecret", mock.Anything, "s1", "api-key", []byte("v"), map[string]any(nil)).
			Return(apperrors.ErrUnavailable)
		plugins["p20"].On("UpsertSecret", mock.Anything, "s1", "api-key", []byte("v"), map[string]any(nil)).
			Return(nil)

		d := newTestDispatcher(registry, breakers, 1)
		for range 5 {
			err := d.UpsertSecret(ctx, "s1", "api-key", []byte("v"), nil)
			assert.ErrorIs(t, err, apperrors.ErrUnavailable)
		}
		assert.Equal(t, resilience.StateOpen, breakers.Get("p10").State())

		require.NoError(t, d.UpsertSecret(ctx, "s1", "api-key", []byte("v"), nil))
		plugins["p10"].AssertNumberOfCalls(t, "UpsertSecret", 5)
		plugins["p20"].AssertNumberOfCalls(t, "UpsertSecret", 1)
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		registry, plugins := newThreeInstanceRegistry()
		plugins["p10"].On("DeleteSecret", mock.Anything, "s1", "api-key").Return(backend.ErrBlobNotFound)

		d := newTestDispatcher(registry, resilience.NewBreakerSet(5, time.Minute), 3)
		err := d.DeleteSecret(ctx, "s1", "api-key")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		plugins["p10"].AssertNumberOfCalls(t, "DeleteSecret", 1)
	})

	t.Run("records the serving instance", func(t *testing.T) {
		registry, plugins := newThreeInstanceRegistry()
		breakers := resilience.NewBreakerSet(1, time.Minute)
		plugins["p10"].On("DeleteSecret", mock.Anything, "s1", "api-key").Return(apperrors.ErrUnavailable).Once()
		plugins["p20"].On("DeleteSecret", mock.Anything, "s1", "api-key").Return(nil).Once()

		recorder := &callRecorder{}
		executor := resilience.NewExecutor(resilience.Policy{
			MaxAttempts: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Timeout: time.Second,
		}, discardLogger)
		d := backend.NewDispatcher(backend.NewSelector(registry, breakers, discardLogger), executor, recorder)

		assert.Error(t, d.DeleteSecret(ctx, "s1", "api-key"))
		require.NoError(t, d.DeleteSecret(ctx, "s1", "api-key"))
		assert.Equal(t, []recordedCall{
			{"p10", "delete_secret", "plugin_unavailable"},
			{"p20", "delete_secret", "success"},
		}, recorder.calls)
	})

	t.Run("transient errors are retried", func(t *testing.T) {
		registry, plugins := newThreeInstanceRegistry()
		plugins["p10"].On("DeleteSecret", mock.Anything, "s1", "api-key").
			Return(errors.Join(apperrors.ErrUnavailable, errors.New("503"))).Twice()
		plugins["p10"].On("DeleteSecret", mock.Anything, "s1", "api-key").Return(nil).Once()

		d := newTestDispatcher(registry, resilience.NewBreakerSet(5, time.Minute), 3)
		require.NoError(t, d.DeleteSecret(ctx, "s1", "api-key"))
		plugins["p10"].AssertNumberOfCalls(t, "DeleteSecret", 3)
	})
}
