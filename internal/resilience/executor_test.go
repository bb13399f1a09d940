package resilience

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	apperrors "github.com/allisson/credstore/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestExecutor(attempts int) *Executor {
	return NewExecutor(Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Timeout:         50 * time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "unavailable", err: apperrors.Wrap(apperrors.ErrUnavailable, "vault 503"), want: true},
		{name: "timeout", err: context.DeadlineExceeded, want: true},
		{name: "forbidden", err: apperrors.ErrForbidden, want: false},
		{name: "not found", err: apperrors.ErrNotFound, want: false},
		{name: "invalid secret type", err: apperrors.ErrInvalidSecretType, want: false},
		{name: "validation", err: apperrors.ErrInvalidInput, want: false},
		{name: "concurrent modification", err: apperrors.ErrConcurrentModification, want: false},
		{name: "decryption", err: apperrors.ErrDecryptionFailure, want: false},
		{
			name: "decryption wrapped with unavailable",
			err:  errors.Join(apperrors.ErrUnavailable, apperrors.ErrDecryptionFailure),
			want: false,
		},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestExecutor_Do(t *testing.T) {
	ctx := context.Background()

	t.Run("retries transient failures", func(t *testing.T) {
		var calls atomic.Int32
		err := newTestExecutor(3).Do(ctx, NewCircuitBreaker(5, time.Minute), func(ctx context.Context) error {
			if calls.Add(1) < 3 {
				return apperrors.ErrUnavailable
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		var calls atomic.Int32
		breaker := NewCircuitBreaker(10, time.Minute)
		err := newTestExecutor(3).Do(ctx, breaker, func(ctx context.Context) error {
			calls.Add(1)
			return apperrors.ErrUnavailable
		})
		assert.ErrorIs(t, err, apperrors.ErrUnavailable)
		assert.Equal(t, "plugin_unavailable", apperrors.Code(err))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("never retries permanent errors", func(t *testing.T) {
		var calls atomic.Int32
		breaker := NewCircuitBreaker(1, time.Minute)
		err := newTestExecutor(3).Do(ctx, breaker, func(ctx context.Context) error {
			calls.Add(1)
			return apperrors.ErrNotFound
		})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, StateClosed, breaker.State())
	})

	t.Run("permanent error from a half-open trial closes the breaker", func(t *testing.T) {
		breaker, clock := newTestBreaker(1, time.Second)
		breaker.Failure()
		clock.Advance(time.Second)
		require.Equal(t, StateHalfOpen, breaker.State())

		err := newTestExecutor(3).Do(ctx, breaker, func(ctx context.Context) error {
			return apperrors.ErrNotFound
		})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.Equal(t, StateClosed, breaker.State())
	})

	t.Run("attempt timeout is transient", func(t *testing.T) {
		var calls atomic.Int32
		err := newTestExecutor(2).Do(ctx, NewCircuitBreaker(5, time.Minute), func(ctx context.Context) error {
			calls.Add(1)
			<-ctx.Done()
			return ctx.Err()
		})
		assert.ErrorIs(t, err, apperrors.ErrUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("open breaker fails without contacting backend", func(t *testing.T) {
		breaker := NewCircuitBreaker(5, time.Minute)
		executor := newTestExecutor(1)
		var calls atomic.Int32
		failing := func(ctx context.Context) error {
			calls.Add(1)
			return apperrors.ErrUnavailable
		}

		for range 5 {
			_ = executor.Do(ctx, breaker, failing)
		}
		require.Equal(t, int32(5), calls.Load())

		err := executor.Do(ctx, breaker, failing)
		assert.ErrorIs(t, err, apperrors.ErrPluginUnavailable)
		assert.Equal(t, int32(5), calls.Load())
	})

	t.Run("breaker opening mid retry stops the loop", func(t *testing.T) {
		var calls atomic.Int32
		err := newTestExecutor(5).Do(ctx, NewCircuitBreaker(2, time.Minute), func(ctx context.Context) error {
			calls.Add(1)
			return apperrors.ErrUnavailable
		})
		assert.ErrorIs(t, err, apperrors.ErrPluginUnavailable)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("caller cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		err := newTestExecutor(3).Do(cctx, NewCircuitBreaker(5, time.Minute), func(ctx context.Context) error {
			cancel()
			return ctx.Err()
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPolicy_MaxDuration(t *testing.T) {
	p := Policy{MaxAttempts: 3, Timeout: time.Second, MaxInterval: 2 * time.Second}
	assert.Equal(t, 7*time.Second, p.MaxDuration())
}

func TestDetach(t *testing.T) {
	t.Run("returns result", func(t *testing.T) {
		err := Detach(context.Background(), time.Second, func(ctx context.Context) error {
			return apperrors.ErrConflict
		})
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})

	t.Run("write completes after caller cancels", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		started := make(chan struct{})
		release := make(chan struct{})
		finished := make(chan error, 1)

		go func() {
			<-started
			cancel()
		}()

		err := Detach(ctx, time.Second, func(ctx context.Context) error {
			close(started)
			<-release
			finished <- ctx.Err()
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)

		close(release)
		assert.NoError(t, <-finished)
	})
}
