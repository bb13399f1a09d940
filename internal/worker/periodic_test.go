package worker

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
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestPeriodic_Start(t *testing.T) {
	t.Run("runs until cancelled", func(t *testing.T) {
		var runs atomic.Int32
		p := NewPeriodic("rewrap", 5*time.Millisecond, func(ctx context.Context) (int, error) {
			runs.Add(1)
			return 1, nil
		}, discardLogger)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- p.Start(ctx) }()

		require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("worker did not stop")
		}
	})

	t.Run("keeps running after a failed run", func(t *testing.T) {
		var runs atomic.Int32
		p := NewPeriodic("audit-sweep", 5*time.Millisecond, func(ctx context.Context) (int, error) {
			if runs.Add(1) == 1 {
				return 0, errors.New("database unavailable")
			}
			return 0, nil
		}, discardLogger)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- p.Start(ctx) }()

		require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
		cancel()
		<-done
	})
}

func TestPeriodic_RunOnce(t *testing.T) {
	var got int
	p := NewPeriodic("kek-reload", time.Hour, func(ctx context.Context) (int, error) {
		got++
		return 0, nil
	}, discardLogger)

	p.RunOnce(context.Background())

	assert.Equal(t, 1, got)
	assert.Equal(t, "kek-reload", p.Name())
}
