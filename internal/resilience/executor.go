package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/allisson/credstore/internal/errors"
)

// Policy bounds retries and per-attempt time.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Timeout         time.Duration
}

// MaxDuration is the upper bound of one Do call: every attempt timing out plus every wait.
func (p Policy) MaxDuration() time.Duration {
	attempts := max(p.MaxAttempts, 1)
	return time.Duration(attempts)*p.Timeout + time.Duration(attempts-1)*p.MaxInterval
}

// Executor runs backend calls through a breaker with bounded exponential-backoff retries.
type Executor struct {
	policy Policy
	logger *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(policy Policy, logger *slog.Logger) *Executor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Executor{policy: policy, logger: logger}
}

// neverRetried lists error kinds that do not heal with retries.
var neverRetried = []error{
	apperrors.ErrForbidden,
	apperrors.ErrNotFound,
	apperrors.ErrInvalidSecretType,
	apperrors.ErrInvalidInput,
	apperrors.ErrConcurrentModification,
	apperrors.ErrDecryptionFailure,
	apperrors.ErrKekUnavailable,
	apperrors.ErrConflict,
	apperrors.ErrQuotaExceeded,
	apperrors.ErrSecretTooLarge,
}

// IsTransient reports whether err is worth retrying: timeouts, transport errors and
// explicit unavailable responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	for _, kind := range neverRetried {
		if errors.Is(err, kind) {
			return false
		}
	}
	if errors.Is(err, apperrors.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Do calls op until it succeeds, fails permanently or runs out of attempts. Each attempt
// gets its own timeout. Transient failures count against the breaker; other errors count
// as a healthy backend and are returned unchanged. Exhausted transient failures are
// returned marked with ErrUnavailable.
func (e *Executor) Do(ctx context.Context, breaker *CircuitBreaker, op func(ctx context.Context) error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = e.policy.InitialInterval
	exp.MaxInterval = e.policy.MaxInterval
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(e.policy.MaxAttempts-1)), ctx)

	attempt := func() error {
		if err := breaker.Allow(); err != nil {
			return backoff.Permanent(err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.policy.Timeout)
		err := op(attemptCtx)
		cancel()

		switch {
		case err == nil:
			breaker.Success()
			return nil
		case ctx.Err() != nil:
			breaker.Release()
			return backoff.Permanent(ctx.Err())
		case !IsTransient(err):
			breaker.Success()
			return backoff.Permanent(err)
		}

		breaker.Failure()
		return err
	}

	notify := func(err error, wait time.Duration) {
		e.logger.Warn("retrying backend call",
			slog.String("error_code", apperrors.Code(err)),
			slog.Duration("wait", wait),
		)
	}

	err := backoff.RetryNotify(attempt, policy, notify)
	if err != nil && IsTransient(err) && !errors.Is(err, apperrors.ErrUnavailable) {
		return fmt.Errorf("%w: %w", apperrors.ErrUnavailable, err)
	}
	return err
}

// Detach runs fn on a context that keeps ctx's values but not its cancellation, bounded
// by timeout. If the caller gives up first Detach returns ctx.Err() while fn runs to
// completion in the background, so an in-flight write is never cut in half.
func Detach(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	done := make(chan error, 1)
	go func() {
		defer cancel()
		done <- fn(detached)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
