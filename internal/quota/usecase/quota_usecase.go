package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/allisson/credstore/internal/errors"
	quotaDomain "github.com/allisson/credstore/internal/quota/domain"
)

// limitsTTL bounds how long a tenant's limits are served from memory before being
// reloaded, so quotas set by another process take effect.
const limitsTTL = time.Minute

type cachedLimits struct {
	quota    quotaDomain.TenantQuota
	loadedAt time.Time
}

// limiterEntry holds a tenant's token bucket and last access time for cleanup.
type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
	mu         sync.Mutex
}

type quotaUseCase struct {
	repo     QuotaRepository
	counter  SecretCounter
	defaults quotaDomain.TenantQuota
	logger   *slog.Logger
	now      func() time.Time

	limits   sync.Map // map[string]*cachedLimits
	limiters sync.Map // map[string]*limiterEntry
	reserves sync.Map // map[string]*reservations
}

// reservations tracks a tenant's secret creations that passed the count check but have
// not settled yet. check serializes the count so two creators never see the same total.
type reservations struct {
	check   *semaphore.Weighted
	pending atomic.Int64
}

// Limits returns the stored quota of tenantID, falling back to the defaults.
func (q *quotaUseCase) Limits(ctx context.Context, tenantID string) (*quotaDomain.TenantQuota, error) {
	if val, ok := q.limits.Load(tenantID); ok {
		cached := val.(*cachedLimits)
		if q.now().Sub(cached.loadedAt) < limitsTTL {
			limits := cached.quota
			return &limits, nil
		}
	}

	stored, err := q.repo.Get(ctx, tenantID)
	switch {
	case errors.Is(err, quotaDomain.ErrQuotaNotFound):
		limits := q.defaults
		stored = &limits
		stored.TenantID = tenantID
	case err != nil:
		return nil, err
	}

	q.limits.Store(tenantID, &cachedLimits{quota: *stored, loadedAt: q.now()})
	limits := *stored
	return &limits, nil
}

// AllowRequest consumes one token of the tenant's bucket. Only the request that
// crosses the limit and those after it fail.
func (q *quotaUseCase) AllowRequest(ctx context.Context, tenantID string) error {
	limits, err := q.Limits(ctx, tenantID)
	if err != nil {
		return err
	}

	limiter := q.getLimiter(tenantID, limits)
	if !limiter.AllowN(q.now(), 1) {
		q.logger.Debug("rate limit exceeded", slog.String("tenant_id", tenantID))
		return fmt.Errorf("%w: request rate limit reached", errors.ErrQuotaExceeded)
	}
	return nil
}

// getLimiter returns the tenant's limiter, adjusting it in place when its limits changed.
func (q *quotaUseCase) getLimiter(tenantID string, limits *quotaDomain.TenantQuota) *rate.Limiter {
	now := q.now()
	limit := rate.Limit(limits.RequestsPerSecond)

	if val, ok := q.limiters.Load(tenantID); ok {
		entry := val.(*limiterEntry)
		entry.mu.Lock()
		entry.lastAccess = now
		entry.mu.Unlock()

		if entry.limiter.Limit() != limit {
			entry.limiter.SetLimitAt(now, limit)
		}
		if entry.limiter.Burst() != limits.Burst {
			entry.limiter.SetBurstAt(now, limits.Burst)
		}
		return entry.limiter
	}

	entry := &limiterEntry{
		limiter:    rate.NewLimiter(limit, limits.Burst),
		lastAccess: now,
	}
	actual, _ := q.limiters.LoadOrStore(tenantID, entry)
	return actual.(*limiterEntry).limiter
}

// CheckPayload rejects payloads above MaxPayloadBytes.
func (q *quotaUseCase) CheckPayload(ctx context.Context, tenantID string, size int) error {
	limits, err := q.Limits(ctx, tenantID)
	if err != nil {
		return err
	}
	if limits.MaxPayloadBytes > 0 && size > limits.MaxPayloadBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", errors.ErrSecretTooLarge, size, limits.MaxPayloadBytes)
	}
	return nil
}

func (q *quotaUseCase) tenantReservations(tenantID string) *reservations {
	val, ok := q.reserves.Load(tenantID)
	if !ok {
		val, _ = q.reserves.LoadOrStore(tenantID, &reservations{check: semaphore.NewWeighted(1)})
	}
	return val.(*reservations)
}

// ReserveSecret claims one slot of the tenant's MaxSecrets until release is called.
// Waiting for another creator's count check aborts when ctx is done. Reservations are
// process-local.
func (q *quotaUseCase) ReserveSecret(ctx context.Context, tenantID string) (func(), error) {
	limits, err := q.Limits(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if limits.MaxSecrets <= 0 {
		return func() {}, nil
	}

	res := q.tenantReservations(tenantID)
	if err := res.check.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer res.check.Release(1)

	count, err := q.counter.CountLive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	inFlight := res.pending.Load()
	if count+inFlight >= int64(limits.MaxSecrets) {
		return nil, fmt.Errorf(
			"%w: tenant holds %d of %d secrets (%d being created)",
			errors.ErrQuotaExceeded, count, limits.MaxSecrets, inFlight,
		)
	}
	res.pending.Add(1)

	var once sync.Once
	return func() { once.Do(func() { res.pending.Add(-1) }) }, nil
}

// Usage returns the tenant's live secret count with its limits.
func (q *quotaUseCase) Usage(ctx context.Context, tenantID string) (*quotaDomain.Usage, error) {
	limits, err := q.Limits(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	count, err := q.counter.CountLive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &quotaDomain.Usage{TenantID: tenantID, Secrets: count, Limits: *limits}, nil
}

// Set validates and stores an explicit quota. The in-memory copy is refreshed so the
// new limits apply to the next request handled by this process.
func (q *quotaUseCase) Set(ctx context.Context, quota *quotaDomain.TenantQuota) error {
	if err := quota.Validate(); err != nil {
		return err
	}
	quota.UpdatedAt = q.now().UTC()
	if err := q.repo.Upsert(ctx, quota); err != nil {
		return err
	}
	q.limits.Store(quota.TenantID, &cachedLimits{quota: *quota, loadedAt: q.now()})
	return nil
}

// AuditRetention returns the tenant's audit retention, defaulting to the global one.
func (q *quotaUseCase) AuditRetention(ctx context.Context, tenantID string) (time.Duration, error) {
	limits, err := q.Limits(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if limits.AuditRetention <= 0 {
		return q.defaults.AuditRetention, nil
	}
	return limits.AuditRetention, nil
}

// Tenants returns the tenants with explicit quotas.
func (q *quotaUseCase) Tenants(ctx context.Context) ([]string, error) {
	quotas, err := q.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	tenants := make([]string, 0, len(quotas))
	for _, quota := range quotas {
		tenants = append(tenants, quota.TenantID)
	}
	return tenants, nil
}

// CleanupStale drops limiters idle for longer than an hour. It runs until ctx is done.
func (q *quotaUseCase) CleanupStale(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			q.sweepLimiters(q.now().Add(-1 * time.Hour))
		}
	}
}

func (q *quotaUseCase) sweepLimiters(threshold time.Time) {
	q.limiters.Range(func(key, value any) bool {
		entry := value.(*limiterEntry)
		entry.mu.Lock()
		stale := entry.lastAccess.Before(threshold)
		entry.mu.Unlock()

		if stale {
			q.limiters.Delete(key)
			q.limits.Delete(key)
		}
		return true
	})
}

// NewQuotaUseCase creates a QuotaUseCase. defaults apply to tenants without an explicit quota.
func NewQuotaUseCase(
	repo QuotaRepository,
	counter SecretCounter,
	defaults quotaDomain.TenantQuota,
	logger *slog.Logger,
) QuotaUseCase {
	return &quotaUseCase{
		repo:     repo,
		counter:  counter,
		defaults: defaults,
		logger:   logger,
		now:      time.Now,
	}
}
