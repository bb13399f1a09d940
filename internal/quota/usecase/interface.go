// Package usecase implements quota enforcement and administration.
package usecase

import (
	"context"
	"time"

	quotaDomain "github.com/allisson/credstore/internal/quota/domain"
)

// QuotaRepository persists explicit per-tenant quotas.
type QuotaRepository interface {
	// Get returns the quota of tenantID or ErrQuotaNotFound.
	Get(ctx context.Context, tenantID string) (*quotaDomain.TenantQuota, error)

	// Upsert stores the quota of a tenant, replacing any previous one.
	Upsert(ctx context.Context, quota *quotaDomain.TenantQuota) error

	// List returns every explicit quota.
	List(ctx context.Context) ([]*quotaDomain.TenantQuota, error)
}

// SecretCounter counts live secrets of a tenant.
type SecretCounter interface {
	CountLive(ctx context.Context, tenantID string) (int64, error)
}

// QuotaUseCase enforces tenant limits.
type QuotaUseCase interface {
	// Limits returns the effective quota of a tenant: the stored one or the defaults.
	Limits(ctx context.Context, tenantID string) (*quotaDomain.TenantQuota, error)

	// AllowRequest consumes one token from the tenant's rate limiter.
	AllowRequest(ctx context.Context, tenantID string) error

	// CheckPayload rejects payloads larger than the tenant allows.
	CheckPayload(ctx context.Context, tenantID string, size int) error

	// ReserveSecret claims a slot of the tenant's secret limit and fails when live plus
	// in-flight creations reach it. The returned release func must be called once the
	// create has committed or failed, not when the caller gives up.
	ReserveSecret(ctx context.Context, tenantID string) (func(), error)

	// Usage returns the current consumption of a tenant.
	Usage(ctx context.Context, tenantID string) (*quotaDomain.Usage, error)

	// Set stores an explicit quota for a tenant.
	Set(ctx context.Context, quota *quotaDomain.TenantQuota) error

	// AuditRetention returns the audit retention of a tenant. It lets the audit sweep
	// honor per-tenant overrides.
	AuditRetention(ctx context.Context, tenantID string) (time.Duration, error)

	// Tenants returns the tenants with explicit quotas.
	Tenants(ctx context.Context) ([]string, error)

	// CleanupStale periodically drops idle rate limiters until ctx is done.
	CleanupStale(ctx context.Context, interval time.Duration) error
}
