// Package usecase implements the audit log: recording, tenant-scoped queries, the
// retention sweep and signature verification.
package usecase

import (
	"context"
	"time"

	auditDomain "github.com/allisson/credstore/internal/audit/domain"
)

// Writer appends entries. There is no update path.
type Writer interface {
	Create(ctx context.Context, entry *auditDomain.Entry) error
}

// Reader queries entries.
type Reader interface {
	// List returns entries of tenantID matching filter, newest first.
	List(ctx context.Context, tenantID string, filter auditDomain.Filter, offset, limit int) ([]*auditDomain.Entry, error)

	// ListBetween returns entries of every tenant created within [from, to], oldest first.
	ListBetween(ctx context.Context, from, to time.Time, offset, limit int) ([]*auditDomain.Entry, error)
}

// Archiver removes expired entries. It is the only deletion path.
type Archiver interface {
	// DeleteOlderThan removes entries of tenantID created before olderThan, or only
	// counts them when dryRun is set.
	DeleteOlderThan(ctx context.Context, tenantID string, olderThan time.Time, dryRun bool) (int64, error)

	// Tenants returns every tenant that has audit entries.
	Tenants(ctx context.Context) ([]string, error)
}

// RetentionPolicy resolves how long a tenant's audit entries are kept.
type RetentionPolicy interface {
	AuditRetention(ctx context.Context, tenantID string) (time.Duration, error)
}

// AuditUseCase is the audit log surface.
type AuditUseCase interface {
	// Record signs and appends an entry. ID and CreatedAt are assigned here.
	Record(ctx context.Context, entry *auditDomain.Entry) error

	// Query returns entries of one tenant.
	Query(ctx context.Context, tenantID string, filter auditDomain.Filter, offset, limit int) ([]*auditDomain.Entry, error)

	// Sweep removes entries of tenantID older than olderThan and records the sweep itself.
	Sweep(ctx context.Context, tenantID string, olderThan time.Time, dryRun bool) (int64, error)

	// SweepAll sweeps every tenant according to its retention policy.
	SweepAll(ctx context.Context, dryRun bool) (int64, error)

	// VerifyBatch checks the signatures of every entry created within [start, end].
	VerifyBatch(ctx context.Context, start, end time.Time) (*auditDomain.VerificationReport, error)
}
