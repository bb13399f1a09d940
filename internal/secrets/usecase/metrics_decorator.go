package usecase

import (
	"context"
	"time"

	auditDomain "github.com/allisson/credstore/internal/audit/domain"
	"github.com/allisson/credstore/internal/metrics"
	quotaDomain "github.com/allisson/credstore/internal/quota/domain"
	secretsDomain "github.com/allisson/credstore/internal/secrets/domain"
)

// secretUseCaseWithMetrics decorates SecretUseCase with metrics instrumentation.
type secretUseCaseWithMetrics struct {
	next    SecretUseCase
	metrics metrics.BusinessMetrics
}

// NewSecretUseCaseWithMetrics wraps a SecretUseCase with metrics recording.
func NewSecretUseCaseWithMetrics(useCase SecretUseCase, m metrics.BusinessMetrics) SecretUseCase {
	return &secretUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (s *secretUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := metrics.Status(err)
	s.metrics.RecordOperation(ctx, "secrets", operation, status)
	s.metrics.RecordDuration(ctx, "secrets", operation, time.Since(start), status)
}

// UpsertSecret records metrics for secret writes.
func (s *secretUseCaseWithMetrics) UpsertSecret(
	ctx context.Context,
	input *UpsertInput,
) (*secretsDomain.SecretRecord, error) {
	start := time.Now()
	record, err := s.next.UpsertSecret(ctx, input)
	s.record(ctx, "secret_upsert", start, err)
	return record, err
}

// GetSecretMaterial records metrics for secret reads.
func (s *secretUseCaseWithMetrics) GetSecretMaterial(
	ctx context.Context,
	ref SecretRef,
) (*secretsDomain.SecretMaterial, error) {
	start := time.Now()
	material, err := s.next.GetSecretMaterial(ctx, ref)
	s.record(ctx, "secret_get", start, err)
	return material, err
}

// GetVersion records metrics for versioned secret reads.
func (s *secretUseCaseWithMetrics) GetVersion(
	ctx context.Context,
	ref SecretRef,
	version uint,
) (*secretsDomain.SecretMaterial, error) {
	start := time.Now()
	material, err := s.next.GetVersion(ctx, ref, version)
	s.record(ctx, "secret_get_version", start, err)
	return material, err
}

// DeleteSecret records metrics for secret deletion.
func (s *secretUseCaseWithMetrics) DeleteSecret(ctx context.Context, ref SecretRef) error {
	start := time.Now()
	err := s.next.DeleteSecret(ctx, ref)
	s.record(ctx, "secret_delete", start, err)
	return err
}

// ListSecrets records metrics for secret listing.
func (s *secretUseCaseWithMetrics) ListSecrets(
	ctx context.Context,
	tenantID, secretTypeID string,
	offset, limit int,
) ([]*secretsDomain.SecretRecord, error) {
	start := time.Now()
	records, err := s.next.ListSecrets(ctx, tenantID, secretTypeID, offset, limit)
	s.record(ctx, "secret_list", start, err)
	return records, err
}

// ListVersions records metrics for version listing.
func (s *secretUseCaseWithMetrics) ListVersions(
	ctx context.Context,
	ref SecretRef,
	offset, limit int,
) ([]*secretsDomain.SecretVersion, error) {
	start := time.Now()
	versions, err := s.next.ListVersions(ctx, ref, offset, limit)
	s.record(ctx, "secret_list_versions", start, err)
	return versions, err
}

// Rollback records metrics for rollbacks.
func (s *secretUseCaseWithMetrics) Rollback(
	ctx context.Context,
	ref SecretRef,
	target uint,
) (*secretsDomain.SecretRecord, error) {
	start := time.Now()
	record, err := s.next.Rollback(ctx, ref, target)
	s.record(ctx, "secret_rollback", start, err)
	return record, err
}

// QuotaUsage records metrics for quota introspection.
func (s *secretUseCaseWithMetrics) QuotaUsage(ctx context.Context, tenantID string) (*quotaDomain.Usage, error) {
	start := time.Now()
	usage, err := s.next.QuotaUsage(ctx, tenantID)
	s.record(ctx, "quota_usage", start, err)
	return usage, err
}

// ExportAudit records metrics for audit exports.
func (s *secretUseCaseWithMetrics) ExportAudit(
	ctx context.Context,
	tenantID string,
	filter auditDomain.Filter,
	offset, limit int,
) ([]*auditDomain.Entry, error) {
	start := time.Now()
	entries, err := s.next.ExportAudit(ctx, tenantID, filter, offset, limit)
	s.record(ctx, "audit_export", start, err)
	return entries, err
}
