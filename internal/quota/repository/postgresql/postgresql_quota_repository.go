// Package postgresql implements tenant quota persistence for PostgreSQL.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/allisson/credstore/internal/database"
	apperrors "github.com/allisson/credstore/internal/errors"
	quotaDomain "github.com/allisson/credstore/internal/quota/domain"
)

const quotaColumns = `tenant_id, max_secrets, max_payload_bytes, max_versions, requests_per_second, burst,
	audit_retention_seconds, updated_at`

// PostgreSQLQuotaRepository implements quota persistence for PostgreSQL databases.
// Audit retention is stored in whole seconds.
type PostgreSQLQuotaRepository struct {
	db *sql.DB
}

// Get returns the quota of tenantID.
func (p *PostgreSQLQuotaRepository) Get(ctx context.Context, tenantID string) (*quotaDomain.TenantQuota, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + quotaColumns + ` FROM tenant_quotas WHERE tenant_id = $1`

	return scanQuota(querier.QueryRowContext(ctx, query, tenantID))
}

// Upsert inserts or replaces the quota of a tenant.
func (p *PostgreSQLQuotaRepository) Upsert(ctx context.Context, quota *quotaDomain.TenantQuota) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO tenant_quotas (` + quotaColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  ON CONFLICT (tenant_id) DO UPDATE SET
			      max_secrets = EXCLUDED.max_secrets,
			      max_payload_bytes = EXCLUDED.max_payload_bytes,
			      max_versions = EXCLUDED.max_versions,
			      requests_per_second = EXCLUDED.requests_per_second,
			      burst = EXCLUDED.burst,
			      audit_retention_seconds = EXCLUDED.audit_retention_seconds,
			      updated_at = EXCLUDED.updated_at`

	_, err := querier.ExecContext(
		ctx,
		query,
		quota.TenantID,
		quota.MaxSecrets,
		quota.MaxPayloadBytes,
		quota.MaxVersions,
		quota.RequestsPerSecond,
		quota.Burst,
		int64(quota.AuditRetention/time.Second),
		quota.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert tenant quota")
	}
	return nil
}

// List returns every stored quota ordered by tenant.
func (p *PostgreSQLQuotaRepository) List(ctx context.Context) ([]*quotaDomain.TenantQuota, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + quotaColumns + ` FROM tenant_quotas ORDER BY tenant_id`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list tenant quotas")
	}
	defer func() {
		_ = rows.Close()
	}()

	var quotas []*quotaDomain.TenantQuota
	for rows.Next() {
		quota, err := scanQuota(rows)
		if err != nil {
			return nil, err
		}
		quotas = append(quotas, quota)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate tenant quotas")
	}

	return quotas, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuota(row scanner) (*quotaDomain.TenantQuota, error) {
	var quota quotaDomain.TenantQuota
	var retentionSeconds int64

	err := row.Scan(
		&quota.TenantID,
		&quota.MaxSecrets,
		&quota.MaxPayloadBytes,
		&quota.MaxVersions,
		&quota.RequestsPerSecond,
		&quota.Burst,
		&retentionSeconds,
		&quota.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, quotaDomain.ErrQuotaNotFound
		}
		return nil, apperrors.Wrap(err, "failed to scan tenant quota")
	}
	quota.AuditRetention = time.Duration(retentionSeconds) * time.Second
	return &quota, nil
}

// NewPostgreSQLQuotaRepository creates a new PostgreSQL quota repository.
func NewPostgreSQLQuotaRepository(db *sql.DB) *PostgreSQLQuotaRepository {
	return &PostgreSQLQuotaRepository{db: db}
}
