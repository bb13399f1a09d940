// Package mysql implements tenant quota persistence for MySQL.
package mysql

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

// MySQLQuotaRepository implements quota persistence for MySQL databases.
// Audit retention is stored in whole seconds.
type MySQLQuotaRepository struct {
	db *sql.DB
}

// Get returns the quota of tenantID.
func (m *MySQLQuotaRepository) Get(ctx context.Context, tenantID string) (*quotaDomain.TenantQuota, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + quotaColumns + ` FROM tenant_quotas WHERE tenant_id = ?`

	return scanQuota(querier.QueryRowContext(ctx, query, tenantID))
}

// Upsert inserts or replaces the quota of a tenant.
func (m *MySQLQuotaRepository) Upsert(ctx context.Context, quota *quotaDomain.TenantQuota) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO tenant_quotas (` + quotaColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
			      max_secrets = VALUES(max_secrets),
			      max_payload_bytes = VALUES(max_payload_bytes),
			      max_versions = VALUES(max_versions),
			      requests_per_second = VALUES(requests_per_second),
			      burst = VALUES(burst),
			      audit_retention_seconds = VALUES(audit_retention_seconds),
			      updated_at = VALUES(updated_at)`

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
func (m *MySQLQuotaRepository) List(ctx context.Context) ([]*quotaDomain.TenantQuota, error) {
	querier := database.GetTx(ctx, m.db)

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

// NewMySQLQuotaRepository creates a new MySQL quota repository.
func NewMySQLQuotaRepository(db *sql.DB) *MySQLQuotaRepository {
	return &MySQLQuotaRepository{db: db}
}
