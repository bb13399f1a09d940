// Package mysql implements audit log persistence for MySQL.
package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	auditDomain "github.com/allisson/credstore/internal/audit/domain"
	"github.com/allisson/credstore/internal/database"
	apperrors "github.com/allisson/credstore/internal/errors"
)

const entryColumns = `id, tenant_id, actor_id, operation, secret_id, secret_type_id, outcome, error_code,
	trace_id, created_at, signature, signing_key_id`

// MySQLAuditRepository implements the audit writer, reader and archiver for MySQL.
// IDs are stored as BINARY(16). It exposes no update statement.
type MySQLAuditRepository struct {
	db *sql.DB
}

// Create inserts an entry.
func (m *MySQLAuditRepository) Create(ctx context.Context, entry *auditDomain.Entry) error {
	querier := database.GetTx(ctx, m.db)

	id, err := entry.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal audit entry id")
	}

	query := `INSERT INTO audit_logs (` + entryColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		entry.TenantID,
		entry.ActorID,
		entry.Operation,
		entry.SecretID,
		entry.SecretTypeID,
		entry.Outcome,
		entry.ErrorCode,
		entry.TraceID,
		entry.CreatedAt,
		entry.Signature,
		entry.SigningKeyID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create audit entry")
	}
	return nil
}

// List returns tenant entries matching filter, newest first.
func (m *MySQLAuditRepository) List(
	ctx context.Context,
	tenantID string,
	filter auditDomain.Filter,
	offset, limit int,
) ([]*auditDomain.Entry, error) {
	querier := database.GetTx(ctx, m.db)

	conditions := []string{"tenant_id = ?"}
	args := []any{tenantID}
	add := func(condition string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, condition)
	}
	if filter.ActorID != "" {
		add("actor_id = ?", filter.ActorID)
	}
	if filter.Operation != "" {
		add("operation = ?", filter.Operation)
	}
	if filter.SecretID != "" {
		add("secret_id = ?", filter.SecretID)
	}
	if filter.From != nil {
		add("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		add("created_at <= ?", *filter.To)
	}
	args = append(args, limit, offset)

	query := `SELECT ` + entryColumns + ` FROM audit_logs WHERE ` + strings.Join(conditions, " AND ") + `
			  ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	return m.query(ctx, querier, query, args...)
}

// ListBetween returns entries of every tenant within [from, to], oldest first.
func (m *MySQLAuditRepository) ListBetween(
	ctx context.Context,
	from, to time.Time,
	offset, limit int,
) ([]*auditDomain.Entry, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + entryColumns + ` FROM audit_logs
			  WHERE created_at >= ? AND created_at <= ?
			  ORDER BY created_at, id LIMIT ? OFFSET ?`

	return m.query(ctx, querier, query, from, to, limit, offset)
}

// DeleteOlderThan removes or counts tenant entries created before olderThan.
func (m *MySQLAuditRepository) DeleteOlderThan(
	ctx context.Context,
	tenantID string,
	olderThan time.Time,
	dryRun bool,
) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	if dryRun {
		var count int64
		err := querier.QueryRowContext(
			ctx,
			`SELECT COUNT(*) FROM audit_logs WHERE tenant_id = ? AND created_at < ?`,
			tenantID,
			olderThan,
		).Scan(&count)
		if err != nil {
			return 0, apperrors.Wrap(err, "failed to count audit entries")
		}
		return count, nil
	}

	result, err := querier.ExecContext(
		ctx,
		`DELETE FROM audit_logs WHERE tenant_id = ? AND created_at < ?`,
		tenantID,
		olderThan,
	)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete audit entries")
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete audit entries")
	}
	return count, nil
}

// Tenants returns every tenant with audit entries.
func (m *MySQLAuditRepository) Tenants(ctx context.Context) ([]string, error) {
	querier := database.GetTx(ctx, m.db)

	rows, err := querier.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM audit_logs ORDER BY tenant_id`)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit tenants")
	}
	defer func() {
		_ = rows.Close()
	}()

	var tenants []string
	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan audit tenant")
		}
		tenants = append(tenants, tenantID)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate audit tenants")
	}
	return tenants, nil
}

func (m *MySQLAuditRepository) query(
	ctx context.Context,
	querier database.Querier,
	query string,
	args ...any,
) ([]*auditDomain.Entry, error) {
	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit entries")
	}
	defer func() {
		_ = rows.Close()
	}()

	entries := make([]*auditDomain.Entry, 0)
	for rows.Next() {
		var entry auditDomain.Entry
		var id []byte
		err := rows.Scan(
			&id,
			&entry.TenantID,
			&entry.ActorID,
			&entry.Operation,
			&entry.SecretID,
			&entry.SecretTypeID,
			&entry.Outcome,
			&entry.ErrorCode,
			&entry.TraceID,
			&entry.CreatedAt,
			&entry.Signature,
			&entry.SigningKeyID,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan audit entry")
		}
		if err := entry.ID.UnmarshalBinary(id); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal audit entry id")
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate audit entries")
	}
	return entries, nil
}

// NewMySQLAuditRepository creates a new MySQL audit repository.
func NewMySQLAuditRepository(db *sql.DB) *MySQLAuditRepository {
	return &MySQLAuditRepository{db: db}
}
