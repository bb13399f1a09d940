// Package postgresql implements audit log persistence for PostgreSQL.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	auditDomain "github.com/allisson/credstore/internal/audit/domain"
	"github.com/allisson/credstore/internal/database"
	apperrors "github.com/allisson/credstore/internal/errors"
)

const entryColumns = `id, tenant_id, actor_id, operation, secret_id, secret_type_id, outcome, error_code,
	trace_id, created_at, signature, signing_key_id`

// PostgreSQLAuditRepository implements the audit writer, reader and archiver for
// PostgreSQL. It exposes no update statement.
type PostgreSQLAuditRepository struct {
	db *sql.DB
}

// Create inserts an entry.
func (p *PostgreSQLAuditRepository) Create(ctx context.Context, entry *auditDomain.Entry) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO audit_logs (` + entryColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := querier.ExecContext(
		ctx,
		query,
		entry.ID,
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
func (p *PostgreSQLAuditRepository) List(
	ctx context.Context,
	tenantID string,
	filter auditDomain.Filter,
	offset, limit int,
) ([]*auditDomain.Entry, error) {
	querier := database.GetTx(ctx, p.db)

	conditions := []string{"tenant_id = $1"}
	args := []any{tenantID}
	add := func(condition string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}
	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}
	if filter.Operation != "" {
		add("operation = $%d", filter.Operation)
	}
	if filter.SecretID != "" {
		add("secret_id = $%d", filter.SecretID)
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at <= $%d", *filter.To)
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf(`SELECT `+entryColumns+` FROM audit_logs WHERE %s
			  ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		strings.Join(conditions, " AND "), len(args)-1, len(args))

	return p.query(ctx, querier, query, args...)
}

// ListBetween returns entries of every tenant within [from, to], oldest first.
func (p *PostgreSQLAuditRepository) ListBetween(
	ctx context.Context,
	from, to time.Time,
	offset, limit int,
) ([]*auditDomain.Entry, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + entryColumns + ` FROM audit_logs
			  WHERE created_at >= $1 AND created_at <= $2
			  ORDER BY created_at, id LIMIT $3 OFFSET $4`

	return p.query(ctx, querier, query, from, to, limit, offset)
}

// DeleteOlderThan removes or counts tenant entries created before olderThan.
func (p *PostgreSQLAuditRepository) DeleteOlderThan(
	ctx context.Context,
	tenantID string,
	olderThan time.Time,
	dryRun bool,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	if dryRun {
		var count int64
		err := querier.QueryRowContext(
			ctx,
			`SELECT COUNT(*) FROM audit_logs WHERE tenant_id = $1 AND created_at < $2`,
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
		`DELETE FROM audit_logs WHERE tenant_id = $1 AND created_at < $2`,
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
func (p *PostgreSQLAuditRepository) Tenants(ctx context.Context) ([]string, error) {
	querier := database.GetTx(ctx, p.db)

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

func (p *PostgreSQLAuditRepository) query(
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
		err := rows.Scan(
			&entry.ID,
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
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate audit entries")
	}
	return entries, nil
}

// NewPostgreSQLAuditRepository creates a new PostgreSQL audit repository.
func NewPostgreSQLAuditRepository(db *sql.DB) *PostgreSQLAuditRepository {
	return &PostgreSQLAuditRepository{db: db}
}
