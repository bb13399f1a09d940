package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/allisson/credstore/internal/database"
	apperrors "github.com/allisson/credstore/internal/errors"
	secretsDomain "github.com/allisson/credstore/internal/secrets/domain"
)

const (
	recordColumns = `id, tenant_id, owner_user_id, secret_type_id, current_version, created_at, updated_at, deleted_at`

	versionColumns = `tenant_id, record_id, version, parameters, storage_key, created_at, created_by`
)

// PostgreSQLSecretRepository implements record and version persistence for PostgreSQL.
// Parameters are stored as JSONB.
type PostgreSQLSecretRepository struct {
	db *sql.DB
}

// CreateRecord inserts a record.
func (p *PostgreSQLSecretRepository) CreateRecord(ctx context.Context, record *secretsDomain.SecretRecord) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO secret_records (` + recordColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := querier.ExecContext(
		ctx,
		query,
		record.ID,
		record.TenantID,
		record.OwnerUserID,
		record.SecretTypeID,
		record.CurrentVersion,
		record.CreatedAt,
		record.UpdatedAt,
		record.DeletedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return secretsDomain.ErrVersionConflict
		}
		return apperrors.Wrap(err, "failed to create secret record")
	}
	return nil
}

// GetRecord returns a record of tenantID, tombstones included.
func (p *PostgreSQLSecretRepository) GetRecord(
	ctx context.Context,
	tenantID, id string,
) (*secretsDomain.SecretRecord, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + recordColumns + ` FROM secret_records WHERE tenant_id = $1 AND id = $2`

	return scanRecord(querier.QueryRowContext(ctx, query, tenantID, id))
}

// AdvanceVersion is a compare-and-set on current_version.
func (p *PostgreSQLSecretRepository) AdvanceVersion(
	ctx context.Context,
	tenantID, id string,
	from, to uint,
	updatedAt time.Time,
) (bool, error) {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE secret_records SET current_version = $1, updated_at = $2
			  WHERE tenant_id = $3 AND id = $4 AND current_version = $5 AND deleted_at IS NULL`

	return execAffected(ctx, querier, "failed to advance secret version", query, to, updatedAt, tenantID, id, from)
}

// MarkDeleted tombstones a live record.
func (p *PostgreSQLSecretRepository) MarkDeleted(
	ctx context.Context,
	tenantID, id string,
	deletedAt time.Time,
) (bool, error) {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE secret_records SET deleted_at = $1, updated_at = $1
			  WHERE tenant_id = $2 AND id = $3 AND deleted_at IS NULL`

	return execAffected(ctx, querier, "failed to delete secret record", query, deletedAt, tenantID, id)
}

// ListRecords returns live records of tenantID ordered by ID.
func (p *PostgreSQLSecretRepository) ListRecords(
	ctx context.Context,
	tenantID string,
	filter secretsDomain.RecordFilter,
	offset, limit int,
) ([]*secretsDomain.SecretRecord, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + recordColumns + ` FROM secret_records
			  WHERE tenant_id = $1 AND deleted_at IS NULL
			    AND ($2 = '' OR secret_type_id = $2)
			    AND ($3 = '' OR owner_user_id = '' OR owner_user_id = $3)
			    AND (COALESCE(cardinality($4::text[]), 0) = 0 OR secret_type_id = ANY($4))
			  ORDER BY id LIMIT $5 OFFSET $6`

	rows, err := querier.QueryContext(
		ctx,
		query,
		tenantID,
		filter.SecretTypeID,
		filter.OwnerUserID,
		pq.Array(filter.SecretTypeIDs),
		limit,
		offset,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list secret records")
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []*secretsDomain.SecretRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate secret records")
	}

	return records, nil
}

// CountLive counts live records of tenantID.
func (p *PostgreSQLSecretRepository) CountLive(ctx context.Context, tenantID string) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT COUNT(*) FROM secret_records WHERE tenant_id = $1 AND deleted_at IS NULL`

	var count int64
	if err := querier.QueryRowContext(ctx, query, tenantID).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count secret records")
	}
	return count, nil
}

// CreateVersion inserts a version row.
func (p *PostgreSQLSecretRepository) CreateVersion(ctx context.Context, version *secretsDomain.SecretVersion) error {
	querier := database.GetTx(ctx, p.db)

	params, err := json.Marshal(version.Parameters)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal version parameters")
	}

	query := `INSERT INTO secret_versions (` + versionColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = querier.ExecContext(
		ctx,
		query,
		version.TenantID,
		version.RecordID,
		version.Version,
		params,
		version.StorageKey,
		version.CreatedAt,
		version.CreatedBy,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return secretsDomain.ErrVersionConflict
		}
		return apperrors.Wrap(err, "failed to create secret version")
	}
	return nil
}

// GetVersion returns one version of a record.
func (p *PostgreSQLSecretRepository) GetVersion(
	ctx context.Context,
	tenantID, recordID string,
	version uint,
) (*secretsDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + versionColumns + ` FROM secret_versions
			  WHERE tenant_id = $1 AND record_id = $2 AND version = $3`

	return scanVersion(querier.QueryRowContext(ctx, query, tenantID, recordID, version))
}

// ListVersions returns versions of a record newest first.
func (p *PostgreSQLSecretRepository) ListVersions(
	ctx context.Context,
	tenantID, recordID string,
	offset, limit int,
) ([]*secretsDomain.SecretVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM secret_versions
			  WHERE tenant_id = $1 AND record_id = $2
			  ORDER BY version DESC LIMIT $3 OFFSET $4`

	return p.queryVersions(ctx, query, tenantID, recordID, limit, offset)
}

// ListAllVersions returns every version of a record oldest first.
func (p *PostgreSQLSecretRepository) ListAllVersions(
	ctx context.Context,
	tenantID, recordID string,
) ([]*secretsDomain.SecretVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM secret_versions
			  WHERE tenant_id = $1 AND record_id = $2
			  ORDER BY version ASC`

	return p.queryVersions(ctx, query, tenantID, recordID)
}

// ReplaceVersion swaps the content of a version when its storage key is unchanged.
func (p *PostgreSQLSecretRepository) ReplaceVersion(
	ctx context.Context,
	version *secretsDomain.SecretVersion,
	previousKey string,
) (bool, error) {
	querier := database.GetTx(ctx, p.db)

	params, err := json.Marshal(version.Parameters)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal version parameters")
	}

	query := `UPDATE secret_versions
			  SET parameters = $1, storage_key = $2, created_at = $3, created_by = $4
			  WHERE tenant_id = $5 AND record_id = $6 AND version = $7 AND storage_key = $8`

	return execAffected(
		ctx,
		querier,
		"failed to replace secret version",
		query,
		params,
		version.StorageKey,
		version.CreatedAt,
		version.CreatedBy,
		version.TenantID,
		version.RecordID,
		version.Version,
		previousKey,
	)
}

// DeleteVersions removes the given versions of a record.
func (p *PostgreSQLSecretRepository) DeleteVersions(
	ctx context.Context,
	tenantID, recordID string,
	versions []uint,
) (int64, error) {
	if len(versions) == 0 {
		return 0, nil
	}
	querier := database.GetTx(ctx, p.db)

	numbers := make([]int64, len(versions))
	for i, v := range versions {
		numbers[i] = int64(v)
	}

	query := `DELETE FROM secret_versions WHERE tenant_id = $1 AND record_id = $2 AND version = ANY($3)`

	result, err := querier.ExecContext(ctx, query, tenantID, recordID, pq.Array(numbers))
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete secret versions")
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete secret versions")
	}
	return count, nil
}

func (p *PostgreSQLSecretRepository) queryVersions(
	ctx context.Context,
	query string,
	args ...any,
) ([]*secretsDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, p.db)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list secret versions")
	}
	defer func() {
		_ = rows.Close()
	}()

	var versions []*secretsDomain.SecretVersion
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate secret versions")
	}

	return versions, nil
}

func execAffected(ctx context.Context, querier database.Querier, message, query string, args ...any) (bool, error) {
	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return false, apperrors.Wrap(err, message)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, message)
	}
	return rows > 0, nil
}

func scanRecord(row scanner) (*secretsDomain.SecretRecord, error) {
	var record secretsDomain.SecretRecord
	var deletedAt sql.NullTime

	err := row.Scan(
		&record.ID,
		&record.TenantID,
		&record.OwnerUserID,
		&record.SecretTypeID,
		&record.CurrentVersion,
		&record.CreatedAt,
		&record.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, secretsDomain.ErrSecretNotFound
		}
		return nil, apperrors.Wrap(err, "failed to scan secret record")
	}
	if deletedAt.Valid {
		record.DeletedAt = &deletedAt.Time
	}
	return &record, nil
}

func scanVersion(row scanner) (*secretsDomain.SecretVersion, error) {
	var version secretsDomain.SecretVersion
	var params []byte

	err := row.Scan(
		&version.TenantID,
		&version.RecordID,
		&version.Version,
		&params,
		&version.StorageKey,
		&version.CreatedAt,
		&version.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, secretsDomain.ErrVersionNotFound
		}
		return nil, apperrors.Wrap(err, "failed to scan secret version")
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &version.Parameters); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal version parameters")
		}
	}
	return &version, nil
}

// NewPostgreSQLSecretRepository creates a new PostgreSQL secret repository.
func NewPostgreSQLSecretRepository(db *sql.DB) *PostgreSQLSecretRepository {
	return &PostgreSQLSecretRepository{db: db}
}
