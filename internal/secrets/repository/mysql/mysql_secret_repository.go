package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/allisson/credstore/internal/database"
	apperrors "github.com/allisson/credstore/internal/errors"
	secretsDomain "github.com/allisson/credstore/internal/secrets/domain"
)

const (
	recordColumns = `id, tenant_id, owner_user_id, secret_type_id, current_version, created_at, updated_at, deleted_at`

	versionColumns = `tenant_id, record_id, version, parameters, storage_key, created_at, created_by`
)

// MySQLSecretRepository implements record and version persistence for MySQL.
// Parameters are stored as JSON.
type MySQLSecretRepository struct {
	db *sql.DB
}

// CreateRecord inserts a record.
func (m *MySQLSecretRepository) CreateRecord(ctx context.Context, record *secretsDomain.SecretRecord) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO secret_records (` + recordColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

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
func (m *MySQLSecretRepository) GetRecord(
	ctx context.Context,
	tenantID, id string,
) (*secretsDomain.SecretRecord, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + recordColumns + ` FROM secret_records WHERE tenant_id = ? AND id = ?`

	return scanRecord(querier.QueryRowContext(ctx, query, tenantID, id))
}

// AdvanceVersion is a compare-and-set on current_version.
func (m *MySQLSecretRepository) AdvanceVersion(
	ctx context.Context,
	tenantID, id string,
	from, to uint,
	updatedAt time.Time,
) (bool, error) {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE secret_records SET current_version = ?, updated_at = ?
			  WHERE tenant_id = ? AND id = ? AND current_version = ? AND deleted_at IS NULL`

	return execAffected(ctx, querier, "failed to advance secret version", query, to, updatedAt, tenantID, id, from)
}

// MarkDeleted tombstones a live record.
func (m *MySQLSecretRepository) MarkDeleted(
	ctx context.Context,
	tenantID, id string,
	deletedAt time.Time,
) (bool, error) {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE secret_records SET deleted_at = ?, updated_at = ?
			  WHERE tenant_id = ? AND id = ? AND deleted_at IS NULL`

	return execAffected(ctx, querier, "failed to delete secret record", query, deletedAt, deletedAt, tenantID, id)
}

// ListRecords returns live records of tenantID ordered by ID.
func (m *MySQLSecretRepository) ListRecords(
	ctx context.Context,
	tenantID string,
	filter secretsDomain.RecordFilter,
	offset, limit int,
) ([]*secretsDomain.SecretRecord, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + recordColumns + ` FROM secret_records
			  WHERE tenant_id = ? AND deleted_at IS NULL
			    AND (? = '' OR secret_type_id = ?)
			    AND (? = '' OR owner_user_id = '' OR owner_user_id = ?)`
	args := []any{
		tenantID,
		filter.SecretTypeID,
		filter.SecretTypeID,
		filter.OwnerUserID,
		filter.OwnerUserID,
	}
	if len(filter.SecretTypeIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(filter.SecretTypeIDs)), ", ")
		query += ` AND secret_type_id IN (` + placeholders + `)`
		for _, id := range filter.SecretTypeIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := querier.QueryContext(ctx, query, args...)
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
func (m *MySQLSecretRepository) CountLive(ctx context.Context, tenantID string) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT COUNT(*) FROM secret_records WHERE tenant_id = ? AND deleted_at IS NULL`

	var count int64
	if err := querier.QueryRowContext(ctx, query, tenantID).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count secret records")
	}
	return count, nil
}

// CreateVersion inserts a version row.
func (m *MySQLSecretRepository) CreateVersion(ctx context.Context, version *secretsDomain.SecretVersion) error {
	querier := database.GetTx(ctx, m.db)

	params, err := json.Marshal(version.Parameters)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal version parameters")
	}

	query := `INSERT INTO secret_versions (` + versionColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

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
func (m *MySQLSecretRepository) GetVersion(
	ctx context.Context,
	tenantID, recordID string,
	version uint,
) (*secretsDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + versionColumns + ` FROM secret_versions
			  WHERE tenant_id = ? AND record_id = ? AND version = ?`

	return scanVersion(querier.QueryRowContext(ctx, query, tenantID, recordID, version))
}

// ListVersions returns versions of a record newest first.
func (m *MySQLSecretRepository) ListVersions(
	ctx context.Context,
	tenantID, recordID string,
	offset, limit int,
) ([]*secretsDomain.SecretVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM secret_versions
			  WHERE tenant_id = ? AND record_id = ?
			  ORDER BY version DESC LIMIT ? OFFSET ?`

	return m.queryVersions(ctx, query, tenantID, recordID, limit, offset)
}

// ListAllVersions returns every version of a record oldest first.
func (m *MySQLSecretRepository) ListAllVersions(
	ctx context.Context,
	tenantID, recordID string,
) ([]*secretsDomain.SecretVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM secret_versions
			  WHERE tenant_id = ? AND record_id = ?
			  ORDER BY version ASC`

	return m.queryVersions(ctx, query, tenantID, recordID)
}

// ReplaceVersion swaps the content of a version when its storage key is unchanged.
func (m *MySQLSecretRepository) ReplaceVersion(
	ctx context.Context,
	version *secretsDomain.SecretVersion,
	previousKey string,
) (bool, error) {
	querier := database.GetTx(ctx, m.db)

	params, err := json.Marshal(version.Parameters)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal version parameters")
	}

	query := `UPDATE secret_versions
			  SET parameters = ?, storage_key = ?, created_at = ?, created_by = ?
			  WHERE tenant_id = ? AND record_id = ? AND version = ? AND storage_key = ?`

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
func (m *MySQLSecretRepository) DeleteVersions(
	ctx context.Context,
	tenantID, recordID string,
	versions []uint,
) (int64, error) {
	if len(versions) == 0 {
		return 0, nil
	}
	querier := database.GetTx(ctx, m.db)

	args := make([]any, 0, len(versions)+2)
	args = append(args, tenantID, recordID)
	for _, v := range versions {
		args = append(args, v)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(versions)), ", ")

	query := `DELETE FROM secret_versions WHERE tenant_id = ? AND record_id = ? AND version IN (` + placeholders + `)`

	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete secret versions")
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete secret versions")
	}
	return count, nil
}

func (m *MySQLSecretRepository) queryVersions(
	ctx context.Context,
	query string,
	args ...any,
) ([]*secretsDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, m.db)

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

// NewMySQLSecretRepository creates a new MySQL secret repository.
func NewMySQLSecretRepository(db *sql.DB) *MySQLSecretRepository {
	return &MySQLSecretRepository{db: db}
}
