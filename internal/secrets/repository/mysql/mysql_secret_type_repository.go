// Package mysql implements secret type, record and version persistence for MySQL.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/allisson/credstore/internal/database"
	apperrors "github.com/allisson/credstore/internal/errors"
	secretsDomain "github.com/allisson/credstore/internal/secrets/domain"
)

const secretTypeColumns = `id, name, parameter_schema, versioning_enabled, max_versions, retention_seconds,
	encryption_required, created_at, updated_at`

// MySQLSecretTypeRepository implements secret type persistence for MySQL.
type MySQLSecretTypeRepository struct {
	db *sql.DB
}

// Create inserts a secret type.
func (m *MySQLSecretTypeRepository) Create(ctx context.Context, secretType *secretsDomain.SecretType) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO secret_types (` + secretTypeColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		secretType.ID,
		secretType.Name,
		secretType.ParameterSchema,
		secretType.VersioningEnabled,
		secretType.MaxVersions,
		int64(secretType.RetentionPeriod/time.Second),
		secretType.EncryptionRequired,
		secretType.CreatedAt,
		secretType.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return secretsDomain.ErrSecretTypeAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create secret type")
	}
	return nil
}

// Update replaces the mutable fields of a secret type.
func (m *MySQLSecretTypeRepository) Update(ctx context.Context, secretType *secretsDomain.SecretType) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE secret_types
			  SET name = ?, parameter_schema = ?, versioning_enabled = ?, max_versions = ?,
			      retention_seconds = ?, encryption_required = ?, updated_at = ?
			  WHERE id = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		secretType.Name,
		secretType.ParameterSchema,
		secretType.VersioningEnabled,
		secretType.MaxVersions,
		int64(secretType.RetentionPeriod/time.Second),
		secretType.EncryptionRequired,
		secretType.UpdatedAt,
		secretType.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update secret type")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to update secret type")
	}
	if rows == 0 {
		return secretsDomain.ErrSecretTypeNotFound
	}
	return nil
}

// Get returns a secret type by ID.
func (m *MySQLSecretTypeRepository) Get(ctx context.Context, id string) (*secretsDomain.SecretType, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + secretTypeColumns + ` FROM secret_types WHERE id = ?`

	return scanSecretType(querier.QueryRowContext(ctx, query, id))
}

// List returns secret types ordered by ID.
func (m *MySQLSecretTypeRepository) List(
	ctx context.Context,
	offset, limit int,
) ([]*secretsDomain.SecretType, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + secretTypeColumns + ` FROM secret_types ORDER BY id LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list secret types")
	}
	defer func() {
		_ = rows.Close()
	}()

	var types []*secretsDomain.SecretType
	for rows.Next() {
		secretType, err := scanSecretType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, secretType)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate secret types")
	}

	return types, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSecretType(row scanner) (*secretsDomain.SecretType, error) {
	var secretType secretsDomain.SecretType
	var retentionSeconds int64

	err := row.Scan(
		&secretType.ID,
		&secretType.Name,
		&secretType.ParameterSchema,
		&secretType.VersioningEnabled,
		&secretType.MaxVersions,
		&retentionSeconds,
		&secretType.EncryptionRequired,
		&secretType.CreatedAt,
		&secretType.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, secretsDomain.ErrSecretTypeNotFound
		}
		return nil, apperrors.Wrap(err, "failed to scan secret type")
	}
	secretType.RetentionPeriod = time.Duration(retentionSeconds) * time.Second
	return &secretType, nil
}

// NewMySQLSecretTypeRepository creates a new MySQL secret type repository.
func NewMySQLSecretTypeRepository(db *sql.DB) *MySQLSecretTypeRepository {
	return &MySQLSecretTypeRepository{db: db}
}
