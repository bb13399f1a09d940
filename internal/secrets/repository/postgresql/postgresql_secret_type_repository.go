// Package postgresql implements secret type, record and version persistence for PostgreSQL.
package postgresql

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

// PostgreSQLSecretTypeRepository implements secret type persistence for PostgreSQL.
type PostgreSQLSecretTypeRepository struct {
	db *sql.DB
}

// Create inserts a secret type.
func (p *PostgreSQLSecretTypeRepository) Create(ctx context.Context, secretType *secretsDomain.SecretType) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO secret_types (` + secretTypeColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

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
func (p *PostgreSQLSecretTypeRepository) Update(ctx context.Context, secretType *secretsDomain.SecretType) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE secret_types
			  SET name = $1, parameter_schema = $2, versioning_enabled = $3, max_versions = $4,
			      retention_seconds = $5, encryption_required = $6, updated_at = $7
			  WHERE id = $8`

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
func (p *PostgreSQLSecretTypeRepository) Get(ctx context.Context, id string) (*secretsDomain.SecretType, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + secretTypeColumns + ` FROM secret_types WHERE id = $1`

	return scanSecretType(querier.QueryRowContext(ctx, query, id))
}

// List returns secret types ordered by ID.
func (p *PostgreSQLSecretTypeRepository) List(
	ctx context.Context,
	offset, limit int,
) ([]*secretsDomain.SecretType, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + secretTypeColumns + ` FROM secret_types ORDER BY id LIMIT $1 OFFSET $2`

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

// NewPostgreSQLSecretTypeRepository creates a new PostgreSQL secret type repository.
func NewPostgreSQLSecretTypeRepository(db *sql.DB) *PostgreSQLSecretTypeRepository {
	return &PostgreSQLSecretTypeRepository{db: db}
}
