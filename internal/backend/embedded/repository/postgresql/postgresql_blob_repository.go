// Package postgresql implements embedded blob persistence for PostgreSQL.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/allisson/credstore/internal/backend"
	"github.com/allisson/credstore/internal/backend/embedded"
	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
	"github.com/allisson/credstore/internal/database"
	apperrors "github.com/allisson/credstore/internal/errors"
)

const blobColumns = `id, tenant_id, user_id, storage_key, secret_type_id, algorithm, nonce, ciphertext,
	wrapped_dek, dek_nonce, kek_id, kek_version, parameters, created_at, updated_at`

// PostgreSQLBlobRepository implements embedded.BlobRepository for PostgreSQL.
// Parameters are stored as JSONB.
type PostgreSQLBlobRepository struct {
	db *sql.DB
}

// GetForUpdate returns the blob under storageKey and locks its row.
func (p *PostgreSQLBlobRepository) GetForUpdate(
	ctx context.Context,
	tenantID, storageKey string,
) (*embedded.Blob, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + blobColumns + ` FROM secret_blobs WHERE tenant_id = $1 AND storage_key = $2 FOR UPDATE`

	return scanBlob(querier.QueryRowContext(ctx, query, tenantID, storageKey))
}

// Get returns the blob matching tenant, user, storage key and secret type.
func (p *PostgreSQLBlobRepository) Get(
	ctx context.Context,
	tenantID, userID, storageKey, secretTypeID string,
) (*embedded.Blob, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + blobColumns + ` FROM secret_blobs
			  WHERE tenant_id = $1 AND user_id = $2 AND storage_key = $3 AND secret_type_id = $4`

	return scanBlob(querier.QueryRowContext(ctx, query, tenantID, userID, storageKey, secretTypeID))
}

// Create inserts a new blob.
func (p *PostgreSQLBlobRepository) Create(ctx context.Context, blob *embedded.Blob) error {
	querier := database.GetTx(ctx, p.db)

	params, err := json.Marshal(blob.Parameters)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal blob parameters")
	}

	query := `INSERT INTO secret_blobs (` + blobColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = querier.ExecContext(
		ctx,
		query,
		blob.ID,
		blob.TenantID,
		blob.UserID,
		blob.StorageKey,
		blob.SecretTypeID,
		blob.Algorithm,
		blob.Nonce,
		blob.Ciphertext,
		blob.WrappedDek,
		blob.DekNonce,
		blob.KekID,
		blob.KekVersion,
		params,
		blob.CreatedAt,
		blob.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create blob")
	}
	return nil
}

// Update replaces the envelope, parameters and wrap metadata of a blob.
func (p *PostgreSQLBlobRepository) Update(ctx context.Context, blob *embedded.Blob) error {
	querier := database.GetTx(ctx, p.db)

	params, err := json.Marshal(blob.Parameters)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal blob parameters")
	}

	query := `UPDATE secret_blobs
			  SET algorithm = $1, nonce = $2, ciphertext = $3, wrapped_dek = $4, dek_nonce = $5,
			      kek_id = $6, kek_version = $7, parameters = $8, updated_at = $9
			  WHERE id = $10`

	result, err := querier.ExecContext(
		ctx,
		query,
		blob.Algorithm,
		blob.Nonce,
		blob.Ciphertext,
		blob.WrappedDek,
		blob.DekNonce,
		blob.KekID,
		blob.KekVersion,
		params,
		blob.UpdatedAt,
		blob.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update blob")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to update blob")
	}
	if rows == 0 {
		return backend.ErrBlobNotFound
	}
	return nil
}

// Delete removes the blob matching the full scope.
func (p *PostgreSQLBlobRepository) Delete(
	ctx context.Context,
	tenantID, userID, storageKey, secretTypeID string,
) (bool, error) {
	querier := database.GetTx(ctx, p.db)

	query := `DELETE FROM secret_blobs
			  WHERE tenant_id = $1 AND user_id = $2 AND storage_key = $3 AND secret_type_id = $4`

	result, err := querier.ExecContext(ctx, query, tenantID, userID, storageKey, secretTypeID)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to delete blob")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to delete blob")
	}
	return rows > 0, nil
}

// ListByKek returns up to limit blobs wrapped by kekID. An empty tenantID matches
// every tenant.
func (p *PostgreSQLBlobRepository) ListByKek(
	ctx context.Context,
	kekID uuid.UUID,
	tenantID string,
	limit int,
) ([]*cryptoDomain.WrappedBlob, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, tenant_id, wrapped_dek, dek_nonce, kek_id, kek_version FROM secret_blobs
			  WHERE kek_id = $1 AND ($2 = '' OR tenant_id = $2)
			  ORDER BY id LIMIT $3`

	rows, err := querier.QueryContext(ctx, query, kekID, tenantID, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list blobs by kek")
	}
	defer func() {
		_ = rows.Close()
	}()

	var blobs []*cryptoDomain.WrappedBlob
	for rows.Next() {
		var blob cryptoDomain.WrappedBlob
		if err := rows.Scan(
			&blob.ID,
			&blob.TenantID,
			&blob.WrappedDek,
			&blob.DekNonce,
			&blob.Kek.ID,
			&blob.Kek.Version,
		); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan wrapped blob")
		}
		blobs = append(blobs, &blob)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate wrapped blobs")
	}

	return blobs, nil
}

// UpdateWrap stores a re-wrapped DEK only if the blob still references oldKekID.
func (p *PostgreSQLBlobRepository) UpdateWrap(
	ctx context.Context,
	blob *cryptoDomain.WrappedBlob,
	oldKekID uuid.UUID,
) (bool, error) {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE secret_blobs SET wrapped_dek = $1, dek_nonce = $2, kek_id = $3, kek_version = $4
			  WHERE id = $5 AND kek_id = $6`

	result, err := querier.ExecContext(
		ctx,
		query,
		blob.WrappedDek,
		blob.DekNonce,
		blob.Kek.ID,
		blob.Kek.Version,
		blob.ID,
		oldKekID,
	)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to update blob wrap")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to update blob wrap")
	}
	return rows > 0, nil
}

// CountByKek returns how many blobs are wrapped by kekID.
func (p *PostgreSQLBlobRepository) CountByKek(ctx context.Context, kekID uuid.UUID) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	var count int64
	err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM secret_blobs WHERE kek_id = $1`, kekID).
		Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count blobs by kek")
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBlob(row scanner) (*embedded.Blob, error) {
	var blob embedded.Blob
	var params []byte

	err := row.Scan(
		&blob.ID,
		&blob.TenantID,
		&blob.UserID,
		&blob.StorageKey,
		&blob.SecretTypeID,
		&blob.Algorithm,
		&blob.Nonce,
		&blob.Ciphertext,
		&blob.WrappedDek,
		&blob.DekNonce,
		&blob.KekID,
		&blob.KekVersion,
		&params,
		&blob.CreatedAt,
		&blob.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrBlobNotFound
		}
		return nil, apperrors.Wrap(err, "failed to scan blob")
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &blob.Parameters); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal blob parameters")
		}
	}
	return &blob, nil
}

// NewPostgreSQLBlobRepository creates a new PostgreSQL blob repository.
func NewPostgreSQLBlobRepository(db *sql.DB) *PostgreSQLBlobRepository {
	return &PostgreSQLBlobRepository{db: db}
}

var _ embedded.BlobRepository = (*PostgreSQLBlobRepository)(nil)
