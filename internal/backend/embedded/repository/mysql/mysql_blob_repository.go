// Package mysql implements embedded blob persistence for MySQL.
package mysql

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

// MySQLBlobRepository implements embedded.BlobRepository for MySQL.
// UUIDs are stored as BINARY(16) and parameters as JSON.
type MySQLBlobRepository struct {
	db *sql.DB
}

// GetForUpdate returns the blob under storageKey and locks its row.
func (m *MySQLBlobRepository) GetForUpdate(
	ctx context.Context,
	tenantID, storageKey string,
) (*embedded.Blob, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + blobColumns + ` FROM secret_blobs WHERE tenant_id = ? AND storage_key = ? FOR UPDATE`

	return scanBlob(querier.QueryRowContext(ctx, query, tenantID, storageKey))
}

// Get returns the blob matching tenant, user, storage key and secret type.
func (m *MySQLBlobRepository) Get(
	ctx context.Context,
	tenantID, userID, storageKey, secretTypeID string,
) (*embedded.Blob, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + blobColumns + ` FROM secret_blobs
			  WHERE tenant_id = ? AND user_id = ? AND storage_key = ? AND secret_type_id = ?`

	return scanBlob(querier.QueryRowContext(ctx, query, tenantID, userID, storageKey, secretTypeID))
}

// Create inserts a new blob.
func (m *MySQLBlobRepository) Create(ctx context.Context, blob *embedded.Blob) error {
	querier := database.GetTx(ctx, m.db)

	id, err := blob.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal blob id")
	}
	kekID, err := blob.KekID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal kek id")
	}
	params, err := json.Marshal(blob.Parameters)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal blob parameters")
	}

	query := `INSERT INTO secret_blobs (` + blobColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		blob.TenantID,
		blob.UserID,
		blob.StorageKey,
		blob.SecretTypeID,
		blob.Algorithm,
		blob.Nonce,
		blob.Ciphertext,
		blob.WrappedDek,
		blob.DekNonce,
		kekID,
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
func (m *MySQLBlobRepository) Update(ctx context.Context, blob *embedded.Blob) error {
	querier := database.GetTx(ctx, m.db)

	id, err := blob.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal blob id")
	}
	kekID, err := blob.KekID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal kek id")
	}
	params, err := json.Marshal(blob.Parameters)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal blob parameters")
	}

	query := `UPDATE secret_blobs
			  SET algorithm = ?, nonce = ?, ciphertext = ?, wrapped_dek = ?, dek_nonce = ?,
			      kek_id = ?, kek_version = ?, parameters = ?, updated_at = ?
			  WHERE id = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		blob.Algorithm,
		blob.Nonce,
		blob.Ciphertext,
		blob.WrappedDek,
		blob.DekNonce,
		kekID,
		blob.KekVersion,
		params,
		blob.UpdatedAt,
		id,
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
func (m *MySQLBlobRepository) Delete(
	ctx context.Context,
	tenantID, userID, storageKey, secretTypeID string,
) (bool, error) {
	querier := database.GetTx(ctx, m.db)

	query := `DELETE FROM secret_blobs
			  WHERE tenant_id = ? AND user_id = ? AND storage_key = ? AND secret_type_id = ?`

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
func (m *MySQLBlobRepository) ListByKek(
	ctx context.Context,
	kekID uuid.UUID,
	tenantID string,
	limit int,
) ([]*cryptoDomain.WrappedBlob, error) {
	querier := database.GetTx(ctx, m.db)

	kekBytes, err := kekID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal kek id")
	}

	query := `SELECT id, tenant_id, wrapped_dek, dek_nonce, kek_id, kek_version FROM secret_blobs
			  WHERE kek_id = ? AND (? = '' OR tenant_id = ?)
			  ORDER BY id LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, kekBytes, tenantID, tenantID, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list blobs by kek")
	}
	defer func() {
		_ = rows.Close()
	}()

	var blobs []*cryptoDomain.WrappedBlob
	for rows.Next() {
		var blob cryptoDomain.WrappedBlob
		var id, blobKek []byte
		if err := rows.Scan(
			&id,
			&blob.TenantID,
			&blob.WrappedDek,
			&blob.DekNonce,
			&blobKek,
			&blob.Kek.Version,
		); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan wrapped blob")
		}
		if err := blob.ID.UnmarshalBinary(id); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal blob id")
		}
		if err := blob.Kek.ID.UnmarshalBinary(blobKek); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal kek id")
		}
		blobs = append(blobs, &blob)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate wrapped blobs")
	}

	return blobs, nil
}

// UpdateWrap stores a re-wrapped DEK only if the blob still references oldKekID.
func (m *MySQLBlobRepository) UpdateWrap(
	ctx context.Context,
	blob *cryptoDomain.WrappedBlob,
	oldKekID uuid.UUID,
) (bool, error) {
	querier := database.GetTx(ctx, m.db)

	id, err := blob.ID.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal blob id")
	}
	newKek, err := blob.Kek.ID.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal kek id")
	}
	oldKek, err := oldKekID.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal kek id")
	}

	query := `UPDATE secret_blobs SET wrapped_dek = ?, dek_nonce = ?, kek_id = ?, kek_version = ?
			  WHERE id = ? AND kek_id = ?`

	result, err := querier.ExecContext(ctx, query, blob.WrappedDek, blob.DekNonce, newKek, blob.Kek.Version, id, oldKek)
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
func (m *MySQLBlobRepository) CountByKek(ctx context.Context, kekID uuid.UUID) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	kekBytes, err := kekID.MarshalBinary()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to marshal kek id")
	}

	var count int64
	err = querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM secret_blobs WHERE kek_id = ?`, kekBytes).
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
	var id, kekID, params []byte

	err := row.Scan(
		&id,
		&blob.TenantID,
		&blob.UserID,
		&blob.StorageKey,
		&blob.SecretTypeID,
		&blob.Algorithm,
		&blob.Nonce,
		&blob.Ciphertext,
		&blob.WrappedDek,
		&blob.DekNonce,
		&kekID,
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
	if err := blob.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal blob id")
	}
	if err := blob.KekID.UnmarshalBinary(kekID); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal kek id")
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &blob.Parameters); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal blob parameters")
		}
	}
	return &blob, nil
}

// NewMySQLBlobRepository creates a new MySQL blob repository.
func NewMySQLBlobRepository(db *sql.DB) *MySQLBlobRepository {
	return &MySQLBlobRepository{db: db}
}

var _ embedded.BlobRepository = (*MySQLBlobRepository)(nil)
