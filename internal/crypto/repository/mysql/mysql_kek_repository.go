// Package mysql implements KEK persistence for MySQL.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
	"github.com/allisson/credstore/internal/database"
	apperrors "github.com/allisson/credstore/internal/errors"
)

const kekColumns = `id, scope, version, algorithm, status, master_key_id, encrypted_key, nonce, created_at, rotated_at`

// MySQLKekRepository implements KEK persistence for MySQL databases.
// UUIDs are stored as BINARY(16).
type MySQLKekRepository struct {
	db *sql.DB
}

// Create inserts a new KEK.
func (m *MySQLKekRepository) Create(ctx context.Context, kek *cryptoDomain.Kek) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO keks (` + kekColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	id, err := kek.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal kek id")
	}

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		kek.Scope,
		kek.Version,
		kek.Algorithm,
		kek.Status,
		kek.MasterKeyID,
		kek.EncryptedKey,
		kek.Nonce,
		kek.CreatedAt,
		kek.RotatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return cryptoDomain.ErrKekAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create kek")
	}
	return nil
}

// UpdateStatus changes the lifecycle state of a KEK.
func (m *MySQLKekRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status cryptoDomain.KekStatus,
	rotatedAt *time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal kek id")
	}

	query := `UPDATE keks SET status = ?, rotated_at = COALESCE(?, rotated_at) WHERE id = ?`

	result, err := querier.ExecContext(ctx, query, status, rotatedAt, idBytes)
	if err != nil {
		return apperrors.Wrap(err, "failed to update kek status")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to update kek status")
	}
	if rows == 0 {
		return cryptoDomain.ErrKekNotFound
	}
	return nil
}

// Get returns a KEK by ID.
func (m *MySQLKekRepository) Get(ctx context.Context, id uuid.UUID) (*cryptoDomain.Kek, error) {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal kek id")
	}

	query := `SELECT ` + kekColumns + ` FROM keks WHERE id = ?`

	return scanKek(querier.QueryRowContext(ctx, query, idBytes))
}

// GetActiveForUpdate returns the active KEK of scope with a row lock held until
// the surrounding transaction ends.
func (m *MySQLKekRepository) GetActiveForUpdate(
	ctx context.Context,
	scope string,
) (*cryptoDomain.Kek, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + kekColumns + ` FROM keks WHERE scope = ? AND status = 'active' FOR UPDATE`

	return scanKek(querier.QueryRowContext(ctx, query, scope))
}

// List returns every non-revoked KEK ordered by scope and version descending.
func (m *MySQLKekRepository) List(ctx context.Context) ([]*cryptoDomain.Kek, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + kekColumns + ` FROM keks WHERE status <> 'revoked' ORDER BY scope, version DESC`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list keks")
	}
	defer func() {
		_ = rows.Close()
	}()

	var keks []*cryptoDomain.Kek
	for rows.Next() {
		kek, err := scanKek(rows)
		if err != nil {
			return nil, err
		}
		keks = append(keks, kek)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate keks")
	}

	return keks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKek(row scanner) (*cryptoDomain.Kek, error) {
	var kek cryptoDomain.Kek
	var id []byte
	var rotatedAt sql.NullTime

	err := row.Scan(
		&id,
		&kek.Scope,
		&kek.Version,
		&kek.Algorithm,
		&kek.Status,
		&kek.MasterKeyID,
		&kek.EncryptedKey,
		&kek.Nonce,
		&kek.CreatedAt,
		&rotatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cryptoDomain.ErrKekNotFound
		}
		return nil, apperrors.Wrap(err, "failed to scan kek")
	}
	if err := kek.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal kek id")
	}
	if rotatedAt.Valid {
		kek.RotatedAt = &rotatedAt.Time
	}
	return &kek, nil
}

// NewMySQLKekRepository creates a new MySQL KEK repository.
func NewMySQLKekRepository(db *sql.DB) *MySQLKekRepository {
	return &MySQLKekRepository{db: db}
}
