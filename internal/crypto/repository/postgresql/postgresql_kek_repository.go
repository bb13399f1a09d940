// Package postgresql implements KEK persistence for PostgreSQL.
package postgresql

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

// PostgreSQLKekRepository implements KEK persistence for PostgreSQL databases.
// Uses native UUID and BYTEA types.
type PostgreSQLKekRepository struct {
	db *sql.DB
}

// Create inserts a new KEK. A second active KEK for the same scope violates the
// partial unique index and is reported as ErrKekAlreadyExists.
func (p *PostgreSQLKekRepository) Create(ctx context.Context, kek *cryptoDomain.Kek) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO keks (` + kekColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := querier.ExecContext(
		ctx,
		query,
		kek.ID,
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
func (p *PostgreSQLKekRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status cryptoDomain.KekStatus,
	rotatedAt *time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE keks SET status = $1, rotated_at = COALESCE($2, rotated_at) WHERE id = $3`

	result, err := querier.ExecContext(ctx, query, status, rotatedAt, id)
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
func (p *PostgreSQLKekRepository) Get(ctx context.Context, id uuid.UUID) (*cryptoDomain.Kek, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + kekColumns + ` FROM keks WHERE id = $1`

	kek, err := scanKek(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return kek, nil
}

// GetActiveForUpdate returns the active KEK of scope and locks its row until the
// surrounding transaction ends, serializing concurrent rotations of one scope.
func (p *PostgreSQLKekRepository) GetActiveForUpdate(
	ctx context.Context,
	scope string,
) (*cryptoDomain.Kek, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + kekColumns + ` FROM keks WHERE scope = $1 AND status = 'active' FOR UPDATE`

	return scanKek(querier.QueryRowContext(ctx, query, scope))
}

// List returns every non-revoked KEK ordered by scope and version descending.
func (p *PostgreSQLKekRepository) List(ctx context.Context) ([]*cryptoDomain.Kek, error) {
	querier := database.GetTx(ctx, p.db)

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
	var rotatedAt sql.NullTime

	err := row.Scan(
		&kek.ID,
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
	if rotatedAt.Valid {
		kek.RotatedAt = &rotatedAt.Time
	}
	return &kek, nil
}

// NewPostgreSQLKekRepository creates a new PostgreSQL KEK repository.
func NewPostgreSQLKekRepository(db *sql.DB) *PostgreSQLKekRepository {
	return &PostgreSQLKekRepository{db: db}
}
