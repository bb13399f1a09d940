package postgresql

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/credstore/internal/backend/embedded"
	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
	"github.com/allisson/credstore/internal/errors"
)

var blobRowColumns = []string{
	"id", "tenant_id", "user_id", "storage_key", "secret_type_id", "algorithm", "nonce", "ciphertext",
	"wrapped_dek", "dek_nonce", "kek_id", "kek_version", "parameters", "created_at", "updated_at",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func newBlob() *embedded.Blob {
	now := time.Now().UTC()
	return &embedded.Blob{
		ID:           uuid.Must(uuid.NewV7()),
		TenantID:     "tenant-a",
		UserID:       "u1",
		StorageKey:   "rec/1",
		SecretTypeID: "password",
		Algorithm:    cryptoDomain.AESGCM,
		Nonce:        []byte("nonce"),
		Ciphertext:   []byte("ciphertext"),
		WrappedDek:   []byte("wrapped"),
		DekNonce:     []byte("dek-nonce"),
		KekID:        uuid.Must(uuid.NewV7()),
		KekVersion:   3,
		Parameters:   map[string]any{"rotation": "30d"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func blobRow(b *embedded.Blob, params string) *sqlmock.Rows {
	return sqlmock.NewRows(blobRowColumns).AddRow(
		b.ID.String(), b.TenantID, b.UserID, b.StorageKey, b.SecretTypeID, string(b.Algorithm), b.Nonce, b.Ciphertext,
		b.WrappedDek, b.DekNonce, b.KekID.String(), int64(b.KekVersion), []byte(params), b.CreatedAt, b.UpdatedAt,
	)
}

func TestPostgreSQLBlobRepository_Get(t *testing.T) {
	ctx := context.Background()
	blob := newBlob()

	t.Run("success", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery("SELECT (.+) FROM secret_blobs WHERE tenant_id = \\$1 AND user_id = \\$2").
			WithArgs("tenant-a", "u1", "rec/1", "password").
			WillReturnRows(blobRow(blob, `{"rotation":"30d"}`))

		got, err := NewPostgreSQLBlobRepository(db).Get(ctx, "tenant-a", "u1", "rec/1", "password")
		require.NoError(t, err)
		assert.Equal(t, blob.ID, got.ID)
		assert.Equal(t, blob.KekID, got.KekID)
		assert.Equal(t, uint(3), got.KekVersion)
		assert.Equal(t, cryptoDomain.AESGCM, got.Algorithm)
		assert.Equal(t, "30d", got.Parameters["rotation"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery("SELECT (.+) FROM secret_blobs").WillReturnError(sql.ErrNoRows)

		_, err := NewPostgreSQLBlobRepository(db).Get(ctx, "tenant-a", "u1", "rec/1", "password")
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})
}

func TestPostgreSQLBlobRepository_GetForUpdate(t *testing.T) {
	db, mock := newMock(t)
	blob := newBlob()
	mock.ExpectQuery("SELECT (.+) FROM secret_blobs WHERE tenant_id = \\$1 AND storage_key = \\$2 FOR UPDATE").
		WithArgs("tenant-a", "rec/1").
		WillReturnRows(blobRow(blob, `null`))

	got, err := NewPostgreSQLBlobRepository(db).GetForUpdate(context.Background(), "tenant-a", "rec/1")
	require.NoError(t, err)
	assert.Nil(t, got.Parameters)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLBlobRepository_CreateUpdate(t *testing.T) {
	ctx := context.Background()
	blob := newBlob()

	t.Run("create", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec("INSERT INTO secret_blobs").
			WithArgs(blob.ID, "tenant-a", "u1", "rec/1", "password", blob.Algorithm, blob.Nonce, blob.Ciphertext,
				blob.WrappedDek, blob.DekNonce, blob.KekID, blob.KekVersion, []byte(`{"rotation":"30d"}`),
				blob.CreatedAt, blob.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewPostgreSQLBlobRepository(db).Create(ctx, blob))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update missing row", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec("UPDATE secret_blobs").WillReturnResult(sqlmock.NewResult(0, 0))

		err := NewPostgreSQLBlobRepository(db).Update(ctx, blob)
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})
}

func TestPostgreSQLBlobRepository_Delete(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("DELETE FROM secret_blobs").
		WithArgs("tenant-a", "u1", "rec/1", "password").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM secret_blobs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgreSQLBlobRepository(db)
	deleted, err := repo.Delete(context.Background(), "tenant-a", "u1", "rec/1", "password")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(context.Background(), "tenant-a", "u1", "rec/1", "password")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestPostgreSQLBlobRepository_Rewrap(t *testing.T) {
	ctx := context.Background()
	oldKek := uuid.Must(uuid.NewV7())
	newKek := uuid.Must(uuid.NewV7())
	blobID := uuid.Must(uuid.NewV7())

	t.Run("list by kek", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery("SELECT id, tenant_id, wrapped_dek").
			WithArgs(oldKek, "tenant-a", 10).
			WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "wrapped_dek", "dek_nonce", "kek_id", "kek_version"}).
				AddRow(blobID.String(), "tenant-a", []byte("wrapped"), []byte("nonce"), oldKek.String(), 1))

		blobs, err := NewPostgreSQLBlobRepository(db).ListByKek(ctx, oldKek, "tenant-a", 10)
		require.NoError(t, err)
		require.Len(t, blobs, 1)
		assert.Equal(t, blobID, blobs[0].ID)
		assert.Equal(t, cryptoDomain.KekRef{ID: oldKek, Version: 1}, blobs[0].Kek)
	})

	t.Run("conditional update", func(t *testing.T) {
		db, mock := newMock(t)
		blob := &cryptoDomain.WrappedBlob{
			ID:         blobID,
			WrappedDek: []byte("rewrapped"),
			DekNonce:   []byte("nonce2"),
			Kek:        cryptoDomain.KekRef{ID: newKek, Version: 2},
		}
		mock.ExpectExec("UPDATE secret_blobs SET wrapped_dek").
			WithArgs(blob.WrappedDek, blob.DekNonce, newKek, blob.Kek.Version, blobID, oldKek).
			WillReturnResult(sqlmock.NewResult(0, 0))

		updated, err := NewPostgreSQLBlobRepository(db).UpdateWrap(ctx, blob, oldKek)
		require.NoError(t, err)
		assert.False(t, updated)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("count", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery("SELECT COUNT").
			WithArgs(oldKek).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

		count, err := NewPostgreSQLBlobRepository(db).CountByKek(ctx, oldKek)
		require.NoError(t, err)
		assert.Equal(t, int64(4), count)
	})
}
