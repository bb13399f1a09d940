package mysql

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/credstore/internal/audit/domain"
)

var entryRowColumns = []string{
	"id", "tenant_id", "actor_id", "operation", "secret_id", "secret_type_id", "outcome", "error_code",
	"trace_id", "created_at", "signature", "signing_key_id",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestMySQLAuditRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	entry := &auditDomain.Entry{
		ID:        uuid.Must(uuid.NewV7()),
		TenantID:  "tenant-a",
		ActorID:   "system",
		Operation: auditDomain.OperationSweepAudit,
		Outcome:   auditDomain.OutcomeSuccess,
		CreatedAt: time.Now().UTC(),
	}
	id, err := entry.ID.MarshalBinary()
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(id, "tenant-a", "system", entry.Operation, "", "", entry.Outcome, "", "", entry.CreatedAt,
			entry.Signature, "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewMySQLAuditRepository(db).Create(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLAuditRepository_ListBetween(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	id := uuid.Must(uuid.NewV7())
	idBytes, err := id.MarshalBinary()
	require.NoError(t, err)

	mock.ExpectQuery(`WHERE created_at >= \? AND created_at <= \?\s+ORDER BY created_at, id LIMIT \? OFFSET \?`).
		WithArgs(now.Add(-time.Hour), now, 500, 0).
		WillReturnRows(sqlmock.NewRows(entryRowColumns).
			AddRow(idBytes, "tenant-a", "svc", "upsert_secret", "s1", "password", "success", "", "", now, nil, ""))

	entries, err := NewMySQLAuditRepository(db).ListBetween(context.Background(), now.Add(-time.Hour), now, 0, 500)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.False(t, entries[0].IsSigned())
}

func TestMySQLAuditRepository_List(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`WHERE tenant_id = \? AND actor_id = \?\s+ORDER BY created_at DESC, id DESC LIMIT \? OFFSET \?`).
		WithArgs("tenant-a", "svc", 20, 0).
		WillReturnRows(sqlmock.NewRows(entryRowColumns))

	entries, err := NewMySQLAuditRepository(db).List(
		context.Background(), "tenant-a", auditDomain.Filter{ActorID: "svc"}, 0, 20,
	)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLAuditRepository_DeleteOlderThan(t *testing.T) {
	db, mock := newMock(t)
	cutoff := time.Now().UTC()
	mock.ExpectExec("DELETE FROM audit_logs WHERE tenant_id = \\? AND created_at < \\?").
		WithArgs("tenant-a", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	count, err := NewMySQLAuditRepository(db).DeleteOlderThan(context.Background(), "tenant-a", cutoff, false)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}
