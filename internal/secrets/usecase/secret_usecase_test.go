package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/credstore/internal/audit/domain"
	"github.com/allisson/credstore/internal/backend"
	"github.com/allisson/credstore/internal/backend/memory"
	databaseMocks "github.com/allisson/credstore/internal/database/mocks"
	apperrors "github.com/allisson/credstore/internal/errors"
	quotaDomain "github.com/allisson/credstore/internal/quota/domain"
	quotaUsecase "github.com/allisson/credstore/internal/quota/usecase"
	quotaMocks "github.com/allisson/credstore/internal/quota/usecase/mocks"
	secretsDomain "github.com/allisson/credstore/internal/secrets/domain"
	"github.com/allisson/credstore/internal/tenancy"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeSecretRepository keeps records and versions in memory with the same conditional
// semantics as the SQL repositories.
type fakeSecretRepository struct {
	mu       sync.Mutex
	records  map[string]*secretsDomain.SecretRecord
	versions map[string][]*secretsDomain.SecretVersion

	createVersionErr error
}

func newFakeSecretRepository() *fakeSecretRepository {
	return &fakeSecretRepository{
		records:  make(map[string]*secretsDomain.SecretRecord),
		versions: make(map[string][]*secretsDomain.SecretVersion),
	}
}

func recordKey(tenantID, id string) string {
	return tenantID + "\x00" + id
}

func (f *fakeSecretRepository) CreateRecord(ctx context.Context, record *secretsDomain.SecretRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := recordKey(record.TenantID, record.ID)
	if _, ok := f.records[key]; ok {
		return secretsDomain.ErrVersionConflict
	}
	stored := *record
	f.records[key] = &stored
	return nil
}

func (f *fakeSecretRepository) GetRecord(
	ctx context.Context,
	tenantID, id string,
) (*secretsDomain.SecretRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[recordKey(tenantID, id)]
	if !ok {
		return nil, secretsDomain.ErrSecretNotFound
	}
	out := *record
	return &out, nil
}

func (f *fakeSecretRepository) AdvanceVersion(
	ctx context.Context,
	tenantID, id string,
	from, to uint,
	updatedAt time.Time,
) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[recordKey(tenantID, id)]
	if !ok || record.IsDeleted() || record.CurrentVersion != from {
		return false, nil
	}
	record.CurrentVersion = to
	record.UpdatedAt = updatedAt
	return true, nil
}

func (f *fakeSecretRepository) MarkDeleted(
	ctx context.Context,
	tenantID, id string,
	deletedAt time.Time,
) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[recordKey(tenantID, id)]
	if !ok || record.IsDeleted() {
		return false, nil
	}
	record.DeletedAt = &deletedAt
	return true, nil
}

func (f *fakeSecretRepository) ListRecords(
	ctx context.Context,
	tenantID string,
	filter secretsDomain.RecordFilter,
	offset, limit int,
) ([]*secretsDomain.SecretRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*secretsDomain.SecretRecord
	for _, record := range f.records {
		if record.TenantID != tenantID || record.IsDeleted() {
			continue
		}
		if filter.SecretTypeID != "" && record.SecretTypeID != filter.SecretTypeID {
			continue
		}
		if !record.VisibleTo(filter.OwnerUserID) {
			continue
		}
		if len(filter.SecretTypeIDs) > 0 && !slices.Contains(filter.SecretTypeIDs, record.SecretTypeID) {
			continue
		}
		r := *record
		out = append(out, &r)
	}
	slices.SortFunc(out, func(a, b *secretsDomain.SecretRecord) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	if offset >= len(out) {
		return nil, nil
	}
	return out[offset:min(offset+limit, len(out))], nil
}

func (f *fakeSecretRepository) CountLive(ctx context.Context, tenantID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, record := range f.records {
		if record.TenantID == tenantID && !record.IsDeleted() {
			count++
		}
	}
	return count, nil
}

func (f *fakeSecretRepository) CreateVersion(ctx context.Context, version *secretsDomain.SecretVersion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createVersionErr != nil {
		return f.createVersionErr
	}
	key := recordKey(version.TenantID, version.RecordID)
	for _, v := range f.versions[key] {
		if v.Version == version.Version {
			return secretsDomain.ErrVersionConflict
		}
	}
	stored := *version
	f.versions[key] = append(f.versions[key], &stored)
	return nil
}

func (f *fakeSecretRepository) GetVersion(
	ctx context.Context,
	tenantID, recordID string,
	version uint,
) (*secretsDomain.SecretVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.versions[recordKey(tenantID, recordID)] {
		if v.Version == version {
			out := *v
			return &out, nil
		}
	}
	return nil, secretsDomain.ErrVersionNotFound
}

func (f *fakeSecretRepository) ListVersions(
	ctx context.Context,
	tenantID, recordID string,
	offset, limit int,
) ([]*secretsDomain.SecretVersion, error) {
	all, _ := f.ListAllVersions(ctx, tenantID, recordID)
	slices.Reverse(all)
	if offset >= len(all) {
		return nil, nil
	}
	return all[offset:min(offset+limit, len(all))], nil
}

func (f *fakeSecretRepository) ListAllVersions(
	ctx context.Context,
	tenantID, recordID string,
) ([]*secretsDomain.SecretVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*secretsDomain.SecretVersion
	for _, v := range f.versions[recordKey(tenantID, recordID)] {
		c := *v
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *secretsDomain.SecretVersion) int {
		return int(a.Version) - int(b.Version)
	})
	return out, nil
}

func (f *fakeSecretRepository) ReplaceVersion(
	ctx context.Context,
	version *secretsDomain.SecretVersion,
	previousKey string,
) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.versions[recordKey(version.TenantID, version.RecordID)] {
		if v.Version == version.Version && v.StorageKey == previousKey {
			*v = *version
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSecretRepository) DeleteVersions(
	ctx context.Context,
	tenantID, recordID string,
	versions []uint,
) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := recordKey(tenantID, recordID)
	before := len(f.versions[key])
	f.versions[key] = slices.DeleteFunc(f.versions[key], func(v *secretsDomain.SecretVersion) bool {
		return slices.Contains(versions, v.Version)
	})
	return int64(before - len(f.versions[key])), nil
}

type fakeSecretTypeRepository struct {
	types map[string]*secretsDomain.SecretType
}

func (f *fakeSecretTypeRepository) Create(ctx context.Context, secretType *secretsDomain.SecretType) error {
	if _, ok := f.types[secretType.ID]; ok {
		return secretsDomain.ErrSecretTypeAlreadyExists
	}
	f.types[secretType.ID] = secretType
	return nil
}

func (f *fakeSecretTypeRepository) Update(ctx context.Context, secretType *secretsDomain.SecretType) error {
	if _, ok := f.types[secretType.ID]; !ok {
		return secretsDomain.ErrSecretTypeNotFound
	}
	f.types[secretType.ID] = secretType
	return nil
}

func (f *fakeSecretTypeRepository) Get(ctx context.Context, id string) (*secretsDomain.SecretType, error) {
	secretType, ok := f.types[id]
	if !ok {
		return nil, secretsDomain.ErrSecretTypeNotFound
	}
	return secretType, nil
}

func (f *fakeSecretTypeRepository) List(ctx context.Context, offset, limit int) ([]*secretsDomain.SecretType, error) {
	var out []*secretsDomain.SecretType
	for _, secretType := range f.types {
		out = append(out, secretType)
	}
	return out, nil
}

// recordingAudit captures entries instead of signing and storing them.
type recordingAudit struct {
	mu      sync.Mutex
	entries []auditDomain.Entry
}

func (r *recordingAudit) Record(ctx context.Context, entry *auditDomain.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *recordingAudit) Query(
	ctx context.Context,
	tenantID string,
	filter auditDomain.Filter,
	offset, limit int,
) ([]*auditDomain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*auditDomain.Entry
	for i := range r.entries {
		if r.entries[i].TenantID == tenantID {
			e := r.entries[i]
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r *recordingAudit) Sweep(ctx context.Context, tenantID string, olderThan time.Time, dryRun bool) (int64, error) {
	return 0, nil
}

func (r *recordingAudit) SweepAll(ctx context.Context, dryRun bool) (int64, error) {
	return 0, nil
}

func (r *recordingAudit) VerifyBatch(ctx context.Context, start, end time.Time) (*auditDomain.VerificationReport, error) {
	return &auditDomain.VerificationReport{}, nil
}

func (r *recordingAudit) all() []auditDomain.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.entries)
}

func (r *recordingAudit) last() auditDomain.Entry {
	entries := r.all()
	return entries[len(entries)-1]
}

// countingPlugin counts backend calls and can be told to fail.
type countingPlugin struct {
	backend.Plugin
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingPlugin) before() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func (c *countingPlugin) UpsertSecret(
	ctx context.Context,
	secretID, secretTypeID string,
	value []byte,
	parameters map[string]any,
) error {
	if err := c.before(); err != nil {
		return err
	}
	return c.Plugin.UpsertSecret(ctx, secretID, secretTypeID, value, parameters)
}

func (c *countingPlugin) GetSecretMaterial(
	ctx context.Context,
	secretID, secretTypeID string,
) (*backend.Material, error) {
	if err := c.before(); err != nil {
		return nil, err
	}
	return c.Plugin.GetSecretMaterial(ctx, secretID, secretTypeID)
}

func (c *countingPlugin) DeleteSecret(ctx context.Context, secretID, secretTypeID string) error {
	if err := c.before(); err != nil {
		return err
	}
	return c.Plugin.DeleteSecret(ctx, secretID, secretTypeID)
}

func (c *countingPlugin) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type gatewayFixture struct {
	uc       *secretUseCase
	versions *versionManager
	repo     *fakeSecretRepository
	types    *fakeSecretTypeRepository
	store    *memory.Store
	plugin   *countingPlugin
	audit    *recordingAudit
	quotas   *quotaMocks.MockQuotaRepository
}

var testDefaults = quotaDomain.TenantQuota{
	MaxSecrets:        10,
	MaxPayloadBytes:   64,
	MaxVersions:       0,
	RequestsPerSecond: 1000,
	Burst:             1000,
	AuditRetention:    24 * time.Hour,
}

// gatedPlugin blocks UpsertSecret until release is closed. entered is closed when the
// first write arrives.
type gatedPlugin struct {
	backend.Plugin
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedPlugin(next backend.Plugin) *gatedPlugin {
	return &gatedPlugin{Plugin: next, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedPlugin) UpsertSecret(
	ctx context.Context,
	secretID, secretTypeID string,
	value []byte,
	parameters map[string]any,
) error {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.Plugin.UpsertSecret(ctx, secretID, secretTypeID, value, parameters)
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	f := &gatewayFixture{
		repo: newFakeSecretRepository(),
		types: &fakeSecretTypeRepository{types: map[string]*secretsDomain.SecretType{
			"password": {ID: "password", Name: "Password", VersioningEnabled: true},
			"api-key":  {ID: "api-key", Name: "API key", VersioningEnabled: false},
			"db-credentials": {
				ID:                "db-credentials",
				Name:              "Database credentials",
				VersioningEnabled: true,
				MaxVersions:       3,
				ParameterSchema:   `{"type":"object","properties":{"host":{"type":"string"}},"required":["host"]}`,
			},
		}},
		store:  memory.NewStore(),
		audit:  &recordingAudit{},
		quotas: &quotaMocks.MockQuotaRepository{},
	}
	f.plugin = &countingPlugin{Plugin: f.store}

	txManager := &databaseMocks.MockTxManager{}
	txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)

	f.quotas.On("Get", mock.Anything, mock.Anything).Return(nil, quotaDomain.ErrQuotaNotFound)
	quota := quotaUsecase.NewQuotaUseCase(f.quotas, f.repo, testDefaults, discardLogger)

	f.versions = NewVersionManager(txManager, f.repo, f.plugin, time.Second, discardLogger).(*versionManager)
	f.uc = NewSecretUseCase(f.types, f.repo, f.versions, quota, f.audit, discardLogger).(*secretUseCase)
	return f
}

func callerCtx(tenantID, userID string, secretTypes ...string) context.Context {
	return tenancy.WithIdentity(context.Background(), tenancy.Identity{
		TenantID:    tenantID,
		UserID:      userID,
		ActorID:     "svc-" + tenantID,
		SecretTypes: secretTypes,
		TraceID:     "trace-1",
	})
}

func (f *gatewayFixture) write(t *testing.T, ctx context.Context, secretID, typeID, value string) *secretsDomain.SecretRecord {
	t.Helper()
	params := map[string]any(nil)
	if typeID == "db-credentials" {
		params = map[string]any{"host": "db.internal"}
	}
	caller, _ := tenancy.FromContext(ctx)
	record, err := f.uc.UpsertSecret(ctx, &UpsertInput{
		TenantID:     caller.TenantID,
		SecretID:     secretID,
		SecretTypeID: typeID,
		Value:        []byte(value),
		Parameters:   params,
	})
	require.NoError(t, err)
	return record
}

func TestSecretUseCase_UpsertAndGet(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := callerCtx("tenant-a", "")

	record := f.write(t, ctx, "db-password", "password", "hunter2")
	assert.Equal(t, uint(1), record.CurrentVersion)
	assert.Equal(t, "tenant-a", record.TenantID)
	assert.False(t, record.CreatedAt.IsZero())

	material, err := f.uc.GetSecretMaterial(ctx, SecretRef{TenantID: "tenant-a", SecretID: "db-password", SecretTypeID: "password"})
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), material.Value)
	assert.Equal(t, uint(1), material.Version)

	entries := f.audit.all()
	require.Len(t, entries, 2)
	assert.Equal(t, auditDomain.OperationUpsertSecret, entries[0].Operation)
	assert.Equal(t, auditDomain.OperationGetSecret, entries[1].Operation)
	for _, entry := range entries {
		assert.Equal(t, "tenant-a", entry.TenantID)
		assert.Equal(t, "svc-tenant-a", entry.ActorID)
		assert.Equal(t, "db-password", entry.SecretID)
		assert.Equal(t, auditDomain.OutcomeSuccess, entry.Outcome)
		assert.Equal(t, "trace-1", entry.TraceID)
	}
}

func TestSecretUseCase_GeneratesSecretID(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := callerCtx("tenant-a", "")

	record, err := f.uc.UpsertSecret(ctx, &UpsertInput{TenantID: "tenant-a", SecretTypeID: "password", Value: []byte("v")})
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, record.ID, f.audit.last().SecretID)
}

func TestSecretUseCase_Versioning(t *testing.T) {
	ctx := callerCtx("tenant-a", "")
	ref := SecretRef{TenantID: "tenant-a", SecretID: "db-password", SecretTypeID: "password"}

	t.Run("each write appends a version", func(t *testing.T) {
		f := newGatewayFixture(t)
		for _, v := range []string{"v1", "v2", "v3"} {
			f.write(t, ctx, "db-password", "password", v)
		}

		versions, err := f.uc.ListVersions(ctx, ref, 0, 10)
		require.NoError(t, err)
		require.Len(t, versions, 3)
		assert.Equal(t, []uint{3, 2, 1}, []uint{versions[0].Version, versions[1].Version, versions[2].Version})

		material, err := f.uc.GetVersion(ctx, ref, 1)
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), material.Value)

		current, err := f.uc.GetSecretMaterial(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, []byte("v3"), current.Value)
		assert.Equal(t, 3, f.store.Len())
	})

	t.Run("disabled versioning updates in place", func(t *testing.T) {
		f := newGatewayFixture(t)
		keyRef := SecretRef{TenantID: "tenant-a", SecretID: "stripe", SecretTypeID: "api-key"}

		f.write(t, ctx, "stripe", "api-key", "k1")
		record := f.write(t, ctx, "stripe", "api-key", "k2")
		assert.Equal(t, uint(1), record.CurrentVersion)

		material, err := f.uc.GetSecretMaterial(ctx, keyRef)
		require.NoError(t, err)
		assert.Equal(t, []byte("k2"), material.Value)
		assert.Equal(t, 1, f.store.Len())

		_, err = f.uc.Rollback(ctx, keyRef, 1)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("retention keeps the newest versions and rollback appends", func(t *testing.T) {
		f := newGatewayFixture(t)
		credRef := SecretRef{TenantID: "tenant-a", SecretID: "orders-db", SecretTypeID: "db-credentials"}

		// MaxVersions is 3: write 3+3 versions.
		for _, v := range []string{"v1", "v2", "v3", "v4", "v5", "v6"} {
			f.write(t, ctx, "orders-db", "db-credentials", v)
		}

		versions, err := f.uc.ListVersions(ctx, credRef, 0, 10)
		require.NoError(t, err)
		require.Len(t, versions, 3)
		assert.Equal(t, uint(6), versions[0].Version)
		assert.Equal(t, uint(4), versions[2].Version)
		assert.Equal(t, 3, f.store.Len())

		for _, pruned := range []uint{1, 2, 3} {
			_, err := f.uc.GetVersion(ctx, credRef, pruned)
			assert.ErrorIs(t, err, apperrors.ErrNotFound)
		}

		record, err := f.uc.Rollback(ctx, credRef, 4)
		require.NoError(t, err)
		assert.Equal(t, uint(7), record.CurrentVersion)

		current, err := f.uc.GetSecretMaterial(ctx, credRef)
		require.NoError(t, err)
		assert.Equal(t, uint(7), current.Version)
		assert.Equal(t, []byte("v4"), current.Value)
		assert.Equal(t, "db.internal", current.Parameters["host"])

		versions, err = f.uc.ListVersions(ctx, credRef, 0, 10)
		require.NoError(t, err)
		require.Len(t, versions, 3)
		assert.Equal(t, uint(5), versions[2].Version)
	})

	t.Run("tenant quota caps versions below the type", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.quotas.ExpectedCalls = nil
		f.quotas.On("Get", mock.Anything, "tenant-a").Return(&quotaDomain.TenantQuota{
			TenantID: "tenant-a", MaxVersions: 2, RequestsPerSecond: 1000, Burst: 1000,
		}, nil)

		for _, v := range []string{"v1", "v2", "v3", "v4"} {
			f.write(t, ctx, "db-password", "password", v)
		}
		versions, err := f.uc.ListVersions(ctx, ref, 0, 10)
		require.NoError(t, err)
		assert.Len(t, versions, 2)
	})

	t.Run("retention period drops old non-current versions", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.types.types["short-lived"] = &secretsDomain.SecretType{
			ID: "short-lived", Name: "Short lived", VersioningEnabled: true, RetentionPeriod: time.Hour,
		}
		clock := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
		f.versions.now = func() time.Time { return clock }

		f.write(t, ctx, "token", "short-lived", "t1")
		f.write(t, ctx, "token", "short-lived", "t2")
		clock = clock.Add(2 * time.Hour)
		f.write(t, ctx, "token", "short-lived", "t3")

		versions, err := f.uc.ListVersions(ctx, SecretRef{TenantID: "tenant-a", SecretID: "token", SecretTypeID: "short-lived"}, 0, 10)
		require.NoError(t, err)
		require.Len(t, versions, 1)
		assert.Equal(t, uint(3), versions[0].Version)
	})
}

func TestSecretUseCase_OptimisticConcurrency(t *testing.T) {
	ctx := callerCtx("tenant-a", "")

	t.Run("stale expected version", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.write(t, ctx, "db-password", "password", "v1")
		f.write(t, ctx, "db-password", "password", "v2")
		calls := f.plugin.count()

		stale := uint(1)
		_, err := f.uc.UpsertSecret(ctx, &UpsertInput{
			TenantID: "tenant-a", SecretID: "db-password", SecretTypeID: "password",
			Value: []byte("v3"), ExpectedVersion: &stale,
		})
		assert.ErrorIs(t, err, apperrors.ErrConcurrentModification)
		assert.Equal(t, calls, f.plugin.count())

		entry := f.audit.last()
		assert.Equal(t, auditDomain.OutcomeFailure, entry.Outcome)
		assert.Equal(t, "concurrent_modification", entry.ErrorCode)
	})

	t.Run("matching expected version", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.write(t, ctx, "db-password", "password", "v1")

		expected := uint(1)
		record, err := f.uc.UpsertSecret(ctx, &UpsertInput{
			TenantID: "tenant-a", SecretID: "db-password", SecretTypeID: "password",
			Value: []byte("v2"), ExpectedVersion: &expected,
		})
		require.NoError(t, err)
		assert.Equal(t, uint(2), record.CurrentVersion)
	})

	t.Run("expected version on a new secret", func(t *testing.T) {
		f := newGatewayFixture(t)
		expected := uint(3)
		_, err := f.uc.UpsertSecret(ctx, &UpsertInput{
			TenantID: "tenant-a", SecretID: "fresh", SecretTypeID: "password",
			Value: []byte("v1"), ExpectedVersion: &expected,
		})
		assert.ErrorIs(t, err, apperrors.ErrConcurrentModification)
	})

	t.Run("losing writer gets one winner per version", func(t *testing.T) {
		f := newGatewayFixture(t)
		record := f.write(t, ctx, "db-password", "password", "v1")
		secretType := f.types.types["password"]

		a := *record
		b := *record
		_, err := f.versions.CreateVersion(ctx, &a, secretType, []byte("a"), nil, "svc-a")
		require.NoError(t, err)
		_, err = f.versions.CreateVersion(ctx, &b, secretType, []byte("b"), nil, "svc-b")
		assert.ErrorIs(t, err, apperrors.ErrConcurrentModification)

		// the loser's material was discarded
		assert.Equal(t, 2, f.store.Len())
	})

	t.Run("failed commit discards material", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.repo.createVersionErr = errors.New("connection reset")

		_, err := f.uc.UpsertSecret(ctx, &UpsertInput{
			TenantID: "tenant-a", SecretID: "db-password", SecretTypeID: "password", Value: []byte("v1"),
		})
		assert.Error(t, err)
		assert.Equal(t, 0, f.store.Len())
	})
}

func TestSecretUseCase_Isolation(t *testing.T) {
	f := newGatewayFixture(t)
	ctxA := callerCtx("tenant-a", "")
	f.write(t, ctxA, "db-password", "password", "hunter2")
	calls := f.plugin.count()

	t.Run("other tenant asserting victim tenant", func(t *testing.T) {
		_, err := f.uc.GetSecretMaterial(
			callerCtx("tenant-b", ""),
			SecretRef{TenantID: "tenant-a", SecretID: "db-password", SecretTypeID: "password"},
		)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
		assert.Equal(t, calls, f.plugin.count())
	})

	t.Run("other tenant in own scope", func(t *testing.T) {
		_, err := f.uc.GetSecretMaterial(
			callerCtx("tenant-b", ""),
			SecretRef{TenantID: "tenant-b", SecretID: "db-password", SecretTypeID: "password"},
		)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("wrong secret type", func(t *testing.T) {
		_, err := f.uc.GetSecretMaterial(ctxA, SecretRef{TenantID: "tenant-a", SecretID: "db-password", SecretTypeID: "api-key"})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("secret type outside caller scope", func(t *testing.T) {
		_, err := f.uc.GetSecretMaterial(
			callerCtx("tenant-a", "", "api-key"),
			SecretRef{TenantID: "tenant-a", SecretID: "db-password", SecretTypeID: "password"},
		)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("missing identity", func(t *testing.T) {
		_, err := f.uc.GetSecretMaterial(
			context.Background(),
			SecretRef{TenantID: "tenant-a", SecretID: "db-password", SecretTypeID: "password"},
		)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
		assert.Equal(t, "anonymous", f.audit.last().ActorID)
	})

	t.Run("every denied access is audited once", func(t *testing.T) {
		entries := f.audit.all()
		// one write plus five denied reads
		require.Len(t, entries, 6)
		for _, entry := range entries[1:] {
			assert.Equal(t, auditDomain.OutcomeFailure, entry.Outcome)
			assert.Equal(t, auditDomain.OperationGetSecret, entry.Operation)
		}
		assert.Equal(t, "forbidden", entries[1].ErrorCode)
		assert.Equal(t, "tenant-a", entries[1].TenantID)
		assert.Equal(t, "tenant-b", entries[2].TenantID)
		assert.Equal(t, "not_found", entries[2].ErrorCode)
	})
}

func TestSecretUseCase_UserScope(t *testing.T) {
	f := newGatewayFixture(t)
	alice := callerCtx("tenant-a", "alice")
	ref := SecretRef{TenantID: "tenant-a", SecretID: "alice-token", SecretTypeID: "password"}

	record := f.write(t, alice, "alice-token", "password", "a1")
	assert.Equal(t, "alice", record.OwnerUserID)

	_, err := f.uc.GetSecretMaterial(callerCtx("tenant-a", "bob"), ref)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.uc.UpsertSecret(callerCtx("tenant-a", "bob"), &UpsertInput{
		TenantID: "tenant-a", SecretID: "alice-token", SecretTypeID: "password", Value: []byte("b1"),
	})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	material, err := f.uc.GetSecretMaterial(callerCtx("tenant-a", ""), ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("a1"), material.Value)
}

func TestSecretUseCase_Validation(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := callerCtx("tenant-a", "")

	tests := []struct {
		name  string
		input *UpsertInput
		want  error
	}{
		{
			name:  "empty value",
			input: &UpsertInput{TenantID: "tenant-a", SecretID: "s", SecretTypeID: "password"},
			want:  apperrors.ErrInvalidInput,
		},
		{
			name:  "unknown secret type",
			input: &UpsertInput{TenantID: "tenant-a", SecretID: "s", SecretTypeID: "ssh-key", Value: []byte("v")},
			want:  apperrors.ErrInvalidSecretType,
		},
		{
			name: "parameters violate schema",
			input: &UpsertInput{
				TenantID: "tenant-a", SecretID: "s", SecretTypeID: "db-credentials", Value: []byte("v"),
				Parameters: map[string]any{"port": 5432},
			},
			want: apperrors.ErrInvalidInput,
		},
		{
			name:  "payload too large",
			input: &UpsertInput{TenantID: "tenant-a", SecretID: "s", SecretTypeID: "password", Value: make([]byte, 65)},
			want:  apperrors.ErrSecretTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.uc.UpsertSecret(ctx, tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, f.plugin.count())

	t.Run("type of an existing secret is immutable", func(t *testing.T) {
		f.write(t, ctx, "db-password", "password", "v1")
		_, err := f.uc.UpsertSecret(ctx, &UpsertInput{
			TenantID: "tenant-a", SecretID: "db-password", SecretTypeID: "api-key", Value: []byte("v2"),
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidSecretType)
	})
}

func TestSecretUseCase_Quota(t *testing.T) {
	t.Run("secret count", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.quotas.ExpectedCalls = nil
		f.quotas.On("Get", mock.Anything, "tenant-a").Return(&quotaDomain.TenantQuota{
			TenantID: "tenant-a", MaxSecrets: 1, RequestsPerSecond: 1000, Burst: 1000,
		}, nil)
		ctx := callerCtx("tenant-a", "")

		f.write(t, ctx, "first", "password", "v1")
		f.write(t, ctx, "first", "password", "v2")

		calls := f.plugin.count()
		_, err := f.uc.UpsertSecret(ctx, &UpsertInput{
			TenantID: "tenant-a", SecretID: "second", SecretTypeID: "password", Value: []byte("v1"),
		})
		assert.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
		assert.Equal(t, calls, f.plugin.count())

		usage, err := f.uc.QuotaUsage(ctx, "tenant-a")
		require.NoError(t, err)
		assert.Equal(t, int64(1), usage.Secrets)
		assert.Equal(t, 1, usage.Limits.MaxSecrets)
	})

	t.Run("rate limit fails on the crossing request", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.quotas.ExpectedCalls = nil
		f.quotas.On("Get", mock.Anything, "tenant-a").Return(&quotaDomain.TenantQuota{
			TenantID: "tenant-a", RequestsPerSecond: 0.001, Burst: 3,
		}, nil)
		ctx := callerCtx("tenant-a", "")

		for i := range 3 {
			_, err := f.uc.ListSecrets(ctx, "tenant-a", "", 0, 10)
			require.NoError(t, err, "request %d", i+1)
		}
		_, err := f.uc.ListSecrets(ctx, "tenant-a", "", 0, 10)
		assert.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
		assert.Equal(t, "quota_exceeded", f.audit.last().ErrorCode)
	})
}

func TestSecretUseCase_Delete(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := callerCtx("tenant-a", "")
	ref := SecretRef{TenantID: "tenant-a", SecretID: "db-password", SecretTypeID: "password"}

	f.write(t, ctx, "db-password", "password", "v1")
	f.write(t, ctx, "db-password", "password", "v2")

	require.NoError(t, f.uc.DeleteSecret(ctx, ref))
	assert.Equal(t, 0, f.store.Len())

	_, err := f.uc.GetSecretMaterial(ctx, ref)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	err = f.uc.DeleteSecret(ctx, ref)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.uc.UpsertSecret(ctx, &UpsertInput{
		TenantID: "tenant-a", SecretID: "db-password", SecretTypeID: "password", Value: []byte("v3"),
	})
	assert.ErrorIs(t, err, secretsDomain.ErrSecretDeleted)

	count, err := f.repo.CountLive(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSecretUseCase_CreateReservation(t *testing.T) {
	f := newGatewayFixture(t)
	limits := testDefaults
	limits.MaxSecrets = 1
	quota := quotaUsecase.NewQuotaUseCase(f.quotas, f.repo, limits, discardLogger)
	f.uc = NewSecretUseCase(f.types, f.repo, f.versions, quota, f.audit, discardLogger).(*secretUseCase)
	gate := newGatedPlugin(f.store)
	f.versions.backend = gate

	upsert := func(ctx context.Context, secretID string) error {
		_, err := f.uc.UpsertSecret(ctx, &UpsertInput{
			TenantID: "tenant-a", SecretID: secretID, SecretTypeID: "password", Value: []byte("v1"),
		})
		return err
	}

	slowCtx, cancel := context.WithCancel(callerCtx("tenant-a", ""))
	errCh := make(chan error, 1)
	go func() { errCh <- upsert(slowCtx, "first") }()
	<-gate.entered
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	// The abandoned write still holds its slot.
	ctx := callerCtx("tenant-a", "")
	assert.ErrorIs(t, upsert(ctx, "second"), apperrors.ErrQuotaExceeded)

	close(gate.release)
	require.Eventually(t, func() bool {
		_, err := f.repo.GetRecord(ctx, "tenant-a", "first")
		return err == nil
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, upsert(ctx, "second"), apperrors.ErrQuotaExceeded)

	// Once the write settled and the secret is gone, the slot is free again.
	require.NoError(t, f.uc.DeleteSecret(ctx, SecretRef{TenantID: "tenant-a", SecretID: "first", SecretTypeID: "password"}))
	require.Eventually(t, func() bool {
		return upsert(ctx, "second") == nil
	}, time.Second, 5*time.Millisecond)
}

func TestSecretUseCase_BackendFailure(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := callerCtx("tenant-a", "")
	f.plugin.err = apperrors.ErrPluginUnavailable

	_, err := f.uc.UpsertSecret(ctx, &UpsertInput{
		TenantID: "tenant-a", SecretID: "db-password", SecretTypeID: "password", Value: []byte("v1"),
	})
	assert.ErrorIs(t, err, apperrors.ErrPluginUnavailable)

	_, err = f.repo.GetRecord(ctx, "tenant-a", "db-password")
	assert.ErrorIs(t, err, secretsDomain.ErrSecretNotFound)

	entry := f.audit.last()
	assert.Equal(t, auditDomain.OutcomeFailure, entry.Outcome)
	assert.Equal(t, "plugin_unavailable", entry.ErrorCode)
}

func TestSecretUseCase_ListSecrets(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := callerCtx("tenant-a", "")

	f.write(t, ctx, "a", "password", "v")
	f.write(t, ctx, "b", "api-key", "v")
	f.write(t, ctx, "c", "password", "v")
	f.write(t, callerCtx("tenant-b", ""), "d", "password", "v")

	records, err := f.uc.ListSecrets(ctx, "tenant-a", "", 0, 10)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	records, err = f.uc.ListSecrets(ctx, "tenant-a", "password", 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].ID)

	records, err = f.uc.ListSecrets(callerCtx("tenant-a", "", "api-key"), "tenant-a", "", 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0].ID)

	// Allowed types are applied before paging: the first page is not emptied by "a".
	records, err = f.uc.ListSecrets(callerCtx("tenant-a", "", "api-key"), "tenant-a", "", 0, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0].ID)

	records, err = f.uc.ListSecrets(callerCtx("tenant-a", "", "password"), "tenant-a", "", 1, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "c", records[0].ID)

	_, err = f.uc.ListSecrets(ctx, "tenant-a", "", 0, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSecretUseCase_ExportAudit(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := callerCtx("tenant-a", "")
	f.write(t, ctx, "db-password", "password", "v1")

	entries, err := f.uc.ExportAudit(ctx, "tenant-a", auditDomain.Filter{}, 0, 100)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, auditDomain.OperationUpsertSecret, entries[0].Operation)

	// the export itself is audited
	assert.Equal(t, auditDomain.OperationExportAudit, f.audit.last().Operation)

	_, err = f.uc.ExportAudit(ctx, "tenant-b", auditDomain.Filter{}, 0, 100)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}
