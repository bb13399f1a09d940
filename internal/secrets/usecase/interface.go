// Package usecase implements the gateway secret service, the versioning manager and
// secret type administration. The gateway is the only component callers talk to: it
// re-validates the caller's tenant and secret type scope, enforces quotas, routes
// material to the active backend and records every access in the audit log.
package usecase

import (
	"context"
	"time"

	auditDomain "github.com/allisson/credstore/internal/audit/domain"
	quotaDomain "github.com/allisson/credstore/internal/quota/domain"
	secretsDomain "github.com/allisson/credstore/internal/secrets/domain"
)

// SecretTypeRepository persists secret types.
type SecretTypeRepository interface {
	Create(ctx context.Context, secretType *secretsDomain.SecretType) error
	Update(ctx context.Context, secretType *secretsDomain.SecretType) error
	Get(ctx context.Context, id string) (*secretsDomain.SecretType, error)
	List(ctx context.Context, offset, limit int) ([]*secretsDomain.SecretType, error)
}

// SecretRepository persists records and version bookkeeping. Every query is scoped by
// tenant.
type SecretRepository interface {
	// CreateRecord inserts a record. An existing (tenant, id) pair, live or deleted,
	// fails with ErrVersionConflict.
	CreateRecord(ctx context.Context, record *secretsDomain.SecretRecord) error

	// GetRecord returns the record including tombstones, or ErrSecretNotFound.
	GetRecord(ctx context.Context, tenantID, id string) (*secretsDomain.SecretRecord, error)

	// AdvanceVersion moves the current version from one value to another when it still
	// equals from. It reports false when another writer got there first.
	AdvanceVersion(ctx context.Context, tenantID, id string, from, to uint, updatedAt time.Time) (bool, error)

	// MarkDeleted turns a live record into a tombstone. It reports false when the record
	// is missing or already deleted.
	MarkDeleted(ctx context.Context, tenantID, id string, deletedAt time.Time) (bool, error)

	// ListRecords returns live records ordered by ID.
	ListRecords(
		ctx context.Context,
		tenantID string,
		filter secretsDomain.RecordFilter,
		offset, limit int,
	) ([]*secretsDomain.SecretRecord, error)

	// CountLive returns the number of live records of a tenant.
	CountLive(ctx context.Context, tenantID string) (int64, error)

	// CreateVersion inserts a version row. A duplicate (record, version) fails with
	// ErrVersionConflict.
	CreateVersion(ctx context.Context, version *secretsDomain.SecretVersion) error

	// GetVersion returns one version or ErrVersionNotFound.
	GetVersion(ctx context.Context, tenantID, recordID string, version uint) (*secretsDomain.SecretVersion, error)

	// ListVersions returns versions newest first.
	ListVersions(
		ctx context.Context,
		tenantID, recordID string,
		offset, limit int,
	) ([]*secretsDomain.SecretVersion, error)

	// ListAllVersions returns every retained version oldest first.
	ListAllVersions(ctx context.Context, tenantID, recordID string) ([]*secretsDomain.SecretVersion, error)

	// ReplaceVersion overwrites the content of an existing version when its storage key
	// still equals previousKey. It reports false when another writer replaced it first.
	ReplaceVersion(ctx context.Context, version *secretsDomain.SecretVersion, previousKey string) (bool, error)

	// DeleteVersions removes the given versions of a record.
	DeleteVersions(ctx context.Context, tenantID, recordID string, versions []uint) (int64, error)
}

// UpsertInput is a write request.
type UpsertInput struct {
	// TenantID is the tenant the caller asserts to act on.
	TenantID string
	// SecretID is the stable identifier. Generated when empty.
	SecretID     string
	SecretTypeID string
	Value        []byte
	Parameters   map[string]any
	// ExpectedVersion, when set, must equal the record's current version (0 for a new
	// record) or the write fails with ErrConcurrentModification.
	ExpectedVersion *uint
}

// SecretRef addresses one secret.
type SecretRef struct {
	TenantID     string
	SecretID     string
	SecretTypeID string
}

// VersionManager appends, prunes and rolls back versions. Material goes to the backend
// before bookkeeping commits; a failed commit removes the orphaned material.
type VersionManager interface {
	// CreateRecord inserts record with value as its first version. settled runs once
	// the write has committed or failed, even when ctx is done before that.
	CreateRecord(
		ctx context.Context,
		record *secretsDomain.SecretRecord,
		secretType *secretsDomain.SecretType,
		value []byte,
		parameters map[string]any,
		createdBy string,
		settled func(),
	) (*secretsDomain.SecretVersion, error)

	// CreateVersion writes value as the next version of record, or replaces version 1
	// when the type has versioning disabled. record is updated with the new current
	// version.
	CreateVersion(
		ctx context.Context,
		record *secretsDomain.SecretRecord,
		secretType *secretsDomain.SecretType,
		value []byte,
		parameters map[string]any,
		createdBy string,
	) (*secretsDomain.SecretVersion, error)

	// Prune removes versions beyond maxVersions and versions older than the type's
	// retention period. The current version is never removed.
	Prune(
		ctx context.Context,
		record *secretsDomain.SecretRecord,
		secretType *secretsDomain.SecretType,
		maxVersions int,
	) (int, error)

	// Rollback writes the content of target as a new head version.
	Rollback(
		ctx context.Context,
		record *secretsDomain.SecretRecord,
		secretType *secretsDomain.SecretType,
		target uint,
		createdBy string,
	) (*secretsDomain.SecretVersion, error)

	// ReadVersion returns the material of one version.
	ReadVersion(
		ctx context.Context,
		record *secretsDomain.SecretRecord,
		secretType *secretsDomain.SecretType,
		version *secretsDomain.SecretVersion,
	) (*secretsDomain.SecretMaterial, error)

	// Erase removes the material of every version and tombstones the record.
	Erase(ctx context.Context, record *secretsDomain.SecretRecord, secretType *secretsDomain.SecretType) error
}

// SecretUseCase is the gateway surface.
type SecretUseCase interface {
	// UpsertSecret creates a secret or writes a new version of it and returns the record.
	UpsertSecret(ctx context.Context, input *UpsertInput) (*secretsDomain.SecretRecord, error)

	// GetSecretMaterial returns the current version's material.
	//
	// Security Note: callers MUST zero the returned Value after use.
	GetSecretMaterial(ctx context.Context, ref SecretRef) (*secretsDomain.SecretMaterial, error)

	// GetVersion returns the material of one retained version.
	//
	// Security Note: callers MUST zero the returned Value after use.
	GetVersion(ctx context.Context, ref SecretRef, version uint) (*secretsDomain.SecretMaterial, error)

	// DeleteSecret removes every version's material and leaves a tombstone so the
	// identifier is never reused.
	DeleteSecret(ctx context.Context, ref SecretRef) error

	// ListSecrets lists live secrets of a tenant, optionally of one type.
	ListSecrets(
		ctx context.Context,
		tenantID, secretTypeID string,
		offset, limit int,
	) ([]*secretsDomain.SecretRecord, error)

	// ListVersions lists the retained versions of a secret, newest first.
	ListVersions(ctx context.Context, ref SecretRef, offset, limit int) ([]*secretsDomain.SecretVersion, error)

	// Rollback writes the content of target as a new head version.
	Rollback(ctx context.Context, ref SecretRef, target uint) (*secretsDomain.SecretRecord, error)

	// QuotaUsage returns the tenant's limits and consumption.
	QuotaUsage(ctx context.Context, tenantID string) (*quotaDomain.Usage, error)

	// ExportAudit returns the tenant's audit entries.
	ExportAudit(
		ctx context.Context,
		tenantID string,
		filter auditDomain.Filter,
		offset, limit int,
	) ([]*auditDomain.Entry, error)
}

// SecretTypeUseCase administers secret types.
type SecretTypeUseCase interface {
	Create(ctx context.Context, secretType *secretsDomain.SecretType) (*secretsDomain.SecretType, error)
	Update(ctx context.Context, secretType *secretsDomain.SecretType) (*secretsDomain.SecretType, error)
	Get(ctx context.Context, id string) (*secretsDomain.SecretType, error)
	List(ctx context.Context, offset, limit int) ([]*secretsDomain.SecretType, error)
}
