package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/allisson/credstore/internal/backend"
	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
	"github.com/allisson/credstore/internal/database"
	apperrors "github.com/allisson/credstore/internal/errors"
	"github.com/allisson/credstore/internal/resilience"
	secretsDomain "github.com/allisson/credstore/internal/secrets/domain"
	"github.com/allisson/credstore/internal/tenancy"
)

// versionManager implements VersionManager.
//
// Mutations run on a detached context bounded by writeTimeout: once material is handed
// to the backend the bookkeeping that follows is never abandoned halfway because the
// caller went away.
type versionManager struct {
	txManager    database.TxManager
	secretRepo   SecretRepository
	backend      backend.Plugin
	writeTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// storageContext narrows ctx to the record's storage scope.
func storageContext(
	ctx context.Context,
	record *secretsDomain.SecretRecord,
	secretType *secretsDomain.SecretType,
) context.Context {
	ctx = tenancy.WithStorageScope(ctx, record.TenantID, record.OwnerUserID)
	if secretType.EncryptionRequired {
		ctx = backend.WithEncryptionRequired(ctx)
	}
	return ctx
}

func (v *versionManager) CreateRecord(
	ctx context.Context,
	record *secretsDomain.SecretRecord,
	secretType *secretsDomain.SecretType,
	value []byte,
	parameters map[string]any,
	createdBy string,
	settled func(),
) (*secretsDomain.SecretVersion, error) {
	var version *secretsDomain.SecretVersion
	err := resilience.Detach(ctx, v.writeTimeout, func(ctx context.Context) error {
		defer settled()
		var err error
		version, err = v.append(ctx, record, true, secretType, value, parameters, createdBy)
		return err
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

func (v *versionManager) CreateVersion(
	ctx context.Context,
	record *secretsDomain.SecretRecord,
	secretType *secretsDomain.SecretType,
	value []byte,
	parameters map[string]any,
	createdBy string,
) (*secretsDomain.SecretVersion, error) {
	var version *secretsDomain.SecretVersion
	err := resilience.Detach(ctx, v.writeTimeout, func(ctx context.Context) error {
		var err error
		if !secretType.VersioningEnabled {
			version, err = v.replace(ctx, record, secretType, value, parameters, createdBy)
		} else {
			version, err = v.append(ctx, record, false, secretType, value, parameters, createdBy)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// append writes value under a fresh storage key and commits it as the next version.
func (v *versionManager) append(
	ctx context.Context,
	record *secretsDomain.SecretRecord,
	isNew bool,
	secretType *secretsDomain.SecretType,
	value []byte,
	parameters map[string]any,
	createdBy string,
) (*secretsDomain.SecretVersion, error) {
	now := v.now().UTC()
	next := record.CurrentVersion + 1
	if isNew {
		next = 1
	}

	version := &secretsDomain.SecretVersion{
		TenantID:   record.TenantID,
		RecordID:   record.ID,
		Version:    next,
		Parameters: parameters,
		StorageKey: secretsDomain.NewStorageKey(record.ID),
		CreatedAt:  now,
		CreatedBy:  createdBy,
	}

	storageCtx := storageContext(ctx, record, secretType)
	if err := v.backend.UpsertSecret(storageCtx, version.StorageKey, record.SecretTypeID, value, parameters); err != nil {
		return nil, err
	}

	updated := *record
	updated.CurrentVersion = next
	updated.UpdatedAt = now

	err := v.txManager.WithTx(ctx, func(ctx context.Context) error {
		if isNew {
			updated.CreatedAt = now
			if err := v.secretRepo.CreateRecord(ctx, &updated); err != nil {
				return err
			}
		} else {
			ok, err := v.secretRepo.AdvanceVersion(ctx, record.TenantID, record.ID, record.CurrentVersion, next, now)
			if err != nil {
				return err
			}
			if !ok {
				return secretsDomain.ErrVersionConflict
			}
		}
		return v.secretRepo.CreateVersion(ctx, version)
	})
	if err != nil {
		v.discard(storageCtx, record, version.StorageKey)
		return nil, err
	}

	*record = updated
	return version, nil
}

// replace overwrites the current version in place for types without versioning.
func (v *versionManager) replace(
	ctx context.Context,
	record *secretsDomain.SecretRecord,
	secretType *secretsDomain.SecretType,
	value []byte,
	parameters map[string]any,
	createdBy string,
) (*secretsDomain.SecretVersion, error) {
	current, err := v.secretRepo.GetVersion(ctx, record.TenantID, record.ID, record.CurrentVersion)
	if err != nil {
		return nil, err
	}

	now := v.now().UTC()
	version := &secretsDomain.SecretVersion{
		TenantID:   record.TenantID,
		RecordID:   record.ID,
		Version:    current.Version,
		Parameters: parameters,
		StorageKey: secretsDomain.NewStorageKey(record.ID),
		CreatedAt:  now,
		CreatedBy:  createdBy,
	}

	storageCtx := storageContext(ctx, record, secretType)
	if err := v.backend.UpsertSecret(storageCtx, version.StorageKey, record.SecretTypeID, value, parameters); err != nil {
		return nil, err
	}

	err = v.txManager.WithTx(ctx, func(ctx context.Context) error {
		ok, err := v.secretRepo.ReplaceVersion(ctx, version, current.StorageKey)
		if err != nil {
			return err
		}
		if !ok {
			return secretsDomain.ErrVersionConflict
		}
		ok, err = v.secretRepo.AdvanceVersion(ctx, record.TenantID, record.ID, current.Version, current.Version, now)
		if err != nil {
			return err
		}
		if !ok {
			return secretsDomain.ErrVersionConflict
		}
		return nil
	})
	if err != nil {
		v.discard(storageCtx, record, version.StorageKey)
		return nil, err
	}

	v.discard(storageCtx, record, current.StorageKey)
	record.UpdatedAt = now
	return version, nil
}

// discard removes material no version references anymore. Failures only leave an
// unreachable encrypted blob behind, so they are logged and swallowed.
func (v *versionManager) discard(ctx context.Context, record *secretsDomain.SecretRecord, storageKey string) {
	err := v.backend.DeleteSecret(ctx, storageKey, record.SecretTypeID)
	if err == nil || apperrors.Is(err, apperrors.ErrNotFound) {
		return
	}
	v.logger.Warn("failed to discard secret material",
		slog.String("tenant_id", record.TenantID),
		slog.String("secret_id", record.ID),
		slog.String("error_code", apperrors.Code(err)),
	)
}

func (v *versionManager) Prune(
	ctx context.Context,
	record *secretsDomain.SecretRecord,
	secretType *secretsDomain.SecretType,
	maxVersions int,
) (int, error) {
	versions, err := v.secretRepo.ListAllVersions(ctx, record.TenantID, record.ID)
	if err != nil {
		return 0, err
	}

	keepFrom := 0
	if maxVersions > 0 && len(versions) > maxVersions {
		keepFrom = len(versions) - maxVersions
	}
	cutoff := v.now().Add(-secretType.RetentionPeriod)

	var doomed []*secretsDomain.SecretVersion
	for i, version := range versions {
		if version.Version == record.CurrentVersion {
			continue
		}
		expired := secretType.RetentionPeriod > 0 && version.CreatedAt.Before(cutoff)
		if i < keepFrom || expired {
			doomed = append(doomed, version)
		}
	}
	if len(doomed) == 0 {
		return 0, nil
	}

	numbers := make([]uint, len(doomed))
	for i, version := range doomed {
		numbers[i] = version.Version
	}

	err = resilience.Detach(ctx, v.writeTimeout, func(ctx context.Context) error {
		if _, err := v.secretRepo.DeleteVersions(ctx, record.TenantID, record.ID, numbers); err != nil {
			return err
		}
		storageCtx := storageContext(ctx, record, secretType)
		for _, version := range doomed {
			v.discard(storageCtx, record, version.StorageKey)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(doomed), nil
}

func (v *versionManager) Rollback(
	ctx context.Context,
	record *secretsDomain.SecretRecord,
	secretType *secretsDomain.SecretType,
	target uint,
	createdBy string,
) (*secretsDomain.SecretVersion, error) {
	if !secretType.VersioningEnabled {
		return nil, secretsDomain.ErrVersioningDisabled
	}

	version, err := v.secretRepo.GetVersion(ctx, record.TenantID, record.ID, target)
	if err != nil {
		return nil, err
	}

	material, err := v.ReadVersion(ctx, record, secretType, version)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(material.Value)

	return v.CreateVersion(ctx, record, secretType, material.Value, material.Parameters, createdBy)
}

func (v *versionManager) ReadVersion(
	ctx context.Context,
	record *secretsDomain.SecretRecord,
	secretType *secretsDomain.SecretType,
	version *secretsDomain.SecretVersion,
) (*secretsDomain.SecretMaterial, error) {
	material, err := v.backend.GetSecretMaterial(
		storageContext(ctx, record, secretType),
		version.StorageKey,
		record.SecretTypeID,
	)
	if err != nil {
		return nil, err
	}

	parameters := version.Parameters
	if parameters == nil {
		parameters = material.Parameters
	}
	return &secretsDomain.SecretMaterial{
		SecretID:     record.ID,
		SecretTypeID: record.SecretTypeID,
		Version:      version.Version,
		Value:        material.Value,
		Parameters:   parameters,
		CreatedAt:    version.CreatedAt,
	}, nil
}

func (v *versionManager) Erase(
	ctx context.Context,
	record *secretsDomain.SecretRecord,
	secretType *secretsDomain.SecretType,
) error {
	return resilience.Detach(ctx, v.writeTimeout, func(ctx context.Context) error {
		versions, err := v.secretRepo.ListAllVersions(ctx, record.TenantID, record.ID)
		if err != nil {
			return err
		}

		storageCtx := storageContext(ctx, record, secretType)
		numbers := make([]uint, 0, len(versions))
		for _, version := range versions {
			err := v.backend.DeleteSecret(storageCtx, version.StorageKey, record.SecretTypeID)
			if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
				return err
			}
			numbers = append(numbers, version.Version)
		}

		return v.txManager.WithTx(ctx, func(ctx context.Context) error {
			ok, err := v.secretRepo.MarkDeleted(ctx, record.TenantID, record.ID, v.now().UTC())
			if err != nil {
				return err
			}
			if !ok {
				return secretsDomain.ErrSecretNotFound
			}
			_, err = v.secretRepo.DeleteVersions(ctx, record.TenantID, record.ID, numbers)
			return err
		})
	})
}

// NewVersionManager creates a VersionManager. writeTimeout bounds one mutation
// including every backend retry.
func NewVersionManager(
	txManager database.TxManager,
	secretRepo SecretRepository,
	plugin backend.Plugin,
	writeTimeout time.Duration,
	logger *slog.Logger,
) VersionManager {
	return &versionManager{
		txManager:    txManager,
		secretRepo:   secretRepo,
		backend:      plugin,
		writeTimeout: writeTimeout,
		logger:       logger,
		now:          time.Now,
	}
}
