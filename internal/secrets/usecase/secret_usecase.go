package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	auditDomain "github.com/allisson/credstore/internal/audit/domain"
	auditUsecase "github.com/allisson/credstore/internal/audit/usecase"
	apperrors "github.com/allisson/credstore/internal/errors"
	quotaDomain "github.com/allisson/credstore/internal/quota/domain"
	quotaUsecase "github.com/allisson/credstore/internal/quota/usecase"
	secretsDomain "github.com/allisson/credstore/internal/secrets/domain"
	"github.com/allisson/credstore/internal/tenancy"
	customValidation "github.com/allisson/credstore/internal/validation"
)

// anonymousActor is recorded when a call arrives without a caller identity.
const anonymousActor = "anonymous"

// maxPageSize caps list operations.
const maxPageSize = 1000

// ErrOwnedByAnotherUser is returned when a user-scoped caller writes a secret another
// user owns.
var ErrOwnedByAnotherUser = apperrors.Wrap(apperrors.ErrForbidden, "secret owned by another user")

// Validate checks a write request.
func (in *UpsertInput) Validate() error {
	err := validation.ValidateStruct(in,
		validation.Field(&in.TenantID, validation.Required, customValidation.Identifier),
		validation.Field(&in.SecretID, customValidation.Identifier),
		validation.Field(&in.SecretTypeID, validation.Required, customValidation.Identifier),
		validation.Field(&in.Value, validation.Required),
	)
	return customValidation.WrapValidationError(err)
}

// Validate checks a secret address.
func (r SecretRef) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.TenantID, validation.Required, customValidation.Identifier),
		validation.Field(&r.SecretID, validation.Required, customValidation.Identifier),
		validation.Field(&r.SecretTypeID, validation.Required, customValidation.Identifier),
	)
	return customValidation.WrapValidationError(err)
}

func validatePage(offset, limit int) error {
	if offset < 0 || limit <= 0 || limit > maxPageSize {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "invalid page")
	}
	return nil
}

// auditTarget is what one gateway call acts on.
type auditTarget struct {
	tenantID     string
	secretID     string
	secretTypeID string
}

// secretUseCase implements SecretUseCase.
type secretUseCase struct {
	secretTypeRepo SecretTypeRepository
	secretRepo     SecretRepository
	versions       VersionManager
	quota          quotaUsecase.QuotaUseCase
	audit          auditUsecase.AuditUseCase
	logger         *slog.Logger
}

// run is the pipeline every operation goes through: input validation, caller scope,
// request rate, the operation itself and exactly one audit entry. invalid is the
// result of validating the request; fn only runs when everything before it passed.
func (s *secretUseCase) run(
	ctx context.Context,
	operation auditDomain.Operation,
	target auditTarget,
	invalid error,
	fn func(ctx context.Context, caller tenancy.Identity) error,
) error {
	caller, err := tenancy.MustFromContext(ctx)
	if err == nil {
		err = invalid
	}
	if err == nil {
		err = caller.Authorize(target.tenantID, target.secretTypeID)
	}
	if err == nil {
		err = s.quota.AllowRequest(ctx, target.tenantID)
	}
	if err == nil {
		err = fn(ctx, caller)
	}

	s.recordAudit(ctx, caller, operation, target, err)
	if err != nil {
		s.logger.Debug("secret operation failed",
			slog.String("operation", string(operation)),
			slog.String("tenant_id", target.tenantID),
			slog.String("secret_id", target.secretID),
			slog.String("secret_type_id", target.secretTypeID),
			slog.String("error_code", apperrors.Code(err)),
		)
	}
	return err
}

// recordAudit appends the audit entry of one call. A failed audit write is logged and
// does not change the outcome returned to the caller.
func (s *secretUseCase) recordAudit(
	ctx context.Context,
	caller tenancy.Identity,
	operation auditDomain.Operation,
	target auditTarget,
	opErr error,
) {
	tenantID := target.tenantID
	if tenantID == "" {
		tenantID = caller.TenantID
	}
	if tenantID == "" {
		s.logger.Warn("audit entry dropped: no tenant",
			slog.String("operation", string(operation)),
			slog.String("error_code", apperrors.Code(opErr)),
		)
		return
	}

	actorID := caller.ActorID
	if actorID == "" {
		actorID = anonymousActor
	}

	entry := &auditDomain.Entry{
		TenantID:     tenantID,
		ActorID:      actorID,
		Operation:    operation,
		SecretID:     target.secretID,
		SecretTypeID: target.secretTypeID,
		Outcome:      auditDomain.OutcomeSuccess,
		TraceID:      caller.TraceID,
	}
	if opErr != nil {
		entry.Outcome = auditDomain.OutcomeFailure
		entry.ErrorCode = apperrors.Code(opErr)
	}

	if err := s.audit.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("failed to record audit entry",
			slog.String("operation", string(operation)),
			slog.String("tenant_id", tenantID),
			slog.String("secret_id", target.secretID),
			slog.Any("error", err),
		)
	}
}

// loadRecord resolves a live record the caller may read. Records of another type or
// another user are reported as missing.
func (s *secretUseCase) loadRecord(
	ctx context.Context,
	caller tenancy.Identity,
	ref SecretRef,
) (*secretsDomain.SecretRecord, *secretsDomain.SecretType, error) {
	record, err := s.secretRepo.GetRecord(ctx, ref.TenantID, ref.SecretID)
	if err != nil {
		return nil, nil, err
	}
	if record.IsDeleted() || record.SecretTypeID != ref.SecretTypeID || !record.VisibleTo(caller.UserID) {
		return nil, nil, secretsDomain.ErrSecretNotFound
	}

	secretType, err := s.secretTypeRepo.Get(ctx, record.SecretTypeID)
	if err != nil {
		return nil, nil, err
	}
	return record, secretType, nil
}

// prune applies retention after a write. The write already succeeded, so failures are
// logged only; the next write retries.
func (s *secretUseCase) prune(
	ctx context.Context,
	record *secretsDomain.SecretRecord,
	secretType *secretsDomain.SecretType,
	limits *quotaDomain.TenantQuota,
) {
	maxVersions := secretType.EffectiveMaxVersions(limits.MaxVersions)
	if _, err := s.versions.Prune(ctx, record, secretType, maxVersions); err != nil {
		s.logger.Warn("failed to prune secret versions",
			slog.String("tenant_id", record.TenantID),
			slog.String("secret_id", record.ID),
			slog.String("error_code", apperrors.Code(err)),
		)
	}
}

func (s *secretUseCase) UpsertSecret(ctx context.Context, in *UpsertInput) (*secretsDomain.SecretRecord, error) {
	invalid := in.Validate()
	if invalid == nil && in.SecretID == "" {
		in.SecretID = uuid.Must(uuid.NewV7()).String()
	}
	target := auditTarget{tenantID: in.TenantID, secretID: in.SecretID, secretTypeID: in.SecretTypeID}

	var result *secretsDomain.SecretRecord
	err := s.run(ctx, auditDomain.OperationUpsertSecret, target, invalid,
		func(ctx context.Context, caller tenancy.Identity) error {
			secretType, err := s.secretTypeRepo.Get(ctx, in.SecretTypeID)
			if err != nil {
				return err
			}
			if err := secretType.ValidateParameters(in.Parameters); err != nil {
				return err
			}
			if err := s.quota.CheckPayload(ctx, in.TenantID, len(in.Value)); err != nil {
				return err
			}
			limits, err := s.quota.Limits(ctx, in.TenantID)
			if err != nil {
				return err
			}

			record, err := s.secretRepo.GetRecord(ctx, in.TenantID, in.SecretID)
			switch {
			case apperrors.Is(err, secretsDomain.ErrSecretNotFound):
				if in.ExpectedVersion != nil && *in.ExpectedVersion != 0 {
					return secretsDomain.ErrVersionConflict
				}
				// The reservation is released by the write itself, which outlives ctx.
				release, err := s.quota.ReserveSecret(ctx, in.TenantID)
				if err != nil {
					return err
				}
				record = &secretsDomain.SecretRecord{
					ID:           in.SecretID,
					TenantID:     in.TenantID,
					OwnerUserID:  caller.UserID,
					SecretTypeID: in.SecretTypeID,
				}
				if _, err := s.versions.CreateRecord(
					ctx, record, secretType, in.Value, in.Parameters, caller.ActorID, release,
				); err != nil {
					return err
				}
				result = record
				return nil
			case err != nil:
				return err
			case record.IsDeleted():
				return secretsDomain.ErrSecretDeleted
			case record.SecretTypeID != in.SecretTypeID:
				return secretsDomain.ErrSecretTypeMismatch
			case !record.VisibleTo(caller.UserID):
				return ErrOwnedByAnotherUser
			case in.ExpectedVersion != nil && *in.ExpectedVersion != record.CurrentVersion:
				return secretsDomain.ErrVersionConflict
			}

			if _, err := s.versions.CreateVersion(
				ctx, record, secretType, in.Value, in.Parameters, caller.ActorID,
			); err != nil {
				return err
			}
			s.prune(ctx, record, secretType, limits)

			result = record
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *secretUseCase) GetSecretMaterial(ctx context.Context, ref SecretRef) (*secretsDomain.SecretMaterial, error) {
	var result *secretsDomain.SecretMaterial
	err := s.run(ctx, auditDomain.OperationGetSecret, refTarget(ref), ref.Validate(),
		func(ctx context.Context, caller tenancy.Identity) error {
			record, secretType, err := s.loadRecord(ctx, caller, ref)
			if err != nil {
				return err
			}
			version, err := s.secretRepo.GetVersion(ctx, ref.TenantID, ref.SecretID, record.CurrentVersion)
			if err != nil {
				return err
			}
			result, err = s.versions.ReadVersion(ctx, record, secretType, version)
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *secretUseCase) GetVersion(
	ctx context.Context,
	ref SecretRef,
	version uint,
) (*secretsDomain.SecretMaterial, error) {
	invalid := ref.Validate()
	if invalid == nil && version == 0 {
		invalid = apperrors.Wrap(apperrors.ErrInvalidInput, "version must be positive")
	}

	var result *secretsDomain.SecretMaterial
	err := s.run(ctx, auditDomain.OperationGetVersion, refTarget(ref), invalid,
		func(ctx context.Context, caller tenancy.Identity) error {
			record, secretType, err := s.loadRecord(ctx, caller, ref)
			if err != nil {
				return err
			}
			stored, err := s.secretRepo.GetVersion(ctx, ref.TenantID, ref.SecretID, version)
			if err != nil {
				return err
			}
			result, err = s.versions.ReadVersion(ctx, record, secretType, stored)
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *secretUseCase) DeleteSecret(ctx context.Context, ref SecretRef) error {
	return s.run(ctx, auditDomain.OperationDeleteSecret, refTarget(ref), ref.Validate(),
		func(ctx context.Context, caller tenancy.Identity) error {
			record, secretType, err := s.loadRecord(ctx, caller, ref)
			if err != nil {
				return err
			}
			return s.versions.Erase(ctx, record, secretType)
		},
	)
}

func (s *secretUseCase) ListSecrets(
	ctx context.Context,
	tenantID, secretTypeID string,
	offset, limit int,
) ([]*secretsDomain.SecretRecord, error) {
	target := auditTarget{tenantID: tenantID, secretTypeID: secretTypeID}

	var result []*secretsDomain.SecretRecord
	err := s.run(ctx, auditDomain.OperationListSecrets, target, validatePage(offset, limit),
		func(ctx context.Context, caller tenancy.Identity) error {
			records, err := s.secretRepo.ListRecords(
				ctx,
				tenantID,
				secretsDomain.RecordFilter{
					SecretTypeID:  secretTypeID,
					OwnerUserID:   caller.UserID,
					SecretTypeIDs: caller.SecretTypes,
				},
				offset,
				limit,
			)
			if err != nil {
				return err
			}
			result = records
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *secretUseCase) ListVersions(
	ctx context.Context,
	ref SecretRef,
	offset, limit int,
) ([]*secretsDomain.SecretVersion, error) {
	invalid := ref.Validate()
	if invalid == nil {
		invalid = validatePage(offset, limit)
	}

	var result []*secretsDomain.SecretVersion
	err := s.run(ctx, auditDomain.OperationListVersions, refTarget(ref), invalid,
		func(ctx context.Context, caller tenancy.Identity) error {
			if _, _, err := s.loadRecord(ctx, caller, ref); err != nil {
				return err
			}
			versions, err := s.secretRepo.ListVersions(ctx, ref.TenantID, ref.SecretID, offset, limit)
			if err != nil {
				return err
			}
			result = versions
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *secretUseCase) Rollback(
	ctx context.Context,
	ref SecretRef,
	target uint,
) (*secretsDomain.SecretRecord, error) {
	invalid := ref.Validate()
	if invalid == nil && target == 0 {
		invalid = apperrors.Wrap(apperrors.ErrInvalidInput, "target version must be positive")
	}

	var result *secretsDomain.SecretRecord
	err := s.run(ctx, auditDomain.OperationRollbackSecret, refTarget(ref), invalid,
		func(ctx context.Context, caller tenancy.Identity) error {
			record, secretType, err := s.loadRecord(ctx, caller, ref)
			if err != nil {
				return err
			}
			limits, err := s.quota.Limits(ctx, ref.TenantID)
			if err != nil {
				return err
			}
			if _, err := s.versions.Rollback(ctx, record, secretType, target, caller.ActorID); err != nil {
				return err
			}
			s.prune(ctx, record, secretType, limits)

			result = record
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *secretUseCase) QuotaUsage(ctx context.Context, tenantID string) (*quotaDomain.Usage, error) {
	var result *quotaDomain.Usage
	err := s.run(ctx, auditDomain.OperationQuotaUsage, auditTarget{tenantID: tenantID}, nil,
		func(ctx context.Context, caller tenancy.Identity) error {
			usage, err := s.quota.Usage(ctx, tenantID)
			if err != nil {
				return err
			}
			result = usage
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *secretUseCase) ExportAudit(
	ctx context.Context,
	tenantID string,
	filter auditDomain.Filter,
	offset, limit int,
) ([]*auditDomain.Entry, error) {
	var result []*auditDomain.Entry
	err := s.run(ctx, auditDomain.OperationExportAudit, auditTarget{tenantID: tenantID}, validatePage(offset, limit),
		func(ctx context.Context, caller tenancy.Identity) error {
			entries, err := s.audit.Query(ctx, tenantID, filter, offset, limit)
			if err != nil {
				return err
			}
			result = entries
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func refTarget(ref SecretRef) auditTarget {
	return auditTarget{tenantID: ref.TenantID, secretID: ref.SecretID, secretTypeID: ref.SecretTypeID}
}

// NewSecretUseCase creates the gateway secret service.
func NewSecretUseCase(
	secretTypeRepo SecretTypeRepository,
	secretRepo SecretRepository,
	versions VersionManager,
	quota quotaUsecase.QuotaUseCase,
	audit auditUsecase.AuditUseCase,
	logger *slog.Logger,
) SecretUseCase {
	return &secretUseCase{
		secretTypeRepo: secretTypeRepo,
		secretRepo:     secretRepo,
		versions:       versions,
		quota:          quota,
		audit:          audit,
		logger:         logger,
	}
}
