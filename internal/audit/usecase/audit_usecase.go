package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/credstore/internal/audit/domain"
	auditService "github.com/allisson/credstore/internal/audit/service"
	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
	apperrors "github.com/allisson/credstore/internal/errors"
	"github.com/allisson/credstore/internal/tenancy"
)

// verifyPageSize is the number of entries loaded per verification page.
const verifyPageSize = 500

type auditUseCase struct {
	writer         Writer
	reader         Reader
	archiver       Archiver
	retention      RetentionPolicy
	signer         auditService.Signer
	masterKeyChain *cryptoDomain.MasterKeyChain
	logger         *slog.Logger
	now            func() time.Time
}

// withRootKey runs fn with the decrypted master key of keyID.
func (a *auditUseCase) withRootKey(keyID string, fn func(rootKey []byte) error) error {
	masterKey, ok := a.masterKeyChain.Get(keyID)
	if !ok {
		return fmt.Errorf("%w: %s", cryptoDomain.ErrMasterKeyNotFound, keyID)
	}
	buf, err := masterKey.Open()
	if err != nil {
		return apperrors.Wrap(err, "failed to open master key")
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

func (a *auditUseCase) Record(ctx context.Context, entry *auditDomain.Entry) error {
	entry.ID = uuid.Must(uuid.NewV7())
	// Signed at the precision the databases store, so verification survives a round trip.
	entry.CreatedAt = a.now().UTC().Truncate(time.Microsecond)

	keyID := a.masterKeyChain.ActiveMasterKeyID()
	err := a.withRootKey(keyID, func(rootKey []byte) error {
		signature, err := a.signer.Sign(rootKey, entry)
		if err != nil {
			return err
		}
		entry.Signature = signature
		entry.SigningKeyID = keyID
		return nil
	})
	if err != nil {
		return apperrors.Wrap(err, "failed to sign audit entry")
	}

	if err := a.writer.Create(ctx, entry); err != nil {
		return apperrors.Wrap(err, "failed to create audit entry")
	}
	return nil
}

func (a *auditUseCase) Query(
	ctx context.Context,
	tenantID string,
	filter auditDomain.Filter,
	offset, limit int,
) ([]*auditDomain.Entry, error) {
	if tenantID == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "tenant is required")
	}
	if offset < 0 || limit <= 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "invalid page")
	}

	entries, err := a.reader.List(ctx, tenantID, filter, offset, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit entries")
	}
	return entries, nil
}

func (a *auditUseCase) Sweep(ctx context.Context, tenantID string, olderThan time.Time, dryRun bool) (int64, error) {
	if tenantID == "" {
		return 0, apperrors.Wrap(apperrors.ErrInvalidInput, "tenant is required")
	}

	count, err := a.archiver.DeleteOlderThan(ctx, tenantID, olderThan, dryRun)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to sweep audit entries")
	}
	if dryRun {
		return count, nil
	}

	actor := auditDomain.SystemActor
	traceID := ""
	if id, ok := tenancy.FromContext(ctx); ok {
		actor = id.ActorID
		traceID = id.TraceID
	}
	entry := &auditDomain.Entry{
		TenantID:  tenantID,
		ActorID:   actor,
		Operation: auditDomain.OperationSweepAudit,
		Outcome:   auditDomain.OutcomeSuccess,
		TraceID:   traceID,
	}
	if err := a.Record(ctx, entry); err != nil {
		return count, err
	}
	return count, nil
}

func (a *auditUseCase) SweepAll(ctx context.Context, dryRun bool) (int64, error) {
	tenants, err := a.archiver.Tenants(ctx)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to list audit tenants")
	}

	var total int64
	for _, tenantID := range tenants {
		retention, err := a.retention.AuditRetention(ctx, tenantID)
		if err != nil {
			return total, err
		}
		if retention <= 0 {
			continue
		}

		count, err := a.Sweep(ctx, tenantID, a.now().Add(-retention), dryRun)
		total += count
		if err != nil {
			return total, err
		}
		if count > 0 {
			a.logger.Info("audit entries swept",
				slog.String("tenant_id", tenantID),
				slog.Int64("count", count),
				slog.Bool("dry_run", dryRun),
			)
		}
	}
	return total, nil
}

func (a *auditUseCase) VerifyBatch(
	ctx context.Context,
	start, end time.Time,
) (*auditDomain.VerificationReport, error) {
	report := &auditDomain.VerificationReport{InvalidLogs: make([]uuid.UUID, 0)}

	for offset := 0; ; offset += verifyPageSize {
		entries, err := a.reader.ListBetween(ctx, start, end, offset, verifyPageSize)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to list audit entries")
		}

		for _, entry := range entries {
			report.TotalChecked++
			if !entry.IsSigned() {
				report.UnsignedCount++
				continue
			}
			report.SignedCount++

			err := a.withRootKey(entry.SigningKeyID, func(rootKey []byte) error {
				return a.signer.Verify(rootKey, entry)
			})
			if err != nil {
				report.InvalidCount++
				report.InvalidLogs = append(report.InvalidLogs, entry.ID)
				continue
			}
			report.ValidCount++
		}

		if len(entries) < verifyPageSize {
			return report, nil
		}
	}
}

// NewAuditUseCase creates an AuditUseCase. Entries are signed with a key derived from
// the chain's active master key; verification resolves the key each entry names.
func NewAuditUseCase(
	writer Writer,
	reader Reader,
	archiver Archiver,
	retention RetentionPolicy,
	signer auditService.Signer,
	masterKeyChain *cryptoDomain.MasterKeyChain,
	logger *slog.Logger,
) AuditUseCase {
	return &auditUseCase{
		writer:         writer,
		reader:         reader,
		archiver:       archiver,
		retention:      retention,
		signer:         signer,
		masterKeyChain: masterKeyChain,
		logger:         logger,
		now:            time.Now,
	}
}
