package embedded

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/credstore/internal/backend"
	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
	"github.com/allisson/credstore/internal/database"
	apperrors "github.com/allisson/credstore/internal/errors"
	"github.com/allisson/credstore/internal/tenancy"
)

// Store is the embedded encrypted backend.Plugin.
type Store struct {
	txManager database.TxManager
	repo      BlobRepository
	sealer    Sealer
}

// NewStore creates a Store.
func NewStore(txManager database.TxManager, repo BlobRepository, sealer Sealer) *Store {
	return &Store{txManager: txManager, repo: repo, sealer: sealer}
}

// UpsertSecret seals value under the caller's tenant KEK scope and stores it. The
// payload is encrypted before the transaction starts so no lock is held while sealing.
func (s *Store) UpsertSecret(
	ctx context.Context,
	secretID, secretTypeID string,
	value []byte,
	parameters map[string]any,
) error {
	id, err := tenancy.MustFromContext(ctx)
	if err != nil {
		return err
	}

	aad := cryptoDomain.AAD{TenantID: id.TenantID, SecretID: secretID, SecretTypeID: secretTypeID, UserID: id.UserID}
	sealed, err := s.sealer.Seal(value, aad, id.TenantID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	blob := &Blob{
		ID:           uuid.Must(uuid.NewV7()),
		TenantID:     id.TenantID,
		UserID:       id.UserID,
		StorageKey:   secretID,
		SecretTypeID: secretTypeID,
		Parameters:   parameters,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	blob.SetSealed(sealed)

	return s.txManager.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetForUpdate(ctx, id.TenantID, secretID)
		if apperrors.Is(err, backend.ErrBlobNotFound) {
			if err := s.repo.Create(ctx, blob); err != nil {
				if database.IsUniqueViolation(err) {
					return apperrors.ErrConcurrentModification
				}
				return err
			}
			return nil
		}
		if err != nil {
			return err
		}

		if existing.SecretTypeID != secretTypeID {
			return backend.ErrTypeMismatch
		}
		if existing.UserID != id.UserID {
			return apperrors.Wrap(apperrors.ErrForbidden, "storage key owned by another user")
		}

		blob.ID = existing.ID
		blob.CreatedAt = existing.CreatedAt
		return s.repo.Update(ctx, blob)
	})
}

// GetSecretMaterial loads and unseals the blob. A blob outside the caller's scope is
// reported as not found.
func (s *Store) GetSecretMaterial(ctx context.Context, secretID, secretTypeID string) (*backend.Material, error) {
	id, err := tenancy.MustFromContext(ctx)
	if err != nil {
		return nil, err
	}

	blob, err := s.repo.Get(ctx, id.TenantID, id.UserID, secretID, secretTypeID)
	if err != nil {
		return nil, err
	}

	aad := cryptoDomain.AAD{TenantID: blob.TenantID, SecretID: secretID, SecretTypeID: secretTypeID, UserID: blob.UserID}
	plaintext, err := s.sealer.Unseal(blob.Sealed(), aad)
	if err != nil {
		return nil, err
	}

	return &backend.Material{
		SecretTypeID: blob.SecretTypeID,
		Value:        plaintext,
		Parameters:   blob.Parameters,
		UpdatedAt:    blob.UpdatedAt,
	}, nil
}

// EncryptsAtRest reports true: blobs are sealed by the crypto engine before they are stored.
func (s *Store) EncryptsAtRest() bool {
	return true
}

// DeleteSecret hard-deletes the blob; with the wrapped DEK gone the payload is
// unrecoverable.
func (s *Store) DeleteSecret(ctx context.Context, secretID, secretTypeID string) error {
	id, err := tenancy.MustFromContext(ctx)
	if err != nil {
		return err
	}

	deleted, err := s.repo.Delete(ctx, id.TenantID, id.UserID, secretID, secretTypeID)
	if err != nil {
		return err
	}
	if !deleted {
		return backend.ErrBlobNotFound
	}
	return nil
}

var _ backend.Plugin = (*Store)(nil)
