package usecase

import (
	"context"
	"time"

	apperrors "github.com/allisson/credstore/internal/errors"
	secretsDomain "github.com/allisson/credstore/internal/secrets/domain"
)

// secretTypeUseCase implements SecretTypeUseCase.
type secretTypeUseCase struct {
	secretTypeRepo SecretTypeRepository
	now            func() time.Time
}

// Create validates and registers a new secret type.
func (s *secretTypeUseCase) Create(
	ctx context.Context,
	secretType *secretsDomain.SecretType,
) (*secretsDomain.SecretType, error) {
	if err := secretType.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	secretType.CreatedAt = now
	secretType.UpdatedAt = now

	if err := s.secretTypeRepo.Create(ctx, secretType); err != nil {
		return nil, err
	}
	return secretType, nil
}

// Update replaces the definition of an existing secret type. Existing versions are not
// revalidated against a changed schema; retention changes apply on the next write.
func (s *secretTypeUseCase) Update(
	ctx context.Context,
	secretType *secretsDomain.SecretType,
) (*secretsDomain.SecretType, error) {
	if err := secretType.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.secretTypeRepo.Get(ctx, secretType.ID)
	if err != nil {
		return nil, err
	}

	secretType.CreatedAt = existing.CreatedAt
	secretType.UpdatedAt = s.now().UTC()

	if err := s.secretTypeRepo.Update(ctx, secretType); err != nil {
		return nil, err
	}
	return secretType, nil
}

// Get returns a secret type.
func (s *secretTypeUseCase) Get(ctx context.Context, id string) (*secretsDomain.SecretType, error) {
	return s.secretTypeRepo.Get(ctx, id)
}

// List returns secret types ordered by ID.
func (s *secretTypeUseCase) List(ctx context.Context, offset, limit int) ([]*secretsDomain.SecretType, error) {
	if err := validatePage(offset, limit); err != nil {
		return nil, apperrors.Wrap(err, "failed to list secret types")
	}
	return s.secretTypeRepo.List(ctx, offset, limit)
}

// NewSecretTypeUseCase creates a SecretTypeUseCase.
func NewSecretTypeUseCase(secretTypeRepo SecretTypeRepository) SecretTypeUseCase {
	return &secretTypeUseCase{secretTypeRepo: secretTypeRepo, now: time.Now}
}
