// Package mocks provides mock implementations of the secrets usecase interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	auditDomain "github.com/allisson/credstore/internal/audit/domain"
	quotaDomain "github.com/allisson/credstore/internal/quota/domain"
	secretsDomain "github.com/allisson/credstore/internal/secrets/domain"
	"github.com/allisson/credstore/internal/secrets/usecase"
)

// MockSecretUseCase is a mock implementation of SecretUseCase.
type MockSecretUseCase struct {
	mock.Mock
}

// UpsertSecret mocks the UpsertSecret method.
func (m *MockSecretUseCase) UpsertSecret(
	ctx context.Context,
	input *usecase.UpsertInput,
) (*secretsDomain.SecretRecord, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*secretsDomain.SecretRecord), args.Error(1)
}

// GetSecretMaterial mocks the GetSecretMaterial method.
func (m *MockSecretUseCase) GetSecretMaterial(
	ctx context.Context,
	ref usecase.SecretRef,
) (*secretsDomain.SecretMaterial, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*secretsDomain.SecretMaterial), args.Error(1)
}

// GetVersion mocks the GetVersion method.
func (m *MockSecretUseCase) GetVersion(
	ctx context.Context,
	ref usecase.SecretRef,
	version uint,
) (*secretsDomain.SecretMaterial, error) {
	args := m.Called(ctx, ref, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*secretsDomain.SecretMaterial), args.Error(1)
}

// DeleteSecret mocks the DeleteSecret method.
func (m *MockSecretUseCase) DeleteSecret(ctx context.Context, ref usecase.SecretRef) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

// ListSecrets mocks the ListSecrets method.
func (m *MockSecretUseCase) ListSecrets(
	ctx context.Context,
	tenantID, secretTypeID string,
	offset, limit int,
) ([]*secretsDomain.SecretRecord, error) {
	args := m.Called(ctx, tenantID, secretTypeID, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*secretsDomain.SecretRecord), args.Error(1)
}

// ListVersions mocks the ListVersions method.
func (m *MockSecretUseCase) ListVersions(
	ctx context.Context,
	ref usecase.SecretRef,
	offset, limit int,
) ([]*secretsDomain.SecretVersion, error) {
	args := m.Called(ctx, ref, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*secretsDomain.SecretVersion), args.Error(1)
}

// Rollback mocks the Rollback method.
func (m *MockSecretUseCase) Rollback(
	ctx context.Context,
	ref usecase.SecretRef,
	target uint,
) (*secretsDomain.SecretRecord, error) {
	args := m.Called(ctx, ref, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*secretsDomain.SecretRecord), args.Error(1)
}

// QuotaUsage mocks the QuotaUsage method.
func (m *MockSecretUseCase) QuotaUsage(ctx context.Context, tenantID string) (*quotaDomain.Usage, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*quotaDomain.Usage), args.Error(1)
}

// ExportAudit mocks the ExportAudit method.
func (m *MockSecretUseCase) ExportAudit(
	ctx context.Context,
	tenantID string,
	filter auditDomain.Filter,
	offset, limit int,
) ([]*auditDomain.Entry, error) {
	args := m.Called(ctx, tenantID, filter, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*auditDomain.Entry), args.Error(1)
}

// MockSecretTypeUseCase is a mock implementation of SecretTypeUseCase.
type MockSecretTypeUseCase struct {
	mock.Mock
}

// Create mocks the Create method.
func (m *MockSecretTypeUseCase) Create(
	ctx context.Context,
	secretType *secretsDomain.SecretType,
) (*secretsDomain.SecretType, error) {
	args := m.Called(ctx, secretType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*secretsDomain.SecretType), args.Error(1)
}

// Update mocks the Update method.
func (m *MockSecretTypeUseCase) Update(
	ctx context.Context,
	secretType *secretsDomain.SecretType,
) (*secretsDomain.SecretType, error) {
	args := m.Called(ctx, secretType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*secretsDomain.SecretType), args.Error(1)
}

// Get mocks the Get method.
func (m *MockSecretTypeUseCase) Get(ctx context.Context, id string) (*secretsDomain.SecretType, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*secretsDomain.SecretType), args.Error(1)
}

// List mocks the List method.
func (m *MockSecretTypeUseCase) List(ctx context.Context, offset, limit int) ([]*secretsDomain.SecretType, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*secretsDomain.SecretType), args.Error(1)
}
