// Package mocks provides mock implementations of the crypto use case dependencies.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
)

// MockKekRepository is a mock implementation of KekRepository.
type MockKekRepository struct {
	mock.Mock
}

// Create mocks the Create method of KekRepository.
func (m *MockKekRepository) Create(ctx context.Context, kek *cryptoDomain.Kek) error {
	args := m.Called(ctx, kek)
	return args.Error(0)
}

// UpdateStatus mocks the UpdateStatus method of KekRepository.
func (m *MockKekRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status cryptoDomain.KekStatus,
	rotatedAt *time.Time,
) error {
	args := m.Called(ctx, id, status, rotatedAt)
	return args.Error(0)
}

// Get mocks the Get method of KekRepository.
func (m *MockKekRepository) Get(ctx context.Context, id uuid.UUID) (*cryptoDomain.Kek, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.Kek), args.Error(1)
}

// GetActiveForUpdate mocks the GetActiveForUpdate method of KekRepository.
func (m *MockKekRepository) GetActiveForUpdate(ctx context.Context, scope string) (*cryptoDomain.Kek, error) {
	args := m.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.Kek), args.Error(1)
}

// List mocks the List method of KekRepository.
func (m *MockKekRepository) List(ctx context.Context) ([]*cryptoDomain.Kek, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*cryptoDomain.Kek), args.Error(1)
}

// MockWrappedBlobRepository is a mock implementation of WrappedBlobRepository.
type MockWrappedBlobRepository struct {
	mock.Mock
}

// ListByKek mocks the ListByKek method of WrappedBlobRepository.
func (m *MockWrappedBlobRepository) ListByKek(
	ctx context.Context,
	kekID uuid.UUID,
	tenantID string,
	limit int,
) ([]*cryptoDomain.WrappedBlob, error) {
	args := m.Called(ctx, kekID, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*cryptoDomain.WrappedBlob), args.Error(1)
}

// UpdateWrap mocks the UpdateWrap method of WrappedBlobRepository.
func (m *MockWrappedBlobRepository) UpdateWrap(
	ctx context.Context,
	blob *cryptoDomain.WrappedBlob,
	oldKekID uuid.UUID,
) (bool, error) {
	args := m.Called(ctx, blob, oldKekID)
	return args.Bool(0), args.Error(1)
}

// CountByKek mocks the CountByKek method of WrappedBlobRepository.
func (m *MockWrappedBlobRepository) CountByKek(ctx context.Context, kekID uuid.UUID) (int64, error) {
	args := m.Called(ctx, kekID)
	return args.Get(0).(int64), args.Error(1)
}

// MockRewrapper is a mock implementation of Rewrapper.
type MockRewrapper struct {
	mock.Mock
}

// Rewrap mocks the Rewrap method of Rewrapper.
func (m *MockRewrapper) Rewrap(blob *cryptoDomain.WrappedBlob) (*cryptoDomain.WrappedBlob, bool, error) {
	args := m.Called(blob)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*cryptoDomain.WrappedBlob), args.Bool(1), args.Error(2)
}

// MockKekUseCase is a mock implementation of KekUseCase.
type MockKekUseCase struct {
	mock.Mock
}

// Load mocks the Load method of KekUseCase.
func (m *MockKekUseCase) Load(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Create mocks the Create method of KekUseCase.
func (m *MockKekUseCase) Create(
	ctx context.Context,
	scope string,
	alg cryptoDomain.Algorithm,
) (*cryptoDomain.Kek, error) {
	args := m.Called(ctx, scope, alg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.Kek), args.Error(1)
}

// Rotate mocks the Rotate method of KekUseCase.
func (m *MockKekUseCase) Rotate(
	ctx context.Context,
	scope string,
	alg cryptoDomain.Algorithm,
) (*cryptoDomain.Kek, error) {
	args := m.Called(ctx, scope, alg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.Kek), args.Error(1)
}

// Revoke mocks the Revoke method of KekUseCase.
func (m *MockKekUseCase) Revoke(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockRewrapUseCase is a mock implementation of RewrapUseCase.
type MockRewrapUseCase struct {
	mock.Mock
}

// Rewrap mocks the Rewrap method of RewrapUseCase.
func (m *MockRewrapUseCase) Rewrap(ctx context.Context, scope string, batchSize int) (int, error) {
	args := m.Called(ctx, scope, batchSize)
	return args.Int(0), args.Error(1)
}

// RewrapAll mocks the RewrapAll method of RewrapUseCase.
func (m *MockRewrapUseCase) RewrapAll(ctx context.Context, batchSize int) (int, error) {
	args := m.Called(ctx, batchSize)
	return args.Int(0), args.Error(1)
}
