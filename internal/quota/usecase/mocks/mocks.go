// Package mocks provides mock implementations of the quota usecase interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	quotaDomain "github.com/allisson/credstore/internal/quota/domain"
)

// MockQuotaRepository is a mock implementation of QuotaRepository.
type MockQuotaRepository struct {
	mock.Mock
}

// Get mocks the Get method.
func (m *MockQuotaRepository) Get(ctx context.Context, tenantID string) (*quotaDomain.TenantQuota, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*quotaDomain.TenantQuota), args.Error(1)
}

// Upsert mocks the Upsert method.
func (m *MockQuotaRepository) Upsert(ctx context.Context, quota *quotaDomain.TenantQuota) error {
	args := m.Called(ctx, quota)
	return args.Error(0)
}

// List mocks the List method.
func (m *MockQuotaRepository) List(ctx context.Context) ([]*quotaDomain.TenantQuota, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*quotaDomain.TenantQuota), args.Error(1)
}

// MockSecretCounter is a mock implementation of SecretCounter.
type MockSecretCounter struct {
	mock.Mock
}

// CountLive mocks the CountLive method.
func (m *MockSecretCounter) CountLive(ctx context.Context, tenantID string) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

// MockQuotaUseCase is a mock implementation of QuotaUseCase.
type MockQuotaUseCase struct {
	mock.Mock
}

// Limits mocks the Limits method.
func (m *MockQuotaUseCase) Limits(ctx context.Context, tenantID string) (*quotaDomain.TenantQuota, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*quotaDomain.TenantQuota), args.Error(1)
}

// AllowRequest mocks the AllowRequest method.
func (m *MockQuotaUseCase) AllowRequest(ctx context.Context, tenantID string) error {
	args := m.Called(ctx, tenantID)
	return args.Error(0)
}

// CheckPayload mocks the CheckPayload method.
func (m *MockQuotaUseCase) CheckPayload(ctx context.Context, tenantID string, size int) error {
	args := m.Called(ctx, tenantID, size)
	return args.Error(0)
}

// ReserveSecret mocks the ReserveSecret method. A successful reservation returns a no-op release.
func (m *MockQuotaUseCase) ReserveSecret(ctx context.Context, tenantID string) (func(), error) {
	args := m.Called(ctx, tenantID)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return func() {}, nil
}

// Usage mocks the Usage method.
func (m *MockQuotaUseCase) Usage(ctx context.Context, tenantID string) (*quotaDomain.Usage, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*quotaDomain.Usage), args.Error(1)
}

// Set mocks the Set method.
func (m *MockQuotaUseCase) Set(ctx context.Context, quota *quotaDomain.TenantQuota) error {
	args := m.Called(ctx, quota)
	return args.Error(0)
}

// AuditRetention mocks the AuditRetention method.
func (m *MockQuotaUseCase) AuditRetention(ctx context.Context, tenantID string) (time.Duration, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(time.Duration), args.Error(1)
}

// Tenants mocks the Tenants method.
func (m *MockQuotaUseCase) Tenants(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// CleanupStale mocks the CleanupStale method.
func (m *MockQuotaUseCase) CleanupStale(ctx context.Context, interval time.Duration) error {
	args := m.Called(ctx, interval)
	return args.Error(0)
}
