// Package mocks provides mock implementations of the audit usecase interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	auditDomain "github.com/allisson/credstore/internal/audit/domain"
)

// MockWriter is a mock implementation of Writer.
type MockWriter struct {
	mock.Mock
}

// Create mocks the Create method.
func (m *MockWriter) Create(ctx context.Context, entry *auditDomain.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// MockReader is a mock implementation of Reader.
type MockReader struct {
	mock.Mock
}

// List mocks the List method.
func (m *MockReader) List(
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

// ListBetween mocks the ListBetween method.
func (m *MockReader) ListBetween(
	ctx context.Context,
	from, to time.Time,
	offset, limit int,
) ([]*auditDomain.Entry, error) {
	args := m.Called(ctx, from, to, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*auditDomain.Entry), args.Error(1)
}

// MockArchiver is a mock implementation of Archiver.
type MockArchiver struct {
	mock.Mock
}

// DeleteOlderThan mocks the DeleteOlderThan method.
func (m *MockArchiver) DeleteOlderThan(
	ctx context.Context,
	tenantID string,
	olderThan time.Time,
	dryRun bool,
) (int64, error) {
	args := m.Called(ctx, tenantID, olderThan, dryRun)
	return args.Get(0).(int64), args.Error(1)
}

// Tenants mocks the Tenants method.
func (m *MockArchiver) Tenants(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockRetentionPolicy is a mock implementation of RetentionPolicy.
type MockRetentionPolicy struct {
	mock.Mock
}

// AuditRetention mocks the AuditRetention method.
func (m *MockRetentionPolicy) AuditRetention(ctx context.Context, tenantID string) (time.Duration, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(time.Duration), args.Error(1)
}

// MockAuditUseCase is a mock implementation of AuditUseCase.
type MockAuditUseCase struct {
	mock.Mock
}

// Record mocks the Record method.
func (m *MockAuditUseCase) Record(ctx context.Context, entry *auditDomain.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// Query mocks the Query method.
func (m *MockAuditUseCase) Query(
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

// Sweep mocks the Sweep method.
func (m *MockAuditUseCase) Sweep(
	ctx context.Context,
	tenantID string,
	olderThan time.Time,
	dryRun bool,
) (int64, error) {
	args := m.Called(ctx, tenantID, olderThan, dryRun)
	return args.Get(0).(int64), args.Error(1)
}

// SweepAll mocks the SweepAll method.
func (m *MockAuditUseCase) SweepAll(ctx context.Context, dryRun bool) (int64, error) {
	args := m.Called(ctx, dryRun)
	return args.Get(0).(int64), args.Error(1)
}

// VerifyBatch mocks the VerifyBatch method.
func (m *MockAuditUseCase) VerifyBatch(
	ctx context.Context,
	start, end time.Time,
) (*auditDomain.VerificationReport, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auditDomain.VerificationReport), args.Error(1)
}
