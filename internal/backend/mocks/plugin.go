// Package mocks provides mock implementations of the backend interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/allisson/credstore/internal/backend"
)

// MockPlugin is a mock implementation of backend.Plugin.
type MockPlugin struct {
	mock.Mock
}

// UpsertSecret mocks the UpsertSecret method of Plugin.
func (m *MockPlugin) UpsertSecret(
	ctx context.Context,
	secretID, secretTypeID string,
	value []byte,
	parameters map[string]any,
) error {
	args := m.Called(ctx, secretID, secretTypeID, value, parameters)
	return args.Error(0)
}

// GetSecretMaterial mocks the GetSecretMaterial method of Plugin.
func (m *MockPlugin) GetSecretMaterial(
	ctx context.Context,
	secretID, secretTypeID string,
) (*backend.Material, error) {
	args := m.Called(ctx, secretID, secretTypeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*backend.Material), args.Error(1)
}

// DeleteSecret mocks the DeleteSecret method of Plugin.
func (m *MockPlugin) DeleteSecret(ctx context.Context, secretID, secretTypeID string) error {
	args := m.Called(ctx, secretID, secretTypeID)
	return args.Error(0)
}
