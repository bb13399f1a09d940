// Package memory provides a non-persistent backend plugin for development and tests.
// Material is kept in process memory, scoped by tenant and owning user.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/allisson/credstore/internal/backend"
	"github.com/allisson/credstore/internal/tenancy"
)

type key struct {
	tenantID string
	userID   string
	secretID string
}

// Store is an in-memory backend.Plugin.
type Store struct {
	mu    sync.RWMutex
	blobs map[key]backend.Material
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{blobs: make(map[key]backend.Material)}
}

func scopedKey(ctx context.Context, secretID string) (key, error) {
	id, err := tenancy.MustFromContext(ctx)
	if err != nil {
		return key{}, err
	}
	return key{tenantID: id.TenantID, userID: id.UserID, secretID: secretID}, nil
}

// UpsertSecret stores a copy of value.
func (s *Store) UpsertSecret(
	ctx context.Context,
	secretID, secretTypeID string,
	value []byte,
	parameters map[string]any,
) error {
	k, err := scopedKey(ctx, secretID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.blobs[k]; ok && existing.SecretTypeID != secretTypeID {
		return backend.ErrTypeMismatch
	}
	if old, ok := s.blobs[k]; ok {
		clear(old.Value)
	}
	s.blobs[k] = backend.Material{
		SecretTypeID: secretTypeID,
		Value:        slices.Clone(value),
		Parameters:   maps.Clone(parameters),
		UpdatedAt:    time.Now().UTC(),
	}
	return nil
}

// GetSecretMaterial returns a copy of the stored material.
func (s *Store) GetSecretMaterial(ctx context.Context, secretID, secretTypeID string) (*backend.Material, error) {
	k, err := scopedKey(ctx, secretID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.blobs[k]
	if !ok || m.SecretTypeID != secretTypeID {
		return nil, backend.ErrBlobNotFound
	}
	m.Value = slices.Clone(m.Value)
	m.Parameters = maps.Clone(m.Parameters)
	return &m, nil
}

// DeleteSecret removes and zeroes the stored material.
func (s *Store) DeleteSecret(ctx context.Context, secretID, secretTypeID string) error {
	k, err := scopedKey(ctx, secretID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.blobs[k]
	if !ok || m.SecretTypeID != secretTypeID {
		return backend.ErrBlobNotFound
	}
	clear(m.Value)
	delete(s.blobs, k)
	return nil
}

// Len returns the number of stored blobs across all tenants.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

var _ backend.Plugin = (*Store)(nil)
