// Package embedded implements the embedded encrypted store: a backend plugin that seals
// every payload with the crypto engine and persists only ciphertext and wrap metadata in
// the service database.
package embedded

import (
	"context"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
)

// Blob is the persisted form of one secret payload. It never carries plaintext.
type Blob struct {
	ID           uuid.UUID
	TenantID     string
	UserID       string
	StorageKey   string
	SecretTypeID string
	Algorithm    cryptoDomain.Algorithm
	Nonce        []byte
	Ciphertext   []byte
	WrappedDek   []byte
	DekNonce     []byte
	KekID        uuid.UUID
	KekVersion   uint
	Parameters   map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sealed returns the envelope stored in the blob.
func (b *Blob) Sealed() *cryptoDomain.SealedData {
	return &cryptoDomain.SealedData{
		Algorithm:  b.Algorithm,
		Nonce:      b.Nonce,
		Ciphertext: b.Ciphertext,
		WrappedDek: b.WrappedDek,
		DekNonce:   b.DekNonce,
		Kek:        cryptoDomain.KekRef{ID: b.KekID, Version: b.KekVersion},
	}
}

// SetSealed copies the envelope into the blob.
func (b *Blob) SetSealed(sealed *cryptoDomain.SealedData) {
	b.Algorithm = sealed.Algorithm
	b.Nonce = sealed.Nonce
	b.Ciphertext = sealed.Ciphertext
	b.WrappedDek = sealed.WrappedDek
	b.DekNonce = sealed.DekNonce
	b.KekID = sealed.Kek.ID
	b.KekVersion = sealed.Kek.Version
}

// BlobRepository persists blobs. Every lookup is scoped by tenant; reads and deletes
// are additionally scoped by owning user and secret type.
type BlobRepository interface {
	// GetForUpdate returns the blob stored under storageKey for tenantID and locks it.
	GetForUpdate(ctx context.Context, tenantID, storageKey string) (*Blob, error)

	// Get returns the blob matching the full scope.
	Get(ctx context.Context, tenantID, userID, storageKey, secretTypeID string) (*Blob, error)

	// Create inserts a new blob.
	Create(ctx context.Context, blob *Blob) error

	// Update replaces the envelope and parameters of an existing blob.
	Update(ctx context.Context, blob *Blob) error

	// Delete removes the blob matching the full scope and reports whether one existed.
	Delete(ctx context.Context, tenantID, userID, storageKey, secretTypeID string) (bool, error)

	// ListByKek, UpdateWrap and CountByKek serve the background re-wrap job.
	ListByKek(ctx context.Context, kekID uuid.UUID, tenantID string, limit int) ([]*cryptoDomain.WrappedBlob, error)
	UpdateWrap(ctx context.Context, blob *cryptoDomain.WrappedBlob, oldKekID uuid.UUID) (bool, error)
	CountByKek(ctx context.Context, kekID uuid.UUID) (int64, error)
}

// Sealer is the part of the crypto engine the store needs.
type Sealer interface {
	Seal(plaintext []byte, aad cryptoDomain.AAD, scope string) (*cryptoDomain.SealedData, error)
	Unseal(sealed *cryptoDomain.SealedData, aad cryptoDomain.AAD) ([]byte, error)
}
