// Package usecase implements KEK lifecycle and blob re-wrapping on top of the
// crypto services and repositories.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
)

// KekRepository defines the interface for Key Encryption Key persistence.
// Implementations participate in the transaction carried by ctx (database.GetTx).
type KekRepository interface {
	// Create stores a new KEK.
	Create(ctx context.Context, kek *cryptoDomain.Kek) error

	// UpdateStatus changes a KEK's lifecycle state. A nil rotatedAt keeps the stored value.
	UpdateStatus(ctx context.Context, id uuid.UUID, status cryptoDomain.KekStatus, rotatedAt *time.Time) error

	// Get returns a KEK by ID.
	Get(ctx context.Context, id uuid.UUID) (*cryptoDomain.Kek, error)

	// GetActiveForUpdate returns the active KEK of scope, locking it for the transaction.
	GetActiveForUpdate(ctx context.Context, scope string) (*cryptoDomain.Kek, error)

	// List returns every non-revoked KEK.
	List(ctx context.Context) ([]*cryptoDomain.Kek, error)
}

// WrappedBlobRepository exposes the key-wrapping columns of stored blobs.
type WrappedBlobRepository interface {
	// ListByKek returns up to limit blobs wrapped with kekID. A non-empty tenantID
	// restricts the result to that tenant.
	ListByKek(ctx context.Context, kekID uuid.UUID, tenantID string, limit int) ([]*cryptoDomain.WrappedBlob, error)

	// UpdateWrap replaces the wrapped DEK of one blob only if it still references
	// oldKekID. It reports whether the row was updated.
	UpdateWrap(ctx context.Context, blob *cryptoDomain.WrappedBlob, oldKekID uuid.UUID) (bool, error)

	// CountByKek returns the number of blobs wrapped with kekID.
	CountByKek(ctx context.Context, kekID uuid.UUID) (int64, error)
}

// Rewrapper moves a wrapped DEK onto the currently active KEK.
type Rewrapper interface {
	Rewrap(blob *cryptoDomain.WrappedBlob) (*cryptoDomain.WrappedBlob, bool, error)
}

// KekUseCase manages the KEK lifecycle and keeps the in-memory keyring in sync.
type KekUseCase interface {
	// Load decrypts every stored KEK into the keyring.
	Load(ctx context.Context) error

	// Create creates the first KEK (version 1) of scope.
	Create(ctx context.Context, scope string, alg cryptoDomain.Algorithm) (*cryptoDomain.Kek, error)

	// Rotate creates a new active KEK for scope and deprecates the previous one.
	// A scope without KEKs gets its first KEK.
	Rotate(ctx context.Context, scope string, alg cryptoDomain.Algorithm) (*cryptoDomain.Kek, error)

	// Revoke revokes a deprecated KEK that no blob references.
	Revoke(ctx context.Context, id uuid.UUID) error
}

// RewrapUseCase moves blobs off non-active KEKs.
type RewrapUseCase interface {
	// Rewrap processes one batch of at most batchSize blobs for scope and returns the
	// number of blobs moved. Zero means the scope is fully re-wrapped.
	Rewrap(ctx context.Context, scope string, batchSize int) (int, error)

	// RewrapAll re-wraps every scope until no stale blob remains.
	RewrapAll(ctx context.Context, batchSize int) (int, error)
}
