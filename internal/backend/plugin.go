// Package backend defines the storage plugin contract, the registry the core asks for
// backend instances, and the selector and dispatcher that route every call to the single
// active instance.
package backend

import (
	"context"
	"time"

	apperrors "github.com/allisson/credstore/internal/errors"
)

// Backend errors.
var (
	// ErrBlobNotFound indicates no blob exists for the storage key in the caller's scope.
	ErrBlobNotFound = apperrors.Wrap(apperrors.ErrNotFound, "secret material not found")

	// ErrTypeMismatch indicates a storage key already holds material of another secret type.
	ErrTypeMismatch = apperrors.Wrap(apperrors.ErrInvalidSecretType, "secret type mismatch")
)

// Material is the secret value and parameters a plugin returns. Callers must zero Value
// after use.
type Material struct {
	SecretTypeID string
	Value        []byte `json:"-"`
	Parameters   map[string]any
	UpdatedAt    time.Time
}

// Plugin is the storage contract every backend implements. secretID is opaque to the
// plugin; secretTypeID must match the stored type so material cannot be read across types.
// Plugins scope every storage query by the tenancy.Identity carried in ctx.
type Plugin interface {
	UpsertSecret(ctx context.Context, secretID, secretTypeID string, value []byte, parameters map[string]any) error
	GetSecretMaterial(ctx context.Context, secretID, secretTypeID string) (*Material, error)
	DeleteSecret(ctx context.Context, secretID, secretTypeID string) error
}

// AtRestEncrypter is implemented by plugins that never persist material in the clear.
// Plugins that do not implement it are treated as not encrypting.
type AtRestEncrypter interface {
	EncryptsAtRest() bool
}

func encryptsAtRest(p Plugin) bool {
	e, ok := p.(AtRestEncrypter)
	return ok && e.EncryptsAtRest()
}

type encryptionRequiredKey struct{}

// WithEncryptionRequired marks ctx so only plugins that encrypt at rest are selected.
func WithEncryptionRequired(ctx context.Context) context.Context {
	return context.WithValue(ctx, encryptionRequiredKey{}, true)
}

// EncryptionRequired reports whether ctx was marked by WithEncryptionRequired.
func EncryptionRequired(ctx context.Context) bool {
	required, _ := ctx.Value(encryptionRequiredKey{}).(bool)
	return required
}
