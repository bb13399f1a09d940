// Package tenancy carries the caller identity through the request context. The identity
// is decided upstream (authentication and role checks happen before the service is called);
// this package only re-validates the tenant and secret type scope it asserts.
package tenancy

import (
	"context"
	"slices"

	apperrors "github.com/allisson/credstore/internal/errors"
)

type identityKey struct{}

// Identity is the caller-scoped context every operation runs under.
type Identity struct {
	// TenantID is the only tenant the caller may act on.
	TenantID string
	// UserID scopes storage to a single owning user. Empty means tenant-wide.
	UserID string
	// ActorID identifies the caller in audit entries.
	ActorID string
	// SecretTypes restricts the secret types the caller may touch. Empty allows all.
	SecretTypes []string
	// TraceID correlates audit entries with the upstream request.
	TraceID string
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// MustFromContext returns the identity stored in ctx or ErrUnauthorized.
func MustFromContext(ctx context.Context) (Identity, error) {
	id, ok := FromContext(ctx)
	if !ok || id.TenantID == "" {
		return Identity{}, apperrors.ErrUnauthorized
	}
	return id, nil
}

// Authorize checks that the identity covers tenantID and, when secretTypeID is not
// empty, the secret type.
func (id Identity) Authorize(tenantID, secretTypeID string) error {
	if id.TenantID != tenantID {
		return apperrors.Wrap(apperrors.ErrForbidden, "tenant mismatch")
	}
	if secretTypeID != "" && len(id.SecretTypes) > 0 && !slices.Contains(id.SecretTypes, secretTypeID) {
		return apperrors.Wrap(apperrors.ErrForbidden, "secret type not allowed")
	}
	return nil
}

// WithStorageScope returns a copy of ctx whose identity is narrowed to the storage
// scope of a record: tenant plus optional owning user.
func WithStorageScope(ctx context.Context, tenantID, userID string) context.Context {
	id, _ := FromContext(ctx)
	id.TenantID = tenantID
	id.UserID = userID
	return WithIdentity(ctx, id)
}
