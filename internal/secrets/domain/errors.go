// Package domain defines the secret types, logical secret records and their versions.
package domain

import (
	"github.com/allisson/credstore/internal/errors"
)

// Secret-specific error definitions.
var (
	// ErrSecretNotFound indicates no live secret exists for the identifier in the caller's scope.
	ErrSecretNotFound = errors.Wrap(errors.ErrNotFound, "secret not found")

	// ErrVersionNotFound indicates the requested version is not retained.
	ErrVersionNotFound = errors.Wrap(errors.ErrNotFound, "secret version not found")

	// ErrSecretTypeNotFound indicates the secret type is not registered.
	ErrSecretTypeNotFound = errors.Wrap(errors.ErrInvalidSecretType, "secret type not found")

	// ErrSecretTypeMismatch indicates an existing secret belongs to another secret type.
	ErrSecretTypeMismatch = errors.Wrap(errors.ErrInvalidSecretType, "secret belongs to another secret type")

	// ErrSecretTypeAlreadyExists indicates a secret type with the same ID is registered.
	ErrSecretTypeAlreadyExists = errors.Wrap(errors.ErrConflict, "secret type already exists")

	// ErrSecretDeleted indicates the identifier belongs to a deleted secret and cannot be reused.
	ErrSecretDeleted = errors.Wrap(errors.ErrConflict, "secret id was deleted and cannot be reused")

	// ErrVersionConflict indicates the current version changed since the caller read it.
	ErrVersionConflict = errors.Wrap(errors.ErrConcurrentModification, "secret version changed")

	// ErrVersioningDisabled indicates an operation that needs history on a type without it.
	ErrVersioningDisabled = errors.Wrap(errors.ErrInvalidInput, "versioning is disabled for the secret type")
)
