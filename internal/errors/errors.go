// Package errors provides the credential store error taxonomy. Every error returned by the
// public service wraps exactly one of these sentinels so callers can branch on a stable kind
// with errors.Is, and Code maps an error to its machine-readable identifier.
package errors

import (
	"errors"
	"fmt"
)

// Standard domain errors that can be used across all domain modules.
var (
	// ErrNotFound indicates the requested resource does not exist (or is not visible to the caller).
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conflict with existing data (e.g., a reused secret identifier).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the input data is invalid or fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the request carries no caller identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller identity does not cover the asserted tenant or secret type.
	ErrForbidden = errors.New("forbidden")

	// ErrPluginUnavailable indicates no eligible backend exists or its circuit breaker is open.
	ErrPluginUnavailable = errors.New("plugin unavailable")

	// ErrDecryptionFailure indicates corrupt ciphertext or an AAD mismatch. Never retried.
	ErrDecryptionFailure = errors.New("decryption failure")

	// ErrKekUnavailable indicates the key encryption key referenced by a record is missing or revoked.
	ErrKekUnavailable = errors.New("kek unavailable")

	// ErrQuotaExceeded indicates a tenant ceiling (secret count, versions or request rate) was crossed.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrSecretTooLarge indicates the payload exceeds the tenant's maximum payload size.
	ErrSecretTooLarge = errors.New("secret too large")

	// ErrInvalidSecretType indicates an unknown secret type or a type mismatch on an existing record.
	ErrInvalidSecretType = errors.New("invalid secret type")

	// ErrConcurrentModification indicates the caller's expected version no longer matches.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrUnavailable marks a transient backend failure (transport error, timeout, explicit
	// unavailable response). Only errors carrying this mark are retried.
	ErrUnavailable = errors.New("backend unavailable")
)

// codes is ordered: the first matching sentinel wins, so more specific kinds come first.
var codes = []struct {
	err  error
	code string
}{
	{ErrPluginUnavailable, "plugin_unavailable"},
	{ErrDecryptionFailure, "decryption_failure"},
	{ErrKekUnavailable, "kek_unavailable"},
	{ErrQuotaExceeded, "quota_exceeded"},
	{ErrSecretTooLarge, "secret_too_large"},
	{ErrInvalidSecretType, "invalid_secret_type"},
	{ErrConcurrentModification, "concurrent_modification"},
	{ErrForbidden, "forbidden"},
	{ErrUnauthorized, "unauthorized"},
	{ErrNotFound, "not_found"},
	{ErrConflict, "conflict"},
	{ErrInvalidInput, "invalid_input"},
	{ErrUnavailable, "plugin_unavailable"},
}

// Code returns the stable machine-readable kind of err, or "internal_error" when err does not
// wrap any known sentinel. A nil error has an empty code.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal_error"
}

// Message returns a human-readable message that is safe to show to callers. Validation errors keep
// their detail; every other kind returns a fixed text so storage or crypto internals never leak.
func Message(err error) string {
	switch Code(err) {
	case "":
		return ""
	case "invalid_input", "invalid_secret_type", "conflict":
		return err.Error()
	case "plugin_unavailable":
		return "No storage backend is currently available"
	case "decryption_failure":
		return "The secret could not be decrypted"
	case "kek_unavailable":
		return "The key protecting this secret is unavailable"
	case "quota_exceeded":
		return "Tenant quota exceeded"
	case "secret_too_large":
		return "Secret payload exceeds the allowed size"
	case "concurrent_modification":
		return "The secret was modified concurrently; retry with the current version"
	case "forbidden":
		return "You don't have permission to access this resource"
	case "unauthorized":
		return "Caller identity is required"
	case "not_found":
		return "The requested resource was not found"
	default:
		return "An internal error occurred"
	}
}

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New for consistency.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
// Use this to add context at each layer without losing the original error type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join is a convenience wrapper around errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
