package domain

import (
	"github.com/allisson/credstore/internal/errors"
)

// Cryptographic operation error definitions.
//
// These domain-specific errors wrap the standard kinds from internal/errors so callers
// can branch on errors.Is(err, errors.ErrDecryptionFailure) or ErrKekUnavailable
// without knowing which layer failed.
var (
	// ErrUnsupportedAlgorithm indicates the requested encryption algorithm is not supported.
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrInvalidKeySize indicates a key that is not exactly 32 bytes.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrDecryptionFailed indicates an authentication failure: wrong key, tampered
	// ciphertext, or AAD that does not match the record. The cause is never disclosed.
	ErrDecryptionFailed = errors.Wrap(errors.ErrDecryptionFailure, "decryption failed")

	// ErrKekNotFound indicates the KEK referenced by a blob is not loaded.
	ErrKekNotFound = errors.Wrap(errors.ErrKekUnavailable, "kek not found")

	// ErrKekRevoked indicates the KEK referenced by a blob has been revoked.
	ErrKekRevoked = errors.Wrap(errors.ErrKekUnavailable, "kek revoked")

	// ErrNoActiveKek indicates neither the tenant scope nor the global scope has an active KEK.
	ErrNoActiveKek = errors.Wrap(errors.ErrKekUnavailable, "no active kek")

	// ErrKekNotDeprecated indicates a revoke attempt on a KEK that is still active.
	ErrKekNotDeprecated = errors.Wrap(errors.ErrConflict, "only deprecated keks can be revoked")

	// ErrKekInUse indicates a revoke attempt on a KEK still referenced by stored blobs.
	ErrKekInUse = errors.Wrap(errors.ErrConflict, "kek is still referenced by stored blobs")

	// ErrKekAlreadyExists indicates an attempt to create a first KEK for a scope that has one.
	ErrKekAlreadyExists = errors.Wrap(errors.ErrConflict, "kek already exists for scope")

	// ErrMasterKeysNotSet indicates MASTER_KEYS is empty.
	ErrMasterKeysNotSet = errors.New("MASTER_KEYS not set")

	// ErrActiveMasterKeyIDNotSet indicates ACTIVE_MASTER_KEY_ID is empty.
	ErrActiveMasterKeyIDNotSet = errors.New("ACTIVE_MASTER_KEY_ID not set")

	// ErrInvalidMasterKeysFormat indicates a MASTER_KEYS entry not in "id:base64" form.
	ErrInvalidMasterKeysFormat = errors.New("invalid MASTER_KEYS format")

	// ErrInvalidMasterKeyBase64 indicates a master key that is not valid base64.
	ErrInvalidMasterKeyBase64 = errors.New("invalid master key base64")

	// ErrActiveMasterKeyNotFound indicates ACTIVE_MASTER_KEY_ID names a key missing from MASTER_KEYS.
	ErrActiveMasterKeyNotFound = errors.New("active master key not found")

	// ErrMasterKeyNotFound indicates a KEK references a master key missing from the chain.
	ErrMasterKeyNotFound = errors.Wrap(errors.ErrKekUnavailable, "master key not found")
)
