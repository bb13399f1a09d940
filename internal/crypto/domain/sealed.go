package domain

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// SealedData is the output of envelope encryption. Only SealedData is persisted by
// backends: the plaintext DEK never leaves the crypto engine.
type SealedData struct {
	Algorithm  Algorithm // Algorithm used with the DEK
	Nonce      []byte    // Nonce used to encrypt the payload
	Ciphertext []byte    // Payload ciphertext with the authentication tag appended
	WrappedDek []byte    // DEK encrypted with the KEK
	DekNonce   []byte    // Nonce used to wrap the DEK
	Kek        KekRef    // KEK that wrapped the DEK
}

// AAD binds a ciphertext to the record it belongs to. Decrypting with a different
// tenant, secret ID, secret type or user fails authentication.
type AAD struct {
	TenantID     string
	SecretID     string
	SecretTypeID string
	UserID       string
}

// Bytes returns the canonical encoding of the AAD: every field is written with a
// 4-byte big-endian length prefix so no two field combinations encode equally.
func (a AAD) Bytes() []byte {
	buf := make([]byte, 0, 16+len(a.TenantID)+len(a.SecretID)+len(a.SecretTypeID)+len(a.UserID))
	buf = appendLengthPrefixed(buf, a.TenantID)
	buf = appendLengthPrefixed(buf, a.SecretID)
	buf = appendLengthPrefixed(buf, a.SecretTypeID)
	buf = appendLengthPrefixed(buf, a.UserID)
	return buf
}

func appendLengthPrefixed(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// Zero overwrites b with zeros. Used on every plaintext key after use.
func Zero(b []byte) {
	clear(b)
}

// WrappedBlob is the key-wrapping part of a stored blob: everything re-wrap needs,
// without the payload ciphertext.
type WrappedBlob struct {
	ID         uuid.UUID
	TenantID   string
	WrappedDek []byte
	DekNonce   []byte
	Kek        KekRef
}
