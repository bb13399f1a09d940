// Package service provides cryptographic services for envelope encryption.
// Implements AEAD ciphers (AES-256-GCM, ChaCha20-Poly1305, XChaCha20-Poly1305),
// KEK/DEK wrapping and the Engine that seals and unseals secret payloads.
package service

import (
	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD and returns ciphertext and nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt decrypts ciphertext using the provided nonce and AAD.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager defines the interface for creating AEAD cipher instances.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// KeyManager wraps keys at both levels of the hierarchy.
type KeyManager interface {
	// CreateKek generates a KEK for scope and encrypts it with the master key.
	CreateKek(
		masterKey *cryptoDomain.MasterKey,
		alg cryptoDomain.Algorithm,
		scope string,
		version uint,
	) (*cryptoDomain.Kek, error)

	// DecryptKek decrypts a KEK using the master key.
	DecryptKek(kek *cryptoDomain.Kek, masterKey *cryptoDomain.MasterKey) ([]byte, error)

	// WrapDek encrypts dek with the KEK.
	WrapDek(kek *cryptoDomain.Kek, dek []byte) (wrapped, nonce []byte, err error)

	// UnwrapDek decrypts a wrapped DEK using the KEK.
	UnwrapDek(kek *cryptoDomain.Kek, wrapped, nonce []byte) ([]byte, error)
}
