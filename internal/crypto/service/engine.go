package service

import (
	"crypto/rand"
	"fmt"

	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
	"github.com/allisson/credstore/internal/errors"
)

// Engine seals and unseals secret payloads with envelope encryption.
//
// Every Seal draws a fresh DEK, encrypts the payload with the configured data
// algorithm and wraps the DEK with the active KEK of the record's scope. Plaintext
// DEKs never leave the engine and are zeroed after use.
type Engine struct {
	keyring     *cryptoDomain.Keyring
	keyManager  KeyManager
	aeadManager AEADManager
	dataAlg     cryptoDomain.Algorithm
}

// NewEngine creates an Engine over keyring. dataAlg must be a supported algorithm.
func NewEngine(
	keyring *cryptoDomain.Keyring,
	keyManager KeyManager,
	aeadManager AEADManager,
	dataAlg cryptoDomain.Algorithm,
) (*Engine, error) {
	if !dataAlg.Valid() {
		return nil, cryptoDomain.ErrUnsupportedAlgorithm
	}
	return &Engine{
		keyring:     keyring,
		keyManager:  keyManager,
		aeadManager: aeadManager,
		dataAlg:     dataAlg,
	}, nil
}

// Seal encrypts plaintext bound to aad and wraps the DEK with the active KEK of scope
// (the tenant's own KEK when present, otherwise the global one).
func (e *Engine) Seal(plaintext []byte, aad cryptoDomain.AAD, scope string) (*cryptoDomain.SealedData, error) {
	kek, ok := e.keyring.Active(scope)
	if !ok {
		return nil, cryptoDomain.ErrNoActiveKek
	}

	dek := make([]byte, 32)
	if _, err := rand.Read(dek); err != nil {
		return nil, fmt.Errorf("failed to generate DEK: %w", err)
	}
	defer cryptoDomain.Zero(dek)

	aead, err := e.aeadManager.CreateCipher(dek, e.dataAlg)
	if err != nil {
		return nil, err
	}
	ciphertext, nonce, err := aead.Encrypt(plaintext, aad.Bytes())
	if err != nil {
		return nil, err
	}

	wrapped, dekNonce, err := e.keyManager.WrapDek(kek, dek)
	if err != nil {
		return nil, err
	}

	return &cryptoDomain.SealedData{
		Algorithm:  e.dataAlg,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		WrappedDek: wrapped,
		DekNonce:   dekNonce,
		Kek:        kek.Ref(),
	}, nil
}

// Unseal reverses Seal. It fails with ErrKekUnavailable when the referenced KEK is
// missing or revoked and with ErrDecryptionFailure when the data or aad do not authenticate.
func (e *Engine) Unseal(sealed *cryptoDomain.SealedData, aad cryptoDomain.AAD) ([]byte, error) {
	dek, err := e.unwrap(sealed.Kek, sealed.WrappedDek, sealed.DekNonce)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(dek)

	aead, err := e.aeadManager.CreateCipher(dek, sealed.Algorithm)
	if err != nil {
		return nil, err
	}
	return aead.Decrypt(sealed.Ciphertext, sealed.Nonce, aad.Bytes())
}

// Rewrap moves a wrapped DEK onto the active KEK of the blob's tenant scope. It
// returns false when the blob already references that KEK. The payload ciphertext
// is untouched.
func (e *Engine) Rewrap(blob *cryptoDomain.WrappedBlob) (*cryptoDomain.WrappedBlob, bool, error) {
	active, ok := e.keyring.Active(blob.TenantID)
	if !ok {
		return nil, false, cryptoDomain.ErrNoActiveKek
	}
	if blob.Kek.ID == active.ID {
		return blob, false, nil
	}

	dek, err := e.unwrap(blob.Kek, blob.WrappedDek, blob.DekNonce)
	if err != nil {
		return nil, false, err
	}
	defer cryptoDomain.Zero(dek)

	wrapped, nonce, err := e.keyManager.WrapDek(active, dek)
	if err != nil {
		return nil, false, err
	}

	return &cryptoDomain.WrappedBlob{
		ID:         blob.ID,
		TenantID:   blob.TenantID,
		WrappedDek: wrapped,
		DekNonce:   nonce,
		Kek:        active.Ref(),
	}, true, nil
}

func (e *Engine) unwrap(ref cryptoDomain.KekRef, wrapped, nonce []byte) ([]byte, error) {
	kek, ok := e.keyring.Get(ref.ID)
	if !ok || kek.Version != ref.Version {
		return nil, cryptoDomain.ErrKekNotFound
	}
	if !kek.Status.CanUnwrap() {
		return nil, cryptoDomain.ErrKekRevoked
	}

	dek, err := e.keyManager.UnwrapDek(kek, wrapped, nonce)
	if err != nil {
		if errors.Is(err, errors.ErrDecryptionFailure) {
			return nil, err
		}
		return nil, errors.Wrap(cryptoDomain.ErrDecryptionFailed, err.Error())
	}
	return dek, nil
}
