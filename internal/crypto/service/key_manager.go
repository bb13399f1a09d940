package service

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
)

// KeyManagerService implements the KeyManager interface for envelope encryption.
//
// KEKs are encrypted with a master key and DEKs are encrypted with KEKs. The KEK
// ciphertext is bound to its ID and scope, so a stored KEK row cannot be moved to
// another scope without failing decryption.
type KeyManagerService struct {
	aeadManager AEADManager
}

// NewKeyManager creates a new KeyManagerService instance with the provided AEADManager.
func NewKeyManager(aeadManager AEADManager) *KeyManagerService {
	return &KeyManagerService{
		aeadManager: aeadManager,
	}
}

func kekAAD(id uuid.UUID, scope string) []byte {
	return append(id[:], scope...)
}

// CreateKek creates a new active Key Encryption Key encrypted with the provided master key.
// The returned KEK carries its plaintext Key; callers must zero it when done.
func (km *KeyManagerService) CreateKek(
	masterKey *cryptoDomain.MasterKey,
	alg cryptoDomain.Algorithm,
	scope string,
	version uint,
) (*cryptoDomain.Kek, error) {
	kekKey := make([]byte, 32)
	if _, err := rand.Read(kekKey); err != nil {
		return nil, fmt.Errorf("failed to generate KEK: %w", err)
	}

	mk, err := masterKey.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open master key: %w", err)
	}
	defer mk.Destroy()

	aead, err := km.aeadManager.CreateCipher(mk.Bytes(), alg)
	if err != nil {
		return nil, err
	}

	id := uuid.Must(uuid.NewV7())
	encryptedKey, nonce, err := aead.Encrypt(kekKey, kekAAD(id, scope))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt KEK: %w", err)
	}

	return &cryptoDomain.Kek{
		ID:           id,
		Scope:        scope,
		Version:      version,
		Algorithm:    alg,
		Status:       cryptoDomain.KekActive,
		MasterKeyID:  masterKey.ID,
		EncryptedKey: encryptedKey,
		Key:          kekKey,
		Nonce:        nonce,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// DecryptKek decrypts a Key Encryption Key using the master key it was created with.
func (km *KeyManagerService) DecryptKek(
	kek *cryptoDomain.Kek,
	masterKey *cryptoDomain.MasterKey,
) ([]byte, error) {
	mk, err := masterKey.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open master key: %w", err)
	}
	defer mk.Destroy()

	aead, err := km.aeadManager.CreateCipher(mk.Bytes(), kek.Algorithm)
	if err != nil {
		return nil, err
	}

	return aead.Decrypt(kek.EncryptedKey, kek.Nonce, kekAAD(kek.ID, kek.Scope))
}

// WrapDek encrypts a plaintext DEK with the KEK's algorithm.
func (km *KeyManagerService) WrapDek(kek *cryptoDomain.Kek, dek []byte) ([]byte, []byte, error) {
	aead, err := km.aeadManager.CreateCipher(kek.Key, kek.Algorithm)
	if err != nil {
		return nil, nil, err
	}

	wrapped, nonce, err := aead.Encrypt(dek, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to wrap DEK: %w", err)
	}
	return wrapped, nonce, nil
}

// UnwrapDek decrypts a wrapped DEK. The caller must zero the returned key.
func (km *KeyManagerService) UnwrapDek(kek *cryptoDomain.Kek, wrapped, nonce []byte) ([]byte, error) {
	aead, err := km.aeadManager.CreateCipher(kek.Key, kek.Algorithm)
	if err != nil {
		return nil, err
	}

	return aead.Decrypt(wrapped, nonce, nil)
}
