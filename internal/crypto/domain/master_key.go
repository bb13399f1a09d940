package domain

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
)

// MasterKey is the root of the envelope encryption hierarchy. Its material lives in a
// memguard enclave: encrypted at rest in memory, decrypted into a locked buffer only
// for the duration of a single wrap or unwrap.
type MasterKey struct {
	ID      string
	enclave *memguard.Enclave
}

// NewMasterKey seals key into an enclave and wipes the source slice.
func NewMasterKey(id string, key []byte) (*MasterKey, error) {
	if len(key) != 32 {
		Zero(key)
		return nil, fmt.Errorf("%w: master key %s must be 32 bytes, got %d", ErrInvalidKeySize, id, len(key))
	}
	return &MasterKey{ID: id, enclave: memguard.NewEnclave(key)}, nil
}

// Open decrypts the master key into a locked buffer. The caller must Destroy it.
func (m *MasterKey) Open() (*memguard.LockedBuffer, error) {
	return m.enclave.Open()
}

// KMSKeeper is the subset of *secrets.Keeper used to protect master keys.
type KMSKeeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}

// KMSService opens keepers for a KMS key URI.
type KMSService interface {
	OpenKeeper(ctx context.Context, keyURI string) (KMSKeeper, error)
}

// MasterKeyChain manages a collection of master keys with one designated as active.
//
// New KEKs are encrypted with the active key and audit entries are signed with a key
// derived from it. Older keys stay in the chain so KEKs encrypted under them remain
// readable.
type MasterKeyChain struct {
	activeID string
	keys     sync.Map
}

// ActiveMasterKeyID returns the ID of the currently active master key.
func (m *MasterKeyChain) ActiveMasterKeyID() string {
	return m.activeID
}

// Active returns the active master key.
func (m *MasterKeyChain) Active() (*MasterKey, bool) {
	return m.Get(m.activeID)
}

// Get retrieves a master key from the keychain by its ID.
func (m *MasterKeyChain) Get(id string) (*MasterKey, bool) {
	if masterKey, ok := m.keys.Load(id); ok {
		return masterKey.(*MasterKey), ok
	}

	return nil, false
}

// Close drops every master key from the chain.
func (m *MasterKeyChain) Close() {
	m.activeID = ""
	m.keys.Clear()
}

// NewMasterKeyChain builds a chain from already-validated keys.
func NewMasterKeyChain(activeID string, keys ...*MasterKey) (*MasterKeyChain, error) {
	mkc := &MasterKeyChain{activeID: activeID}
	for _, key := range keys {
		mkc.keys.Store(key.ID, key)
	}
	if _, ok := mkc.Get(activeID); !ok {
		return nil, fmt.Errorf("%w: ACTIVE_MASTER_KEY_ID=%s", ErrActiveMasterKeyNotFound, activeID)
	}
	return mkc, nil
}

// LoadMasterKeyChain parses masterKeys ("id:base64,id:base64") into a chain.
//
// When keyURI is set every entry is KMS ciphertext and is decrypted through a keeper
// opened by kms; otherwise entries hold the raw 32-byte keys. Decoded material is
// wiped once sealed into its enclave. Any invalid entry fails the whole load.
func LoadMasterKeyChain(
	ctx context.Context,
	masterKeys, activeID, keyURI string,
	kms KMSService,
	logger *slog.Logger,
) (*MasterKeyChain, error) {
	if masterKeys == "" {
		return nil, ErrMasterKeysNotSet
	}
	if activeID == "" {
		return nil, ErrActiveMasterKeyIDNotSet
	}

	var keeper KMSKeeper
	if keyURI != "" {
		var err error
		keeper, err = kms.OpenKeeper(ctx, keyURI)
		if err != nil {
			return nil, fmt.Errorf("failed to open kms keeper: %w", err)
		}
		defer func() {
			if closeErr := keeper.Close(); closeErr != nil {
				logger.Warn("failed to close kms keeper", slog.Any("error", closeErr))
			}
		}()
	}

	var keys []*MasterKey
	for part := range strings.SplitSeq(masterKeys, ",") {
		p := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(p) != 2 || p[0] == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMasterKeysFormat, part)
		}
		id := p[0]
		raw, err := base64.StdEncoding.DecodeString(p[1])
		if err != nil {
			return nil, fmt.Errorf("%w for %s: %v", ErrInvalidMasterKeyBase64, id, err)
		}
		if keeper != nil {
			plain, err := keeper.Decrypt(ctx, raw)
			if err != nil {
				return nil, fmt.Errorf("failed to decrypt master key %s with kms: %w", id, err)
			}
			raw = plain
		}
		key, err := NewMasterKey(id, raw)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	mkc, err := NewMasterKeyChain(activeID, keys...)
	if err != nil {
		return nil, err
	}
	logger.Info("master key chain loaded",
		slog.Int("keys", len(keys)),
		slog.String("active_master_key_id", activeID),
		slog.Bool("kms", keeper != nil),
	)
	return mkc, nil
}
