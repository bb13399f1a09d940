// Package domain defines the core cryptographic domain models for envelope encryption.
//
// It implements a three-tier key hierarchy: Master Key → KEK → DEK → Data.
// KEKs encrypt Data Encryption Keys, enabling key rotation without re-encrypting
// secret payloads. KEKs are scoped: the global scope ("") serves every tenant,
// and a tenant may have its own scope that takes precedence.
package domain

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kek represents a Key Encryption Key used to encrypt Data Encryption Keys.
// It is itself encrypted with a master key and stored in the database.
type Kek struct {
	ID           uuid.UUID // Unique identifier (UUIDv7)
	Scope        string    // GlobalScope or a tenant ID
	Version      uint      // Monotonic per scope, starting at 1
	Algorithm    Algorithm // Algorithm used to wrap DEKs with this KEK
	Status       KekStatus
	MasterKeyID  string // ID of the master key used to encrypt this KEK
	EncryptedKey []byte // The KEK encrypted with the master key
	Key          []byte // Plaintext KEK (populated after decryption, never persisted)
	Nonce        []byte // Unique nonce for encrypting the KEK
	CreatedAt    time.Time
	RotatedAt    *time.Time // Set when the KEK stops being active
}

// Ref returns the reference stored next to every DEK wrapped by this KEK.
func (k *Kek) Ref() KekRef {
	return KekRef{ID: k.ID, Version: k.Version}
}

// KekRef identifies the KEK a DEK was wrapped with.
type KekRef struct {
	ID      uuid.UUID
	Version uint
}

// Keyring holds the decrypted KEKs of every scope with thread-safe access.
// The active KEK of a scope wraps new DEKs; any non-revoked KEK unwraps.
// Lookups return copies so status changes never race with readers.
type Keyring struct {
	mu     sync.RWMutex
	active map[string]uuid.UUID
	keys   map[uuid.UUID]*Kek
}

// NewKeyring creates a Keyring from decrypted KEKs. Revoked KEKs are skipped.
func NewKeyring(keks []*Kek) *Keyring {
	kr := &Keyring{
		active: make(map[string]uuid.UUID),
		keys:   make(map[uuid.UUID]*Kek),
	}
	for _, kek := range keks {
		kr.put(kek)
	}
	return kr
}

func (kr *Keyring) put(kek *Kek) {
	switch kek.Status {
	case KekRevoked:
		return
	case KekActive:
		if prevID, ok := kr.active[kek.Scope]; ok && prevID != kek.ID {
			if prev, ok := kr.keys[prevID]; ok {
				prev.Status = KekDeprecated
			}
		}
		kr.active[kek.Scope] = kek.ID
	default:
		if kr.active[kek.Scope] == kek.ID {
			delete(kr.active, kek.Scope)
		}
	}
	kr.keys[kek.ID] = kek
}

// Put adds a KEK to the keyring. An active KEK replaces the scope's previous active
// KEK, which stays available for unwrapping as deprecated.
func (kr *Keyring) Put(kek *Kek) {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	kr.put(kek)
}

// Active returns the KEK that wraps new DEKs for scope, falling back to the global
// scope when the tenant has no KEK of its own.
func (kr *Keyring) Active(scope string) (*Kek, bool) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()

	if id, ok := kr.active[scope]; ok {
		return kr.copyOf(id)
	}
	if id, ok := kr.active[GlobalScope]; ok {
		return kr.copyOf(id)
	}
	return nil, false
}

// HasScope reports whether scope has its own active KEK.
func (kr *Keyring) HasScope(scope string) bool {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	_, ok := kr.active[scope]
	return ok
}

// Get retrieves a KEK by ID.
func (kr *Keyring) Get(id uuid.UUID) (*Kek, bool) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	return kr.copyOf(id)
}

func (kr *Keyring) copyOf(id uuid.UUID) (*Kek, bool) {
	kek, ok := kr.keys[id]
	if !ok {
		return nil, false
	}
	c := *kek
	return &c, true
}

// SetStatus records a status change observed in storage. Revoked removes the KEK.
func (kr *Keyring) SetStatus(id uuid.UUID, status KekStatus) {
	if status == KekRevoked {
		kr.Revoke(id)
		return
	}

	kr.mu.Lock()
	defer kr.mu.Unlock()
	if kek, ok := kr.keys[id]; ok && kek.Status != status {
		c := *kek
		c.Status = status
		kr.put(&c)
	}
}

// IDs returns the IDs of every KEK in the keyring.
func (kr *Keyring) IDs() []uuid.UUID {
	kr.mu.RLock()
	defer kr.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(kr.keys))
	for id := range kr.keys {
		ids = append(ids, id)
	}
	return ids
}

// Deprecated returns the non-active KEKs of scope, oldest version first.
func (kr *Keyring) Deprecated(scope string) []*Kek {
	kr.mu.RLock()
	defer kr.mu.RUnlock()

	var keks []*Kek
	for _, kek := range kr.keys {
		if kek.Scope == scope && kek.Status == KekDeprecated {
			c := *kek
			keks = append(keks, &c)
		}
	}
	slices.SortFunc(keks, func(a, b *Kek) int {
		return cmp.Compare(a.Version, b.Version)
	})
	return keks
}

// Scopes returns every scope with an active KEK.
func (kr *Keyring) Scopes() []string {
	kr.mu.RLock()
	defer kr.mu.RUnlock()

	scopes := make([]string, 0, len(kr.active))
	for scope := range kr.active {
		scopes = append(scopes, scope)
	}
	return scopes
}

// Revoke zeroes the KEK material and removes it from the keyring.
func (kr *Keyring) Revoke(id uuid.UUID) {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	kek, ok := kr.keys[id]
	if !ok {
		return
	}
	Zero(kek.Key)
	kek.Status = KekRevoked
	delete(kr.keys, id)
	if kr.active[kek.Scope] == id {
		delete(kr.active, kek.Scope)
	}
}

// Close securely clears all KEKs from the keyring.
func (kr *Keyring) Close() {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	for _, kek := range kr.keys {
		Zero(kek.Key)
	}
	clear(kr.keys)
	clear(kr.active)
}
