package domain

import (
	"time"

	"github.com/google/uuid"
)

// SecretRecord is the logical secret. ID and SecretTypeID never change; the pair
// (TenantID, ID) is never reused, deleted records stay as tombstones.
type SecretRecord struct {
	ID             string
	TenantID       string
	OwnerUserID    string
	SecretTypeID   string
	CurrentVersion uint
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// IsDeleted reports whether the record is a tombstone.
func (r *SecretRecord) IsDeleted() bool {
	return r.DeletedAt != nil
}

// VisibleTo reports whether a caller scoped to userID may see the record. Tenant-wide
// callers (empty userID) see every record; user-scoped callers see their own and
// tenant-wide records.
func (r *SecretRecord) VisibleTo(userID string) bool {
	return userID == "" || r.OwnerUserID == "" || r.OwnerUserID == userID
}

// SecretVersion is one content snapshot of a record. The material itself lives in the
// active backend under StorageKey.
type SecretVersion struct {
	TenantID   string
	RecordID   string
	Version    uint
	Parameters map[string]any
	StorageKey string
	CreatedAt  time.Time
	CreatedBy  string
}

// NewStorageKey returns a fresh backend key for content of recordID. Keys are unique
// per write so concurrent writers never overwrite each other's material.
func NewStorageKey(recordID string) string {
	return recordID + "/" + uuid.Must(uuid.NewV7()).String()
}

// SecretMaterial is decrypted content returned to callers. Callers must zero Value
// after use.
type SecretMaterial struct {
	SecretID     string
	SecretTypeID string
	Version      uint
	Value        []byte `json:"-"`
	Parameters   map[string]any
	CreatedAt    time.Time
}

// RecordFilter narrows a record listing.
type RecordFilter struct {
	SecretTypeID string
	// OwnerUserID limits results to records visible to one user. Empty lists all.
	OwnerUserID string
	// SecretTypeIDs limits results to records of these types. Empty lists all.
	SecretTypeIDs []string
}
