// Package domain defines audit log entries. Entries are insert-only; the retention
// sweep is the only path that removes them.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/allisson/credstore/internal/errors"
)

// Operation names the audited action.
type Operation string

const (
	OperationUpsertSecret   Operation = "upsert_secret"
	OperationGetSecret      Operation = "get_secret"
	OperationDeleteSecret   Operation = "delete_secret"
	OperationListSecrets    Operation = "list_secrets"
	OperationListVersions   Operation = "list_versions"
	OperationGetVersion     Operation = "get_version"
	OperationRollbackSecret Operation = "rollback_secret"
	OperationQuotaUsage     Operation = "quota_usage"
	OperationExportAudit    Operation = "export_audit"
	OperationSweepAudit     Operation = "sweep_audit"
)

// Outcome is the result of the audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// SystemActor is recorded as actor for actions without a caller identity.
const SystemActor = "system"

// ErrSignatureInvalid indicates an entry whose signature does not match its content.
var ErrSignatureInvalid = errors.New("audit entry signature invalid")

// Entry is one immutable audit record. It never carries secret material.
type Entry struct {
	ID           uuid.UUID
	TenantID     string
	ActorID      string
	Operation    Operation
	SecretID     string
	SecretTypeID string
	Outcome      Outcome
	ErrorCode    string
	TraceID      string
	CreatedAt    time.Time
	Signature    []byte
	SigningKeyID string
}

// IsSigned reports whether the entry carries a signature.
func (e *Entry) IsSigned() bool {
	return len(e.Signature) > 0 && e.SigningKeyID != ""
}

// Filter narrows a tenant-scoped query. Zero fields match everything; time bounds are inclusive.
type Filter struct {
	ActorID   string
	Operation Operation
	SecretID  string
	From      *time.Time
	To        *time.Time
}

// VerificationReport summarizes a signature verification run.
type VerificationReport struct {
	TotalChecked  int64
	SignedCount   int64
	UnsignedCount int64
	ValidCount    int64
	InvalidCount  int64
	InvalidLogs   []uuid.UUID
}
