// Package domain defines per-tenant quota limits and usage.
package domain

import (
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/credstore/internal/errors"
	customValidation "github.com/allisson/credstore/internal/validation"
)

// ErrQuotaNotFound indicates no explicit quota is stored for a tenant.
var ErrQuotaNotFound = errors.Wrap(errors.ErrNotFound, "tenant quota not found")

// TenantQuota holds the limits enforced for one tenant. Zero limits mean unlimited,
// except RequestsPerSecond and Burst which are always enforced.
type TenantQuota struct {
	TenantID          string
	MaxSecrets        int
	MaxPayloadBytes   int
	MaxVersions       int
	RequestsPerSecond float64
	Burst             int
	AuditRetention    time.Duration
	UpdatedAt         time.Time
}

// Validate checks the quota for administrative updates.
func (q *TenantQuota) Validate() error {
	err := validation.ValidateStruct(q,
		validation.Field(&q.TenantID, validation.Required, customValidation.Identifier),
		validation.Field(&q.MaxSecrets, validation.Min(0)),
		validation.Field(&q.MaxPayloadBytes, validation.Min(0)),
		validation.Field(&q.MaxVersions, validation.Min(0)),
		validation.Field(&q.RequestsPerSecond, validation.Required, validation.Min(0.0)),
		validation.Field(&q.Burst, validation.Required, validation.Min(1)),
		validation.Field(&q.AuditRetention, validation.Min(time.Duration(0))),
	)
	return customValidation.WrapValidationError(err)
}

// Usage reports the current consumption of a tenant against its limits.
type Usage struct {
	TenantID string
	Secrets  int64
	Limits   TenantQuota
}
