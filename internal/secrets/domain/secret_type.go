package domain

import (
	"time"

	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/credstore/internal/validation"
)

// SecretType names a category of secret and carries its defaults. Types are registered
// administratively and never change while serving requests.
type SecretType struct {
	ID   string
	Name string
	// ParameterSchema is a JSON Schema every version's parameters must satisfy. Empty
	// accepts any object.
	ParameterSchema string
	// VersioningEnabled keeps history. When disabled a write replaces version 1 in place.
	VersioningEnabled bool
	// MaxVersions caps retained versions. Zero means unlimited.
	MaxVersions int
	// RetentionPeriod drops non-current versions older than this. Zero keeps them.
	RetentionPeriod time.Duration
	// EncryptionRequired restricts storage to backends that encrypt at rest.
	EncryptionRequired bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Validate checks the secret type definition.
func (t *SecretType) Validate() error {
	err := validation.ValidateStruct(t,
		validation.Field(&t.ID, validation.Required, customValidation.Identifier),
		validation.Field(&t.Name, validation.Required, customValidation.NotBlank, validation.Length(1, 255)),
		validation.Field(&t.ParameterSchema, customValidation.JSONSchema),
		validation.Field(&t.MaxVersions, validation.Min(0)),
		validation.Field(&t.RetentionPeriod, validation.Min(time.Duration(0))),
	)
	return customValidation.WrapValidationError(err)
}

// ValidateParameters checks parameters against the type's schema.
func (t *SecretType) ValidateParameters(parameters map[string]any) error {
	return customValidation.ValidateDocument(t.ParameterSchema, parameters)
}

// EffectiveMaxVersions combines the type's cap with a tenant cap. Zero on either side
// means no cap from that side.
func (t *SecretType) EffectiveMaxVersions(tenantMax int) int {
	switch {
	case t.MaxVersions == 0:
		return tenantMax
	case tenantMax == 0:
		return t.MaxVersions
	default:
		return min(t.MaxVersions, tenantMax)
	}
}
