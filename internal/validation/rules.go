// Package validation provides custom validation rules for the application.
package validation

import (
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"
	"github.com/xeipuuv/gojsonschema"

	apperrors "github.com/allisson/credstore/internal/errors"
)

var (
	// identifierRegex matches tenant, secret and secret type identifiers.
	identifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:/@-]{0,254}$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// Identifier validates opaque identifiers: 1 to 255 characters, starting with an
// alphanumeric character, without whitespace.
var Identifier = validation.NewStringRuleWithError(
	func(s string) bool {
		return identifierRegex.MatchString(s)
	},
	validation.NewError("validation_identifier", "must be a valid identifier"),
)

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// JSONSchema validates that a string is a loadable JSON Schema document.
var JSONSchema = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_json_schema_type", "must be a string")
	}
	if s == "" {
		return nil // Let Required handle empty strings
	}
	if _, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s)); err != nil {
		return validation.NewError("validation_json_schema", "must be a valid JSON schema")
	}
	return nil
})

// ValidateDocument validates document against the JSON schema. An empty schema accepts
// any document. Violations are returned as ErrInvalidInput listing every failed field.
func ValidateDocument(schema string, document map[string]any) error {
	if schema == "" {
		return nil
	}
	if document == nil {
		document = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewGoLoader(document),
	)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "invalid parameter schema")
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, "parameters: "+strings.Join(details, "; "))
}
