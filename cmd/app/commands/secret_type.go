package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	secretsDomain "github.com/allisson/credstore/internal/secrets/domain"
	secretsUsecase "github.com/allisson/credstore/internal/secrets/usecase"
)

// SecretTypeInput carries the flags of the secret type commands.
type SecretTypeInput struct {
	ID                 string
	Name               string
	Schema             string
	Versioning         bool
	MaxVersions        int
	RetentionDays      int
	EncryptionRequired bool
}

// RunCreateSecretType registers a new secret type.
func RunCreateSecretType(
	ctx context.Context,
	secretTypeUseCase secretsUsecase.SecretTypeUseCase,
	logger *slog.Logger,
	writer io.Writer,
	input SecretTypeInput,
	format string,
) error {
	secretType, err := input.toDomain()
	if err != nil {
		return err
	}

	created, err := secretTypeUseCase.Create(ctx, secretType)
	if err != nil {
		return fmt.Errorf("failed to create secret type: %w", err)
	}

	logger.Info("secret type created", slog.String("secret_type_id", created.ID))
	return outputSecretType(writer, created, format)
}

// RunUpdateSecretType replaces the definition of an existing secret type. Versions
// already stored are not revalidated against a changed schema.
func RunUpdateSecretType(
	ctx context.Context,
	secretTypeUseCase secretsUsecase.SecretTypeUseCase,
	logger *slog.Logger,
	writer io.Writer,
	input SecretTypeInput,
	format string,
) error {
	secretType, err := input.toDomain()
	if err != nil {
		return err
	}

	updated, err := secretTypeUseCase.Update(ctx, secretType)
	if err != nil {
		return fmt.Errorf("failed to update secret type: %w", err)
	}

	logger.Info("secret type updated", slog.String("secret_type_id", updated.ID))
	return outputSecretType(writer, updated, format)
}

// RunListSecretTypes prints registered secret types.
func RunListSecretTypes(
	ctx context.Context,
	secretTypeUseCase secretsUsecase.SecretTypeUseCase,
	writer io.Writer,
	offset, limit int,
	format string,
) error {
	secretTypes, err := secretTypeUseCase.List(ctx, offset, limit)
	if err != nil {
		return fmt.Errorf("failed to list secret types: %w", err)
	}

	if format == "json" {
		records := make([]map[string]any, 0, len(secretTypes))
		for _, secretType := range secretTypes {
			records = append(records, secretTypeRecord(secretType))
		}
		return writeJSON(writer, records)
	}

	for _, secretType := range secretTypes {
		_, _ = fmt.Fprintf(writer, "%-32s versioning=%t max_versions=%d encryption_required=%t\n",
			secretType.ID,
			secretType.VersioningEnabled,
			secretType.MaxVersions,
			secretType.EncryptionRequired,
		)
	}
	return nil
}

// toDomain builds the secret type. A schema starting with "@" is read from the named file.
func (i SecretTypeInput) toDomain() (*secretsDomain.SecretType, error) {
	schema := i.Schema
	if path, ok := strings.CutPrefix(schema, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema file: %w", err)
		}
		schema = string(data)
	}
	if i.RetentionDays < 0 {
		return nil, fmt.Errorf("retention-days must be a positive number, got: %d", i.RetentionDays)
	}

	return &secretsDomain.SecretType{
		ID:                 i.ID,
		Name:               i.Name,
		ParameterSchema:    schema,
		VersioningEnabled:  i.Versioning,
		MaxVersions:        i.MaxVersions,
		RetentionPeriod:    time.Duration(i.RetentionDays) * 24 * time.Hour,
		EncryptionRequired: i.EncryptionRequired,
	}, nil
}

func secretTypeRecord(secretType *secretsDomain.SecretType) map[string]any {
	return map[string]any{
		"id":                  secretType.ID,
		"name":                secretType.Name,
		"parameter_schema":    secretType.ParameterSchema,
		"versioning_enabled":  secretType.VersioningEnabled,
		"max_versions":        secretType.MaxVersions,
		"retention_days":      int(secretType.RetentionPeriod / (24 * time.Hour)),
		"encryption_required": secretType.EncryptionRequired,
		"created_at":          secretType.CreatedAt,
		"updated_at":          secretType.UpdatedAt,
	}
}

func outputSecretType(writer io.Writer, secretType *secretsDomain.SecretType, format string) error {
	if format == "json" {
		return writeJSON(writer, secretTypeRecord(secretType))
	}

	_, _ = fmt.Fprintf(writer, "Secret Type:         %s\n", secretType.ID)
	_, _ = fmt.Fprintf(writer, "Name:                %s\n", secretType.Name)
	_, _ = fmt.Fprintf(writer, "Versioning:          %t\n", secretType.VersioningEnabled)
	_, _ = fmt.Fprintf(writer, "Max Versions:        %d\n", secretType.MaxVersions)
	_, _ = fmt.Fprintf(writer, "Retention:           %s\n", secretType.RetentionPeriod)
	_, _ = fmt.Fprintf(writer, "Encryption Required: %t\n", secretType.EncryptionRequired)
	return nil
}
