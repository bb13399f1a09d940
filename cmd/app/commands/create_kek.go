package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
	cryptoUseCase "github.com/allisson/credstore/internal/crypto/usecase"
)

// RunCreateKek creates the first Key Encryption Key of scope. An empty scope is the
// global scope shared by tenants without a dedicated KEK. The KEK is encrypted using the
// active master key from MASTER_KEYS.
//
// Requirements: Database must be migrated, MASTER_KEYS and ACTIVE_MASTER_KEY_ID must be set.
func RunCreateKek(
	ctx context.Context,
	kekUseCase cryptoUseCase.KekUseCase,
	logger *slog.Logger,
	writer io.Writer,
	scope string,
	algorithmStr string,
	format string,
) error {
	algorithm, err := parseAlgorithm(algorithmStr)
	if err != nil {
		return err
	}

	logger.Info("creating new KEK",
		slog.String("scope", scopeLabel(scope)),
		slog.String("algorithm", algorithmStr),
	)

	kek, err := kekUseCase.Create(ctx, scope, algorithm)
	if err != nil {
		return fmt.Errorf("failed to create KEK: %w", err)
	}

	logger.Info("KEK created successfully",
		slog.String("kek_id", kek.ID.String()),
		slog.String("master_key_id", kek.MasterKeyID),
	)

	return outputKek(writer, kek, format)
}

// outputKek prints a KEK's public attributes. Key material is never printed.
func outputKek(writer io.Writer, kek *cryptoDomain.Kek, format string) error {
	if format == "json" {
		return writeJSON(writer, map[string]any{
			"id":            kek.ID,
			"scope":         scopeLabel(kek.Scope),
			"version":       kek.Version,
			"algorithm":     kek.Algorithm,
			"status":        kek.Status,
			"master_key_id": kek.MasterKeyID,
			"created_at":    kek.CreatedAt,
		})
	}

	_, _ = fmt.Fprintf(writer, "KEK ID:        %s\n", kek.ID)
	_, _ = fmt.Fprintf(writer, "Scope:         %s\n", scopeLabel(kek.Scope))
	_, _ = fmt.Fprintf(writer, "Version:       %d\n", kek.Version)
	_, _ = fmt.Fprintf(writer, "Algorithm:     %s\n", kek.Algorithm)
	_, _ = fmt.Fprintf(writer, "Status:        %s\n", kek.Status)
	_, _ = fmt.Fprintf(writer, "Master Key ID: %s\n", kek.MasterKeyID)
	return nil
}
