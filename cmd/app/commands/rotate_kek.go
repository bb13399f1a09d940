package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	cryptoUseCase "github.com/allisson/credstore/internal/crypto/usecase"
)

// RunRotateKek creates a new active KEK version for scope and deprecates the previous
// one. Blobs wrapped with the deprecated KEK stay readable; run rewrap-blobs (or let the
// server's rewrap worker) move them onto the new KEK.
//
// Requirements: MASTER_KEYS and ACTIVE_MASTER_KEY_ID must be set.
func RunRotateKek(
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

	logger.Info("rotating KEK",
		slog.String("scope", scopeLabel(scope)),
		slog.String("algorithm", algorithmStr),
	)

	kek, err := kekUseCase.Rotate(ctx, scope, algorithm)
	if err != nil {
		return fmt.Errorf("failed to rotate KEK: %w", err)
	}

	logger.Info("KEK rotated successfully",
		slog.String("kek_id", kek.ID.String()),
		slog.Uint64("version", uint64(kek.Version)),
	)

	return outputKek(writer, kek, format)
}
