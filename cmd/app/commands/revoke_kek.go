package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	cryptoUseCase "github.com/allisson/credstore/internal/crypto/usecase"
)

// RunRevokeKek revokes a deprecated KEK. It fails while any blob is still wrapped
// with it.
func RunRevokeKek(
	ctx context.Context,
	kekUseCase cryptoUseCase.KekUseCase,
	logger *slog.Logger,
	writer io.Writer,
	kekIDStr string,
) error {
	kekID, err := uuid.Parse(kekIDStr)
	if err != nil {
		return fmt.Errorf("invalid kek-id: %w", err)
	}

	if err := kekUseCase.Revoke(ctx, kekID); err != nil {
		return fmt.Errorf("failed to revoke KEK: %w", err)
	}

	logger.Info("KEK revoked", slog.String("kek_id", kekIDStr))
	_, _ = fmt.Fprintf(writer, "KEK %s revoked\n", kekIDStr)
	return nil
}
