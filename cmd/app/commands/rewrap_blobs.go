package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	cryptoUseCase "github.com/allisson/credstore/internal/crypto/usecase"
)

// RunRewrapBlobs moves stored blobs off deprecated KEKs onto the active KEK of their
// scope in batches. With all set every scope is processed and scope is ignored.
func RunRewrapBlobs(
	ctx context.Context,
	rewrapUseCase cryptoUseCase.RewrapUseCase,
	logger *slog.Logger,
	writer io.Writer,
	scope string,
	all bool,
	batchSize int,
) error {
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}

	logger.Info("starting blob rewrap process",
		slog.String("scope", scopeLabel(scope)),
		slog.Bool("all", all),
		slog.Int("batch_size", batchSize),
	)

	if all {
		total, err := rewrapUseCase.RewrapAll(ctx, batchSize)
		if err != nil {
			return fmt.Errorf("failed to rewrap blobs: %w", err)
		}
		logger.Info("blob rewrap process completed", slog.Int("total_rewrapped", total))
		_, _ = fmt.Fprintf(writer, "Rewrapped %d blob(s)\n", total)
		return nil
	}

	totalRewrapped := 0
	for {
		rewrappedCount, err := rewrapUseCase.Rewrap(ctx, scope, batchSize)
		if err != nil {
			return fmt.Errorf("failed to rewrap blobs in batch: %w", err)
		}

		if rewrappedCount == 0 {
			break
		}

		totalRewrapped += rewrappedCount
		logger.Info("rewrapped batch of blobs",
			slog.Int("rewrapped_in_batch", rewrappedCount),
			slog.Int("total_rewrapped", totalRewrapped),
		)
	}

	logger.Info("blob rewrap process completed", slog.Int("total_rewrapped", totalRewrapped))
	_, _ = fmt.Fprintf(writer, "Rewrapped %d blob(s) in scope %s\n", totalRewrapped, scopeLabel(scope))
	return nil
}
