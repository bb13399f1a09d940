package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	auditUsecase "github.com/allisson/credstore/internal/audit/usecase"
)

// RunCleanAuditLogs deletes expired audit entries. With a tenant, entries of that tenant
// older than days are removed. Without one, every tenant is swept according to its own
// retention and days is ignored. Supports dry-run mode and text/JSON output.
//
// Requirements: Database must be migrated and accessible.
func RunCleanAuditLogs(
	ctx context.Context,
	auditUseCase auditUsecase.AuditUseCase,
	logger *slog.Logger,
	writer io.Writer,
	tenantID string,
	days int,
	dryRun bool,
	format string,
) error {
	if days < 0 {
		return fmt.Errorf("days must be a positive number, got: %d", days)
	}
	if tenantID != "" && days == 0 {
		return fmt.Errorf("days is required when a tenant is given")
	}

	logger.Info("cleaning audit logs",
		slog.String("tenant_id", tenantID),
		slog.Int("days", days),
		slog.Bool("dry_run", dryRun),
	)

	var (
		count int64
		err   error
	)
	if tenantID == "" {
		count, err = auditUseCase.SweepAll(ctx, dryRun)
	} else {
		olderThan := time.Now().UTC().AddDate(0, 0, -days)
		count, err = auditUseCase.Sweep(ctx, tenantID, olderThan, dryRun)
	}
	if err != nil {
		return fmt.Errorf("failed to delete audit logs: %w", err)
	}

	if format == "json" {
		if err := writeJSON(writer, map[string]any{
			"count":     count,
			"tenant_id": tenantID,
			"days":      days,
			"dry_run":   dryRun,
		}); err != nil {
			return err
		}
	} else {
		outputCleanText(writer, count, tenantID, days, dryRun)
	}

	logger.Info("cleanup completed",
		slog.Int64("count", count),
		slog.Bool("dry_run", dryRun),
	)

	return nil
}

// outputCleanText outputs the result in human-readable text format.
func outputCleanText(writer io.Writer, count int64, tenantID string, days int, dryRun bool) {
	verb := "Successfully deleted"
	if dryRun {
		verb = "Dry-run mode: Would delete"
	}
	if tenantID == "" {
		_, _ = fmt.Fprintf(writer, "%s %d expired audit log(s) across all tenants\n", verb, count)
		return
	}
	_, _ = fmt.Fprintf(writer,
		"%s %d audit log(s) of tenant %s older than %d day(s)\n", verb, count, tenantID, days)
}
