package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	auditDomain "github.com/allisson/credstore/internal/audit/domain"
	auditUsecase "github.com/allisson/credstore/internal/audit/usecase"
)

const exportPageSize = 500

// RunExportAuditLogs writes the audit entries of one tenant, newest first. Dates are
// optional and bound the range inclusively. The json format emits one object per line.
func RunExportAuditLogs(
	ctx context.Context,
	auditUseCase auditUsecase.AuditUseCase,
	logger *slog.Logger,
	writer io.Writer,
	tenantID string,
	startDate, endDate string,
	operation string,
	format string,
) error {
	if tenantID == "" {
		return fmt.Errorf("tenant is required")
	}

	filter := auditDomain.Filter{Operation: auditDomain.Operation(operation)}
	if startDate != "" {
		start, err := parseDate(startDate)
		if err != nil {
			return fmt.Errorf("invalid start date: %w", err)
		}
		filter.From = &start
	}
	if endDate != "" {
		end, err := parseDate(endDate)
		if err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
		filter.To = &end
	}
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return fmt.Errorf("end date must be after start date")
	}

	encoder := json.NewEncoder(writer)
	exported := 0
	for offset := 0; ; offset += exportPageSize {
		entries, err := auditUseCase.Query(ctx, tenantID, filter, offset, exportPageSize)
		if err != nil {
			return fmt.Errorf("failed to export audit logs: %w", err)
		}

		for _, entry := range entries {
			if format == "json" {
				if err := encoder.Encode(exportRecord(entry)); err != nil {
					return fmt.Errorf("failed to encode audit log: %w", err)
				}
				continue
			}
			_, _ = fmt.Fprintf(writer, "%s  %-16s %-8s actor=%s secret=%s type=%s error=%s\n",
				entry.CreatedAt.Format("2006-01-02 15:04:05"),
				entry.Operation,
				entry.Outcome,
				entry.ActorID,
				entry.SecretID,
				entry.SecretTypeID,
				entry.ErrorCode,
			)
		}

		exported += len(entries)
		if len(entries) < exportPageSize {
			break
		}
	}

	logger.Info("audit logs exported",
		slog.String("tenant_id", tenantID),
		slog.Int("count", exported),
	)
	return nil
}

func exportRecord(entry *auditDomain.Entry) map[string]any {
	return map[string]any{
		"id":             entry.ID,
		"tenant_id":      entry.TenantID,
		"actor_id":       entry.ActorID,
		"operation":      entry.Operation,
		"secret_id":      entry.SecretID,
		"secret_type_id": entry.SecretTypeID,
		"outcome":        entry.Outcome,
		"error_code":     entry.ErrorCode,
		"trace_id":       entry.TraceID,
		"created_at":     entry.CreatedAt,
		"signing_key_id": entry.SigningKeyID,
	}
}
