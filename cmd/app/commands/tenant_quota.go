package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	quotaDomain "github.com/allisson/credstore/internal/quota/domain"
	quotaUsecase "github.com/allisson/credstore/internal/quota/usecase"
)

// TenantQuotaInput carries the flags of set-tenant-quota.
type TenantQuotaInput struct {
	TenantID           string
	MaxSecrets         int
	MaxPayloadBytes    int
	MaxVersions        int
	RequestsPerSecond  float64
	Burst              int
	AuditRetentionDays int
}

// RunSetTenantQuota stores an explicit quota for a tenant. Running servers pick it up
// when their cached limits expire.
func RunSetTenantQuota(
	ctx context.Context,
	quotaUseCase quotaUsecase.QuotaUseCase,
	logger *slog.Logger,
	writer io.Writer,
	input TenantQuotaInput,
	format string,
) error {
	if input.AuditRetentionDays < 0 {
		return fmt.Errorf("audit-retention-days must be a positive number, got: %d", input.AuditRetentionDays)
	}

	quota := &quotaDomain.TenantQuota{
		TenantID:          input.TenantID,
		MaxSecrets:        input.MaxSecrets,
		MaxPayloadBytes:   input.MaxPayloadBytes,
		MaxVersions:       input.MaxVersions,
		RequestsPerSecond: input.RequestsPerSecond,
		Burst:             input.Burst,
		AuditRetention:    time.Duration(input.AuditRetentionDays) * 24 * time.Hour,
	}
	if err := quotaUseCase.Set(ctx, quota); err != nil {
		return fmt.Errorf("failed to set tenant quota: %w", err)
	}

	logger.Info("tenant quota updated", slog.String("tenant_id", quota.TenantID))
	return outputQuota(writer, quota, -1, format)
}

// RunGetTenantQuota prints the effective limits and current usage of a tenant.
func RunGetTenantQuota(
	ctx context.Context,
	quotaUseCase quotaUsecase.QuotaUseCase,
	writer io.Writer,
	tenantID string,
	format string,
) error {
	if tenantID == "" {
		return fmt.Errorf("tenant is required")
	}

	usage, err := quotaUseCase.Usage(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to get tenant quota: %w", err)
	}

	limits := usage.Limits
	limits.TenantID = usage.TenantID
	return outputQuota(writer, &limits, usage.Secrets, format)
}

// outputQuota prints a quota. A negative secrets count is omitted.
func outputQuota(writer io.Writer, quota *quotaDomain.TenantQuota, secrets int64, format string) error {
	if format == "json" {
		record := map[string]any{
			"tenant_id":            quota.TenantID,
			"max_secrets":          quota.MaxSecrets,
			"max_payload_bytes":    quota.MaxPayloadBytes,
			"max_versions":         quota.MaxVersions,
			"requests_per_second":  quota.RequestsPerSecond,
			"burst":                quota.Burst,
			"audit_retention_days": int(quota.AuditRetention / (24 * time.Hour)),
		}
		if secrets >= 0 {
			record["secrets"] = secrets
		}
		return writeJSON(writer, record)
	}

	_, _ = fmt.Fprintf(writer, "Tenant:            %s\n", quota.TenantID)
	if secrets >= 0 {
		_, _ = fmt.Fprintf(writer, "Secrets:           %d / %d\n", secrets, quota.MaxSecrets)
	} else {
		_, _ = fmt.Fprintf(writer, "Max Secrets:       %d\n", quota.MaxSecrets)
	}
	_, _ = fmt.Fprintf(writer, "Max Payload Bytes: %d\n", quota.MaxPayloadBytes)
	_, _ = fmt.Fprintf(writer, "Max Versions:      %d\n", quota.MaxVersions)
	_, _ = fmt.Fprintf(writer, "Rate:              %.2f req/s (burst %d)\n", quota.RequestsPerSecond, quota.Burst)
	_, _ = fmt.Fprintf(writer, "Audit Retention:   %s\n", quota.AuditRetention)
	return nil
}
