package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/credstore/internal/errors"
	quotaDomain "github.com/allisson/credstore/internal/quota/domain"
	quotaMocks "github.com/allisson/credstore/internal/quota/usecase/mocks"
)

func TestRunSetTenantQuota(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("success", func(t *testing.T) {
		mockUseCase := &quotaMocks.MockQuotaUseCase{}
		mockUseCase.On("Set", ctx, mock.MatchedBy(func(q *quotaDomain.TenantQuota) bool {
			return q.TenantID == "tenant-a" &&
				q.MaxSecrets == 200 &&
				q.Burst == 20 &&
				q.AuditRetention == 7*24*time.Hour
		})).Return(nil)

		var out bytes.Buffer
		err := RunSetTenantQuota(ctx, mockUseCase, logger, &out, TenantQuotaInput{
			TenantID:           "tenant-a",
			MaxSecrets:         200,
			MaxPayloadBytes:    4096,
			MaxVersions:        5,
			RequestsPerSecond:  10,
			Burst:              20,
			AuditRetentionDays: 7,
		}, "json")
		require.NoError(t, err)
		require.Contains(t, out.String(), `"max_secrets": 200`)
		require.Contains(t, out.String(), `"audit_retention_days": 7`)
		require.NotContains(t, out.String(), `"secrets"`)
		mockUseCase.AssertExpectations(t)
	})

	t.Run("validation-error", func(t *testing.T) {
		mockUseCase := &quotaMocks.MockQuotaUseCase{}
		mockUseCase.On("Set", ctx, mock.Anything).Return(apperrors.ErrInvalidInput)

		err := RunSetTenantQuota(ctx, mockUseCase, logger, &bytes.Buffer{}, TenantQuotaInput{}, "text")
		require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("negative-retention", func(t *testing.T) {
		err := RunSetTenantQuota(ctx, &quotaMocks.MockQuotaUseCase{}, logger, &bytes.Buffer{},
			TenantQuotaInput{TenantID: "tenant-a", AuditRetentionDays: -1}, "text")
		require.Error(t, err)
		require.Contains(t, err.Error(), "audit-retention-days")
	})
}

func TestRunGetTenantQuota(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		mockUseCase := &quotaMocks.MockQuotaUseCase{}
		mockUseCase.On("Usage", ctx, "tenant-a").Return(&quotaDomain.Usage{
			TenantID: "tenant-a",
			Secrets:  12,
			Limits:   quotaDomain.TenantQuota{MaxSecrets: 100, Burst: 10, RequestsPerSecond: 5},
		}, nil)

		var out bytes.Buffer
		err := RunGetTenantQuota(ctx, mockUseCase, &out, "tenant-a", "text")
		require.NoError(t, err)
		require.Contains(t, out.String(), "Tenant:            tenant-a")
		require.Contains(t, out.String(), "Secrets:           12 / 100")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("missing-tenant", func(t *testing.T) {
		err := RunGetTenantQuota(ctx, &quotaMocks.MockQuotaUseCase{}, &bytes.Buffer{}, "", "text")
		require.Error(t, err)
	})
}
