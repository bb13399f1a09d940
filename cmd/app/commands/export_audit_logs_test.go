package commands

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/credstore/internal/audit/domain"
	auditMocks "github.com/allisson/credstore/internal/audit/usecase/mocks"
)

func newExportEntries(n int) []*auditDomain.Entry {
	entries := make([]*auditDomain.Entry, n)
	for i := range entries {
		entries[i] = &auditDomain.Entry{
			ID:        uuid.Must(uuid.NewV7()),
			TenantID:  "tenant-a",
			ActorID:   "svc-a",
			Operation: auditDomain.OperationGetSecret,
			SecretID:  "db/main",
			Outcome:   auditDomain.OutcomeSuccess,
			CreatedAt: time.Date(2025, 1, 1, 12, 0, i, 0, time.UTC),
		}
	}
	return entries
}

func TestRunExportAuditLogs(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("pages-until-short-page", func(t *testing.T) {
		mockUseCase := &auditMocks.MockAuditUseCase{}
		mockUseCase.On("Query", ctx, "tenant-a", mock.Anything, 0, exportPageSize).
			Return(newExportEntries(exportPageSize), nil).Once()
		mockUseCase.On("Query", ctx, "tenant-a", mock.Anything, exportPageSize, exportPageSize).
			Return(newExportEntries(3), nil).Once()

		var out bytes.Buffer
		err := RunExportAuditLogs(ctx, mockUseCase, logger, &out, "tenant-a", "", "", "", "json")
		require.NoError(t, err)

		lines := 0
		scanner := bufio.NewScanner(&out)
		for scanner.Scan() {
			var record map[string]any
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
			require.Equal(t, "tenant-a", record["tenant_id"])
			lines++
		}
		require.Equal(t, exportPageSize+3, lines)
		mockUseCase.AssertExpectations(t)
	})

	t.Run("filter-from-flags", func(t *testing.T) {
		mockUseCase := &auditMocks.MockAuditUseCase{}
		mockUseCase.On("Query", ctx, "tenant-a", mock.MatchedBy(func(f auditDomain.Filter) bool {
			return f.Operation == auditDomain.OperationDeleteSecret &&
				f.From != nil && f.From.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) &&
				f.To != nil && f.To.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
		}), 0, exportPageSize).Return(newExportEntries(1), nil)

		var out bytes.Buffer
		err := RunExportAuditLogs(ctx, mockUseCase, logger, &out,
			"tenant-a", "2025-01-01", "2025-02-01", "delete_secret", "text")
		require.NoError(t, err)
		require.Contains(t, out.String(), "get_secret")
		require.Contains(t, out.String(), "actor=svc-a")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("missing-tenant", func(t *testing.T) {
		err := RunExportAuditLogs(ctx, nil, logger, &bytes.Buffer{}, "", "", "", "", "json")
		require.Error(t, err)
		require.Contains(t, err.Error(), "tenant is required")
	})

	t.Run("invalid-range", func(t *testing.T) {
		err := RunExportAuditLogs(ctx, nil, logger, &bytes.Buffer{},
			"tenant-a", "2025-02-01", "2025-01-01", "", "json")
		require.Error(t, err)
		require.Contains(t, err.Error(), "end date must be after start date")
	})

	t.Run("query-error", func(t *testing.T) {
		mockUseCase := &auditMocks.MockAuditUseCase{}
		mockUseCase.On("Query", ctx, "tenant-a", mock.Anything, 0, exportPageSize).
			Return(nil, errors.New("db down"))

		err := RunExportAuditLogs(ctx, mockUseCase, logger, &bytes.Buffer{}, "tenant-a", "", "", "", "json")
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to export audit logs")
	})
}
