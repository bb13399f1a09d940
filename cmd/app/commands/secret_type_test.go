package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/credstore/internal/errors"
	secretsDomain "github.com/allisson/credstore/internal/secrets/domain"
	secretsMocks "github.com/allisson/credstore/internal/secrets/usecase/mocks"
)

const dbSchema = `{"type":"object","required":["host"],"properties":{"host":{"type":"string"}}}`

func TestRunCreateSecretType(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("inline-schema", func(t *testing.T) {
		mockUseCase := &secretsMocks.MockSecretTypeUseCase{}
		mockUseCase.On("Create", ctx, mock.MatchedBy(func(st *secretsDomain.SecretType) bool {
			return st.ID == "db-credentials" &&
				st.ParameterSchema == dbSchema &&
				st.VersioningEnabled &&
				st.MaxVersions == 5 &&
				st.RetentionPeriod == 30*24*time.Hour
		})).Return(&secretsDomain.SecretType{
			ID:                "db-credentials",
			Name:              "Database credentials",
			VersioningEnabled: true,
			MaxVersions:       5,
			RetentionPeriod:   30 * 24 * time.Hour,
		}, nil)

		var out bytes.Buffer
		err := RunCreateSecretType(ctx, mockUseCase, logger, &out, SecretTypeInput{
			ID:            "db-credentials",
			Name:          "Database credentials",
			Schema:        dbSchema,
			Versioning:    true,
			MaxVersions:   5,
			RetentionDays: 30,
		}, "text")
		require.NoError(t, err)
		require.Contains(t, out.String(), "Secret Type:         db-credentials")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("schema-from-file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "schema.json")
		require.NoError(t, os.WriteFile(path, []byte(dbSchema), 0o600))

		mockUseCase := &secretsMocks.MockSecretTypeUseCase{}
		mockUseCase.On("Create", ctx, mock.MatchedBy(func(st *secretsDomain.SecretType) bool {
			return st.ParameterSchema == dbSchema
		})).Return(&secretsDomain.SecretType{ID: "db-credentials", ParameterSchema: dbSchema}, nil)

		var out bytes.Buffer
		err := RunCreateSecretType(ctx, mockUseCase, logger, &out, SecretTypeInput{
			ID:     "db-credentials",
			Schema: "@" + path,
		}, "json")
		require.NoError(t, err)
		require.Contains(t, out.String(), `"id": "db-credentials"`)
		mockUseCase.AssertExpectations(t)
	})

	t.Run("missing-schema-file", func(t *testing.T) {
		err := RunCreateSecretType(ctx, &secretsMocks.MockSecretTypeUseCase{}, logger, &bytes.Buffer{},
			SecretTypeInput{ID: "x", Schema: "@/does/not/exist.json"}, "text")
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to read schema file")
	})

	t.Run("duplicate", func(t *testing.T) {
		mockUseCase := &secretsMocks.MockSecretTypeUseCase{}
		mockUseCase.On("Create", ctx, mock.Anything).Return(nil, apperrors.ErrConflict)

		err := RunCreateSecretType(ctx, mockUseCase, logger, &bytes.Buffer{},
			SecretTypeInput{ID: "password"}, "text")
		require.ErrorIs(t, err, apperrors.ErrConflict)
	})
}

func TestRunUpdateSecretType(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("success", func(t *testing.T) {
		mockUseCase := &secretsMocks.MockSecretTypeUseCase{}
		mockUseCase.On("Update", ctx, mock.MatchedBy(func(st *secretsDomain.SecretType) bool {
			return st.ID == "password" && st.EncryptionRequired
		})).Return(&secretsDomain.SecretType{ID: "password", EncryptionRequired: true}, nil)

		var out bytes.Buffer
		err := RunUpdateSecretType(ctx, mockUseCase, logger, &out,
			SecretTypeInput{ID: "password", EncryptionRequired: true}, "text")
		require.NoError(t, err)
		require.Contains(t, out.String(), "Encryption Required: true")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("not-found", func(t *testing.T) {
		mockUseCase := &secretsMocks.MockSecretTypeUseCase{}
		mockUseCase.On("Update", ctx, mock.Anything).Return(nil, apperrors.ErrNotFound)

		err := RunUpdateSecretType(ctx, mockUseCase, logger, &bytes.Buffer{},
			SecretTypeInput{ID: "missing"}, "text")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("negative-retention", func(t *testing.T) {
		err := RunUpdateSecretType(ctx, &secretsMocks.MockSecretTypeUseCase{}, logger, &bytes.Buffer{},
			SecretTypeInput{ID: "password", RetentionDays: -1}, "text")
		require.Error(t, err)
		require.Contains(t, err.Error(), "retention-days")
	})
}

func TestRunListSecretTypes(t *testing.T) {
	ctx := context.Background()
	mockUseCase := &secretsMocks.MockSecretTypeUseCase{}
	mockUseCase.On("List", ctx, 0, 50).Return([]*secretsDomain.SecretType{
		{ID: "api-key"},
		{ID: "password", VersioningEnabled: true},
	}, nil)

	var out bytes.Buffer
	err := RunListSecretTypes(ctx, mockUseCase, &out, 0, 50, "text")
	require.NoError(t, err)
	require.Contains(t, out.String(), "api-key")
	require.Contains(t, out.String(), "versioning=true")
	mockUseCase.AssertExpectations(t)
}
