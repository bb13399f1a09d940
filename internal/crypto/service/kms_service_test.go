package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/secrets"

	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
)

// generateLocalSecretsURI generates a base64key:// URI for testing.
func generateLocalSecretsURI(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return "base64key://" + base64.URLEncoding.EncodeToString(key)
}

func TestKMSService_OpenKeeper(t *testing.T) {
	ctx := context.Background()
	kmsService := NewKMSService()

	t.Run("Success_LocalSecrets", func(t *testing.T) {
		keeper, err := kmsService.OpenKeeper(ctx, generateLocalSecretsURI(t))
		require.NoError(t, err)
		defer func() {
			assert.NoError(t, keeper.Close())
		}()

		_, ok := keeper.(*secrets.Keeper)
		assert.True(t, ok, "keeper should be *secrets.Keeper")
	})

	t.Run("Error_InvalidURI", func(t *testing.T) {
		keeper, err := kmsService.OpenKeeper(ctx, "invalid://uri")
		assert.Error(t, err)
		assert.Nil(t, keeper)
		assert.Contains(t, err.Error(), "failed to open KMS keeper")
	})
}

func TestKMSService_LoadMasterKeyChain(t *testing.T) {
	ctx := context.Background()
	kmsService := NewKMSService()
	keyURI := generateLocalSecretsURI(t)

	keeper, err := kmsService.OpenKeeper(ctx, keyURI)
	require.NoError(t, err)

	masterKey := make([]byte, 32)
	_, err = rand.Read(masterKey)
	require.NoError(t, err)
	expected := append([]byte(nil), masterKey...)

	ciphertext, err := keeper.Encrypt(ctx, masterKey)
	require.NoError(t, err)
	require.NoError(t, keeper.Close())

	raw := "prod-key:" + base64.StdEncoding.EncodeToString(ciphertext)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mkc, err := cryptoDomain.LoadMasterKeyChain(ctx, raw, "prod-key", keyURI, kmsService, logger)
	require.NoError(t, err)
	defer mkc.Close()

	active, ok := mkc.Active()
	require.True(t, ok)
	buf, err := active.Open()
	require.NoError(t, err)
	defer buf.Destroy()
	assert.Equal(t, expected, buf.Bytes())

	t.Run("wrong kms key fails", func(t *testing.T) {
		_, err := cryptoDomain.LoadMasterKeyChain(
			ctx, raw, "prod-key", generateLocalSecretsURI(t), kmsService, logger,
		)
		assert.Error(t, err)
	})
}
