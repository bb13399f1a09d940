package commands

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/awnumar/memguard"

	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
)

// RunCreateMasterKey generates a 32-byte master key, encrypts it with the KMS key at
// kmsKeyURI and prints the environment variables that load it. If keyID is empty a
// default ID in format "master-key-YYYY-MM-DD" is used.
//
// For local development, use kmsProvider="localsecrets" with kmsKeyURI="base64key://...".
func RunCreateMasterKey(
	ctx context.Context,
	kmsService cryptoDomain.KMSService,
	logger *slog.Logger,
	writer io.Writer,
	keyID, kmsProvider, kmsKeyURI string,
) error {
	if kmsProvider == "" || kmsKeyURI == "" {
		return fmt.Errorf(
			"--kms-provider and --kms-key-uri are required\n\nFor local development, use:\n  --kms-provider=localsecrets --kms-key-uri=\"base64key://<32-byte-base64-key>\"",
		)
	}

	if keyID == "" {
		keyID = fmt.Sprintf("master-key-%s", time.Now().Format("2006-01-02"))
	}

	encodedKey, err := generateEncryptedMasterKey(ctx, kmsService, kmsKeyURI)
	if err != nil {
		return err
	}

	logger.Info("master key generated",
		slog.String("master_key_id", keyID),
		slog.String("kms_provider", kmsProvider),
	)

	_, _ = fmt.Fprintln(writer, "# Master Key Configuration")
	_, _ = fmt.Fprintln(writer, "# Copy these environment variables to your .env file or secrets manager")
	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintf(writer, "KMS_PROVIDER=\"%s\"\n", kmsProvider)
	_, _ = fmt.Fprintf(writer, "KMS_KEY_URI=\"%s\"\n", kmsKeyURI)
	_, _ = fmt.Fprintf(writer, "MASTER_KEYS=\"%s:%s\"\n", keyID, encodedKey)
	_, _ = fmt.Fprintf(writer, "ACTIVE_MASTER_KEY_ID=\"%s\"\n", keyID)

	return nil
}

// generateEncryptedMasterKey returns a fresh master key encrypted by KMS, base64 encoded.
// The plaintext never leaves a locked buffer.
func generateEncryptedMasterKey(
	ctx context.Context,
	kmsService cryptoDomain.KMSService,
	kmsKeyURI string,
) (string, error) {
	masterKey := memguard.NewBuffer(32)
	defer masterKey.Destroy()
	if _, err := rand.Read(masterKey.Bytes()); err != nil {
		return "", fmt.Errorf("failed to generate master key: %w", err)
	}

	keeper, err := kmsService.OpenKeeper(ctx, kmsKeyURI)
	if err != nil {
		return "", fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	defer func() {
		_ = keeper.Close()
	}()

	ciphertext, err := keeper.Encrypt(ctx, masterKey.Bytes())
	if err != nil {
		return "", fmt.Errorf("failed to encrypt master key with KMS: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}
