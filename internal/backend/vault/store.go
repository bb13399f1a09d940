// Package vault implements a backend plugin that stores secret material in a remote
// HashiCorp Vault KV version 2 mount.
package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/allisson/credstore/internal/backend"
	apperrors "github.com/allisson/credstore/internal/errors"
	"github.com/allisson/credstore/internal/tenancy"
)

const (
	fieldSecretType = "secret_type_id"
	fieldValue      = "value"
	fieldParameters = "parameters"

	// anonymousUser replaces an empty owning user in the storage path.
	anonymousUser = "_"
)

// Config configures a Store.
type Config struct {
	Address   string
	Token     string
	MountPath string
	Timeout   time.Duration
}

// Store is a backend.Plugin backed by Vault KV v2. Paths are laid out as
// <tenant>/<user>/<secret id> below the mount.
type Store struct {
	kv *vaultapi.KVv2
}

// NewStore creates a Store. Retries are disabled on the Vault client; the resilience
// executor owns retry policy.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: vault address is required", apperrors.ErrInvalidInput)
	}

	clientCfg := vaultapi.DefaultConfig()
	clientCfg.Address = cfg.Address
	clientCfg.MaxRetries = 0
	if cfg.Timeout > 0 {
		clientCfg.Timeout = cfg.Timeout
	}

	client, err := vaultapi.NewClient(clientCfg)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create vault client")
	}
	client.SetToken(cfg.Token)

	mount := cfg.MountPath
	if mount == "" {
		mount = "secret"
	}
	return &Store{kv: client.KVv2(mount)}, nil
}

func storagePath(ctx context.Context, secretID string) (string, error) {
	id, err := tenancy.MustFromContext(ctx)
	if err != nil {
		return "", err
	}
	user := id.UserID
	if user == "" {
		user = anonymousUser
	}
	return url.PathEscape(id.TenantID) + "/" + url.PathEscape(user) + "/" + secretID, nil
}

// UpsertSecret writes a new KV version. The existing entry is read first so a storage
// key never changes secret type.
func (s *Store) UpsertSecret(
	ctx context.Context,
	secretID, secretTypeID string,
	value []byte,
	parameters map[string]any,
) error {
	path, err := storagePath(ctx, secretID)
	if err != nil {
		return err
	}

	existing, err := s.kv.Get(ctx, path)
	switch err := mapError(err); {
	case errors.Is(err, backend.ErrBlobNotFound):
	case err != nil:
		return err
	default:
		if typeID, _ := existing.Data[fieldSecretType].(string); typeID != secretTypeID {
			return backend.ErrTypeMismatch
		}
	}

	data := map[string]any{
		fieldSecretType: secretTypeID,
		fieldValue:      base64.StdEncoding.EncodeToString(value),
		fieldParameters: parameters,
	}
	if _, err := s.kv.Put(ctx, path, data); err != nil {
		return mapError(err)
	}
	return nil
}

// GetSecretMaterial reads the latest KV version. An entry of another secret type is
// reported as not found.
func (s *Store) GetSecretMaterial(ctx context.Context, secretID, secretTypeID string) (*backend.Material, error) {
	path, err := storagePath(ctx, secretID)
	if err != nil {
		return nil, err
	}

	secret, err := s.kv.Get(ctx, path)
	if err != nil {
		return nil, mapError(err)
	}

	typeID, _ := secret.Data[fieldSecretType].(string)
	if typeID != secretTypeID {
		return nil, backend.ErrBlobNotFound
	}

	encoded, _ := secret.Data[fieldValue].(string)
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to decode vault secret value")
	}

	material := &backend.Material{SecretTypeID: typeID, Value: value}
	if params, ok := secret.Data[fieldParameters].(map[string]any); ok {
		material.Parameters = params
	}
	if secret.VersionMetadata != nil {
		material.UpdatedAt = secret.VersionMetadata.CreatedTime
	}
	return material, nil
}

// EncryptsAtRest reports true: Vault encrypts KV data with its barrier key.
func (s *Store) EncryptsAtRest() bool {
	return true
}

// DeleteSecret removes every version and the metadata of the entry.
func (s *Store) DeleteSecret(ctx context.Context, secretID, secretTypeID string) error {
	if _, err := s.GetSecretMaterial(ctx, secretID, secretTypeID); err != nil {
		return err
	}

	path, err := storagePath(ctx, secretID)
	if err != nil {
		return err
	}
	if err := s.kv.DeleteMetadata(ctx, path); err != nil {
		return mapError(err)
	}
	return nil
}

// mapError translates Vault client failures into the error taxonomy. Throttling,
// server errors and transport failures are transient.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, vaultapi.ErrSecretNotFound) {
		return backend.ErrBlobNotFound
	}

	var respErr *vaultapi.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == http.StatusNotFound:
			return backend.ErrBlobNotFound
		case respErr.StatusCode == http.StatusForbidden, respErr.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: vault denied the request", apperrors.ErrPluginUnavailable)
		case respErr.StatusCode == http.StatusTooManyRequests, respErr.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: vault returned %d", apperrors.ErrUnavailable, respErr.StatusCode)
		}
		return apperrors.Wrapf(err, "vault returned %d", respErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", apperrors.ErrUnavailable, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return apperrors.Wrap(err, "vault request failed")
}

var _ backend.Plugin = (*Store)(nil)
