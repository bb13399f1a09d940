package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
	cryptoService "github.com/allisson/credstore/internal/crypto/service"
	"github.com/allisson/credstore/internal/database"
	"github.com/allisson/credstore/internal/errors"
)

// kekUseCase implements KekUseCase.
//
// Every state change is persisted first and applied to the keyring only after the
// transaction commits, so a failed rotation never leaves an uncommitted KEK wrapping data.
type kekUseCase struct {
	txManager      database.TxManager
	kekRepo        KekRepository
	blobRepo       WrappedBlobRepository
	keyManager     cryptoService.KeyManager
	masterKeyChain *cryptoDomain.MasterKeyChain
	keyring        *cryptoDomain.Keyring
}

func (k *kekUseCase) activeMasterKey() (*cryptoDomain.MasterKey, error) {
	masterKey, ok := k.masterKeyChain.Active()
	if !ok {
		return nil, cryptoDomain.ErrMasterKeyNotFound
	}
	return masterKey, nil
}

// Load decrypts every stored KEK into the keyring. It is safe to call repeatedly:
// known KEKs only have their status refreshed and KEKs that disappeared from storage
// (revoked elsewhere) are wiped.
func (k *kekUseCase) Load(ctx context.Context) error {
	keks, err := k.kekRepo.List(ctx)
	if err != nil {
		return err
	}

	seen := make(map[uuid.UUID]struct{}, len(keks))
	for _, kek := range keks {
		seen[kek.ID] = struct{}{}
		if _, ok := k.keyring.Get(kek.ID); ok {
			k.keyring.SetStatus(kek.ID, kek.Status)
			continue
		}

		masterKey, ok := k.masterKeyChain.Get(kek.MasterKeyID)
		if !ok {
			return fmt.Errorf("%w: %s", cryptoDomain.ErrMasterKeyNotFound, kek.MasterKeyID)
		}
		key, err := k.keyManager.DecryptKek(kek, masterKey)
		if err != nil {
			return errors.Wrapf(err, "failed to decrypt kek %s", kek.ID)
		}
		kek.Key = key
		k.keyring.Put(kek)
	}

	for _, id := range k.keyring.IDs() {
		if _, ok := seen[id]; !ok {
			k.keyring.Revoke(id)
		}
	}
	return nil
}

// Create creates version 1 of scope's KEK. Fails with ErrKekAlreadyExists when the
// scope already has an active KEK.
func (k *kekUseCase) Create(
	ctx context.Context,
	scope string,
	alg cryptoDomain.Algorithm,
) (*cryptoDomain.Kek, error) {
	return k.rotate(ctx, scope, alg, false)
}

// Rotate creates a new active KEK for scope (version = current + 1) and deprecates
// the current one in the same transaction. Blobs keep referencing the deprecated
// KEK until re-wrapped.
func (k *kekUseCase) Rotate(
	ctx context.Context,
	scope string,
	alg cryptoDomain.Algorithm,
) (*cryptoDomain.Kek, error) {
	return k.rotate(ctx, scope, alg, true)
}

func (k *kekUseCase) rotate(
	ctx context.Context,
	scope string,
	alg cryptoDomain.Algorithm,
	allowExisting bool,
) (*cryptoDomain.Kek, error) {
	if !alg.Valid() {
		return nil, cryptoDomain.ErrUnsupportedAlgorithm
	}
	masterKey, err := k.activeMasterKey()
	if err != nil {
		return nil, err
	}

	var newKek *cryptoDomain.Kek
	err = k.txManager.WithTx(ctx, func(ctx context.Context) error {
		var version uint = 1

		current, err := k.kekRepo.GetActiveForUpdate(ctx, scope)
		switch {
		case errors.Is(err, cryptoDomain.ErrKekNotFound):
		case err != nil:
			return err
		case !allowExisting:
			return cryptoDomain.ErrKekAlreadyExists
		default:
			version = current.Version + 1
			now := time.Now().UTC()
			if err := k.kekRepo.UpdateStatus(ctx, current.ID, cryptoDomain.KekDeprecated, &now); err != nil {
				return err
			}
		}

		kek, err := k.keyManager.CreateKek(masterKey, alg, scope, version)
		if err != nil {
			return err
		}
		newKek = kek
		return k.kekRepo.Create(ctx, kek)
	})
	if err != nil {
		if newKek != nil {
			cryptoDomain.Zero(newKek.Key)
		}
		return nil, err
	}

	k.keyring.Put(newKek)
	return newKek, nil
}

// Revoke revokes a deprecated KEK. Active KEKs and KEKs still referenced by at
// least one blob are refused with ErrConflict. Revoking twice is a no-op.
func (k *kekUseCase) Revoke(ctx context.Context, id uuid.UUID) error {
	kek, err := k.kekRepo.Get(ctx, id)
	if err != nil {
		return err
	}

	switch kek.Status {
	case cryptoDomain.KekRevoked:
		k.keyring.Revoke(id)
		return nil
	case cryptoDomain.KekActive:
		return cryptoDomain.ErrKekNotDeprecated
	}

	count, err := k.blobRepo.CountByKek(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %d blobs", cryptoDomain.ErrKekInUse, count)
	}

	if err := k.kekRepo.UpdateStatus(ctx, id, cryptoDomain.KekRevoked, nil); err != nil {
		return err
	}
	k.keyring.Revoke(id)
	return nil
}

// NewKekUseCase creates a new KEK use case. keyring is shared with the crypto engine.
func NewKekUseCase(
	txManager database.TxManager,
	kekRepo KekRepository,
	blobRepo WrappedBlobRepository,
	keyManager cryptoService.KeyManager,
	masterKeyChain *cryptoDomain.MasterKeyChain,
	keyring *cryptoDomain.Keyring,
) KekUseCase {
	return &kekUseCase{
		txManager:      txManager,
		kekRepo:        kekRepo,
		blobRepo:       blobRepo,
		keyManager:     keyManager,
		masterKeyChain: masterKeyChain,
		keyring:        keyring,
	}
}
