package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
	cryptoMocks "github.com/allisson/credstore/internal/crypto/usecase/mocks"
	cryptoService "github.com/allisson/credstore/internal/crypto/service"
	databaseMocks "github.com/allisson/credstore/internal/database/mocks"
	apperrors "github.com/allisson/credstore/internal/errors"
)

type kekFixture struct {
	txManager *databaseMocks.MockTxManager
	kekRepo   *cryptoMocks.MockKekRepository
	blobRepo  *cryptoMocks.MockWrappedBlobRepository
	keyMgr    *cryptoService.KeyManagerService
	chain     *cryptoDomain.MasterKeyChain
	keyring   *cryptoDomain.Keyring
	useCase   KekUseCase
}

func newKekFixture(t *testing.T) *kekFixture {
	t.Helper()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	masterKey, err := cryptoDomain.NewMasterKey("mk1", key)
	require.NoError(t, err)
	chain, err := cryptoDomain.NewMasterKeyChain("mk1", masterKey)
	require.NoError(t, err)
	t.Cleanup(chain.Close)

	f := &kekFixture{
		txManager: &databaseMocks.MockTxManager{},
		kekRepo:   &cryptoMocks.MockKekRepository{},
		blobRepo:  &cryptoMocks.MockWrappedBlobRepository{},
		keyMgr:    cryptoService.NewKeyManager(cryptoService.NewAEADManager()),
		chain:     chain,
		keyring:   cryptoDomain.NewKeyring(nil),
	}
	f.useCase = NewKekUseCase(f.txManager, f.kekRepo, f.blobRepo, f.keyMgr, f.chain, f.keyring)
	return f
}

func (f *kekFixture) storedKek(t *testing.T, scope string, version uint, status cryptoDomain.KekStatus) *cryptoDomain.Kek {
	t.Helper()
	masterKey, _ := f.chain.Active()
	kek, err := f.keyMgr.CreateKek(masterKey, cryptoDomain.AESGCM, scope, version)
	require.NoError(t, err)
	kek.Status = status
	kek.Key = nil
	return kek
}

func TestKekUseCase_Rotate(t *testing.T) {
	ctx := context.Background()

	t.Run("first kek of scope", func(t *testing.T) {
		f := newKekFixture(t)
		f.txManager.On("WithTx", ctx, mock.Anything).Return(nil)
		f.kekRepo.On("GetActiveForUpdate", ctx, "tenant-a").Return(nil, cryptoDomain.ErrKekNotFound)
		f.kekRepo.On("Create", ctx, mock.AnythingOfType("*domain.Kek")).Return(nil)

		kek, err := f.useCase.Rotate(ctx, "tenant-a", cryptoDomain.ChaCha20)
		require.NoError(t, err)
		assert.Equal(t, uint(1), kek.Version)
		assert.Equal(t, "tenant-a", kek.Scope)
		assert.Equal(t, cryptoDomain.KekActive, kek.Status)

		active, ok := f.keyring.Active("tenant-a")
		require.True(t, ok)
		assert.Equal(t, kek.ID, active.ID)
		f.kekRepo.AssertExpectations(t)
	})

	t.Run("deprecates current kek", func(t *testing.T) {
		f := newKekFixture(t)
		current := f.storedKek(t, "", 4, cryptoDomain.KekActive)
		f.txManager.On("WithTx", ctx, mock.Anything).Return(nil)
		f.kekRepo.On("GetActiveForUpdate", ctx, "").Return(current, nil)
		f.kekRepo.On("UpdateStatus", ctx, current.ID, cryptoDomain.KekDeprecated, mock.AnythingOfType("*time.Time")).
			Return(nil)
		f.kekRepo.On("Create", ctx, mock.AnythingOfType("*domain.Kek")).Return(nil)

		kek, err := f.useCase.Rotate(ctx, "", cryptoDomain.AESGCM)
		require.NoError(t, err)
		assert.Equal(t, uint(5), kek.Version)
		f.kekRepo.AssertExpectations(t)
	})

	t.Run("keyring untouched on failure", func(t *testing.T) {
		f := newKekFixture(t)
		f.txManager.On("WithTx", ctx, mock.Anything).Return(nil)
		f.kekRepo.On("GetActiveForUpdate", ctx, "").Return(nil, cryptoDomain.ErrKekNotFound)
		f.kekRepo.On("Create", ctx, mock.AnythingOfType("*domain.Kek")).Return(errors.New("db down"))

		_, err := f.useCase.Rotate(ctx, "", cryptoDomain.AESGCM)
		assert.EqualError(t, err, "db down")
		_, ok := f.keyring.Active("")
		assert.False(t, ok)
	})

	t.Run("unsupported algorithm", func(t *testing.T) {
		f := newKekFixture(t)
		_, err := f.useCase.Rotate(ctx, "", cryptoDomain.Algorithm("des"))
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestKekUseCase_Create(t *testing.T) {
	ctx := context.Background()
	f := newKekFixture(t)
	current := f.storedKek(t, "", 1, cryptoDomain.KekActive)
	f.txManager.On("WithTx", ctx, mock.Anything).Return(nil)
	f.kekRepo.On("GetActiveForUpdate", ctx, "").Return(current, nil)

	_, err := f.useCase.Create(ctx, "", cryptoDomain.AESGCM)
	assert.ErrorIs(t, err, cryptoDomain.ErrKekAlreadyExists)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	f.kekRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestKekUseCase_Revoke(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f := newKekFixture(t)
		kek := f.storedKek(t, "", 1, cryptoDomain.KekDeprecated)
		f.kekRepo.On("Get", ctx, kek.ID).Return(kek, nil)
		f.blobRepo.On("CountByKek", ctx, kek.ID).Return(int64(0), nil)
		f.kekRepo.On("UpdateStatus", ctx, kek.ID, cryptoDomain.KekRevoked, (*time.Time)(nil)).Return(nil)

		require.NoError(t, f.useCase.Revoke(ctx, kek.ID))
		f.kekRepo.AssertExpectations(t)
	})

	t.Run("active kek", func(t *testing.T) {
		f := newKekFixture(t)
		kek := f.storedKek(t, "", 1, cryptoDomain.KekActive)
		f.kekRepo.On("Get", ctx, kek.ID).Return(kek, nil)

		err := f.useCase.Revoke(ctx, kek.ID)
		assert.ErrorIs(t, err, cryptoDomain.ErrKekNotDeprecated)
	})

	t.Run("still referenced", func(t *testing.T) {
		f := newKekFixture(t)
		kek := f.storedKek(t, "", 1, cryptoDomain.KekDeprecated)
		f.kekRepo.On("Get", ctx, kek.ID).Return(kek, nil)
		f.blobRepo.On("CountByKek", ctx, kek.ID).Return(int64(3), nil)

		err := f.useCase.Revoke(ctx, kek.ID)
		assert.ErrorIs(t, err, cryptoDomain.ErrKekInUse)
		f.kekRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("already revoked", func(t *testing.T) {
		f := newKekFixture(t)
		kek := f.storedKek(t, "", 1, cryptoDomain.KekRevoked)
		f.kekRepo.On("Get", ctx, kek.ID).Return(kek, nil)

		assert.NoError(t, f.useCase.Revoke(ctx, kek.ID))
	})

	t.Run("not found", func(t *testing.T) {
		f := newKekFixture(t)
		id := uuid.Must(uuid.NewV7())
		f.kekRepo.On("Get", ctx, id).Return(nil, cryptoDomain.ErrKekNotFound)

		assert.ErrorIs(t, f.useCase.Revoke(ctx, id), cryptoDomain.ErrKekNotFound)
	})
}

func TestKekUseCase_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("decrypts and syncs", func(t *testing.T) {
		f := newKekFixture(t)
		v1 := f.storedKek(t, "", 1, cryptoDomain.KekDeprecated)
		v2 := f.storedKek(t, "", 2, cryptoDomain.KekActive)
		f.kekRepo.On("List", ctx).Return([]*cryptoDomain.Kek{v1, v2}, nil).Once()

		require.NoError(t, f.useCase.Load(ctx))
		active, ok := f.keyring.Active("")
		require.True(t, ok)
		assert.Equal(t, v2.ID, active.ID)
		assert.Len(t, active.Key, 32)

		// v1 was revoked elsewhere and v2 deprecated by a newer v3
		v2Stored := *v2
		v2Stored.Status = cryptoDomain.KekDeprecated
		v3 := f.storedKek(t, "", 3, cryptoDomain.KekActive)
		f.kekRepo.On("List", ctx).Return([]*cryptoDomain.Kek{&v2Stored, v3}, nil).Once()

		require.NoError(t, f.useCase.Load(ctx))
		_, ok = f.keyring.Get(v1.ID)
		assert.False(t, ok)
		active, ok = f.keyring.Active("")
		require.True(t, ok)
		assert.Equal(t, v3.ID, active.ID)
		old, ok := f.keyring.Get(v2.ID)
		require.True(t, ok)
		assert.Equal(t, cryptoDomain.KekDeprecated, old.Status)
	})

	t.Run("unknown master key", func(t *testing.T) {
		f := newKekFixture(t)
		kek := f.storedKek(t, "", 1, cryptoDomain.KekActive)
		kek.MasterKeyID = "gone"
		f.kekRepo.On("List", ctx).Return([]*cryptoDomain.Kek{kek}, nil)

		err := f.useCase.Load(ctx)
		assert.ErrorIs(t, err, apperrors.ErrKekUnavailable)
	})
}
