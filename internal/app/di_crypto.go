package app

import (
	"context"
	"fmt"

	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
	cryptoMySQL "github.com/allisson/credstore/internal/crypto/repository/mysql"
	cryptoPostgreSQL "github.com/allisson/credstore/internal/crypto/repository/postgresql"
	cryptoService "github.com/allisson/credstore/internal/crypto/service"
	cryptoUsecase "github.com/allisson/credstore/internal/crypto/usecase"
)

// MasterKeyChain returns the master key chain loaded from environment variables.
func (c *Container) MasterKeyChain() (*cryptoDomain.MasterKeyChain, error) {
	err := c.lazy(&c.masterKeyChainInit, "masterKeyChain", func() error {
		var err error
		c.masterKeyChain, err = c.initMasterKeyChain()
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.masterKeyChain, nil
}

// Keyring returns the in-memory KEK keyring shared by the engine and the KEK use case.
// It starts empty; KekUseCase.Load fills it.
func (c *Container) Keyring() *cryptoDomain.Keyring {
	c.keyringInit.Do(func() {
		c.keyring = cryptoDomain.NewKeyring(nil)
	})
	return c.keyring
}

// AEADManager returns the AEAD manager service.
func (c *Container) AEADManager() cryptoService.AEADManager {
	c.aeadManagerInit.Do(func() {
		c.aeadManager = cryptoService.NewAEADManager()
	})
	return c.aeadManager
}

// KeyManager returns the key manager service.
func (c *Container) KeyManager() cryptoService.KeyManager {
	c.keyManagerInit.Do(func() {
		c.keyManager = cryptoService.NewKeyManager(c.AEADManager())
	})
	return c.keyManager
}

// KMSService returns the KMS service used to decrypt master keys.
func (c *Container) KMSService() cryptoDomain.KMSService {
	c.kmsServiceInit.Do(func() {
		c.kmsService = cryptoService.NewKMSService()
	})
	return c.kmsService
}

// Engine returns the envelope encryption engine.
func (c *Container) Engine() (*cryptoService.Engine, error) {
	err := c.lazy(&c.engineInit, "engine", func() error {
		engine, err := cryptoService.NewEngine(
			c.Keyring(),
			c.KeyManager(),
			c.AEADManager(),
			cryptoDomain.Algorithm(c.config.DataAlgorithm),
		)
		if err != nil {
			return fmt.Errorf("failed to create crypto engine: %w", err)
		}
		c.engine = engine
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.engine, nil
}

// KekRepository returns the KEK repository.
func (c *Container) KekRepository() (cryptoUsecase.KekRepository, error) {
	err := c.lazy(&c.kekRepositoryInit, "kekRepository", func() error {
		db, err := c.DB()
		if err != nil {
			return fmt.Errorf("failed to get database for kek repository: %w", err)
		}
		switch c.config.DBDriver {
		case "postgres":
			c.kekRepository = cryptoPostgreSQL.NewPostgreSQLKekRepository(db)
		case "mysql":
			c.kekRepository = cryptoMySQL.NewMySQLKekRepository(db)
		default:
			return c.unsupportedDriver()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.kekRepository, nil
}

// KekUseCase returns the KEK use case.
func (c *Container) KekUseCase() (cryptoUsecase.KekUseCase, error) {
	err := c.lazy(&c.kekUseCaseInit, "kekUseCase", func() error {
		var err error
		c.kekUseCase, err = c.initKekUseCase()
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.kekUseCase, nil
}

// RewrapUseCase returns the blob re-wrap use case.
func (c *Container) RewrapUseCase() (cryptoUsecase.RewrapUseCase, error) {
	err := c.lazy(&c.rewrapUseCaseInit, "rewrapUseCase", func() error {
		blobRepository, err := c.BlobRepository()
		if err != nil {
			return fmt.Errorf("failed to get blob repository for rewrap use case: %w", err)
		}
		engine, err := c.Engine()
		if err != nil {
			return fmt.Errorf("failed to get engine for rewrap use case: %w", err)
		}
		c.rewrapUseCase = cryptoUsecase.NewRewrapUseCase(blobRepository, engine, c.Keyring())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.rewrapUseCase, nil
}

// LoadKeyring decrypts every stored KEK into the keyring.
func (c *Container) LoadKeyring(ctx context.Context) error {
	kekUseCase, err := c.KekUseCase()
	if err != nil {
		return err
	}
	if err := kekUseCase.Load(ctx); err != nil {
		return fmt.Errorf("failed to load keks: %w", err)
	}
	return nil
}

// initMasterKeyChain loads the master key chain from environment variables.
func (c *Container) initMasterKeyChain() (*cryptoDomain.MasterKeyChain, error) {
	masterKeyChain, err := cryptoDomain.LoadMasterKeyChain(
		context.Background(),
		c.config.MasterKeys,
		c.config.ActiveMasterKeyID,
		c.config.KMSKeyURI,
		c.KMSService(),
		c.Logger(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load master key chain: %w", err)
	}
	return masterKeyChain, nil
}

// initKekUseCase creates the KEK use case with all its dependencies.
func (c *Container) initKekUseCase() (cryptoUsecase.KekUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for kek use case: %w", err)
	}

	kekRepository, err := c.KekRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get kek repository for kek use case: %w", err)
	}

	blobRepository, err := c.BlobRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get blob repository for kek use case: %w", err)
	}

	masterKeyChain, err := c.MasterKeyChain()
	if err != nil {
		return nil, fmt.Errorf("failed to get master key chain for kek use case: %w", err)
	}

	return cryptoUsecase.NewKekUseCase(
		txManager,
		kekRepository,
		blobRepository,
		c.KeyManager(),
		masterKeyChain,
		c.Keyring(),
	), nil
}
