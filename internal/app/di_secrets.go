package app

import (
	"fmt"
	"time"

	secretsMySQL "github.com/allisson/credstore/internal/secrets/repository/mysql"
	secretsPostgreSQL "github.com/allisson/credstore/internal/secrets/repository/postgresql"
	secretsUsecase "github.com/allisson/credstore/internal/secrets/usecase"
)

// writeTimeoutSlack covers the bookkeeping transaction that follows the backend write.
const writeTimeoutSlack = 5 * time.Second

// SecretTypeRepository returns the secret type repository.
func (c *Container) SecretTypeRepository() (secretsUsecase.SecretTypeRepository, error) {
	err := c.lazy(&c.secretTypeRepositoryInit, "secretTypeRepository", func() error {
		db, err := c.DB()
		if err != nil {
			return fmt.Errorf("failed to get database for secret type repository: %w", err)
		}
		switch c.config.DBDriver {
		case "postgres":
			c.secretTypeRepository = secretsPostgreSQL.NewPostgreSQLSecretTypeRepository(db)
		case "mysql":
			c.secretTypeRepository = secretsMySQL.NewMySQLSecretTypeRepository(db)
		default:
			return c.unsupportedDriver()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.secretTypeRepository, nil
}

// SecretRepository returns the secret record repository.
func (c *Container) SecretRepository() (secretsUsecase.SecretRepository, error) {
	err := c.lazy(&c.secretRepositoryInit, "secretRepository", func() error {
		db, err := c.DB()
		if err != nil {
			return fmt.Errorf("failed to get database for secret repository: %w", err)
		}
		switch c.config.DBDriver {
		case "postgres":
			c.secretRepository = secretsPostgreSQL.NewPostgreSQLSecretRepository(db)
		case "mysql":
			c.secretRepository = secretsMySQL.NewMySQLSecretRepository(db)
		default:
			return c.unsupportedDriver()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.secretRepository, nil
}

// VersionManager returns the version manager writing through the backend dispatcher.
func (c *Container) VersionManager() (secretsUsecase.VersionManager, error) {
	err := c.lazy(&c.versionManagerInit, "versionManager", func() error {
		txManager, err := c.TxManager()
		if err != nil {
			return fmt.Errorf("failed to get tx manager for version manager: %w", err)
		}
		secretRepository, err := c.SecretRepository()
		if err != nil {
			return fmt.Errorf("failed to get secret repository for version manager: %w", err)
		}
		dispatcher, err := c.Backend()
		if err != nil {
			return fmt.Errorf("failed to get backend for version manager: %w", err)
		}
		c.versionManager = secretsUsecase.NewVersionManager(
			txManager,
			secretRepository,
			dispatcher,
			c.retryPolicy().MaxDuration()+writeTimeoutSlack,
			c.Logger(),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.versionManager, nil
}

// SecretUseCase returns the gateway secret service, decorated with metrics when enabled.
func (c *Container) SecretUseCase() (secretsUsecase.SecretUseCase, error) {
	err := c.lazy(&c.secretUseCaseInit, "secretUseCase", func() error {
		var err error
		c.secretUseCase, err = c.initSecretUseCase()
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.secretUseCase, nil
}

// SecretTypeUseCase returns the secret type use case.
func (c *Container) SecretTypeUseCase() (secretsUsecase.SecretTypeUseCase, error) {
	err := c.lazy(&c.secretTypeUseCaseInit, "secretTypeUseCase", func() error {
		secretTypeRepository, err := c.SecretTypeRepository()
		if err != nil {
			return fmt.Errorf("failed to get secret type repository for secret type use case: %w", err)
		}
		c.secretTypeUseCase = secretsUsecase.NewSecretTypeUseCase(secretTypeRepository)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.secretTypeUseCase, nil
}

// initSecretUseCase creates the secret use case with all its dependencies.
func (c *Container) initSecretUseCase() (secretsUsecase.SecretUseCase, error) {
	secretTypeRepository, err := c.SecretTypeRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get secret type repository for secret use case: %w", err)
	}

	secretRepository, err := c.SecretRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get secret repository for secret use case: %w", err)
	}

	versionManager, err := c.VersionManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get version manager for secret use case: %w", err)
	}

	quotaUseCase, err := c.QuotaUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get quota use case for secret use case: %w", err)
	}

	auditUseCase, err := c.AuditUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit use case for secret use case: %w", err)
	}

	useCase := secretsUsecase.NewSecretUseCase(
		secretTypeRepository,
		secretRepository,
		versionManager,
		quotaUseCase,
		auditUseCase,
		c.Logger(),
	)

	if !c.config.MetricsEnabled {
		return useCase, nil
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for secret use case: %w", err)
	}
	return secretsUsecase.NewSecretUseCaseWithMetrics(useCase, businessMetrics), nil
}
