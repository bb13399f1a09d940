package app

import (
	"fmt"

	quotaDomain "github.com/allisson/credstore/internal/quota/domain"
	quotaMySQL "github.com/allisson/credstore/internal/quota/repository/mysql"
	quotaPostgreSQL "github.com/allisson/credstore/internal/quota/repository/postgresql"
	quotaUsecase "github.com/allisson/credstore/internal/quota/usecase"
)

// QuotaRepository returns the tenant quota repository.
func (c *Container) QuotaRepository() (quotaUsecase.QuotaRepository, error) {
	err := c.lazy(&c.quotaRepositoryInit, "quotaRepository", func() error {
		db, err := c.DB()
		if err != nil {
			return fmt.Errorf("failed to get database for quota repository: %w", err)
		}
		switch c.config.DBDriver {
		case "postgres":
			c.quotaRepository = quotaPostgreSQL.NewPostgreSQLQuotaRepository(db)
		case "mysql":
			c.quotaRepository = quotaMySQL.NewMySQLQuotaRepository(db)
		default:
			return c.unsupportedDriver()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.quotaRepository, nil
}

// QuotaUseCase returns the quota and rate limit use case.
func (c *Container) QuotaUseCase() (quotaUsecase.QuotaUseCase, error) {
	err := c.lazy(&c.quotaUseCaseInit, "quotaUseCase", func() error {
		quotaRepository, err := c.QuotaRepository()
		if err != nil {
			return fmt.Errorf("failed to get quota repository for quota use case: %w", err)
		}
		secretRepository, err := c.SecretRepository()
		if err != nil {
			return fmt.Errorf("failed to get secret repository for quota use case: %w", err)
		}
		c.quotaUseCase = quotaUsecase.NewQuotaUseCase(
			quotaRepository,
			secretRepository,
			c.defaultQuota(),
			c.Logger(),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.quotaUseCase, nil
}

// defaultQuota applies to tenants without an explicit quota row.
func (c *Container) defaultQuota() quotaDomain.TenantQuota {
	return quotaDomain.TenantQuota{
		MaxSecrets:        c.config.QuotaMaxSecrets,
		MaxPayloadBytes:   c.config.QuotaMaxPayloadBytes,
		MaxVersions:       c.config.QuotaMaxVersions,
		RequestsPerSecond: c.config.QuotaRequestsPerSec,
		Burst:             c.config.QuotaBurst,
		AuditRetention:    c.config.AuditRetention,
	}
}
