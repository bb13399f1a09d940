package app

import (
	"fmt"

	auditMySQL "github.com/allisson/credstore/internal/audit/repository/mysql"
	auditPostgreSQL "github.com/allisson/credstore/internal/audit/repository/postgresql"
	auditService "github.com/allisson/credstore/internal/audit/service"
	auditUsecase "github.com/allisson/credstore/internal/audit/usecase"
)

// auditRepository is the single table behind every audit use case port.
type auditRepository interface {
	auditUsecase.Writer
	auditUsecase.Reader
	auditUsecase.Archiver
}

// AuditRepository returns the audit log repository.
func (c *Container) AuditRepository() (auditRepository, error) {
	err := c.lazy(&c.auditRepositoryInit, "auditRepository", func() error {
		db, err := c.DB()
		if err != nil {
			return fmt.Errorf("failed to get database for audit repository: %w", err)
		}
		switch c.config.DBDriver {
		case "postgres":
			c.auditRepository = auditPostgreSQL.NewPostgreSQLAuditRepository(db)
		case "mysql":
			c.auditRepository = auditMySQL.NewMySQLAuditRepository(db)
		default:
			return c.unsupportedDriver()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.auditRepository, nil
}

// AuditUseCase returns the audit log use case.
func (c *Container) AuditUseCase() (auditUsecase.AuditUseCase, error) {
	err := c.lazy(&c.auditUseCaseInit, "auditUseCase", func() error {
		repository, err := c.AuditRepository()
		if err != nil {
			return fmt.Errorf("failed to get audit repository for audit use case: %w", err)
		}
		quotaUseCase, err := c.QuotaUseCase()
		if err != nil {
			return fmt.Errorf("failed to get quota use case for audit use case: %w", err)
		}
		masterKeyChain, err := c.MasterKeyChain()
		if err != nil {
			return fmt.Errorf("failed to get master key chain for audit use case: %w", err)
		}
		c.auditUseCase = auditUsecase.NewAuditUseCase(
			repository,
			repository,
			repository,
			quotaUseCase,
			auditService.NewSigner(),
			masterKeyChain,
			c.Logger(),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.auditUseCase, nil
}
