// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	auditUsecase "github.com/allisson/credstore/internal/audit/usecase"
	"github.com/allisson/credstore/internal/backend"
	"github.com/allisson/credstore/internal/backend/embedded"
	"github.com/allisson/credstore/internal/config"
	cryptoDomain "github.com/allisson/credstore/internal/crypto/domain"
	cryptoService "github.com/allisson/credstore/internal/crypto/service"
	cryptoUsecase "github.com/allisson/credstore/internal/crypto/usecase"
	"github.com/allisson/credstore/internal/database"
	"github.com/allisson/credstore/internal/http"
	"github.com/allisson/credstore/internal/metrics"
	quotaUsecase "github.com/allisson/credstore/internal/quota/usecase"
	"github.com/allisson/credstore/internal/resilience"
	secretsUsecase "github.com/allisson/credstore/internal/secrets/usecase"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	txManager       database.TxManager
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics
	backendMetrics  metrics.BackendMetrics

	// Crypto
	masterKeyChain *cryptoDomain.MasterKeyChain
	keyring        *cryptoDomain.Keyring
	aeadManager    cryptoService.AEADManager
	keyManager     cryptoService.KeyManager
	kmsService     cryptoDomain.KMSService
	engine         *cryptoService.Engine
	kekRepository  cryptoUsecase.KekRepository
	kekUseCase     cryptoUsecase.KekUseCase
	rewrapUseCase  cryptoUsecase.RewrapUseCase

	// Backends
	blobRepository embedded.BlobRepository
	breakers       *resilience.BreakerSet
	executor       *resilience.Executor
	registry       *backend.StaticRegistry
	selector       *backend.Selector
	dispatcher     *backend.Dispatcher

	// Secrets, quota and audit
	secretTypeRepository secretsUsecase.SecretTypeRepository
	secretRepository     secretsUsecase.SecretRepository
	versionManager       secretsUsecase.VersionManager
	secretUseCase        secretsUsecase.SecretUseCase
	secretTypeUseCase    secretsUsecase.SecretTypeUseCase
	quotaRepository      quotaUsecase.QuotaRepository
	quotaUseCase         quotaUsecase.QuotaUseCase
	auditRepository      auditRepository
	auditUseCase         auditUsecase.AuditUseCase

	// Servers
	httpServer    *http.Server
	metricsServer *http.MetricsServer

	// Initialization flags and mutex for thread-safety
	mu                       sync.Mutex
	loggerInit               sync.Once
	dbInit                   sync.Once
	txManagerInit            sync.Once
	metricsProviderInit      sync.Once
	businessMetricsInit      sync.Once
	backendMetricsInit       sync.Once
	masterKeyChainInit       sync.Once
	keyringInit              sync.Once
	aeadManagerInit          sync.Once
	keyManagerInit           sync.Once
	kmsServiceInit           sync.Once
	engineInit               sync.Once
	kekRepositoryInit        sync.Once
	kekUseCaseInit           sync.Once
	rewrapUseCaseInit        sync.Once
	blobRepositoryInit       sync.Once
	breakersInit             sync.Once
	executorInit             sync.Once
	registryInit             sync.Once
	selectorInit             sync.Once
	dispatcherInit           sync.Once
	secretTypeRepositoryInit sync.Once
	secretRepositoryInit     sync.Once
	versionManagerInit       sync.Once
	secretUseCaseInit        sync.Once
	secretTypeUseCaseInit    sync.Once
	quotaRepositoryInit      sync.Once
	quotaUseCaseInit         sync.Once
	auditRepositoryInit      sync.Once
	auditUseCaseInit         sync.Once
	httpServerInit           sync.Once
	metricsServerInit        sync.Once
	initErrors               map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// lazy runs init once and remembers its error under name.
func (c *Container) lazy(once *sync.Once, name string, init func() error) error {
	once.Do(func() {
		if err := init(); err != nil {
			c.mu.Lock()
			c.initErrors[name] = err
			c.mu.Unlock()
		}
	})
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initErrors[name]
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	err := c.lazy(&c.dbInit, "db", func() error {
		var err error
		c.db, err = c.initDB()
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
// It requires a database connection to be initialized first.
func (c *Container) TxManager() (database.TxManager, error) {
	err := c.lazy(&c.txManagerInit, "txManager", func() error {
		db, err := c.DB()
		if err != nil {
			return fmt.Errorf("failed to get database for tx manager: %w", err)
		}
		c.txManager = database.NewTxManager(db)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.txManager, nil
}

// MetricsProvider returns the OpenTelemetry metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	err := c.lazy(&c.metricsProviderInit, "metricsProvider", func() error {
		if !c.config.MetricsEnabled {
			return nil
		}
		provider, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			return fmt.Errorf("failed to create metrics provider: %w", err)
		}
		if err := provider.ObserveBreakers(c.breakerStates); err != nil {
			return err
		}
		c.metricsProvider = provider
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. It is a no-op when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	err := c.lazy(&c.businessMetricsInit, "businessMetrics", func() error {
		provider, err := c.MetricsProvider()
		if err != nil {
			return err
		}
		if provider == nil {
			c.businessMetrics = metrics.NewNoOpBusinessMetrics()
			return nil
		}
		c.businessMetrics, err = metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
		if err != nil {
			return fmt.Errorf("failed to create business metrics: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.businessMetrics, nil
}

// BackendMetrics returns the backend call recorder. It is a no-op when metrics are disabled.
func (c *Container) BackendMetrics() (metrics.BackendMetrics, error) {
	err := c.lazy(&c.backendMetricsInit, "backendMetrics", func() error {
		provider, err := c.MetricsProvider()
		if err != nil {
			return err
		}
		if provider == nil {
			c.backendMetrics = metrics.NewNoOpBackendMetrics()
			return nil
		}
		c.backendMetrics, err = metrics.NewBackendMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
		if err != nil {
			return fmt.Errorf("failed to create backend metrics: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.backendMetrics, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	// Key material is wiped before the connection goes away.
	if c.keyring != nil {
		c.keyring.Close()
	}
	if c.masterKeyChain != nil {
		c.masterKeyChain.Close()
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	return errors.Join(shutdownErrors...)
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(context.Background(), database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// unsupportedDriver reports a DB_DRIVER no repository exists for.
func (c *Container) unsupportedDriver() error {
	return fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
}
