package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/credstore/internal/app"
	"github.com/allisson/credstore/internal/config"
)

// RunServer starts the admin and metrics servers and the background workers, then blocks
// until SIGINT/SIGTERM or a fatal error. KEKs are loaded before anything starts so the
// first request can already unwrap stored blobs.
func RunServer(ctx context.Context, version string) error {
	cfg := config.Load()

	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting server", slog.String("version", version))

	defer closeContainer(container, logger)

	if err := container.LoadKeyring(ctx); err != nil {
		return err
	}

	// The secret use case pulls in the backend, quota and audit stacks; failing here
	// surfaces configuration errors before the server reports ready.
	if _, err := container.SecretUseCase(); err != nil {
		return fmt.Errorf("failed to initialize secret use case: %w", err)
	}

	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	workers, err := container.Workers()
	if err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}

	quotaUseCase, err := container.QuotaUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize quota use case: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := server.Start(groupCtx); err != nil {
			return fmt.Errorf("admin server error: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		group.Go(func() error {
			if err := metricsServer.Start(groupCtx); err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
	}

	for _, w := range workers {
		group.Go(func() error {
			if err := w.Start(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s worker error: %w", w.Name(), err)
			}
			return nil
		})
	}

	if cfg.LimiterCleanupInterval > 0 {
		group.Go(func() error {
			if err := quotaUseCase.CleanupStale(groupCtx, cfg.LimiterCleanupInterval); err != nil {
				return fmt.Errorf("limiter cleanup error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
		defer shutdownCancel()

		var shutdownErrors []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("admin server shutdown: %w", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
			}
		}
		return errors.Join(shutdownErrors...)
	})

	return group.Wait()
}
