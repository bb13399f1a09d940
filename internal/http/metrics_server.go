package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/allisson/credstore/internal/metrics"
)

// BreakerStates snapshots the circuit breaker state of each backend instance.
type BreakerStates func() map[string]string

// backendStatus is one entry of the /backends listing.
type backendStatus struct {
	Instance string `json:"instance"`
	Breaker  string `json:"breaker"`
}

// MetricsServer serves Prometheus metrics and a breaker snapshot of the backends on a
// port separate from the admin checks.
type MetricsServer struct {
	server *http.Server
	logger *slog.Logger
}

// NewMetricsServer creates a MetricsServer. states may be nil, in which case /backends
// is not registered.
func NewMetricsServer(
	host string,
	port int,
	logger *slog.Logger,
	provider *metrics.Provider,
	states BreakerStates,
) *MetricsServer {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CustomLoggerMiddleware(logger))

	if provider != nil {
		router.GET("/metrics", gin.WrapH(provider.Handler()))
	}
	if states != nil {
		router.GET("/backends", backendsHandler(states))
	}

	return &MetricsServer{
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// backendsHandler lists every backend instance used so far with its breaker state,
// sorted by instance ID.
func backendsHandler(states BreakerStates) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot := states()
		backends := make([]backendStatus, 0, len(snapshot))
		for id, state := range snapshot {
			backends = append(backends, backendStatus{Instance: id, Breaker: state})
		}
		sort.Slice(backends, func(i, j int) bool { return backends[i].Instance < backends[j].Instance })
		c.JSON(http.StatusOK, gin.H{"backends": backends})
	}
}

// GetHandler returns the router, for tests.
func (s *MetricsServer) GetHandler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *MetricsServer) Start(ctx context.Context) error {
	s.logger.Info("starting metrics server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the metrics server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down metrics server")
	return s.server.Shutdown(ctx)
}
