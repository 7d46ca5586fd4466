// Package http provides the operational HTTP server of the projection worker: liveness,
// readiness and Prometheus metrics endpoints.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/recipegraph/internal/metrics"
)

// ReadinessCheck reports whether a dependency can currently be used.
type ReadinessCheck func(ctx context.Context) error

const readinessTimeout = 2 * time.Second

// Server represents the operational HTTP server
type Server struct {
	server          *http.Server
	router          *gin.Engine
	logger          *slog.Logger
	metricsProvider *metrics.Provider
	checks          map[string]ReadinessCheck
	shuttingDown    atomic.Bool
}

// NewServer creates a new Server. Each entry of checks is reported as a component of
// the readiness response; a nil metricsProvider disables /metrics.
func NewServer(
	host string,
	port int,
	logger *slog.Logger,
	metricsProvider *metrics.Provider,
	checks map[string]ReadinessCheck,
) *Server {
	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger:          logger,
		metricsProvider: metricsProvider,
		checks:          checks,
	}
}

// SetupRouter builds the gin engine serving the operational endpoints.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)
	if s.metricsProvider != nil {
		router.GET("/metrics", gin.WrapH(s.metricsProvider.Handler()))
	}

	s.router = router
	return router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	if s.router == nil {
		s.SetupRouter()
	}
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server.Handler = s.GetHandler()

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start http server: %w", err)
	}

	return nil
}

// Shutdown marks the server not ready and gracefully shuts it down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if s.shuttingDown.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": gin.H{}})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ready := true
	components := gin.H{}
	for _, name := range names {
		check := s.checks[name]
		if check == nil {
			components[name] = "error"
			ready = false
			continue
		}
		if err := check(ctx); err != nil {
			s.logger.Warn("readiness check failed", slog.String("component", name), slog.Any("error", err))
			components[name] = "error"
			ready = false
			continue
		}
		components[name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}
