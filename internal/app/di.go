// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/allisson/recipegraph/internal/config"
	"github.com/allisson/recipegraph/internal/database"
	"github.com/allisson/recipegraph/internal/graph"
	"github.com/allisson/recipegraph/internal/graph/memory"
	"github.com/allisson/recipegraph/internal/graph/neo4j"
	"github.com/allisson/recipegraph/internal/http"
	"github.com/allisson/recipegraph/internal/metrics"
	outboxUsecase "github.com/allisson/recipegraph/internal/outbox/usecase"
	recipeUsecase "github.com/allisson/recipegraph/internal/recipe/usecase"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger     *slog.Logger
	db         *sql.DB
	sourceDB   *sql.DB
	graphStore graph.Store
	clock      clockwork.Clock

	// Managers
	txManager database.TxManager

	// Metrics
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics
	outboxMetrics   metrics.OutboxMetrics

	// Repositories
	outboxRepo      outboxUsecase.OutboxEventRepository
	aggregateLocker outboxUsecase.AggregateLocker
	recipeRepo      recipeUsecase.RecipeRepository

	// Use Cases
	projectorUseCase  recipeUsecase.ProjectorUseCase
	reconcilerUseCase recipeUsecase.ReconcilerUseCase
	routerUseCase     recipeUsecase.RouterUseCase
	outboxUseCase     outboxUsecase.UseCase

	// Servers
	httpServer *http.Server

	// Initialization flags and mutex for thread-safety
	mu                    sync.Mutex
	loggerInit            sync.Once
	dbInit                sync.Once
	sourceDBInit          sync.Once
	graphStoreInit        sync.Once
	clockInit             sync.Once
	txManagerInit         sync.Once
	metricsProviderInit   sync.Once
	businessMetricsInit   sync.Once
	outboxMetricsInit     sync.Once
	outboxRepoInit        sync.Once
	aggregateLockerInit   sync.Once
	recipeRepoInit        sync.Once
	projectorUseCaseInit  sync.Once
	reconcilerUseCaseInit sync.Once
	routerUseCaseInit     sync.Once
	outboxUseCaseInit     sync.Once
	httpServerInit        sync.Once
	initErrors            map[string]error
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

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// Clock returns the clock used for polling, backoff and lock waits.
func (c *Container) Clock() clockwork.Clock {
	c.clockInit.Do(func() {
		c.clock = clockwork.NewRealClock()
	})
	return c.clock
}

// DB returns the outbox database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	var err error
	c.dbInit.Do(func() {
		c.db, err = c.initDB(c.config.DBConnectionString)
		if err != nil {
			c.initErrors["db"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// SourceDB returns the connection to the recipe source of truth. It shares the outbox
// connection pool when both connection strings are equal.
func (c *Container) SourceDB() (*sql.DB, error) {
	var err error
	c.sourceDBInit.Do(func() {
		c.sourceDB, err = c.initSourceDB()
		if err != nil {
			c.initErrors["sourceDB"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["sourceDB"]; exists {
		return nil, storedErr
	}
	return c.sourceDB, nil
}

// TxManager returns the transaction manager of the outbox database.
func (c *Container) TxManager() (database.TxManager, error) {
	var err error
	c.txManagerInit.Do(func() {
		c.txManager, err = c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// GraphStore returns the graph store selected by GRAPH_DRIVER.
func (c *Container) GraphStore() (graph.Store, error) {
	var err error
	c.graphStoreInit.Do(func() {
		c.graphStore, err = c.initGraphStore()
		if err != nil {
			c.initErrors["graphStore"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["graphStore"]; exists {
		return nil, storedErr
	}
	return c.graphStore, nil
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		c.metricsProvider, err = metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			err = fmt.Errorf("failed to create metrics provider: %w", err)
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	var err error
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, err = c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// OutboxMetrics returns the outbox metrics recorder.
func (c *Container) OutboxMetrics() (metrics.OutboxMetrics, error) {
	var err error
	c.outboxMetricsInit.Do(func() {
		c.outboxMetrics, err = c.initOutboxMetrics()
		if err != nil {
			c.initErrors["outboxMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxMetrics"]; exists {
		return nil, storedErr
	}
	return c.outboxMetrics, nil
}

// HTTPServer returns the operational HTTP server.
func (c *Container) HTTPServer() (*http.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		c.httpServer, err = c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
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

	if c.graphStore != nil {
		if err := c.graphStore.Close(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("graph store close: %w", err))
		}
	}

	if c.sourceDB != nil && c.sourceDB != c.db {
		if err := c.sourceDB.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("source database close: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
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

// initDB creates and configures a database connection.
func (c *Container) initDB(connectionString string) (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   connectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func (c *Container) initSourceDB() (*sql.DB, error) {
	if c.config.SourceDBConnectionString == "" ||
		c.config.SourceDBConnectionString == c.config.DBConnectionString {
		return c.DB()
	}
	db, err := c.initDB(c.config.SourceDBConnectionString)
	if err != nil {
		return nil, fmt.Errorf("source database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

func (c *Container) initGraphStore() (graph.Store, error) {
	switch c.config.GraphDriver {
	case "neo4j":
		store, err := neo4j.NewStore(neo4j.Config{
			URI:       c.config.Neo4jURI,
			Username:  c.config.Neo4jUsername,
			Password:  c.config.Neo4jPassword,
			Database:  c.config.Neo4jDatabase,
			TxTimeout: c.config.GraphTxTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create neo4j graph store: %w", err)
		}
		return store, nil
	case "memory":
		c.Logger().Warn("using the in-memory graph store, projections are not persisted")
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unsupported graph driver: %s", c.config.GraphDriver)
	}
}

func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}
	businessMetrics, err := metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}
	return businessMetrics, nil
}

func (c *Container) initOutboxMetrics() (metrics.OutboxMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return metrics.NewNoOpOutboxMetrics(), nil
	}
	outboxMetrics, err := metrics.NewOutboxMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create outbox metrics: %w", err)
	}
	return outboxMetrics, nil
}

// initHTTPServer creates the operational server. Readiness covers the outbox database,
// the recipe source and the graph store.
func (c *Container) initHTTPServer() (*http.Server, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}
	sourceDB, err := c.SourceDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get source database for http server: %w", err)
	}
	store, err := c.GraphStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get graph store for http server: %w", err)
	}

	checks := map[string]http.ReadinessCheck{
		"database": db.PingContext,
		"graph":    store.VerifyConnectivity,
	}
	if sourceDB != db {
		checks["source_database"] = sourceDB.PingContext
	}

	return http.NewServer(c.config.MetricsHost, c.config.MetricsPort, c.Logger(), provider, checks), nil
}
