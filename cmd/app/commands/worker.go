package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/recipegraph/internal/app"
	"github.com/allisson/recipegraph/internal/config"
	outboxUsecase "github.com/allisson/recipegraph/internal/outbox/usecase"
)

const (
	connectivityTimeout = 10 * time.Second
	shutdownTimeout     = 30 * time.Second
)

// ConnectivityCheck checks one dependency.
type ConnectivityCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server is a component served next to the workers until shutdown.
type Server interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// RunWorker starts the projection workers and the operational server. It refuses to
// start when the outbox database, the recipe source or the graph store is unreachable,
// and blocks until SIGINT/SIGTERM.
func RunWorker(ctx context.Context, version string, concurrency int) error {
	cfg := config.Load()
	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)
	logger := container.Logger()
	logger.Info("starting worker", slog.String("version", version))

	defer closeContainer(container, logger)

	if concurrency <= 0 {
		concurrency = cfg.WorkerConcurrency
	}

	db, err := container.DB()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	sourceDB, err := container.SourceDB()
	if err != nil {
		return fmt.Errorf("failed to initialize source database: %w", err)
	}
	store, err := container.GraphStore()
	if err != nil {
		return fmt.Errorf("failed to initialize graph store: %w", err)
	}

	checks := []ConnectivityCheck{
		{Name: "database", Check: db.PingContext},
		{Name: "source_database", Check: sourceDB.PingContext},
		{Name: "graph", Check: store.VerifyConnectivity},
	}
	if err := CheckConnectivity(ctx, logger, checks, connectivityTimeout); err != nil {
		return err
	}

	outboxUseCase, err := container.OutboxUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox use case: %w", err)
	}
	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize http server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return RunWorkers(ctx, outboxUseCase, server, logger, concurrency)
}

// CheckConnectivity runs every check with a shared timeout and reports all failures.
func CheckConnectivity(
	ctx context.Context,
	logger *slog.Logger,
	checks []ConnectivityCheck,
	timeout time.Duration,
) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var failures []error
	for _, check := range checks {
		if err := check.Check(ctx); err != nil {
			logger.Error("connectivity check failed", slog.String("component", check.Name), slog.Any("error", err))
			failures = append(failures, fmt.Errorf("%s unreachable: %w", check.Name, err))
		}
	}
	return errors.Join(failures...)
}

// RunWorkers runs concurrency polling loops and server until ctx is cancelled or one of
// them fails. Workers finish the event in flight before returning.
func RunWorkers(
	ctx context.Context,
	useCase outboxUsecase.UseCase,
	server Server,
	logger *slog.Logger,
	concurrency int,
) error {
	if concurrency <= 0 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)

	for i := range concurrency {
		workerID := fmt.Sprintf("worker-%d", i+1)
		g.Go(func() error {
			if err := useCase.Start(gctx, workerID); err != nil && !errors.Is(err, gctx.Err()) {
				return fmt.Errorf("%s: %w", workerID, err)
			}
			return nil
		})
	}

	if server != nil {
		g.Go(func() error {
			return server.Start(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	logger.Info("workers running", slog.Int("concurrency", concurrency))
	err := g.Wait()
	logger.Info("workers stopped")
	return err
}
