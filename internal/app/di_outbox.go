package app

import (
	"fmt"

	outboxDomain "github.com/allisson/recipegraph/internal/outbox/domain"
	outboxRepository "github.com/allisson/recipegraph/internal/outbox/repository"
	outboxUsecase "github.com/allisson/recipegraph/internal/outbox/usecase"
)

// OutboxRepository returns the outbox event repository instance.
func (c *Container) OutboxRepository() (outboxUsecase.OutboxEventRepository, error) {
	var err error
	c.outboxRepoInit.Do(func() {
		c.outboxRepo, err = c.initOutboxRepository()
		if err != nil {
			c.initErrors["outboxRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxRepo"]; exists {
		return nil, storedErr
	}
	return c.outboxRepo, nil
}

// AggregateLocker returns the per-aggregate lock of the outbox database.
func (c *Container) AggregateLocker() (outboxUsecase.AggregateLocker, error) {
	var err error
	c.aggregateLockerInit.Do(func() {
		c.aggregateLocker, err = c.initAggregateLocker()
		if err != nil {
			c.initErrors["aggregateLocker"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["aggregateLocker"]; exists {
		return nil, storedErr
	}
	return c.aggregateLocker, nil
}

// OutboxUseCase returns the outbox use case instance.
func (c *Container) OutboxUseCase() (outboxUsecase.UseCase, error) {
	var err error
	c.outboxUseCaseInit.Do(func() {
		c.outboxUseCase, err = c.initOutboxUseCase()
		if err != nil {
			c.initErrors["outboxUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxUseCase"]; exists {
		return nil, storedErr
	}
	return c.outboxUseCase, nil
}

// initOutboxRepository creates the outbox event repository instance.
func (c *Container) initOutboxRepository() (outboxUsecase.OutboxEventRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for outbox repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return outboxRepository.NewMySQLOutboxEventRepository(db), nil
	case "postgres":
		return outboxRepository.NewPostgreSQLOutboxEventRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initAggregateLocker() (outboxUsecase.AggregateLocker, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for aggregate locker: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return outboxRepository.NewMySQLAggregateLocker(db, c.config.AggregateLockTimeout), nil
	case "postgres":
		return outboxRepository.NewPostgreSQLAggregateLocker(db, c.config.AggregateLockTimeout, c.Clock()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initOutboxUseCase creates the outbox use case with all its dependencies.
func (c *Container) initOutboxUseCase() (outboxUsecase.UseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for outbox use case: %w", err)
	}
	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for outbox use case: %w", err)
	}
	locker, err := c.AggregateLocker()
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate locker for outbox use case: %w", err)
	}
	router, err := c.RouterUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get router for outbox use case: %w", err)
	}
	outboxMetrics, err := c.OutboxMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox metrics for outbox use case: %w", err)
	}

	useCaseConfig := outboxUsecase.Config{
		AggregateType:   outboxDomain.AggregateTypeRecipe,
		Interval:        c.config.WorkerPollInterval,
		BatchSize:       c.config.WorkerBatchSize,
		MaxAttempts:     c.config.WorkerMaxAttempts,
		BackoffBase:     c.config.WorkerBackoffBase,
		BackoffMax:      c.config.WorkerBackoffMax,
		MaxEventsPerSec: c.config.WorkerMaxEventsPerSec,
	}

	return outboxUsecase.NewOutboxUseCase(
		useCaseConfig,
		txManager,
		outboxRepo,
		locker,
		router,
		outboxMetrics,
		c.Clock(),
		c.Logger(),
	), nil
}
