package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/allisson/recipegraph/internal/database"
	apperrors "github.com/allisson/recipegraph/internal/errors"
	"github.com/allisson/recipegraph/internal/metrics"
	"github.com/allisson/recipegraph/internal/outbox/domain"
)

// Config holds outbox use case configuration
type Config struct {
	// AggregateType selects the events this use case claims.
	AggregateType string
	// Interval is the idle sleep between polls.
	Interval  time.Duration
	BatchSize int
	// MaxAttempts is the number of failed attempts after which an event is dead.
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// MaxEventsPerSec throttles event processing; 0 disables the limit.
	MaxEventsPerSec float64
}

// OutboxUseCase implements business logic for processing outbox events
type OutboxUseCase struct {
	config    Config
	txManager database.TxManager
	repo      OutboxEventRepository
	locker    AggregateLocker
	processor EventProcessor
	ledger    *Ledger
	metrics   metrics.OutboxMetrics
	clock     clockwork.Clock
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewOutboxUseCase creates a new OutboxUseCase
func NewOutboxUseCase(
	config Config,
	txManager database.TxManager,
	repo OutboxEventRepository,
	locker AggregateLocker,
	processor EventProcessor,
	outboxMetrics metrics.OutboxMetrics,
	clock clockwork.Clock,
	logger *slog.Logger,
) *OutboxUseCase {
	if config.AggregateType == "" {
		config.AggregateType = domain.AggregateTypeRecipe
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.MaxEventsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.MaxEventsPerSec), 1)
	}

	return &OutboxUseCase{
		config:    config,
		txManager: txManager,
		repo:      repo,
		locker:    locker,
		processor: processor,
		ledger:    NewLedger(repo, config, clock),
		metrics:   outboxMetrics,
		clock:     clock,
		limiter:   limiter,
		logger:    logger,
	}
}

// Start runs the polling loop until ctx is cancelled. A full batch is followed by an
// immediate poll; otherwise the loop sleeps for the configured interval. Batch failures
// are logged and retried on the next poll.
func (uc *OutboxUseCase) Start(ctx context.Context, workerID string) error {
	logger := uc.logger.With(slog.String("worker_id", workerID))
	logger.Info("starting outbox event processor",
		slog.String("aggregate_type", uc.config.AggregateType),
		slog.Duration("interval", uc.config.Interval),
		slog.Int("batch_size", uc.config.BatchSize),
	)

	for {
		if ctx.Err() != nil {
			break
		}

		settled, err := uc.ProcessEvents(ctx, workerID)
		if err != nil && ctx.Err() == nil {
			logger.Error("failed to process events", slog.Any("error", err))
		}
		if err == nil && settled >= uc.config.BatchSize {
			continue
		}

		select {
		case <-ctx.Done():
		case <-uc.clock.After(uc.config.Interval):
		}
	}

	logger.Info("stopping outbox event processor")
	return ctx.Err()
}

// ProcessEvents claims one batch and settles it inside a single transaction. The claim
// rows stay locked until commit, so concurrent workers skip them. Cancelling ctx stops
// the batch before the next event; the event in flight finishes and the batch commits.
func (uc *OutboxUseCase) ProcessEvents(ctx context.Context, workerID string) (int, error) {
	var outcomes []string

	err := uc.txManager.WithTx(context.WithoutCancel(ctx), func(txCtx context.Context) error {
		outcomes = outcomes[:0]

		now := uc.clock.Now().UTC()
		events, err := uc.repo.Claim(txCtx, uc.config.AggregateType, now, uc.config.BatchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		uc.metrics.RecordClaimed(ctx, len(events))
		uc.logger.Debug("claimed events",
			slog.String("worker_id", workerID),
			slog.Int("count", len(events)),
		)

		for _, event := range events {
			if ctx.Err() != nil {
				break
			}
			if err := uc.limiter.Wait(ctx); err != nil {
				break
			}

			outcome, err := uc.processEvent(txCtx, workerID, event)
			if err != nil {
				return err
			}
			outcomes = append(outcomes, outcome)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, outcome := range outcomes {
		uc.metrics.RecordOutcome(ctx, outcome)
		if outcome != metrics.OutcomeDeferred {
			settled++
		}
	}
	return settled, nil
}

// processEvent runs one event under its aggregate lock and records the outcome. A lock
// that cannot be taken in time leaves the event pending without using an attempt.
func (uc *OutboxUseCase) processEvent(
	ctx context.Context,
	workerID string,
	event *domain.OutboxEvent,
) (string, error) {
	logger := uc.logger.With(
		slog.String("worker_id", workerID),
		slog.String("event_id", event.ID.String()),
		slog.String("aggregate_type", event.AggregateType),
		slog.String("aggregate_id", event.AggregateID),
		slog.String("operation", string(event.Operation)),
		slog.Int("attempt", event.AttemptCount+1),
	)

	unlock, err := uc.locker.Lock(ctx, event.AggregateType, event.AggregateID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrLocked) {
			logger.Info("aggregate busy, deferring event")
			return metrics.OutcomeDeferred, nil
		}
		return "", err
	}

	start := uc.clock.Now()
	processErr := uc.processor.Process(ctx, event)

	outcome, ackErr := uc.ledger.Ack(ctx, event, processErr)
	unlockErr := unlock(ctx)
	if ackErr != nil {
		return "", ackErr
	}
	if unlockErr != nil {
		return "", unlockErr
	}

	attrs := []any{
		slog.String("outcome", outcome),
		slog.Duration("duration", uc.clock.Since(start)),
	}
	switch outcome {
	case metrics.OutcomeDone:
		logger.Info("event processed", attrs...)
	case metrics.OutcomeRetry:
		attrs = append(attrs, slog.Time("next_attempt_at", event.NextAttemptAt), slog.Any("error", processErr))
		logger.Warn("event failed, retry scheduled", attrs...)
	default:
		attrs = append(attrs, slog.Any("error", processErr))
		logger.Error("event is dead", attrs...)
	}
	return outcome, nil
}

// RequeueDead moves dead events of the configured aggregate type back to pending.
func (uc *OutboxUseCase) RequeueDead(ctx context.Context) (int64, error) {
	var count int64
	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		count, err = uc.repo.RequeueDead(ctx, uc.config.AggregateType, uc.clock.Now().UTC())
		return err
	})
	if err != nil {
		return 0, err
	}
	uc.logger.Info("requeued dead events", slog.Int64("count", count))
	return count, nil
}

// PurgeDone deletes done events processed more than olderThan ago.
func (uc *OutboxUseCase) PurgeDone(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan < 0 {
		return 0, apperrors.Wrap(apperrors.ErrInvalidInput, "retention must not be negative")
	}
	count, err := uc.repo.DeleteDoneBefore(ctx, uc.clock.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	uc.logger.Info("purged done events", slog.Int64("count", count), slog.Duration("older_than", olderThan))
	return count, nil
}

// WithAggregateLock runs fn under the lock of the given aggregate of the configured
// type. It fails with domain.ErrAggregateLocked, without calling fn, when a worker
// holds the lock past the wait timeout.
func (uc *OutboxUseCase) WithAggregateLock(
	ctx context.Context,
	aggregateID string,
	fn func(ctx context.Context) error,
) error {
	return uc.txManager.WithTx(ctx, func(txCtx context.Context) error {
		unlock, err := uc.locker.Lock(txCtx, uc.config.AggregateType, aggregateID)
		if err != nil {
			return err
		}

		fnErr := fn(txCtx)
		unlockErr := unlock(txCtx)
		if fnErr != nil {
			return fnErr
		}
		return unlockErr
	})
}

// Stats counts events per aggregate type and status.
func (uc *OutboxUseCase) Stats(ctx context.Context) ([]domain.StatusCount, error) {
	return uc.repo.CountByStatus(ctx)
}
