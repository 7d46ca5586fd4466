package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	apperrors "github.com/allisson/recipegraph/internal/errors"
	"github.com/allisson/recipegraph/internal/metrics"
	"github.com/allisson/recipegraph/internal/outbox/domain"
)

type fixture struct {
	clock     *clockwork.FakeClock
	txManager *fakeTxManager
	repo      *MockOutboxEventRepository
	locker    *MockAggregateLocker
	processor *MockEventProcessor
	metrics   *recordingMetrics
	unlock    *unlockRecorder
	uc        *OutboxUseCase
}

func newFixture(config Config) *fixture {
	f := &fixture{
		clock:     clockwork.NewFakeClockAt(epoch),
		txManager: &fakeTxManager{},
		repo:      &MockOutboxEventRepository{},
		locker:    &MockAggregateLocker{},
		processor: &MockEventProcessor{},
		metrics:   &recordingMetrics{},
		unlock:    &unlockRecorder{},
	}
	f.uc = NewOutboxUseCase(
		config,
		f.txManager,
		f.repo,
		f.locker,
		f.processor,
		f.metrics,
		f.clock,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f
}

func (f *fixture) lockSucceeds() {
	f.locker.On("Lock", mock.Anything, domain.AggregateTypeRecipe, mock.Anything).
		Return(f.unlock.Unlock, nil)
}

func newEvent(aggregateID string, operation domain.Operation) *domain.OutboxEvent {
	return &domain.OutboxEvent{
		ID:            uuid.Must(uuid.NewV7()),
		AggregateType: domain.AggregateTypeRecipe,
		AggregateID:   aggregateID,
		Operation:     operation,
		Status:        domain.OutboxEventStatusPending,
		NextAttemptAt: epoch,
		CreatedAt:     epoch,
		UpdatedAt:     epoch,
	}
}

func TestNewOutboxUseCase_Defaults(t *testing.T) {
	f := newFixture(Config{})

	assert.Equal(t, domain.AggregateTypeRecipe, f.uc.config.AggregateType)
	assert.Equal(t, 1, f.uc.config.BatchSize)
	assert.Equal(t, 1, f.uc.config.MaxAttempts)
	assert.NotNil(t, f.uc.ledger)
	assert.NotNil(t, f.uc.limiter)
}

func TestOutboxUseCase_ProcessEvents_Success(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()
	events := []*domain.OutboxEvent{
		newEvent("42", domain.OperationInsert),
		newEvent("7", domain.OperationUpdate),
	}

	f.repo.On("Claim", mock.Anything, domain.AggregateTypeRecipe, epoch, 10).Return(events, nil)
	f.lockSucceeds()
	f.processor.On("Process", mock.Anything, mock.Anything).Return(nil)
	f.repo.On("Update", mock.Anything, mock.MatchedBy(func(e *domain.OutboxEvent) bool {
		return e.Status == domain.OutboxEventStatusDone && e.ProcessedAt != nil
	})).Return(nil).Times(2)

	settled, err := f.uc.ProcessEvents(ctx, "worker-1")

	require.NoError(t, err)
	assert.Equal(t, 2, settled)
	assert.Equal(t, 1, f.txManager.calls)
	assert.Equal(t, 2, f.unlock.Calls())
	assert.Equal(t, []int{2}, f.metrics.claimed)
	assert.Equal(t, []string{metrics.OutcomeDone, metrics.OutcomeDone}, f.metrics.Outcomes())
	f.locker.AssertCalled(t, "Lock", mock.Anything, domain.AggregateTypeRecipe, "42")
	f.locker.AssertCalled(t, "Lock", mock.Anything, domain.AggregateTypeRecipe, "7")
	f.repo.AssertExpectations(t)
	f.processor.AssertExpectations(t)
}

func TestOutboxUseCase_ProcessEvents_NoEvents(t *testing.T) {
	f := newFixture(testConfig())

	f.repo.On("Claim", mock.Anything, domain.AggregateTypeRecipe, mock.Anything, 10).
		Return([]*domain.OutboxEvent{}, nil)

	settled, err := f.uc.ProcessEvents(context.Background(), "worker-1")

	require.NoError(t, err)
	assert.Equal(t, 0, settled)
	assert.Empty(t, f.metrics.claimed)
	f.processor.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestOutboxUseCase_ProcessEvents_ClaimError(t *testing.T) {
	f := newFixture(testConfig())

	f.repo.On("Claim", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("database unavailable"))

	settled, err := f.uc.ProcessEvents(context.Background(), "worker-1")

	assert.EqualError(t, err, "database unavailable")
	assert.Equal(t, 0, settled)
}

func TestOutboxUseCase_ProcessEvents_LockedAggregateIsDeferred(t *testing.T) {
	f := newFixture(testConfig())
	busy := newEvent("42", domain.OperationUpdate)
	free := newEvent("7", domain.OperationUpdate)

	f.repo.On("Claim", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*domain.OutboxEvent{busy, free}, nil)
	f.locker.On("Lock", mock.Anything, domain.AggregateTypeRecipe, "42").
		Return(nil, domain.ErrAggregateLocked)
	f.locker.On("Lock", mock.Anything, domain.AggregateTypeRecipe, "7").
		Return(f.unlock.Unlock, nil)
	f.processor.On("Process", mock.Anything, free).Return(nil)
	f.repo.On("Update", mock.Anything, free).Return(nil)

	settled, err := f.uc.ProcessEvents(context.Background(), "worker-1")

	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, domain.OutboxEventStatusPending, busy.Status)
	assert.Equal(t, 0, busy.AttemptCount)
	assert.Equal(t, []string{metrics.OutcomeDeferred, metrics.OutcomeDone}, f.metrics.Outcomes())
	f.processor.AssertNotCalled(t, "Process", mock.Anything, busy)
	f.repo.AssertNotCalled(t, "Update", mock.Anything, busy)
}

func TestOutboxUseCase_ProcessEvents_LockError(t *testing.T) {
	f := newFixture(testConfig())
	event := newEvent("42", domain.OperationUpdate)

	f.repo.On("Claim", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*domain.OutboxEvent{event}, nil)
	f.locker.On("Lock", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset"))

	_, err := f.uc.ProcessEvents(context.Background(), "worker-1")

	assert.EqualError(t, err, "connection reset")
	assert.Empty(t, f.metrics.Outcomes())
}

func TestOutboxUseCase_ProcessEvents_RetriesUntilDead(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()
	event := newEvent("42", domain.OperationUpdate)
	failure := apperrors.Wrap(apperrors.ErrTransient, "graph store unavailable")

	f.repo.On("Claim", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*domain.OutboxEvent{event}, nil)
	f.lockSucceeds()
	f.processor.On("Process", mock.Anything, event).Return(failure)
	f.repo.On("Update", mock.Anything, event).Return(nil)

	_, err := f.uc.ProcessEvents(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxEventStatusPending, event.Status)
	assert.Equal(t, 1, event.AttemptCount)
	assert.Equal(t, epoch.Add(2*time.Second), event.NextAttemptAt)

	f.clock.Advance(2 * time.Second)
	_, err = f.uc.ProcessEvents(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, 2, event.AttemptCount)
	assert.Equal(t, epoch.Add(2*time.Second).Add(4*time.Second), event.NextAttemptAt)

	f.clock.Advance(4 * time.Second)
	_, err = f.uc.ProcessEvents(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxEventStatusDead, event.Status)
	assert.Equal(t, 3, event.AttemptCount)
	require.NotNil(t, event.LastError)
	assert.Contains(t, *event.LastError, "graph store unavailable")

	assert.Equal(
		t,
		[]string{metrics.OutcomeRetry, metrics.OutcomeRetry, metrics.OutcomeDead},
		f.metrics.Outcomes(),
	)
	assert.Equal(t, 3, f.unlock.Calls())
}

func TestOutboxUseCase_ProcessEvents_PermanentFailureIsDead(t *testing.T) {
	f := newFixture(testConfig())
	event := newEvent("42", domain.OperationInsert)

	f.repo.On("Claim", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*domain.OutboxEvent{event}, nil)
	f.lockSucceeds()
	f.processor.On("Process", mock.Anything, event).
		Return(apperrors.Wrap(apperrors.ErrInvalidInput, "duplicate ingredient"))
	f.repo.On("Update", mock.Anything, event).Return(nil)

	settled, err := f.uc.ProcessEvents(context.Background(), "worker-1")

	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, domain.OutboxEventStatusDead, event.Status)
	assert.Equal(t, 1, event.AttemptCount)
}

func TestOutboxUseCase_ProcessEvents_AckErrorAbortsBatch(t *testing.T) {
	f := newFixture(testConfig())
	first := newEvent("42", domain.OperationInsert)
	second := newEvent("7", domain.OperationInsert)

	f.repo.On("Claim", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*domain.OutboxEvent{first, second}, nil)
	f.lockSucceeds()
	f.processor.On("Process", mock.Anything, first).Return(nil)
	f.repo.On("Update", mock.Anything, first).Return(errors.New("connection reset"))

	settled, err := f.uc.ProcessEvents(context.Background(), "worker-1")

	assert.EqualError(t, err, "connection reset")
	assert.Equal(t, 0, settled)
	assert.Equal(t, 1, f.unlock.Calls(), "the lock is released before the batch aborts")
	assert.Empty(t, f.metrics.Outcomes())
	f.processor.AssertNotCalled(t, "Process", mock.Anything, second)
}

func TestOutboxUseCase_ProcessEvents_UnlockErrorAbortsBatch(t *testing.T) {
	f := newFixture(testConfig())
	event := newEvent("42", domain.OperationInsert)
	f.unlock.err = errors.New("release failed")

	f.repo.On("Claim", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*domain.OutboxEvent{event}, nil)
	f.lockSucceeds()
	f.processor.On("Process", mock.Anything, event).Return(nil)
	f.repo.On("Update", mock.Anything, event).Return(nil)

	_, err := f.uc.ProcessEvents(context.Background(), "worker-1")

	assert.EqualError(t, err, "release failed")
}

func TestOutboxUseCase_ProcessEvents_StopsOnCancellation(t *testing.T) {
	f := newFixture(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	first := newEvent("42", domain.OperationInsert)
	second := newEvent("7", domain.OperationInsert)

	f.repo.On("Claim", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*domain.OutboxEvent{first, second}, nil)
	f.lockSucceeds()
	f.processor.On("Process", mock.Anything, first).Run(func(args mock.Arguments) {
		cancel()
		assert.NoError(t, args.Get(0).(context.Context).Err(), "the event in flight keeps running")
	}).Return(nil)
	f.repo.On("Update", mock.Anything, first).Return(nil)

	settled, err := f.uc.ProcessEvents(ctx, "worker-1")

	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.Equal(t, domain.OutboxEventStatusDone, first.Status)
	assert.Equal(t, domain.OutboxEventStatusPending, second.Status)
	f.processor.AssertNotCalled(t, "Process", mock.Anything, second)
}

func TestOutboxUseCase_ProcessEvents_TxManagerError(t *testing.T) {
	f := newFixture(testConfig())
	f.txManager.err = errors.New("begin failed")

	_, err := f.uc.ProcessEvents(context.Background(), "worker-1")

	assert.EqualError(t, err, "begin failed")
	f.repo.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOutboxUseCase_Start(t *testing.T) {
	defer goleak.VerifyNone(t)

	config := testConfig()
	config.BatchSize = 1
	f := newFixture(config)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	event := newEvent("42", domain.OperationInsert)
	f.repo.On("Claim", mock.Anything, mock.Anything, mock.Anything, 1).
		Return([]*domain.OutboxEvent{event}, nil).Once()
	f.repo.On("Claim", mock.Anything, mock.Anything, mock.Anything, 1).
		Return([]*domain.OutboxEvent{}, nil)
	f.lockSucceeds()
	f.processor.On("Process", mock.Anything, event).Return(nil)
	f.repo.On("Update", mock.Anything, event).Return(nil)

	done := make(chan error, 1)
	go func() {
		done <- f.uc.Start(ctx, "worker-1")
	}()

	// A full batch is followed by an immediate poll; the empty one then waits on the clock.
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.repo.AssertNumberOfCalls(t, "Claim", 2)

	f.clock.Advance(config.Interval)
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.repo.AssertNumberOfCalls(t, "Claim", 3)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
}

func TestOutboxUseCase_Start_KeepsPollingAfterErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.repo.On("Claim", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("database unavailable"))

	done := make(chan error, 1)
	go func() {
		done <- f.uc.Start(ctx, "worker-1")
	}()

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(time.Second)
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.repo.AssertNumberOfCalls(t, "Claim", 2)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestOutboxUseCase_Start_CancelledContext(t *testing.T) {
	f := newFixture(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.uc.Start(ctx, "worker-1")

	assert.Equal(t, context.Canceled, err)
	f.repo.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOutboxUseCase_RequeueDead(t *testing.T) {
	f := newFixture(testConfig())
	f.repo.On("RequeueDead", mock.Anything, domain.AggregateTypeRecipe, epoch).Return(int64(3), nil)

	count, err := f.uc.RequeueDead(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.Equal(t, 1, f.txManager.calls)
	f.repo.AssertExpectations(t)
}

func TestOutboxUseCase_PurgeDone(t *testing.T) {
	t.Run("deletes events older than the retention", func(t *testing.T) {
		f := newFixture(testConfig())
		f.repo.On("DeleteDoneBefore", mock.Anything, epoch.Add(-24*time.Hour)).Return(int64(12), nil)

		count, err := f.uc.PurgeDone(context.Background(), 24*time.Hour)

		require.NoError(t, err)
		assert.Equal(t, int64(12), count)
		f.repo.AssertExpectations(t)
	})

	t.Run("rejects a negative retention", func(t *testing.T) {
		f := newFixture(testConfig())

		_, err := f.uc.PurgeDone(context.Background(), -time.Hour)

		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		f.repo.AssertNotCalled(t, "DeleteDoneBefore", mock.Anything, mock.Anything)
	})
}

func TestOutboxUseCase_Stats(t *testing.T) {
	f := newFixture(testConfig())
	counts := []domain.StatusCount{
		{AggregateType: domain.AggregateTypeRecipe, Status: domain.OutboxEventStatusPending, Count: 4},
		{AggregateType: domain.AggregateTypeRecipe, Status: domain.OutboxEventStatusDead, Count: 1},
	}
	f.repo.On("CountByStatus", mock.Anything).Return(counts, nil)

	result, err := f.uc.Stats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, counts, result)
}

func TestOutboxUseCase_WithAggregateLock(t *testing.T) {
	t.Run("runs fn while holding the aggregate lock", func(t *testing.T) {
		f := newFixture(testConfig())
		f.locker.On("Lock", mock.Anything, domain.AggregateTypeRecipe, "42").Return(f.unlock.Unlock, nil)

		var unlocksDuringFn int
		err := f.uc.WithAggregateLock(context.Background(), "42", func(ctx context.Context) error {
			unlocksDuringFn = f.unlock.calls
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, f.txManager.calls)
		assert.Equal(t, 0, unlocksDuringFn)
		assert.Equal(t, 1, f.unlock.calls)
		f.locker.AssertExpectations(t)
	})

	t.Run("does not run fn when the aggregate is busy", func(t *testing.T) {
		f := newFixture(testConfig())
		f.locker.On("Lock", mock.Anything, domain.AggregateTypeRecipe, "42").Return(nil, domain.ErrAggregateLocked)

		called := false
		err := f.uc.WithAggregateLock(context.Background(), "42", func(ctx context.Context) error {
			called = true
			return nil
		})

		assert.ErrorIs(t, err, apperrors.ErrLocked)
		assert.False(t, called)
		assert.Equal(t, 0, f.unlock.calls)
	})

	t.Run("releases the lock when fn fails", func(t *testing.T) {
		f := newFixture(testConfig())
		f.lockSucceeds()
		f.unlock.err = errors.New("release failed")

		err := f.uc.WithAggregateLock(context.Background(), "42", func(ctx context.Context) error {
			return errors.New("graph store unavailable")
		})

		assert.EqualError(t, err, "graph store unavailable")
		assert.Equal(t, 1, f.unlock.calls)
	})

	t.Run("reports an unlock failure", func(t *testing.T) {
		f := newFixture(testConfig())
		f.lockSucceeds()
		f.unlock.err = errors.New("release failed")

		err := f.uc.WithAggregateLock(context.Background(), "42", func(ctx context.Context) error {
			return nil
		})

		assert.EqualError(t, err, "release failed")
	})
}
