package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/recipegraph/internal/errors"
	"github.com/allisson/recipegraph/internal/metrics"
	"github.com/allisson/recipegraph/internal/outbox/domain"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		AggregateType: domain.AggregateTypeRecipe,
		Interval:      time.Second,
		BatchSize:     10,
		MaxAttempts:   3,
		BackoffBase:   2 * time.Second,
		BackoffMax:    5 * time.Minute,
	}
}

func TestLedger_Backoff(t *testing.T) {
	ledger := NewLedger(nil, testConfig(), clockwork.NewFakeClockAt(epoch))

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{attempt: 0, expected: 0},
		{attempt: 1, expected: 2 * time.Second},
		{attempt: 2, expected: 4 * time.Second},
		{attempt: 3, expected: 8 * time.Second},
		{attempt: 8, expected: 256 * time.Second},
		{attempt: 9, expected: 5 * time.Minute},
		{attempt: 40, expected: 5 * time.Minute},
		{attempt: 1000, expected: 5 * time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ledger.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestLedger_Ack(t *testing.T) {
	ctx := context.Background()
	transient := apperrors.Wrap(apperrors.ErrTransient, "graph store unavailable")

	t.Run("success marks the event done", func(t *testing.T) {
		repo := &MockOutboxEventRepository{}
		ledger := NewLedger(repo, testConfig(), clockwork.NewFakeClockAt(epoch))
		lastErr := "previous failure"
		event := &domain.OutboxEvent{Status: domain.OutboxEventStatusPending, AttemptCount: 1, LastError: &lastErr}
		repo.On("Update", ctx, event).Return(nil)

		outcome, err := ledger.Ack(ctx, event, nil)

		require.NoError(t, err)
		assert.Equal(t, metrics.OutcomeDone, outcome)
		assert.Equal(t, domain.OutboxEventStatusDone, event.Status)
		require.NotNil(t, event.ProcessedAt)
		assert.Equal(t, epoch, *event.ProcessedAt)
		assert.Nil(t, event.LastError)
		assert.Equal(t, 1, event.AttemptCount)
		repo.AssertExpectations(t)
	})

	t.Run("transient failure schedules a retry", func(t *testing.T) {
		repo := &MockOutboxEventRepository{}
		ledger := NewLedger(repo, testConfig(), clockwork.NewFakeClockAt(epoch))
		event := &domain.OutboxEvent{Status: domain.OutboxEventStatusPending, AttemptCount: 1}
		repo.On("Update", ctx, event).Return(nil)

		outcome, err := ledger.Ack(ctx, event, transient)

		require.NoError(t, err)
		assert.Equal(t, metrics.OutcomeRetry, outcome)
		assert.Equal(t, domain.OutboxEventStatusPending, event.Status)
		assert.Equal(t, 2, event.AttemptCount)
		assert.Equal(t, epoch.Add(4*time.Second), event.NextAttemptAt)
		require.NotNil(t, event.LastError)
		assert.Contains(t, *event.LastError, "graph store unavailable")
	})

	t.Run("unclassified failure is retried", func(t *testing.T) {
		repo := &MockOutboxEventRepository{}
		ledger := NewLedger(repo, testConfig(), clockwork.NewFakeClockAt(epoch))
		event := &domain.OutboxEvent{Status: domain.OutboxEventStatusPending}
		repo.On("Update", ctx, event).Return(nil)

		outcome, err := ledger.Ack(ctx, event, errors.New("boom"))

		require.NoError(t, err)
		assert.Equal(t, metrics.OutcomeRetry, outcome)
		assert.Equal(t, epoch.Add(2*time.Second), event.NextAttemptAt)
	})

	t.Run("last attempt marks the event dead", func(t *testing.T) {
		repo := &MockOutboxEventRepository{}
		ledger := NewLedger(repo, testConfig(), clockwork.NewFakeClockAt(epoch))
		event := &domain.OutboxEvent{Status: domain.OutboxEventStatusPending, AttemptCount: 2, NextAttemptAt: epoch}
		repo.On("Update", ctx, event).Return(nil)

		outcome, err := ledger.Ack(ctx, event, transient)

		require.NoError(t, err)
		assert.Equal(t, metrics.OutcomeDead, outcome)
		assert.Equal(t, domain.OutboxEventStatusDead, event.Status)
		assert.Equal(t, 3, event.AttemptCount)
		assert.Equal(t, epoch, event.NextAttemptAt)
	})

	t.Run("permanent failure marks the event dead at once", func(t *testing.T) {
		repo := &MockOutboxEventRepository{}
		ledger := NewLedger(repo, testConfig(), clockwork.NewFakeClockAt(epoch))
		event := &domain.OutboxEvent{Status: domain.OutboxEventStatusPending}
		repo.On("Update", ctx, event).Return(nil)

		outcome, err := ledger.Ack(ctx, event, apperrors.Wrap(apperrors.ErrPermanent, "bad aggregate"))

		require.NoError(t, err)
		assert.Equal(t, metrics.OutcomeDead, outcome)
		assert.Equal(t, domain.OutboxEventStatusDead, event.Status)
		assert.Equal(t, 1, event.AttemptCount)
	})

	t.Run("long errors are truncated", func(t *testing.T) {
		repo := &MockOutboxEventRepository{}
		ledger := NewLedger(repo, testConfig(), clockwork.NewFakeClockAt(epoch))
		event := &domain.OutboxEvent{Status: domain.OutboxEventStatusPending}
		repo.On("Update", ctx, event).Return(nil)

		_, err := ledger.Ack(ctx, event, errors.New(strings.Repeat("x", 5000)))

		require.NoError(t, err)
		require.NotNil(t, event.LastError)
		assert.Len(t, *event.LastError, maxLastErrorLen)
	})

	t.Run("update error is returned", func(t *testing.T) {
		repo := &MockOutboxEventRepository{}
		ledger := NewLedger(repo, testConfig(), clockwork.NewFakeClockAt(epoch))
		repo.On("Update", ctx, mock.Anything).Return(errors.New("connection reset"))

		_, err := ledger.Ack(ctx, &domain.OutboxEvent{}, nil)

		assert.EqualError(t, err, "connection reset")
	})
}
