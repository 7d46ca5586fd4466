package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/allisson/recipegraph/internal/outbox/domain"
)

// fakeTxManager runs fn directly on the given context.
type fakeTxManager struct {
	calls int
	err   error
}

func (m *fakeTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	return fn(ctx)
}

// MockOutboxEventRepository is a mock implementation of OutboxEventRepository
type MockOutboxEventRepository struct {
	mock.Mock
}

func (m *MockOutboxEventRepository) Create(ctx context.Context, event *domain.OutboxEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockOutboxEventRepository) Claim(
	ctx context.Context,
	aggregateType string,
	now time.Time,
	limit int,
) ([]*domain.OutboxEvent, error) {
	args := m.Called(ctx, aggregateType, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxEventRepository) Update(ctx context.Context, event *domain.OutboxEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockOutboxEventRepository) RequeueDead(
	ctx context.Context,
	aggregateType string,
	now time.Time,
) (int64, error) {
	args := m.Called(ctx, aggregateType, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxEventRepository) DeleteDoneBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxEventRepository) CountByStatus(ctx context.Context) ([]domain.StatusCount, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.StatusCount), args.Error(1)
}

// MockAggregateLocker is a mock implementation of AggregateLocker
type MockAggregateLocker struct {
	mock.Mock
}

func (m *MockAggregateLocker) Lock(
	ctx context.Context,
	aggregateType, aggregateID string,
) (func(ctx context.Context) error, error) {
	args := m.Called(ctx, aggregateType, aggregateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func(ctx context.Context) error), args.Error(1)
}

// MockEventProcessor is a mock implementation of EventProcessor
type MockEventProcessor struct {
	mock.Mock
}

func (m *MockEventProcessor) Process(ctx context.Context, event *domain.OutboxEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// recordingMetrics keeps every outbox measurement.
type recordingMetrics struct {
	mu       sync.Mutex
	claimed  []int
	outcomes []string
}

func (r *recordingMetrics) RecordClaimed(ctx context.Context, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claimed = append(r.claimed, count)
}

func (r *recordingMetrics) RecordOutcome(ctx context.Context, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingMetrics) Outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}

// unlockRecorder counts lock releases.
type unlockRecorder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (u *unlockRecorder) Unlock(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	return u.err
}

func (u *unlockRecorder) Calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}
