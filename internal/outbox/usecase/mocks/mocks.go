// Package mocks provides mock implementations of the outbox use case interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/allisson/recipegraph/internal/outbox/domain"
)

// MockUseCase is a mock implementation of the outbox UseCase.
type MockUseCase struct {
	mock.Mock
}

// Start mocks the Start method of UseCase.
func (m *MockUseCase) Start(ctx context.Context, workerID string) error {
	args := m.Called(ctx, workerID)
	return args.Error(0)
}

// ProcessEvents mocks the ProcessEvents method of UseCase.
func (m *MockUseCase) ProcessEvents(ctx context.Context, workerID string) (int, error) {
	args := m.Called(ctx, workerID)
	return args.Int(0), args.Error(1)
}

// RequeueDead mocks the RequeueDead method of UseCase.
func (m *MockUseCase) RequeueDead(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// PurgeDone mocks the PurgeDone method of UseCase.
func (m *MockUseCase) PurgeDone(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

// Stats mocks the Stats method of UseCase.
func (m *MockUseCase) Stats(ctx context.Context) ([]domain.StatusCount, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.StatusCount), args.Error(1)
}

// WithAggregateLock mocks the WithAggregateLock method of UseCase. fn runs when the
// configured error is nil.
func (m *MockUseCase) WithAggregateLock(
	ctx context.Context,
	aggregateID string,
	fn func(ctx context.Context) error,
) error {
	args := m.Called(ctx, aggregateID, fn)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx)
}
