// Package mocks provides mock implementations of the recipe use case interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	outboxDomain "github.com/allisson/recipegraph/internal/outbox/domain"
	"github.com/allisson/recipegraph/internal/recipe/domain"
)

// MockRecipeRepository is a mock implementation of RecipeRepository.
type MockRecipeRepository struct {
	mock.Mock
}

// Load mocks the Load method of RecipeRepository.
func (m *MockRecipeRepository) Load(ctx context.Context, recipeID string) (*domain.RecipeAggregate, error) {
	args := m.Called(ctx, recipeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RecipeAggregate), args.Error(1)
}

// MockProjectorUseCase is a mock implementation of ProjectorUseCase.
type MockProjectorUseCase struct {
	mock.Mock
}

// Project mocks the Project method of ProjectorUseCase.
func (m *MockProjectorUseCase) Project(ctx context.Context, aggregate *domain.RecipeAggregate) error {
	args := m.Called(ctx, aggregate)
	return args.Error(0)
}

// MockReconcilerUseCase is a mock implementation of ReconcilerUseCase.
type MockReconcilerUseCase struct {
	mock.Mock
}

// Reconcile mocks the Reconcile method of ReconcilerUseCase.
func (m *MockReconcilerUseCase) Reconcile(ctx context.Context, recipeID string) error {
	args := m.Called(ctx, recipeID)
	return args.Error(0)
}

// MockRouterUseCase is a mock implementation of RouterUseCase.
type MockRouterUseCase struct {
	mock.Mock
}

// Sync mocks the Sync method of RouterUseCase.
func (m *MockRouterUseCase) Sync(ctx context.Context, recipeID string) (domain.SyncAction, error) {
	args := m.Called(ctx, recipeID)
	return args.Get(0).(domain.SyncAction), args.Error(1)
}

// Process mocks the Process method of RouterUseCase.
func (m *MockRouterUseCase) Process(ctx context.Context, event *outboxDomain.OutboxEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
