// Package usecase implements the recipe projection: routing claimed events, rewriting the
// recipe subgraph and reconciling deleted recipes.
package usecase

import (
	"context"

	outboxDomain "github.com/allisson/recipegraph/internal/outbox/domain"
	"github.com/allisson/recipegraph/internal/recipe/domain"
)

// RecipeRepository loads recipe aggregates from the source of truth.
type RecipeRepository interface {
	Load(ctx context.Context, recipeID string) (*domain.RecipeAggregate, error)
}

// ProjectorUseCase rewrites the subgraph of one recipe to match its aggregate.
type ProjectorUseCase interface {
	Project(ctx context.Context, aggregate *domain.RecipeAggregate) error
}

// ReconcilerUseCase removes a recipe that no longer exists in the source of truth.
type ReconcilerUseCase interface {
	Reconcile(ctx context.Context, recipeID string) error
}

// RouterUseCase decides between projection and reconciliation by re-reading the source.
type RouterUseCase interface {
	// Sync brings Recipe(recipeID) in line with the source of truth.
	Sync(ctx context.Context, recipeID string) (domain.SyncAction, error)
	// Process handles one claimed outbox event.
	Process(ctx context.Context, event *outboxDomain.OutboxEvent) error
}
