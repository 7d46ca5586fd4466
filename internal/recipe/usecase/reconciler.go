package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/allisson/recipegraph/internal/graph"
	"github.com/allisson/recipegraph/internal/recipe/domain"
)

// reconcilerUseCase implements ReconcilerUseCase on a graph.Store.
type reconcilerUseCase struct {
	store     graph.Store
	txTimeout time.Duration
	logger    *slog.Logger
}

// NewReconcilerUseCase creates a ReconcilerUseCase. A zero txTimeout disables the deadline.
func NewReconcilerUseCase(store graph.Store, txTimeout time.Duration, logger *slog.Logger) ReconcilerUseCase {
	return &reconcilerUseCase{
		store:     store,
		txTimeout: txTimeout,
		logger:    logger,
	}
}

// Reconcile deletes Recipe(recipeID) with the nutrition values it owns. Shared nodes only
// lose their relationships to the recipe. Reconciling an absent recipe is a no-op.
func (r *reconcilerUseCase) Reconcile(ctx context.Context, recipeID string) error {
	ctx, cancel := withTimeout(ctx, r.txTimeout)
	defer cancel()

	recipe := domain.RecipeNode(recipeID)

	var (
		values  int
		existed bool
	)
	err := r.store.ExecuteWrite(ctx, func(ctx context.Context, tx graph.Tx) error {
		var err error
		values, err = tx.PruneOwned(ctx, recipe, domain.RelHasNutritionValue, domain.LabelRecipeNutritionValue, nil)
		if err != nil {
			return err
		}
		existed, err = tx.DetachDelete(ctx, recipe)
		return err
	})
	if err != nil {
		return err
	}

	if r.logger != nil {
		r.logger.Debug("recipe reconciled",
			slog.String("aggregate_id", recipeID),
			slog.Bool("existed", existed),
			slog.Int("nutrition_values", values),
		)
	}
	return nil
}
