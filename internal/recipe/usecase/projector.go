package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/allisson/recipegraph/internal/graph"
	"github.com/allisson/recipegraph/internal/recipe/domain"
)

// projectorUseCase implements ProjectorUseCase on a graph.Store.
type projectorUseCase struct {
	store     graph.Store
	txTimeout time.Duration
	logger    *slog.Logger
}

// NewProjectorUseCase creates a ProjectorUseCase. A zero txTimeout disables the deadline.
func NewProjectorUseCase(store graph.Store, txTimeout time.Duration, logger *slog.Logger) ProjectorUseCase {
	return &projectorUseCase{
		store:     store,
		txTimeout: txTimeout,
		logger:    logger,
	}
}

// Project validates the aggregate and rewrites its subgraph in a single graph transaction.
func (p *projectorUseCase) Project(ctx context.Context, aggregate *domain.RecipeAggregate) error {
	if err := aggregate.Validate(); err != nil {
		return err
	}

	plan := buildProjection(aggregate)

	ctx, cancel := withTimeout(ctx, p.txTimeout)
	defer cancel()

	err := p.store.ExecuteWrite(ctx, func(ctx context.Context, tx graph.Tx) error {
		return plan.apply(ctx, tx)
	})
	if err != nil {
		return err
	}

	if p.logger != nil {
		p.logger.Debug("recipe projected",
			slog.String("aggregate_id", aggregate.Recipe.ID),
			slog.Int("nutrition_values", len(plan.nutrition)),
			slog.Int("ingredients", len(plan.ingredients)),
			slog.Int("products", len(plan.products)),
			slog.Bool("cuisine", plan.cuisine != nil),
		)
	}
	return nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
