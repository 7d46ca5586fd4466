package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "github.com/allisson/recipegraph/internal/errors"
	outboxDomain "github.com/allisson/recipegraph/internal/outbox/domain"
	"github.com/allisson/recipegraph/internal/recipe/domain"
)

// RouterConfig holds the router settings.
type RouterConfig struct {
	// LoadTimeout bounds one aggregate read; zero disables it.
	LoadTimeout time.Duration
	// ConflictRetries is the number of reload and re-project rounds after a conflict.
	ConflictRetries int
}

// routerUseCase implements RouterUseCase.
type routerUseCase struct {
	config     RouterConfig
	repo       RecipeRepository
	projector  ProjectorUseCase
	reconciler ReconcilerUseCase
	logger     *slog.Logger
}

// NewRouterUseCase creates a RouterUseCase.
func NewRouterUseCase(
	config RouterConfig,
	repo RecipeRepository,
	projector ProjectorUseCase,
	reconciler ReconcilerUseCase,
	logger *slog.Logger,
) RouterUseCase {
	return &routerUseCase{
		config:     config,
		repo:       repo,
		projector:  projector,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Process implements the outbox event processor. The declared operation is checked for
// well-formedness only; the source of truth decides between upsert and delete.
func (r *routerUseCase) Process(ctx context.Context, event *outboxDomain.OutboxEvent) error {
	if event.AggregateType != outboxDomain.AggregateTypeRecipe {
		return apperrors.Wrapf(domain.ErrUnsupportedEvent, "aggregate type %q", event.AggregateType)
	}
	if !event.Operation.Valid() {
		return apperrors.Wrapf(domain.ErrUnsupportedEvent, "operation %q", event.Operation)
	}
	if event.AggregateID == "" {
		return apperrors.Wrap(domain.ErrUnsupportedEvent, "empty aggregate id")
	}

	action, err := r.Sync(ctx, event.AggregateID)
	if err != nil {
		return err
	}

	if r.logger != nil && (action == domain.SyncActionDelete) != (event.Operation == outboxDomain.OperationDelete) {
		r.logger.Info("declared operation superseded by source state",
			slog.String("event_id", event.ID.String()),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("operation", string(event.Operation)),
			slog.String("action", string(action)),
		)
	}
	return nil
}

// Sync re-reads the aggregate: present means project, absent means reconcile. A
// projection conflict restarts from a fresh read, up to ConflictRetries times, and is
// reported as transient once they are exhausted.
func (r *routerUseCase) Sync(ctx context.Context, recipeID string) (domain.SyncAction, error) {
	for attempt := 0; ; attempt++ {
		action, err := r.syncOnce(ctx, recipeID)
		if err == nil {
			return action, nil
		}
		if !apperrors.Is(err, apperrors.ErrConflict) {
			return "", err
		}
		if attempt >= r.config.ConflictRetries {
			return "", apperrors.Join(apperrors.ErrTransient, err)
		}

		if r.logger != nil {
			r.logger.Warn("projection conflict, reloading aggregate",
				slog.String("aggregate_id", recipeID),
				slog.Int("attempt", attempt+1),
				slog.Any("error", err),
			)
		}
	}
}

func (r *routerUseCase) syncOnce(ctx context.Context, recipeID string) (domain.SyncAction, error) {
	loadCtx, cancel := withTimeout(ctx, r.config.LoadTimeout)
	aggregate, err := r.repo.Load(loadCtx, recipeID)
	cancel()

	switch {
	case errors.Is(err, domain.ErrRecipeNotFound):
		return domain.SyncActionDelete, r.reconciler.Reconcile(ctx, recipeID)
	case err != nil:
		return "", err
	}
	return domain.SyncActionUpsert, r.projector.Project(ctx, aggregate)
}
