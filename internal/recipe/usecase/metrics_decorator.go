package usecase

import (
	"context"
	"time"

	"github.com/allisson/recipegraph/internal/metrics"
	outboxDomain "github.com/allisson/recipegraph/internal/outbox/domain"
	"github.com/allisson/recipegraph/internal/recipe/domain"
)

// projectorUseCaseWithMetrics decorates ProjectorUseCase with metrics instrumentation.
type projectorUseCaseWithMetrics struct {
	next    ProjectorUseCase
	metrics metrics.BusinessMetrics
}

// NewProjectorUseCaseWithMetrics wraps a ProjectorUseCase with metrics recording.
func NewProjectorUseCaseWithMetrics(useCase ProjectorUseCase, m metrics.BusinessMetrics) ProjectorUseCase {
	return &projectorUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Project records metrics for recipe projections.
func (p *projectorUseCaseWithMetrics) Project(ctx context.Context, aggregate *domain.RecipeAggregate) error {
	start := time.Now()
	err := p.next.Project(ctx, aggregate)

	status := "success"
	if err != nil {
		status = "error"
	}

	p.metrics.RecordOperation(ctx, "recipe", "recipe_project", status)
	p.metrics.RecordDuration(ctx, "recipe", "recipe_project", time.Since(start), status)

	return err
}

// reconcilerUseCaseWithMetrics decorates ReconcilerUseCase with metrics instrumentation.
type reconcilerUseCaseWithMetrics struct {
	next    ReconcilerUseCase
	metrics metrics.BusinessMetrics
}

// NewReconcilerUseCaseWithMetrics wraps a ReconcilerUseCase with metrics recording.
func NewReconcilerUseCaseWithMetrics(useCase ReconcilerUseCase, m metrics.BusinessMetrics) ReconcilerUseCase {
	return &reconcilerUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Reconcile records metrics for recipe deletions.
func (r *reconcilerUseCaseWithMetrics) Reconcile(ctx context.Context, recipeID string) error {
	start := time.Now()
	err := r.next.Reconcile(ctx, recipeID)

	status := "success"
	if err != nil {
		status = "error"
	}

	r.metrics.RecordOperation(ctx, "recipe", "recipe_reconcile", status)
	r.metrics.RecordDuration(ctx, "recipe", "recipe_reconcile", time.Since(start), status)

	return err
}

// routerUseCaseWithMetrics decorates RouterUseCase with metrics instrumentation.
type routerUseCaseWithMetrics struct {
	next    RouterUseCase
	metrics metrics.BusinessMetrics
}

// NewRouterUseCaseWithMetrics wraps a RouterUseCase with metrics recording.
func NewRouterUseCaseWithMetrics(useCase RouterUseCase, m metrics.BusinessMetrics) RouterUseCase {
	return &routerUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Sync records metrics for direct synchronizations.
func (r *routerUseCaseWithMetrics) Sync(ctx context.Context, recipeID string) (domain.SyncAction, error) {
	start := time.Now()
	action, err := r.next.Sync(ctx, recipeID)
	r.record(ctx, "recipe_sync", start, err)
	return action, err
}

// Process records metrics for outbox event handling.
func (r *routerUseCaseWithMetrics) Process(ctx context.Context, event *outboxDomain.OutboxEvent) error {
	start := time.Now()
	err := r.next.Process(ctx, event)
	r.record(ctx, "recipe_process_event", start, err)
	return err
}

func (r *routerUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	r.metrics.RecordOperation(ctx, "recipe", operation, status)
	r.metrics.RecordDuration(ctx, "recipe", operation, time.Since(start), status)
}
