// Package usecase implements the outbox business logic and orchestrates outbox domain operations.
package usecase

import (
	"context"
	"time"

	"github.com/allisson/recipegraph/internal/outbox/domain"
)

// OutboxEventRepository defines outbox event repository operations
type OutboxEventRepository interface {
	Create(ctx context.Context, event *domain.OutboxEvent) error
	Claim(ctx context.Context, aggregateType string, now time.Time, limit int) ([]*domain.OutboxEvent, error)
	Update(ctx context.Context, event *domain.OutboxEvent) error
	RequeueDead(ctx context.Context, aggregateType string, now time.Time) (int64, error)
	DeleteDoneBefore(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context) ([]domain.StatusCount, error)
}

// AggregateLocker provides mutual exclusion per aggregate across workers. Lock runs on
// the claim transaction carried by ctx and fails with domain.ErrAggregateLocked when the
// wait times out. The returned function releases the lock and must be called before
// that transaction ends.
type AggregateLocker interface {
	Lock(ctx context.Context, aggregateType, aggregateID string) (func(ctx context.Context) error, error)
}

// EventProcessor defines the interface for processing claimed events
type EventProcessor interface {
	Process(ctx context.Context, event *domain.OutboxEvent) error
}

// UseCase defines the interface for outbox use cases
type UseCase interface {
	// Start polls until ctx is cancelled.
	Start(ctx context.Context, workerID string) error
	// ProcessEvents claims and settles one batch and returns how many events were settled.
	ProcessEvents(ctx context.Context, workerID string) (int, error)
	// RequeueDead gives dead events a fresh attempt budget.
	RequeueDead(ctx context.Context) (int64, error)
	// PurgeDone deletes done events processed more than olderThan ago.
	PurgeDone(ctx context.Context, olderThan time.Duration) (int64, error)
	// Stats counts events per aggregate type and status.
	Stats(ctx context.Context) ([]domain.StatusCount, error)
	// WithAggregateLock runs fn inside a transaction holding the same aggregate lock
	// the workers take, so fn never interleaves with an event of that aggregate.
	WithAggregateLock(ctx context.Context, aggregateID string, fn func(ctx context.Context) error) error
}
