// Package domain defines the core outbox domain entities and types.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// AggregateTypeRecipe is the aggregate type consumed by the recipe projector.
const AggregateTypeRecipe = "recipe"

// OutboxEventStatus represents the status of an outbox event
type OutboxEventStatus string

// A claimed event has no status of its own: the claim is the row lock held by the
// processing transaction.
const (
	OutboxEventStatusPending OutboxEventStatus = "PENDING"
	OutboxEventStatusDone    OutboxEventStatus = "DONE"
	OutboxEventStatusDead    OutboxEventStatus = "DEAD"
)

// Operation is the change declared by the upstream writer.
type Operation string

const (
	OperationInsert Operation = "INSERT"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// Valid reports whether o is one of the known operations.
func (o Operation) Valid() bool {
	switch o {
	case OperationInsert, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// OutboxEvent represents a change to an aggregate recorded in the transactional outbox.
// The declared Operation is informative only; consumers re-read the aggregate.
type OutboxEvent struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	Operation     Operation
	Status        OutboxEventStatus
	AttemptCount  int
	LastError     *string
	NextAttemptAt time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StatusCount is the number of events of one aggregate type in one status.
type StatusCount struct {
	AggregateType string
	Status        OutboxEventStatus
	Count         int64
}
