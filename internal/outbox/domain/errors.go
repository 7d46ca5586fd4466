package domain

import (
	"github.com/allisson/recipegraph/internal/errors"
)

// Outbox error definitions.
var (
	// ErrAggregateLocked indicates another worker holds the aggregate lock past the wait timeout.
	ErrAggregateLocked = errors.Wrap(errors.ErrLocked, "aggregate locked by another worker")
)
