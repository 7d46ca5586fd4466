// Package domain defines the recipe aggregate, its validation and its graph model.
package domain

import (
	"github.com/allisson/recipegraph/internal/errors"
)

// Recipe projection error definitions.
var (
	// ErrRecipeNotFound indicates the recipe core row is absent from the source of truth.
	ErrRecipeNotFound = errors.Wrap(errors.ErrNotFound, "recipe not found")

	// ErrInvalidAggregate indicates the loaded aggregate failed structural validation.
	ErrInvalidAggregate = errors.Wrap(errors.ErrInvalidInput, "invalid recipe aggregate")

	// ErrUnsupportedEvent indicates an event with an unknown aggregate type or operation.
	ErrUnsupportedEvent = errors.Wrap(errors.ErrPermanent, "unsupported event")
)
