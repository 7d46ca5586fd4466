package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/allisson/recipegraph/internal/errors"
)

func TestValidIdentifier(t *testing.T) {
	for _, valid := range []string{"Recipe", "HAS_NUTRITION_VALUE", "Node2"} {
		assert.True(t, ValidIdentifier(valid), valid)
	}
	for _, invalid := range []string{"", "2Node", "Bad Label", "X`) DETACH DELETE n //", "a-b"} {
		assert.False(t, ValidIdentifier(invalid), invalid)
	}
}

func TestNodeRef_String(t *testing.T) {
	assert.Equal(t, "Recipe(42)", NodeRef{Label: "Recipe", Key: "42"}.String())
}

func TestErrorClassification(t *testing.T) {
	assert.ErrorIs(t, ErrUnavailable, apperrors.ErrTransient)
	assert.ErrorIs(t, ErrConflict, apperrors.ErrConflict)
	assert.True(t, apperrors.IsPermanent(ErrInvalidIdentifier))
}
