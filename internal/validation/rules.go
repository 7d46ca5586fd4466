// Package validation provides custom validation rules for the application.
package validation

import (
	"fmt"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/recipegraph/internal/errors"
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// UniqueKeys validates that the keys extracted from a slice do not repeat.
// Empty keys are ignored; pair it with Required on the element to reject them.
type UniqueKeys[T any] struct {
	Key  func(T) string
	Name string
}

// Validate checks value, which must be a []T.
func (u UniqueKeys[T]) Validate(value interface{}) error {
	items, ok := value.([]T)
	if !ok {
		return validation.NewError("validation_unique_keys_type", "must be a list")
	}

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		key := u.Key(item)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			return validation.NewError(
				"validation_unique_keys",
				fmt.Sprintf("duplicate %s %q", u.Name, key),
			)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// NotBlank rejects strings made only of whitespace, in addition to empty ones.
var NotBlank = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return nil
		}
	}
	return validation.NewError("validation_not_blank", "cannot be blank")
})
