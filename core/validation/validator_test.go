package validation_test

import (
	"errors"
	"testing"

	"card-inventory/core/apperr"
	"card-inventory/core/validation"

	"github.com/stretchr/testify/assert"
)

type lotInput struct {
	CardID    uint   `json:"card_id" validate:"required"`
	Condition string `json:"condition" validate:"condition"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
}

func TestStruct(t *testing.T) {
	v := validation.Get()

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, v.Struct(lotInput{CardID: 1, Condition: "lp", Quantity: 2}))
	})

	t.Run("Invalid", func(t *testing.T) {
		err := v.Struct(lotInput{Condition: "mint", Quantity: -1})
		assert.True(t, errors.Is(err, apperr.ErrValidation))
		assert.Contains(t, err.Error(), "card_id: is required")
		assert.Contains(t, err.Error(), "condition: must be a grade")
		assert.Contains(t, err.Error(), "quantity: must be at least 0")
	})
}

func TestFormatValidationError(t *testing.T) {
	assert.Nil(t, validation.FormatValidationError(nil))
	assert.Equal(t, map[string]string{"error": "invalid request format"},
		validation.FormatValidationError(errors.New("boom")))
}
