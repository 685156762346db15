package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"card-inventory/core/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	err := fmt.Errorf("load: %w", apperr.NotFoundf("lot %d", 7))

	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.False(t, errors.Is(err, apperr.ErrConflict))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, "load: lot 7 not found", err.Error())
}

func TestInvalidDelta(t *testing.T) {
	err := apperr.InvalidDelta(3, 7, -20)

	assert.True(t, errors.Is(err, apperr.ErrInvalidDelta))
	assert.True(t, errors.Is(err, apperr.ErrInvariantViolation))
	assert.Equal(t, apperr.KindInvariantViolation, apperr.KindOf(err))
}

func TestAlreadyResolvedIsConflict(t *testing.T) {
	assert.True(t, errors.Is(apperr.ErrAlreadyResolved, apperr.ErrConflict))
	assert.False(t, errors.Is(apperr.ErrConflict, apperr.ErrAlreadyResolved))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"Validation", apperr.Validationf("bad"), fiber.StatusBadRequest},
		{"NotFound", apperr.NotFoundf("x"), fiber.StatusNotFound},
		{"Conflict", apperr.ErrAlreadyResolved, fiber.StatusConflict},
		{"Invariant", apperr.InvalidDelta(1, 0, -1), fiber.StatusUnprocessableEntity},
		{"External", apperr.External("push", errors.New("timeout")), fiber.StatusBadGateway},
		{"Unknown", errors.New("boom"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.HTTPStatus(tt.err))
		})
	}
}
