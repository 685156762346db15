package apperr

import (
	"github.com/gofiber/fiber/v2"
)

// HTTPStatus maps an error kind to its response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return fiber.StatusBadRequest
	case KindNotFound:
		return fiber.StatusNotFound
	case KindConflict:
		return fiber.StatusConflict
	case KindInvariantViolation:
		return fiber.StatusUnprocessableEntity
	case KindExternalChannel:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// Respond writes err as a JSON error body with the mapped status.
// Internal errors are not echoed to the client.
func Respond(c *fiber.Ctx, err error) error {
	status := HTTPStatus(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		msg = "internal server error"
	}
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
		"kind":  string(KindOf(err)),
	})
}
