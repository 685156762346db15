package shop

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	// Header carries the shop scope.
	Header = "X-Shop-ID"
	// ActorHeader names the user acting on the shop's behalf.
	ActorHeader = "X-Actor"

	localsShop  = "shop_id"
	localsActor = "actor"
)

// New returns a middleware that requires a numeric shop scope on every request
// and records the optional actor. Paths starting with a skip prefix are not scoped.
func New(skip ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		for _, prefix := range skip {
			if strings.HasPrefix(c.Path(), prefix) {
				return c.Next()
			}
		}
		id, err := strconv.ParseUint(c.Get(Header), 10, 64)
		if err != nil || id == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "missing or invalid " + Header + " header",
				"kind":  "validation",
			})
		}
		c.Locals(localsShop, uint(id))
		if actor := c.Get(ActorHeader); actor != "" {
			c.Locals(localsActor, actor)
		}
		return c.Next()
	}
}

// ID returns the shop scope of the request.
func ID(c *fiber.Ctx) uint {
	id, _ := c.Locals(localsShop).(uint)
	return id
}

// Actor returns the acting user, or nil for system requests.
func Actor(c *fiber.Ctx) *string {
	if a, ok := c.Locals(localsActor).(string); ok {
		return &a
	}
	return nil
}
