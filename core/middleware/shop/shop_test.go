package shop_test

import (
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"card-inventory/core/middleware/shop"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShopScope(t *testing.T) {
	app := fiber.New()
	app.Use(shop.New("/health"))
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/", func(c *fiber.Ctx) error {
		actor := "system"
		if a := shop.Actor(c); a != nil {
			actor = *a
		}
		return c.SendString(fmt.Sprintf("%d/%s", shop.ID(c), actor))
	})

	t.Run("Missing", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Skipped", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("Scoped", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(shop.Header, "7")
		req.Header.Set(shop.ActorHeader, "alice")
		resp, err := app.Test(req)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "7/alice", string(body))
	})

	t.Run("System actor", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(shop.Header, "7")
		resp, err := app.Test(req)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "7/system", string(body))
	})
}
