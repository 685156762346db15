package auth_test

import (
	"net/http/httptest"
	"testing"

	"card-inventory/core/middleware/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuth(t *testing.T) {
	app := fiber.New()
	app.Use(auth.New(auth.Config{ApiKey: "secret", Skip: []string{"/webhooks"}}))
	app.Get("/lots", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Post("/webhooks/ebay/orders", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		want   int
	}{
		{"Missing key", "GET", "/lots", "", fiber.StatusUnauthorized},
		{"Wrong key", "GET", "/lots", "nope", fiber.StatusUnauthorized},
		{"Valid key", "GET", "/lots", "secret", fiber.StatusOK},
		{"Skipped prefix", "POST", "/webhooks/ebay/orders", "", fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.key != "" {
				req.Header.Set(auth.Header, tt.key)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestAuth_Disabled(t *testing.T) {
	app := fiber.New()
	app.Use(auth.New(auth.Config{}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
