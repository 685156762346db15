package loader_test

import (
	"errors"
	"net/http/httptest"
	"testing"

	"card-inventory/core/loader"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFeature struct {
	name    string
	enabled bool
	err     error
}

func (s stubFeature) Name() string    { return s.name }
func (s stubFeature) IsEnabled() bool { return s.enabled }
func (s stubFeature) Load(app fiber.Router) error {
	if s.err != nil {
		return s.err
	}
	app.Get("/"+s.name, func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	return nil
}

func TestManager_LoadAll(t *testing.T) {
	app := fiber.New()
	mgr := loader.NewManager(nil)
	mgr.Register(stubFeature{name: "lots", enabled: true})
	mgr.Register(stubFeature{name: "hidden", enabled: false})

	require.NoError(t, mgr.LoadAll(app))
	assert.Len(t, mgr.Features(), 2)

	resp, _ := app.Test(httptest.NewRequest("GET", "/lots", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = app.Test(httptest.NewRequest("GET", "/hidden", nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestManager_LoadError(t *testing.T) {
	mgr := loader.NewManager(nil)
	mgr.Register(stubFeature{name: "broken", enabled: true, err: errors.New("boom")})

	err := mgr.LoadAll(fiber.New())
	assert.ErrorContains(t, err, "broken")
}
