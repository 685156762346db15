package reconciliation

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"card-inventory/core/middleware/shop"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(shop.Header, "1")
	req.Header.Set(shop.ActorHeader, "tester")

	resp, err := app.Test(req)
	require.NoError(t, err)

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestHandlers(t *testing.T) {
	f := setup(t, Config{})
	app := fiber.New()
	app.Use(shop.New())
	require.NoError(t, NewFeature(f.svc, zap.NewNop()).Load(app))

	lot, _ := f.syncedListing(t, "SR-1", "ext-1", 5)
	f.adjust(t, lot.ID, 2)

	t.Run("Dry Run", func(t *testing.T) {
		status, body := doJSON(t, app, "POST", "/reconciliation/scan?dry_run=true", "")
		require.Equal(t, 200, status, body)
		summary := body["summary"].(map[string]any)
		assert.Equal(t, float64(1), summary["mismatches"])
		assert.Empty(t, f.pending(t))
	})

	var id uint
	t.Run("Scan", func(t *testing.T) {
		status, body := doJSON(t, app, "POST", "/reconciliation/scan", "")
		require.Equal(t, 200, status, body)
		assert.Equal(t, float64(1), body["created"])

		status, body = doJSON(t, app, "GET", "/mismatches?status=pending", "")
		require.Equal(t, 200, status, body)
		assert.Equal(t, float64(1), body["total"])
		m := body["mismatches"].([]any)[0].(map[string]any)
		id = uint(m["id"].(float64))
		assert.Equal(t, float64(7), m["internal_quantity"])
		assert.Equal(t, float64(5), m["channel_quantity"])
	})

	t.Run("Unknown Resolution", func(t *testing.T) {
		status, body := doJSON(t, app, "POST", fmt.Sprintf("/mismatches/%d/resolve", id), `{"resolution":"later"}`)
		assert.Equal(t, 400, status)
		assert.Equal(t, "validation", body["kind"])
	})

	t.Run("Resolve", func(t *testing.T) {
		status, body := doJSON(t, app, "POST", fmt.Sprintf("/mismatches/%d/resolve", id), `{"resolution":"ignore","notes":"fine"}`)
		require.Equal(t, 200, status, body)
		assert.Equal(t, "ignore", body["status"])
		assert.Equal(t, "tester", body["resolved_by"])
	})

	t.Run("Resolve Twice", func(t *testing.T) {
		status, body := doJSON(t, app, "POST", fmt.Sprintf("/mismatches/%d/resolve", id), `{"resolution":"ignore"}`)
		assert.Equal(t, 409, status)
		assert.Equal(t, "conflict", body["kind"])
	})

	t.Run("Not Found", func(t *testing.T) {
		status, _ := doJSON(t, app, "GET", "/mismatches/999", "")
		assert.Equal(t, 404, status)
	})
}
