package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"card-inventory/core/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	metrics.LedgerAdjustments.WithLabelValues("sale").Inc()

	app := fiber.New()
	app.Get("/metrics", metrics.Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "card_inventory_ledger_adjustments_total")
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(metrics.ChannelPushes.WithLabelValues("memory", "failed"))
	metrics.ChannelPushes.WithLabelValues("memory", metrics.Result(errors.New("x"))).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ChannelPushes.WithLabelValues("memory", "failed")))
	assert.Equal(t, "success", metrics.Result(nil))
}
