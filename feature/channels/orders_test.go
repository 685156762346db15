package channels

import (
	"context"
	"errors"
	"testing"

	"card-inventory/feature/channels/provider"
	"card-inventory/feature/inventory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func order(id string, lines ...provider.LineItem) provider.Order {
	return provider.Order{OrderID: id, LineItems: lines}
}

func lotQuantity(t *testing.T, f *fixture, lotID uint) int {
	t.Helper()
	lot, err := f.inv.GetLotByID(context.Background(), lotID)
	require.NoError(t, err)
	return lot.QuantityAvailable
}

func TestPollOrders_AppliesSalesOnce(t *testing.T) {
	f := setup(t, nil)
	lot := f.lot(t, "BL-1", 5)
	f.link(t, lot, "ext-1")

	f.channel.AddOrder(order("o-1", provider.LineItem{LineItemID: "l-1", ExternalListingID: "ext-1", Quantity: 2}))
	report, err := f.svc.PollOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Integrations)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, 3, lotQuantity(t, f, lot.ID))

	// The cursor moved past the order; a second poll sees nothing new.
	report, err = f.svc.PollOrders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Orders)
	assert.Equal(t, 3, lotQuantity(t, f, lot.ID))

	// Redelivering the same order through the webhook is a replay.
	r, err := f.svc.ApplyWebhook(context.Background(), f.integ.Provider, WebhookOrders{
		IntegrationID: f.integ.ID,
		Orders:        []provider.Order{order("o-1", provider.LineItem{LineItemID: "l-1", ExternalListingID: "ext-1", Quantity: 2})},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Replayed)
	assert.Equal(t, 3, lotQuantity(t, f, lot.ID))

	events, err := f.inv.LotEvents(context.Background(), lot.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, inventory.EventSale, events[1].EventType)
	require.NotNil(t, events[1].ProviderEventID)
	assert.Equal(t, "memory_order_o-1_l-1", *events[1].ProviderEventID)
}

func TestPollIntegration_FailureKeepsCursor(t *testing.T) {
	f := setup(t, nil)
	lot := f.lot(t, "BL-1", 5)
	f.channel.AddOrder(order("o-1", provider.LineItem{LineItemID: "l-1", SKU: "BL-1", Quantity: 1}))
	f.channel.FailNext("orders", 1)

	report, err := f.svc.PollOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.PollFailures)

	integ, err := f.svc.GetIntegration(context.Background(), testShop, f.integ.ID)
	require.NoError(t, err)
	assert.Empty(t, integ.LastPollCursor)
	assert.Equal(t, 5, lotQuantity(t, f, lot.ID))

	// Unlisted lots still match on their sku.
	r, err := f.svc.PollIntegration(context.Background(), integ)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Applied)
	assert.Equal(t, "1", integ.LastPollCursor)
	assert.Equal(t, 4, lotQuantity(t, f, lot.ID))
}

func TestPollIntegration_FailedLinesHoldCursor(t *testing.T) {
	f := setup(t, nil)
	lot := f.lot(t, "BL-1", 5)
	f.link(t, lot, "ext-1")
	f.channel.AddOrder(order("o-1", provider.LineItem{LineItemID: "l-1", ExternalListingID: "ext-1", Quantity: 2}))

	const cb = "test:fail_ledger_writes"
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register(cb, func(tx *gorm.DB) {
		if tx.Statement.Table == "lot_events" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	integ, err := f.svc.GetIntegration(context.Background(), testShop, f.integ.ID)
	require.NoError(t, err)
	r, err := f.svc.PollIntegration(context.Background(), integ)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Failed)
	assert.Empty(t, integ.LastPollCursor)
	assert.Equal(t, 5, lotQuantity(t, f, lot.ID))

	require.NoError(t, f.db.Callback().Create().Remove(cb))

	r, err = f.svc.PollIntegration(context.Background(), integ)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Applied)
	assert.Equal(t, "1", integ.LastPollCursor)
	assert.Equal(t, 3, lotQuantity(t, f, lot.ID))
}

func TestApplyOrders_Cancellation(t *testing.T) {
	f := setup(t, nil)
	lot := f.lot(t, "BL-1", 5)
	f.link(t, lot, "ext-1")

	sale := provider.LineItem{LineItemID: "l-1", ExternalListingID: "ext-1", Quantity: 2}
	cancelled := sale
	cancelled.Cancelled = true

	report := f.svc.ApplyOrders(context.Background(), f.integ, []provider.Order{order("o-1", sale)})
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, 3, lotQuantity(t, f, lot.ID))

	report = f.svc.ApplyOrders(context.Background(), f.integ, []provider.Order{order("o-1", cancelled)})
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, 5, lotQuantity(t, f, lot.ID))

	report = f.svc.ApplyOrders(context.Background(), f.integ, []provider.Order{order("o-1", cancelled)})
	assert.Equal(t, 1, report.Replayed)
	assert.Equal(t, 5, lotQuantity(t, f, lot.ID))

	// An order cancelled before its sale was seen changes nothing.
	report = f.svc.ApplyOrders(context.Background(), f.integ, []provider.Order{
		order("o-2", provider.LineItem{LineItemID: "l-1", ExternalListingID: "ext-1", Quantity: 1, Cancelled: true}),
	})
	assert.Equal(t, 1, report.Replayed)
	assert.Equal(t, 5, lotQuantity(t, f, lot.ID))
}

func TestApplyOrders_OversellRefused(t *testing.T) {
	f := setup(t, nil)
	lot := f.lot(t, "BL-1", 1)
	f.link(t, lot, "ext-1")

	report := f.svc.ApplyOrders(context.Background(), f.integ, []provider.Order{
		order("o-1", provider.LineItem{LineItemID: "l-1", ExternalListingID: "ext-1", Quantity: 3}),
		order("o-2", provider.LineItem{LineItemID: "l-1", SKU: "NOPE", Quantity: 1}),
	})
	assert.Equal(t, 2, report.Orders)
	assert.Equal(t, 1, report.Refused)
	assert.Equal(t, 1, report.Unmatched)
	assert.Equal(t, 1, lotQuantity(t, f, lot.ID))
}

func TestSignature(t *testing.T) {
	body := []byte(`{"integration_id":1}`)
	sig := Sign("secret", body)
	assert.True(t, VerifySignature("secret", body, sig))
	assert.False(t, VerifySignature("other", body, sig))
	assert.False(t, VerifySignature("secret", append(body, ' '), sig))
	assert.False(t, VerifySignature("", body, sig))
	assert.False(t, VerifySignature("secret", body, "not base64!"))
}
