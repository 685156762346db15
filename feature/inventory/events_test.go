package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListEvents(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)
	lot := seedLot(t, svc, 1, 10)
	for i := 0; i < 4; i++ {
		_, _, err := svc.Adjust(ctx, AdjustRequest{
			ShopID:    1,
			LotID:     lot.ID,
			Delta:     -1,
			EventType: EventSale,
			Actor:     strPtr("clerk"),
			Metadata:  map[string]any{"channel": "counter"},
		})
		require.NoError(t, err)
	}
	_, _, err := svc.Adjust(ctx, AdjustRequest{
		ShopID:    1,
		LotID:     lot.ID,
		Delta:     2,
		EventType: EventAdjustment,
		Reason:    "found in back room",
	})
	require.NoError(t, err)

	t.Run("Cursor Pages Newest First", func(t *testing.T) {
		page, err := svc.ListEvents(ctx, 1, EventFilter{Limit: 4})
		require.NoError(t, err)
		require.Len(t, page.Events, 4)
		assert.Equal(t, EventAdjustment, page.Events[0].EventType)
		require.NotZero(t, page.NextCursor)

		next, err := svc.ListEvents(ctx, 1, EventFilter{Limit: 4, Cursor: page.NextCursor})
		require.NoError(t, err)
		require.Len(t, next.Events, 2)
		assert.Equal(t, EventManual, next.Events[1].EventType)
		assert.Zero(t, next.NextCursor)
	})

	t.Run("Search", func(t *testing.T) {
		page, err := svc.ListEvents(ctx, 1, EventFilter{Search: "back room"})
		require.NoError(t, err)
		assert.Len(t, page.Events, 1)

		page, err = svc.ListEvents(ctx, 1, EventFilter{Search: "counter"})
		require.NoError(t, err)
		assert.Len(t, page.Events, 4)

		page, err = svc.ListEvents(ctx, 1, EventFilter{Type: EventSale, Search: "clerk"})
		require.NoError(t, err)
		assert.Len(t, page.Events, 4)
	})

	t.Run("Shop Scoped", func(t *testing.T) {
		page, err := svc.ListEvents(ctx, 2, EventFilter{})
		require.NoError(t, err)
		assert.Empty(t, page.Events)
	})
}
