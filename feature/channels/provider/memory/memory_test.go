package memory

import (
	"context"
	"testing"
	"time"

	"card-inventory/feature/channels/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider(t *testing.T) {
	ctx := context.Background()
	p := New()
	ref := provider.ListingRef{ExternalListingID: "L1", ExternalSKU: "NM-1"}

	_, err := p.GetListing(ctx, provider.Credential{}, ref)
	assert.ErrorIs(t, err, provider.ErrListingNotFound)

	require.NoError(t, p.UpdateQuantity(ctx, provider.Credential{}, ref, 4))
	l, err := p.GetListing(ctx, provider.Credential{}, ref)
	require.NoError(t, err)
	assert.Equal(t, 4, l.Quantity)
	assert.Equal(t, 1, p.Updates())

	p.FailNext("update", 1)
	assert.Error(t, p.UpdateQuantity(ctx, provider.Credential{}, ref, 5))
	assert.NoError(t, p.UpdateQuantity(ctx, provider.Credential{}, ref, 5))
}

func TestProvider_Orders(t *testing.T) {
	ctx := context.Background()
	p := New()
	p.AddOrder(provider.Order{OrderID: "1"})

	batch, err := p.ListOrders(ctx, provider.Credential{}, "")
	require.NoError(t, err)
	assert.Len(t, batch.Orders, 1)

	p.AddOrder(provider.Order{OrderID: "2"})
	next, err := p.ListOrders(ctx, provider.Credential{}, batch.Cursor)
	require.NoError(t, err)
	require.Len(t, next.Orders, 1)
	assert.Equal(t, "2", next.Orders[0].OrderID)
}

func TestProvider_DelayHonoursContext(t *testing.T) {
	p := New()
	p.SetDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.UpdateQuantity(ctx, provider.Credential{}, provider.ListingRef{ExternalListingID: "L1"}, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRefreshCredential(t *testing.T) {
	p := New()
	_, err := p.RefreshCredential(context.Background(), provider.Credential{})
	assert.ErrorIs(t, err, provider.ErrUnauthorized)

	cred, err := p.RefreshCredential(context.Background(), provider.Credential{RefreshToken: "r"})
	require.NoError(t, err)
	assert.False(t, cred.ExpiresWithin(time.Now(), 5*time.Minute))
}
