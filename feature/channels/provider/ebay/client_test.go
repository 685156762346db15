package ebay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"card-inventory/feature/channels/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		AppID:    "app",
		CertID:   "cert",
		RuName:   "ru",
		BaseURL:  srv.URL,
		TokenURL: srv.URL + "/token",
	}, zap.NewNop())
}

func TestUpdateQuantity_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sell/inventory/v1/inventory_item/NM-1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var item inventoryItem
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&item))
		assert.Equal(t, 7, item.Availability.ShipToLocationAvailability.Quantity)
		w.WriteHeader(http.StatusNoContent)
	}))

	err := c.UpdateQuantity(context.Background(), provider.Credential{AccessToken: "tok"},
		provider.ListingRef{ExternalListingID: "123", ExternalSKU: "NM-1"}, 7)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestUpdateQuantity_GivesUpAfterRetries(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	err := c.UpdateQuantity(context.Background(), provider.Credential{}, provider.ListingRef{ExternalListingID: "1"}, 1)
	assert.ErrorContains(t, err, "max retries")
}

func TestGetListing(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sell/inventory/v1/inventory_item/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"availability":{"shipToLocationAvailability":{"quantity":5}},"product":{"title":"Bolt"}}`)
	}))

	l, err := c.GetListing(context.Background(), provider.Credential{}, provider.ListingRef{ExternalListingID: "123", ExternalSKU: "NM-1"})
	require.NoError(t, err)
	assert.Equal(t, 5, l.Quantity)
	assert.Equal(t, "Bolt", l.Title)

	_, err = c.GetListing(context.Background(), provider.Credential{}, provider.ListingRef{ExternalListingID: "missing"})
	assert.ErrorIs(t, err, provider.ErrListingNotFound)
}

func TestRefreshCredential(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "app", user)
		assert.Equal(t, "cert", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "r1", r.PostForm.Get("refresh_token"))
		fmt.Fprint(w, `{"access_token":"a2","expires_in":7200}`)
	}))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	cred, err := c.RefreshCredential(context.Background(), provider.Credential{AccessToken: "a1", RefreshToken: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "a2", cred.AccessToken)
	assert.Equal(t, "r1", cred.RefreshToken)
	assert.Equal(t, now.Add(2*time.Hour), cred.ExpiresAt)

	_, err = c.RefreshCredential(context.Background(), provider.Credential{})
	assert.ErrorIs(t, err, provider.ErrUnauthorized)
}

func TestListOrders(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "creationdate:[2026-01-01T00:00:00.000Z..]", r.URL.Query().Get("filter"))
		fmt.Fprint(w, `{"orders":[
			{"orderId":"o1","lineItems":[{"lineItemId":"l1","sku":"NM-1","quantity":2}]},
			{"orderId":"o2","cancelStatus":{"cancelState":"CANCELED"},"lineItems":[{"lineItemId":"l2","sku":"NM-1","quantity":1}]}
		]}`)
	}))

	batch, err := c.ListOrders(context.Background(), provider.Credential{}, "2026-01-01T00:00:00.000Z")
	require.NoError(t, err)
	require.Len(t, batch.Orders, 2)
	assert.Equal(t, 2, batch.Orders[0].LineItems[0].Quantity)
	assert.False(t, batch.Orders[0].LineItems[0].Cancelled)
	assert.True(t, batch.Orders[1].LineItems[0].Cancelled)
	assert.NotEmpty(t, batch.Cursor)
}

func TestAuthorizationURL(t *testing.T) {
	c := New(Config{AppID: "app", RuName: "ru"}, zap.NewNop())
	raw, err := c.AuthorizationURL("42")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "auth.sandbox.ebay.com", u.Host)
	assert.Equal(t, "42", u.Query().Get("state"))
	assert.Equal(t, "app", u.Query().Get("client_id"))

	_, err = New(Config{}, zap.NewNop()).AuthorizationURL("1")
	assert.Error(t, err)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter("3"))
	assert.Equal(t, defaultRetryAfter, retryAfter(""))
	assert.Equal(t, defaultRetryAfter, retryAfter("soon"))
}
