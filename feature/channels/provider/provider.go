package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrListingNotFound is returned when the channel has no listing with the given reference.
var ErrListingNotFound = errors.New("listing not found on channel")

// ErrUnauthorized is returned when the channel rejects the credential.
var ErrUnauthorized = errors.New("channel rejected the credential")

// Credential is the decrypted credential material of an integration.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// ExpiresWithin reports whether the access token expires before now+d.
// A zero expiry never expires.
func (c Credential) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now.Add(d))
}

// ListingRef addresses a listing on the channel.
type ListingRef struct {
	ExternalListingID string
	ExternalSKU       string
}

// Listing is the channel's view of a listing.
type Listing struct {
	ExternalListingID string `json:"external_listing_id"`
	ExternalSKU       string `json:"external_sku"`
	Title             string `json:"title"`
	Quantity          int    `json:"quantity"`
}

// LineItem is one line of a channel order.
type LineItem struct {
	LineItemID        string `json:"lineItemId"`
	ExternalListingID string `json:"legacyItemId"`
	SKU               string `json:"sku"`
	Quantity          int    `json:"quantity"`
	Cancelled         bool   `json:"cancelled"`
}

// Order is a channel order.
type Order struct {
	OrderID   string     `json:"orderId"`
	LineItems []LineItem `json:"lineItems"`
}

// OrderBatch is the result of one order poll. Cursor is passed to the next poll.
type OrderBatch struct {
	Orders []Order
	Cursor string
}

// Provider is the capability set every sales channel implements.
type Provider interface {
	Name() string
	// AuthorizationURL returns the URL a user visits to grant access. state is echoed back.
	AuthorizationURL(state string) (string, error)
	RefreshCredential(ctx context.Context, cred Credential) (Credential, error)
	GetListing(ctx context.Context, cred Credential, ref ListingRef) (*Listing, error)
	UpdateQuantity(ctx context.Context, cred Credential, ref ListingRef, quantity int) error
}

// OrderSource is implemented by providers that expose orders for polling.
type OrderSource interface {
	ListOrders(ctx context.Context, cred Credential, cursor string) (*OrderBatch, error)
}

// Registry maps provider names to implementations.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a registry holding the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

// Names returns the registered provider names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
