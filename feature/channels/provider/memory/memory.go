package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"card-inventory/feature/channels/provider"
)

// Name is the provider name of the sandbox channel.
const Name = "memory"

// Provider is an in-process sales channel. It keeps listings and orders in memory
// and lets callers inject failures and latency.
type Provider struct {
	mu       sync.Mutex
	listings map[string]*provider.Listing
	orders   []provider.Order
	failures map[string]int
	err      error
	delay    time.Duration
	updates  int
	polls    int
}

// New creates an empty sandbox channel.
func New() *Provider {
	return &Provider{
		listings: make(map[string]*provider.Listing),
		failures: make(map[string]int),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return Name }

// AuthorizationURL returns a local URL; the sandbox needs no consent.
func (p *Provider) AuthorizationURL(state string) (string, error) {
	return "memory://authorize?state=" + state, nil
}

// RefreshCredential extends the credential by one hour.
func (p *Provider) RefreshCredential(ctx context.Context, cred provider.Credential) (provider.Credential, error) {
	if err := p.fail("refresh"); err != nil {
		return provider.Credential{}, err
	}
	if cred.RefreshToken == "" {
		return provider.Credential{}, provider.ErrUnauthorized
	}
	cred.AccessToken = "memory-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	cred.ExpiresAt = time.Now().Add(time.Hour)
	return cred, nil
}

// GetListing returns a copy of the stored listing.
func (p *Provider) GetListing(ctx context.Context, cred provider.Credential, ref provider.ListingRef) (*provider.Listing, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	if err := p.fail("get"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.listings[ref.ExternalListingID]
	if !ok {
		return nil, provider.ErrListingNotFound
	}
	cp := *l
	return &cp, nil
}

// UpdateQuantity sets the channel quantity of a listing, creating it when unknown.
func (p *Provider) UpdateQuantity(ctx context.Context, cred provider.Credential, ref provider.ListingRef, quantity int) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	if err := p.fail("update"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates++
	l, ok := p.listings[ref.ExternalListingID]
	if !ok {
		l = &provider.Listing{ExternalListingID: ref.ExternalListingID, ExternalSKU: ref.ExternalSKU}
		p.listings[ref.ExternalListingID] = l
	}
	l.Quantity = quantity
	return nil
}

// ListOrders returns the orders added after cursor. The cursor is the count of orders seen.
func (p *Provider) ListOrders(ctx context.Context, cred provider.Credential, cursor string) (*provider.OrderBatch, error) {
	if err := p.fail("orders"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	from := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor %q", cursor)
		}
		from = n
	}
	if from > len(p.orders) {
		from = len(p.orders)
	}
	orders := append([]provider.Order(nil), p.orders[from:]...)
	return &provider.OrderBatch{Orders: orders, Cursor: strconv.Itoa(len(p.orders))}, nil
}

// SetListing stores the channel side of a listing.
func (p *Provider) SetListing(l provider.Listing) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listings[l.ExternalListingID] = &l
}

// Quantity returns the channel quantity of a listing.
func (p *Provider) Quantity(externalListingID string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.listings[externalListingID]
	if !ok {
		return 0, false
	}
	return l.Quantity, true
}

// AddOrder makes an order visible to the next poll.
func (p *Provider) AddOrder(o provider.Order) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, o)
}

// FailNext makes the next n calls of op fail. op is one of refresh, get, update, orders.
func (p *Provider) FailNext(op string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[op] = n
}

// SetError sets the error returned by injected failures.
func (p *Provider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// SetDelay makes listing calls sleep for d.
func (p *Provider) SetDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

// Updates returns how many UpdateQuantity calls reached the channel.
func (p *Provider) Updates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updates
}

// Polls returns how many order polls succeeded.
func (p *Provider) Polls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

func (p *Provider) fail(op string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures[op] <= 0 {
		return nil
	}
	p.failures[op]--
	if p.err != nil {
		return p.err
	}
	return fmt.Errorf("memory channel: injected %s failure", op)
}

func (p *Provider) wait(ctx context.Context) error {
	p.mu.Lock()
	d := p.delay
	p.mu.Unlock()
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
