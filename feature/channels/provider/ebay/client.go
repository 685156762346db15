package ebay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"card-inventory/feature/channels/provider"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Name is the provider name of eBay.
const Name = "ebay"

const (
	orderPageSize     = 50
	defaultRetryAfter = 5 * time.Second
	firstPollWindow   = 24 * time.Hour
)

// Client talks to the eBay Sell APIs.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an eBay client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		now:     time.Now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string { return Name }

// AuthorizationURL builds the consent page URL.
func (c *Client) AuthorizationURL(state string) (string, error) {
	if c.cfg.AppID == "" || c.cfg.RuName == "" {
		return "", fmt.Errorf("ebay app id and ru name are not configured")
	}
	q := url.Values{}
	q.Set("client_id", c.cfg.AppID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", c.cfg.RuName)
	q.Set("scope", strings.Join(Scopes, " "))
	q.Set("state", state)
	return c.cfg.authURL() + "?" + q.Encode(), nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// RefreshCredential exchanges the refresh token for a new access token.
func (c *Client) RefreshCredential(ctx context.Context, cred provider.Credential) (provider.Credential, error) {
	if cred.RefreshToken == "" {
		return provider.Credential{}, fmt.Errorf("no refresh token: %w", provider.ErrUnauthorized)
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	form.Set("scope", strings.Join(Scopes, " "))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return provider.Credential{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.AppID, c.cfg.CertID)

	var tok tokenResponse
	if err := c.do(req, nil, &tok); err != nil {
		return provider.Credential{}, fmt.Errorf("failed to refresh ebay token: %w", err)
	}

	cred.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		cred.RefreshToken = tok.RefreshToken
	}
	cred.ExpiresAt = c.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return cred, nil
}

type inventoryItem struct {
	SKU          string `json:"sku,omitempty"`
	Availability struct {
		ShipToLocationAvailability struct {
			Quantity int `json:"quantity"`
		} `json:"shipToLocationAvailability"`
	} `json:"availability"`
	Product *struct {
		Title string `json:"title"`
	} `json:"product,omitempty"`
}

func itemSKU(ref provider.ListingRef) string {
	if ref.ExternalSKU != "" {
		return ref.ExternalSKU
	}
	return ref.ExternalListingID
}

// GetListing reads the inventory item behind a listing.
func (c *Client) GetListing(ctx context.Context, cred provider.Credential, ref provider.ListingRef) (*provider.Listing, error) {
	sku := itemSKU(ref)
	var item inventoryItem
	if err := c.call(ctx, cred, http.MethodGet, "/sell/inventory/v1/inventory_item/"+url.PathEscape(sku), nil, nil, &item); err != nil {
		return nil, err
	}
	l := &provider.Listing{
		ExternalListingID: ref.ExternalListingID,
		ExternalSKU:       sku,
		Quantity:          item.Availability.ShipToLocationAvailability.Quantity,
	}
	if item.Product != nil {
		l.Title = item.Product.Title
	}
	return l, nil
}

// UpdateQuantity sets the available quantity of the inventory item behind a listing.
func (c *Client) UpdateQuantity(ctx context.Context, cred provider.Credential, ref provider.ListingRef, quantity int) error {
	var item inventoryItem
	item.Availability.ShipToLocationAvailability.Quantity = quantity
	return c.call(ctx, cred, http.MethodPut, "/sell/inventory/v1/inventory_item/"+url.PathEscape(itemSKU(ref)), nil, item, nil)
}

type orderPage struct {
	Orders []struct {
		OrderID      string `json:"orderId"`
		CancelStatus struct {
			CancelState string `json:"cancelState"`
		} `json:"cancelStatus"`
		LineItems []provider.LineItem `json:"lineItems"`
	} `json:"orders"`
	Next string `json:"next"`
}

// ListOrders pages through the orders created since cursor, an RFC 3339 timestamp.
// The returned cursor is the time the poll started.
func (c *Client) ListOrders(ctx context.Context, cred provider.Credential, cursor string) (*provider.OrderBatch, error) {
	started := c.now().UTC()
	from := cursor
	if from == "" {
		from = started.Add(-firstPollWindow).Format("2006-01-02T15:04:05.000Z")
	}

	batch := &provider.OrderBatch{Cursor: started.Format("2006-01-02T15:04:05.000Z")}
	for offset := 0; ; offset += orderPageSize {
		q := url.Values{}
		q.Set("filter", fmt.Sprintf("creationdate:[%s..]", from))
		q.Set("limit", strconv.Itoa(orderPageSize))
		q.Set("offset", strconv.Itoa(offset))

		var page orderPage
		if err := c.call(ctx, cred, http.MethodGet, "/sell/fulfillment/v1/order", q, nil, &page); err != nil {
			return nil, err
		}
		for _, o := range page.Orders {
			order := provider.Order{OrderID: o.OrderID, LineItems: o.LineItems}
			if o.CancelStatus.CancelState == "CANCELED" {
				for i := range order.LineItems {
					order.LineItems[i].Cancelled = true
				}
			}
			batch.Orders = append(batch.Orders, order)
		}
		if len(page.Orders) < orderPageSize || page.Next == "" {
			break
		}
	}
	return batch, nil
}

// call performs an authenticated JSON request against the REST API.
func (c *Client) call(ctx context.Context, cred provider.Credential, method, path string, query url.Values, body, out any) error {
	u := c.cfg.baseURL() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, payload, out)
}

// do sends req, waiting for the rate limiter and retrying 429 responses after Retry-After.
func (c *Client) do(req *http.Request, payload []byte, out any) error {
	ctx := req.Context()
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if payload != nil {
			req.Body = io.NopCloser(bytes.NewReader(payload))
			req.ContentLength = int64(len(payload))
		} else if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return err
			}
			req.Body = body
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if attempt >= c.cfg.MaxRetries {
				return fmt.Errorf("ebay rate limit: max retries exceeded for %s %s", req.Method, req.URL.Path)
			}
			wait := retryAfter(resp.Header.Get("Retry-After"))
			c.logger.Warn("eBay rate limited request, retrying",
				zap.String("path", req.URL.Path),
				zap.Duration("retry_after", wait),
				zap.Int("attempt", attempt+1),
			)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		case resp.StatusCode == http.StatusNotFound:
			return provider.ErrListingNotFound
		case resp.StatusCode == http.StatusUnauthorized:
			return provider.ErrUnauthorized
		case resp.StatusCode >= 300:
			return fmt.Errorf("ebay %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, snippet(data))
		}

		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode ebay response: %w", err)
		}
		return nil
	}
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
