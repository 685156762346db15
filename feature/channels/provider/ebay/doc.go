// Package ebay implements the channel provider for eBay.
//
// Quantities are pushed and read through the Inventory API, orders are polled
// from the Fulfillment API and tokens are refreshed against the OAuth token
// endpoint. Calls pass a client-side rate limiter and 429 responses are retried
// after the server's Retry-After.
package ebay
