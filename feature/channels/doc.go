// Package channels keeps listings on external sales channels in step with the ledger.
//
// # Sync state machine
//
// A listing starts pending. A push snapshots the lot quantity under the listing
// lock, calls the channel without holding it, then records synced or error.
// Errors are retried by the sweep with exponential backoff until MaxAttempts;
// a change of the lot's quantity moves synced listings back to pending. Delisted
// is terminal.
//
// # Orders
//
// Orders reach the ledger through polling (providers implementing
// provider.OrderSource) or a signed webhook. Every line is applied with
// inventory.ApplyExternalEvent under a provider event id, so replays are no-ops.
//
// # Credentials
//
// Credentials are sealed with NaCl secretbox and refreshed shortly before expiry.
package channels
