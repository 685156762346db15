// Package inventory owns cards, lots and the quantity ledger.
//
// # Ledger
//
// Every change to a lot's quantity is an immutable Event appended through Adjust.
// QuantityAvailable, QuantityReserved and LedgerVersion are derived state: the lot
// hooks refuse to write them outside a ledger transaction, and replaying a lot's
// events in Sequence order from zero always yields the stored quantities.
//
// Adjustments of one lot are serialized by the lot lock (core/lock) and a
// compare-and-set on LedgerVersion, so concurrent deltas sum exactly and a delta
// that would make a quantity negative is refused with apperr.ErrInvalidDelta.
//
// Channel-reported changes go through ApplyExternalEvent, which is idempotent on
// the provider event id.
//
// # Listeners
//
// QuantityListeners are notified after each committed adjustment; the channels
// feature uses this to queue quantity pushes for the lot's listings.
package inventory
