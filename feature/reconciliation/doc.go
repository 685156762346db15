// Package reconciliation raises and resolves mismatches between the ledger and
// sales channels.
//
// A scan polls the channel quantity of every synced or errored listing of a shop
// and compares it with the lot's available quantity. Divergent listings get a
// pending Mismatch; the unique PendingKey keeps at most one pending mismatch per
// listing, so scans may overlap.
//
// Resolutions:
//
//   - push_internal pushes the ledger quantity to the channel.
//   - pull_channel adjusts the ledger to the channel quantity seen by the scan.
//   - ignore closes the mismatch without side effects.
//
// The ledger is authoritative: push_internal is always the suggestion. The
// auto_resolve policy applies a resolution to new mismatches during the scan.
package reconciliation
