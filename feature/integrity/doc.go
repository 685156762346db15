// Package integrity provides consistency checks over the stored state.
//
// # Checks Provided
//
//   - Ledger: Replays every lot's events in sequence order and reports lots whose
//     cached quantities or ledger version disagree with the fold, broken sequence
//     chains and events whose resulting quantity does not follow from the delta.
//   - Schema: Validates that the connected database has every table and column
//     of the persisted models.
//   - Storage: Checks that the object storage bucket exists and is writable.
//
// # HTTP Endpoints
//
//   - GET /integrity : Runs all checks.
//   - GET /integrity/ledger : Replays the ledger of the request's shop.
//   - GET /integrity/schema : Runs the schema check.
//   - GET /integrity/storage : Runs the storage check (supports ?fix=true).
package integrity
