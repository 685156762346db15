// Package apperr defines the error taxonomy shared by every feature.
//
// Each error carries a Kind that decides how it is surfaced:
//
//   - Validation: bad input, returned verbatim to the caller (400).
//   - NotFound: missing entity or an entity owned by another shop (404).
//   - Conflict: state does not allow the operation, e.g. an already resolved mismatch (409).
//   - ExternalChannel: the sales channel failed; always recoverable and retried (502).
//   - InvariantViolation: the operation would corrupt the ledger; refused and logged (422).
//
// # Usage
//
//	if lot == nil {
//	    return apperr.NotFoundf("lot %d", id)
//	}
//	if errors.Is(err, apperr.ErrInvalidDelta) { ... }
//	switch apperr.KindOf(err) { ... }
package apperr
