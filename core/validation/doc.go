// Package validation validates HTTP request payloads with go-playground/validator.
//
// Field names in messages use the json tag, and failures are returned as
// apperr validation errors so handlers answer 400.
package validation
