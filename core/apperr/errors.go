package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind string

const (
	KindUnknown            Kind = "internal"
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindExternalChannel    Kind = "external_channel"
	KindInvariantViolation Kind = "invariant_violation"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two errors of the same kind when the target carries no message,
// so errors.Is(err, apperr.ErrNotFound) works for every not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" && t.Err == nil {
		return e.Kind == t.Kind
	}
	return e == t
}

// Kind sentinels, usable with errors.Is.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrExternalChannel    = &Error{Kind: KindExternalChannel}
	ErrInvariantViolation = &Error{Kind: KindInvariantViolation}
)

// Specific sentinels.
var (
	// ErrInvalidDelta is returned when an adjustment would drive a quantity negative.
	ErrInvalidDelta = &Error{Kind: KindInvariantViolation, Message: "invalid delta"}
	// ErrAlreadyResolved is returned when resolving a mismatch that is no longer pending.
	ErrAlreadyResolved = &Error{Kind: KindConflict, Message: "mismatch already resolved"}
	// ErrDerivedFieldWrite is returned when quantity columns are written outside the ledger.
	ErrDerivedFieldWrite = &Error{Kind: KindValidation, Message: "quantity fields are derived from the ledger and cannot be written directly"}
)

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validationf builds a validation error.
func Validationf(format string, args ...any) error {
	return newf(KindValidation, format, args...)
}

// NotFoundf builds a not-found error.
func NotFoundf(format string, args ...any) error {
	return newf(KindNotFound, format+" not found", args...)
}

// Conflictf builds a conflict error.
func Conflictf(format string, args ...any) error {
	return newf(KindConflict, format, args...)
}

// Invariantf builds an invariant violation.
func Invariantf(format string, args ...any) error {
	return newf(KindInvariantViolation, format, args...)
}

// External wraps a channel failure.
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindExternalChannel, Message: op, Err: err}
}

// Wrap classifies err under kind with a message, preserving the chain.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// InvalidDelta annotates ErrInvalidDelta with the offending values.
func InvalidDelta(lotID uint, current, delta int) error {
	return fmt.Errorf("%w: lot %d has %d, delta %d", ErrInvalidDelta, lotID, current, delta)
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
