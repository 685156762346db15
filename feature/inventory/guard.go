package inventory

import (
	"context"
	"errors"

	"card-inventory/core/apperr"

	"gorm.io/gorm"
)

type ledgerKey struct{}

// derivedColumns may only be written by the ledger.
var (
	derivedColumns = []string{"quantity_available", "quantity_reserved", "ledger_version"}
	derivedFields  = []string{"QuantityAvailable", "QuantityReserved", "LedgerVersion"}
)

// withLedger marks ctx as a ledger transaction.
func withLedger(ctx context.Context) context.Context {
	return context.WithValue(ctx, ledgerKey{}, true)
}

func isLedgerWrite(tx *gorm.DB) bool {
	ctx := tx.Statement.Context
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(ledgerKey{}).(bool)
	return v
}

// BeforeCreate refuses lots born with quantity.
func (l *Lot) BeforeCreate(tx *gorm.DB) error {
	if isLedgerWrite(tx) {
		return nil
	}
	if l.QuantityAvailable != 0 || l.QuantityReserved != 0 || l.LedgerVersion != 0 {
		return apperr.ErrDerivedFieldWrite
	}
	return nil
}

// BeforeUpdate rejects explicit writes to derived fields and strips them from Save.
// It only sees statements that run hooks: UpdateColumn(s) and raw Exec bypass it,
// and the integrity ledger check is what reports drift written that way.
func (l *Lot) BeforeUpdate(tx *gorm.DB) error {
	if isLedgerWrite(tx) {
		return nil
	}
	switch dest := tx.Statement.Dest.(type) {
	case map[string]any:
		for key := range dest {
			if isDerived(key) {
				return apperr.ErrDerivedFieldWrite
			}
		}
	default:
		if tx.Statement.Dest != tx.Statement.Model && tx.Statement.Changed(derivedFields...) {
			return apperr.ErrDerivedFieldWrite
		}
	}
	tx.Statement.Omits = append(tx.Statement.Omits, derivedColumns...)
	return nil
}

func isDerived(name string) bool {
	for i := range derivedColumns {
		if name == derivedColumns[i] || name == derivedFields[i] {
			return true
		}
	}
	return false
}

var errAppendOnly = errors.New("ledger events are append-only")

// BeforeUpdate keeps events immutable.
func (e *Event) BeforeUpdate(tx *gorm.DB) error {
	return errAppendOnly
}

// BeforeDelete keeps events immutable.
func (e *Event) BeforeDelete(tx *gorm.DB) error {
	return errAppendOnly
}
