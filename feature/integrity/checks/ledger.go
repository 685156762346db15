package checks

import (
	"context"
	"fmt"

	"card-inventory/feature/inventory"

	"gorm.io/gorm"
)

const ledgerBatchSize = 200

// LedgerIssue is one place where a lot disagrees with its events.
type LedgerIssue struct {
	LotID    uint   `json:"lot_id"`
	SKU      string `json:"sku"`
	Sequence uint64 `json:"sequence,omitempty"`
	Problem  string `json:"problem"`
}

// LedgerReport is the result of replaying the ledger.
type LedgerReport struct {
	ShopID     uint          `json:"shop_id,omitempty"`
	Lots       int           `json:"lots"`
	Events     int           `json:"events"`
	Consistent bool          `json:"consistent"`
	Issues     []LedgerIssue `json:"issues"`
}

// CheckLedger folds the events of every lot of the shop, or of every shop when
// shopID is 0, and compares the result with the cached lot quantities.
func CheckLedger(ctx context.Context, db *gorm.DB, shopID uint) (*LedgerReport, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	report := &LedgerReport{ShopID: shopID, Consistent: true, Issues: []LedgerIssue{}}

	q := db.WithContext(ctx).Model(&inventory.Lot{})
	if shopID != 0 {
		q = q.Where("shop_id = ?", shopID)
	}

	var lots []inventory.Lot
	var replayErr error
	res := q.FindInBatches(&lots, ledgerBatchSize, func(tx *gorm.DB, batch int) error {
		ids := make([]uint, len(lots))
		for i := range lots {
			ids[i] = lots[i].ID
		}

		var events []inventory.Event
		if err := db.WithContext(ctx).Where("lot_id IN ?", ids).Order("lot_id, sequence").Find(&events).Error; err != nil {
			replayErr = fmt.Errorf("failed to load events: %w", err)
			return replayErr
		}
		byLot := make(map[uint][]inventory.Event, len(lots))
		for _, ev := range events {
			byLot[ev.LotID] = append(byLot[ev.LotID], ev)
		}

		for i := range lots {
			report.Issues = append(report.Issues, replay(&lots[i], byLot[lots[i].ID])...)
		}
		report.Lots += len(lots)
		report.Events += len(events)
		return nil
	})
	if replayErr != nil {
		return nil, replayErr
	}
	if res.Error != nil {
		return nil, fmt.Errorf("failed to load lots: %w", res.Error)
	}

	report.Consistent = len(report.Issues) == 0
	return report, nil
}

// replay checks the event chain of one lot.
func replay(lot *inventory.Lot, events []inventory.Event) []LedgerIssue {
	var issues []LedgerIssue
	issue := func(seq uint64, format string, args ...any) {
		issues = append(issues, LedgerIssue{LotID: lot.ID, SKU: lot.SKU, Sequence: seq, Problem: fmt.Sprintf(format, args...)})
	}

	available, reserved := 0, 0
	var last uint64
	for _, ev := range events {
		if ev.Sequence != last+1 {
			issue(ev.Sequence, "sequence follows %d", last)
		}
		last = ev.Sequence

		available += ev.QuantityDelta
		reserved += ev.ReservedDelta
		if ev.ResultingQuantity != available {
			issue(ev.Sequence, "resulting quantity %d, replay gives %d", ev.ResultingQuantity, available)
		}
		if available < 0 || reserved < 0 {
			issue(ev.Sequence, "negative quantity (available %d, reserved %d)", available, reserved)
		}
	}

	if lot.QuantityAvailable != available {
		issue(0, "quantity_available %d, ledger gives %d", lot.QuantityAvailable, available)
	}
	if lot.QuantityReserved != reserved {
		issue(0, "quantity_reserved %d, ledger gives %d", lot.QuantityReserved, reserved)
	}
	if lot.LedgerVersion != last {
		issue(0, "ledger_version %d, last event is %d", lot.LedgerVersion, last)
	}
	return issues
}
