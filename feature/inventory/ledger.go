package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"card-inventory/core/apperr"
	"card-inventory/core/lock"
	"card-inventory/core/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxVersionAttempts = 5

var (
	errVersionConflict   = errors.New("lot ledger version changed concurrently")
	errDuplicateProvider = errors.New("provider event already recorded")
)

// AfterApplyFunc runs inside the adjustment transaction after the event is written.
// Returning an error rolls the whole adjustment back.
type AfterApplyFunc func(tx *gorm.DB, lot *Lot, event *Event) error

// AdjustRequest describes one ledger adjustment.
type AdjustRequest struct {
	ShopID          uint
	LotID           uint
	Delta           int
	EventType       EventType
	Reason          string
	Actor           *string
	OrderID         string
	ProviderEventID *string
	Metadata        map[string]any
	AfterApply      AfterApplyFunc
}

// ExternalEvent is a quantity change reported by a sales channel.
type ExternalEvent struct {
	ShopID          uint
	LotID           uint
	Delta           int
	ProviderEventID string
	EventType       EventType
	OrderID         string
	Reason          string
	Metadata        map[string]any
}

func validateAdjust(req AdjustRequest) error {
	if req.LotID == 0 {
		return apperr.Validationf("lot id is required")
	}
	if !req.EventType.Valid() {
		return apperr.Validationf("unknown event type %q", req.EventType)
	}
	if req.Delta == 0 && req.EventType != EventImport {
		return apperr.Validationf("delta must not be zero for %s events", req.EventType)
	}
	switch req.EventType {
	case EventSale, EventGradingOut, EventReserve:
		if req.Delta > 0 {
			return apperr.Validationf("%s events must have a negative delta", req.EventType)
		}
	case EventGradingIn, EventUnreserve, EventImport:
		if req.Delta < 0 {
			return apperr.Validationf("%s events must have a positive delta", req.EventType)
		}
	}
	return nil
}

// Adjust appends exactly one event to the lot's ledger and updates its derived
// quantities in the same transaction. Concurrent adjustments of a lot are
// serialized by the lot lock and a compare-and-set on LedgerVersion.
func (s *Service) Adjust(ctx context.Context, req AdjustRequest) (*Lot, *Event, error) {
	if err := validateAdjust(req); err != nil {
		metrics.LedgerRejections.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return nil, nil, err
	}

	unlock, err := s.locker.Lock(ctx, lock.LotKey(req.LotID))
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	lot, ev, err := s.adjustLocked(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	s.notify(ctx, lot, ev)
	return lot, ev, nil
}

// adjustLocked runs the adjustment transaction. The caller holds the lot lock.
func (s *Service) adjustLocked(ctx context.Context, req AdjustRequest) (*Lot, *Event, error) {
	for attempt := 1; ; attempt++ {
		var (
			lot *Lot
			ev  *Event
		)
		err := s.db.WithContext(withLedger(ctx)).Transaction(func(tx *gorm.DB) error {
			var err error
			lot, ev, err = applyTx(tx, req)
			if err != nil {
				return err
			}
			if req.AfterApply != nil {
				return req.AfterApply(tx, lot, ev)
			}
			return nil
		})

		switch {
		case err == nil:
			metrics.LedgerAdjustments.WithLabelValues(string(req.EventType)).Inc()
			return lot, ev, nil
		case errors.Is(err, errVersionConflict) && attempt < maxVersionAttempts:
			metrics.LedgerConflictRetries.Inc()
			continue
		case errors.Is(err, errVersionConflict):
			return nil, nil, apperr.Wrap(apperr.KindConflict, err, fmt.Sprintf("lot %d is busy", req.LotID))
		}

		kind := apperr.KindOf(err)
		metrics.LedgerRejections.WithLabelValues(string(kind)).Inc()
		if kind == apperr.KindInvariantViolation {
			s.logger.Error("Ledger invariant violation refused",
				zap.Uint("lot_id", req.LotID),
				zap.Int("delta", req.Delta),
				zap.String("type", string(req.EventType)),
				zap.Error(err),
			)
		}
		return nil, nil, err
	}
}

// applyTx loads the lot, checks the resulting quantities and writes the event.
func applyTx(tx *gorm.DB, req AdjustRequest) (*Lot, *Event, error) {
	var lot Lot
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND shop_id = ?", req.LotID, req.ShopID).
		First(&lot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperr.NotFoundf("lot %d", req.LotID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load lot %d: %w", req.LotID, err)
	}
	if lot.Retired() {
		return nil, nil, apperr.Conflictf("lot %d is retired", lot.ID)
	}

	reservedDelta := 0
	if req.EventType == EventReserve || req.EventType == EventUnreserve {
		reservedDelta = -req.Delta
	}

	available := lot.QuantityAvailable + req.Delta
	reserved := lot.QuantityReserved + reservedDelta
	if available < 0 {
		return nil, nil, apperr.InvalidDelta(lot.ID, lot.QuantityAvailable, req.Delta)
	}
	if reserved < 0 {
		return nil, nil, apperr.InvalidDelta(lot.ID, lot.QuantityReserved, reservedDelta)
	}

	version := lot.LedgerVersion + 1
	res := tx.Model(&Lot{}).
		Where("id = ? AND ledger_version = ?", lot.ID, lot.LedgerVersion).
		Updates(map[string]any{
			"quantity_available": available,
			"quantity_reserved":  reserved,
			"ledger_version":     version,
		})
	if res.Error != nil {
		return nil, nil, fmt.Errorf("failed to update lot %d: %w", lot.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil, errVersionConflict
	}

	ev := &Event{
		LotID:             lot.ID,
		Sequence:          version,
		EventType:         req.EventType,
		QuantityDelta:     req.Delta,
		ResultingQuantity: available,
		ReservedDelta:     reservedDelta,
		ProviderEventID:   req.ProviderEventID,
		OrderID:           req.OrderID,
		Actor:             req.Actor,
		Reason:            req.Reason,
		Metadata:          req.Metadata,
	}
	if err := tx.Create(ev).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if req.ProviderEventID != nil {
				return nil, nil, errDuplicateProvider
			}
			return nil, nil, errVersionConflict
		}
		return nil, nil, fmt.Errorf("failed to append event to lot %d: %w", lot.ID, err)
	}

	lot.QuantityAvailable = available
	lot.QuantityReserved = reserved
	lot.LedgerVersion = version
	lot.UpdatedAt = time.Now()
	return &lot, ev, nil
}

// ApplyExternalEvent records a channel-reported change once. Replaying the same
// ProviderEventID returns the recorded event with applied=false and changes nothing.
func (s *Service) ApplyExternalEvent(ctx context.Context, in ExternalEvent) (*Event, bool, error) {
	if in.ProviderEventID == "" {
		return nil, false, apperr.Validationf("provider event id is required")
	}
	if in.EventType == "" {
		in.EventType = EventSale
	}

	req := AdjustRequest{
		ShopID:          in.ShopID,
		LotID:           in.LotID,
		Delta:           in.Delta,
		EventType:       in.EventType,
		Reason:          in.Reason,
		OrderID:         in.OrderID,
		ProviderEventID: &in.ProviderEventID,
		Metadata:        in.Metadata,
	}
	if err := validateAdjust(req); err != nil {
		return nil, false, err
	}

	unlock, err := s.locker.Lock(ctx, lock.LotKey(in.LotID))
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	if existing, err := s.ProviderEvent(ctx, in.LotID, in.ProviderEventID); err != nil || existing != nil {
		return existing, false, err
	}

	lot, ev, err := s.adjustLocked(ctx, req)
	if errors.Is(err, errDuplicateProvider) {
		// Either another process recorded it for this lot after the lookup, or the
		// id already belongs to a different lot.
		existing, lookupErr := s.ProviderEvent(ctx, in.LotID, in.ProviderEventID)
		if lookupErr != nil {
			return nil, false, lookupErr
		}
		if existing == nil {
			return nil, false, apperr.Conflictf("provider event %q is recorded against another lot", in.ProviderEventID)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	s.notify(ctx, lot, ev)
	return ev, true, nil
}

// ProviderEvent returns the event recorded on the lot for a provider event id, or nil.
func (s *Service) ProviderEvent(ctx context.Context, lotID uint, providerEventID string) (*Event, error) {
	var ev Event
	err := s.db.WithContext(ctx).
		Where("lot_id = ? AND provider_event_id = ?", lotID, providerEventID).
		First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up provider event: %w", err)
	}
	return &ev, nil
}

// Reserve moves qty from available to reserved.
func (s *Service) Reserve(ctx context.Context, shopID, lotID uint, qty int, actor *string, reason string) (*Lot, *Event, error) {
	if qty <= 0 {
		return nil, nil, apperr.Validationf("quantity must be positive")
	}
	return s.Adjust(ctx, AdjustRequest{
		ShopID:     shopID,
		LotID:      lotID,
		Delta:      -qty,
		EventType:  EventReserve,
		Actor:      actor,
		Reason:     reason,
		AfterApply: syncReservedStatus,
	})
}

// Unreserve moves qty from reserved back to available.
func (s *Service) Unreserve(ctx context.Context, shopID, lotID uint, qty int, actor *string, reason string) (*Lot, *Event, error) {
	if qty <= 0 {
		return nil, nil, apperr.Validationf("quantity must be positive")
	}
	return s.Adjust(ctx, AdjustRequest{
		ShopID:     shopID,
		LotID:      lotID,
		Delta:      qty,
		EventType:  EventUnreserve,
		Actor:      actor,
		Reason:     reason,
		AfterApply: syncReservedStatus,
	})
}

// syncReservedStatus flags a lot whose whole stock is held.
func syncReservedStatus(tx *gorm.DB, lot *Lot, _ *Event) error {
	next := lot.Status
	switch {
	case lot.Status == LotStatusAvailable && lot.QuantityAvailable == 0 && lot.QuantityReserved > 0:
		next = LotStatusReserved
	case lot.Status == LotStatusReserved && (lot.QuantityAvailable > 0 || lot.QuantityReserved == 0):
		next = LotStatusAvailable
	}
	return setStatus(tx, lot, next)
}

func setStatus(tx *gorm.DB, lot *Lot, status LotStatus) error {
	if lot.Status == status {
		return nil
	}
	if err := tx.Model(&Lot{}).Where("id = ?", lot.ID).Update("status", status).Error; err != nil {
		return fmt.Errorf("failed to set lot %d status: %w", lot.ID, err)
	}
	lot.Status = status
	return nil
}

// SendToGrading takes qty out of stock for professional grading.
func (s *Service) SendToGrading(ctx context.Context, shopID, lotID uint, qty int, grader string, actor *string) (*Lot, *Event, error) {
	if qty <= 0 {
		return nil, nil, apperr.Validationf("quantity must be positive")
	}
	return s.Adjust(ctx, AdjustRequest{
		ShopID:    shopID,
		LotID:     lotID,
		Delta:     -qty,
		EventType: EventGradingOut,
		Actor:     actor,
		Reason:    "sent to grading",
		Metadata:  map[string]any{"grader": grader},
		AfterApply: func(tx *gorm.DB, lot *Lot, _ *Event) error {
			return setStatus(tx, lot, LotStatusGrading)
		},
	})
}

// ReturnFromGrading puts qty back in stock with the grade received.
func (s *Service) ReturnFromGrading(ctx context.Context, shopID, lotID uint, qty int, grade string, actor *string) (*Lot, *Event, error) {
	if qty <= 0 {
		return nil, nil, apperr.Validationf("quantity must be positive")
	}
	return s.Adjust(ctx, AdjustRequest{
		ShopID:    shopID,
		LotID:     lotID,
		Delta:     qty,
		EventType: EventGradingIn,
		Actor:     actor,
		Reason:    "returned from grading",
		Metadata:  map[string]any{"grade": grade},
		AfterApply: func(tx *gorm.DB, lot *Lot, _ *Event) error {
			if lot.Status != LotStatusGrading {
				return apperr.Conflictf("lot %d is not in grading", lot.ID)
			}
			return setStatus(tx, lot, LotStatusAvailable)
		},
	})
}
