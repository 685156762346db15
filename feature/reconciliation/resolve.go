package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"card-inventory/core/apperr"
	"card-inventory/core/lock"
	"card-inventory/core/metrics"
	"card-inventory/feature/inventory"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const pullAttempts = 3

var errLotMoved = errors.New("lot quantity changed during pull")

// ResolveRequest is a decision on a pending mismatch.
type ResolveRequest struct {
	ShopID     uint
	MismatchID uint
	Resolution Resolution
	Actor      *string
	Notes      string
}

// Resolve applies a resolution and closes the mismatch. The side effect and the
// status change succeed or fail together; a failed resolution leaves the mismatch
// pending. Resolutions of one mismatch are serialized.
func (s *Service) Resolve(ctx context.Context, req ResolveRequest) (*Mismatch, error) {
	if _, ok := ParseResolution(string(req.Resolution)); !ok {
		return nil, apperr.Validationf("unknown resolution %q", req.Resolution)
	}

	unlock, err := s.locker.Lock(ctx, lock.MismatchKey(req.MismatchID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	m, err := s.GetMismatch(ctx, req.ShopID, req.MismatchID)
	if err != nil {
		return nil, err
	}
	if !m.Pending() {
		return nil, fmt.Errorf("%w: mismatch %d is %s", apperr.ErrAlreadyResolved, m.ID, m.Status)
	}

	log := s.logger.With(
		zap.Uint("mismatch_id", m.ID),
		zap.Uint("listing_id", m.ListingID),
		zap.String("resolution", string(req.Resolution)),
	)

	switch req.Resolution {
	case StatusPushInternal:
		if _, err := s.channels.PushQuantity(ctx, m.ListingID); err != nil {
			log.Warn("Mismatch resolution failed, left pending", zap.Error(err))
			return nil, err
		}
		err = s.close(s.db.WithContext(ctx), m, req)
	case StatusPullChannel:
		err = s.pull(ctx, m, req)
	case StatusIgnore:
		err = s.close(s.db.WithContext(ctx), m, req)
	}
	if err != nil {
		log.Warn("Mismatch resolution failed, left pending", zap.Error(err))
		return nil, err
	}

	metrics.MismatchesResolved.WithLabelValues(string(req.Resolution)).Inc()
	log.Info("Mismatch resolved")
	return s.GetMismatch(ctx, req.ShopID, req.MismatchID)
}

// pull brings the ledger to the channel quantity captured by the scan. The
// adjustment and the status change share a transaction.
func (s *Service) pull(ctx context.Context, m *Mismatch, req ResolveRequest) error {
	for attempt := 1; attempt <= pullAttempts; attempt++ {
		lot, err := s.inventory.GetLot(ctx, m.ShopID, m.LotID)
		if err != nil {
			return err
		}
		delta := m.ChannelQuantity - lot.QuantityAvailable
		if delta == 0 {
			return s.close(s.db.WithContext(ctx), m, req)
		}

		_, _, err = s.inventory.Adjust(ctx, inventory.AdjustRequest{
			ShopID:    m.ShopID,
			LotID:     m.LotID,
			Delta:     delta,
			EventType: inventory.EventAdjustment,
			Reason:    fmt.Sprintf("mismatch #%d: pull channel quantity %d", m.ID, m.ChannelQuantity),
			Actor:     req.Actor,
			Metadata:  map[string]any{"mismatch_id": m.ID, "listing_id": m.ListingID},
			AfterApply: func(tx *gorm.DB, lot *inventory.Lot, _ *inventory.Event) error {
				if lot.QuantityAvailable != m.ChannelQuantity {
					return errLotMoved
				}
				return s.close(tx, m, req)
			},
		})
		if errors.Is(err, errLotMoved) {
			continue
		}
		return err
	}
	return apperr.Conflictf("lot %d kept changing while pulling mismatch %d", m.LotID, m.ID)
}

// close moves a pending mismatch to the resolution's status.
func (s *Service) close(db *gorm.DB, m *Mismatch, req ResolveRequest) error {
	now := s.now()
	res := db.Model(&Mismatch{}).
		Where("id = ? AND status = ?", m.ID, StatusPending).
		Updates(map[string]any{
			"status":      req.Resolution,
			"resolved_by": req.Actor,
			"resolved_at": now,
			"notes":       req.Notes,
			"pending_key": nil,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to close mismatch %d: %w", m.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: mismatch %d", apperr.ErrAlreadyResolved, m.ID)
	}
	return nil
}
