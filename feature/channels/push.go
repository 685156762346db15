package channels

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"card-inventory/core/apperr"
	"card-inventory/core/lock"
	"card-inventory/core/metrics"
	"card-inventory/core/worker"
	"card-inventory/feature/channels/provider"
	"card-inventory/feature/inventory"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// pushResult is shared by coalesced callers. stale is set when the lot moved while
// the channel call was in flight.
type pushResult struct {
	listing *Listing
	stale   bool
}

// pushSnapshot is what a push reads under the listing lock.
type pushSnapshot struct {
	listing  Listing
	quantity int
	attempt  int
}

// PushQuantity pushes the lot's available quantity to the channel and records the
// outcome on the listing. Concurrent pushes of a listing share one channel call.
// A channel failure is returned as an external channel error after the listing is
// moved to error with a retry time.
func (s *Service) PushQuantity(ctx context.Context, listingID uint) (*Listing, error) {
	key := strconv.FormatUint(uint64(listingID), 10)
	v, err, _ := s.pushes.Do(key, func() (any, error) {
		return s.push(context.WithoutCancel(ctx), listingID)
	})
	if err != nil {
		return nil, err
	}
	res := v.(*pushResult)
	if res.stale {
		s.markPending(ctx, listingID)
		s.Enqueue(listingID)
	}
	listing := *res.listing
	return &listing, nil
}

func (s *Service) push(ctx context.Context, listingID uint) (*pushResult, error) {
	current, err := s.listingByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if current.SyncState == SyncDelisted {
		return nil, apperr.Conflictf("listing %d is delisted", listingID)
	}
	integ, err := s.integrationByID(ctx, current.IntegrationID)
	if err != nil {
		return nil, err
	}
	p, err := s.providers.Get(integ.Provider)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnknown, err, "integration provider unavailable")
	}
	cred, err := s.EnsureFreshCredential(ctx, integ)
	if err != nil {
		return nil, err
	}

	snap, err := s.beginPush(ctx, listingID)
	if err != nil {
		return nil, err
	}

	ref := provider.ListingRef{ExternalListingID: snap.listing.ExternalListingID, ExternalSKU: snap.listing.ExternalSKU}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.PushTimeout)
	started := time.Now()
	pushErr := p.UpdateQuantity(callCtx, cred, ref, snap.quantity)
	cancel()
	metrics.ChannelPushDuration.WithLabelValues(integ.Provider).Observe(time.Since(started).Seconds())
	metrics.ChannelPushes.WithLabelValues(integ.Provider, metrics.Result(pushErr)).Inc()

	listing, err := s.finishPush(ctx, snap, pushErr)
	if err != nil {
		return nil, err
	}

	job := &SyncJob{
		IntegrationID:  integ.ID,
		ListingID:      &listingID,
		Operation:      "update_quantity",
		Direction:      DirectionOutbound,
		Status:         JobSuccess,
		RequestPayload: map[string]any{"external_listing_id": ref.ExternalListingID, "sku": ref.ExternalSKU, "quantity": snap.quantity},
		Attempt:        snap.attempt,
	}
	if pushErr != nil {
		job.Status = JobFailed
		job.Error = pushErr.Error()
	}
	s.recordJob(ctx, job)

	if pushErr != nil {
		s.logger.Warn("Channel push failed",
			zap.Uint("listing_id", listingID),
			zap.String("provider", integ.Provider),
			zap.Int("attempts", listing.Attempts),
			zap.Error(pushErr),
		)
		return nil, apperr.External("push quantity", pushErr)
	}

	res := &pushResult{listing: listing}
	if lot, err := s.inventory.GetLotByID(ctx, listing.LotID); err == nil {
		res.stale = lot.QuantityAvailable != snap.quantity && listing.SyncState == SyncSynced
	}
	return res, nil
}

// beginPush snapshots the listing and its lot under the listing lock and marks it pending.
func (s *Service) beginPush(ctx context.Context, listingID uint) (*pushSnapshot, error) {
	unlock, err := s.locker.Lock(ctx, lock.ListingKey(listingID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	listing, err := s.listingByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !listing.SyncState.CanTransition(SyncPending) {
		return nil, apperr.Conflictf("listing %d is %s", listingID, listing.SyncState)
	}
	lot, err := s.inventory.GetLotByID(ctx, listing.LotID)
	if err != nil {
		return nil, err
	}
	if listing.SyncState != SyncPending {
		if err := s.db.WithContext(ctx).Model(&Listing{ID: listingID}).Update("sync_state", SyncPending).Error; err != nil {
			return nil, fmt.Errorf("failed to mark listing %d pending: %w", listingID, err)
		}
		listing.SyncState = SyncPending
	}
	return &pushSnapshot{listing: *listing, quantity: lot.QuantityAvailable, attempt: listing.Attempts + 1}, nil
}

// finishPush records the push outcome under the listing lock.
func (s *Service) finishPush(ctx context.Context, snap *pushSnapshot, pushErr error) (*Listing, error) {
	id := snap.listing.ID
	unlock, err := s.locker.Lock(ctx, lock.ListingKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	listing, err := s.listingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if listing.SyncState == SyncDelisted {
		return listing, nil
	}

	now := s.now()
	metadata := listing.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	if pushErr == nil {
		delete(metadata, "last_error")
		listing.SyncState = SyncSynced
		listing.ListedQuantity = snap.quantity
		listing.LastSyncedAt = &now
		listing.Attempts = 0
		listing.NextRetryAt = nil
	} else {
		metadata["last_error"] = pushErr.Error()
		retryAt := now.Add(s.cfg.Backoff(listing.Attempts + 1))
		listing.SyncState = SyncError
		listing.Attempts++
		listing.NextRetryAt = &retryAt
	}
	listing.Metadata = metadata

	// Select forces zero values and routes metadata through its serializer.
	err = s.db.WithContext(ctx).Model(listing).
		Select("sync_state", "listed_quantity", "last_synced_at", "attempts", "next_retry_at", "metadata").
		Updates(listing).Error
	if err != nil {
		return nil, fmt.Errorf("failed to record push of listing %d: %w", id, err)
	}
	return s.listingByID(ctx, id)
}

func (s *Service) markPending(ctx context.Context, listingID uint) {
	err := s.db.WithContext(ctx).Model(&Listing{}).
		Where("id = ? AND sync_state = ?", listingID, SyncSynced).
		Update("sync_state", SyncPending).Error
	if err != nil {
		s.logger.Error("Failed to mark listing pending", zap.Uint("listing_id", listingID), zap.Error(err))
	}
}

// Enqueue schedules an asynchronous push of the listing. A full queue leaves the
// listing pending for the retry sweep.
func (s *Service) Enqueue(listingID uint) {
	if s.queue == nil {
		return
	}
	job := worker.Func("push_listing", func(ctx context.Context) error {
		_, err := s.PushQuantity(ctx, listingID)
		return err
	})
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("Failed to queue listing push", zap.Uint("listing_id", listingID), zap.Error(err))
	}
}

// QuantityChanged queues a push for every active listing of the lot.
func (s *Service) QuantityChanged(ctx context.Context, lot inventory.Lot, _ inventory.Event) {
	var listings []Listing
	err := s.db.WithContext(ctx).
		Where("lot_id = ? AND sync_state <> ?", lot.ID, SyncDelisted).
		Find(&listings).Error
	if err != nil {
		s.logger.Error("Failed to load listings of changed lot", zap.Uint("lot_id", lot.ID), zap.Error(err))
		return
	}
	for _, l := range listings {
		if l.SyncState == SyncSynced && l.ListedQuantity == lot.QuantityAvailable {
			continue
		}
		s.markPending(ctx, l.ID)
		s.Enqueue(l.ID)
	}
}

// SweepReport summarizes a retry sweep.
type SweepReport struct {
	Candidates int `json:"candidates"`
	Synced     int `json:"synced"`
	Failed     int `json:"failed"`
}

// RetrySweep pushes errored listings whose retry time has passed and pending
// listings that were never picked up. Failures stay on the listings.
func (s *Service) RetrySweep(ctx context.Context) (*SweepReport, error) {
	now := s.now()
	var ids []uint
	err := s.db.WithContext(ctx).Model(&Listing{}).
		Joins("JOIN integrations ON integrations.id = listings.integration_id").
		Where("integrations.status = ?", IntegrationActive).
		Where("((listings.sync_state = ? AND listings.attempts < ? AND (listings.next_retry_at IS NULL OR listings.next_retry_at <= ?)) OR (listings.sync_state = ? AND listings.updated_at <= ?))",
			SyncError, s.cfg.MaxAttempts, now, SyncPending, now.Add(-s.cfg.StaleAfter)).
		Order("listings.id").
		Pluck("listings.id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select listings to retry: %w", err)
	}

	report := &SweepReport{Candidates: len(ids)}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			_, err := s.PushQuantity(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Synced++
			case errors.Is(err, apperr.ErrExternalChannel):
				report.Failed++
			default:
				report.Failed++
				s.logger.Error("Retry sweep push failed", zap.Uint("listing_id", id), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if report.Candidates > 0 {
		s.logger.Info("Retry sweep finished",
			zap.Int("candidates", report.Candidates),
			zap.Int("synced", report.Synced),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}

// ChannelListing reads the channel side of a listing.
func (s *Service) ChannelListing(ctx context.Context, listing Listing) (*provider.Listing, error) {
	integ, err := s.integrationByID(ctx, listing.IntegrationID)
	if err != nil {
		return nil, err
	}
	p, err := s.providers.Get(integ.Provider)
	if err != nil {
		return nil, err
	}
	cred, err := s.EnsureFreshCredential(ctx, integ)
	if err != nil {
		return nil, err
	}
	return p.GetListing(ctx, cred, provider.ListingRef{ExternalListingID: listing.ExternalListingID, ExternalSKU: listing.ExternalSKU})
}

var _ inventory.QuantityListener = (*Service)(nil)
var _ inventory.ActiveListingCounter = (*Service)(nil)
