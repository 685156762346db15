package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"card-inventory/core/metrics"
	"card-inventory/core/reconcile"
	"card-inventory/feature/channels"
	"card-inventory/feature/channels/provider"
	"card-inventory/feature/inventory"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// listingItem is the internal view of a listing: the listing and its lot.
type listingItem struct {
	ShopID  uint
	Listing channels.Listing
	Lot     inventory.Lot
}

// listingAdapter compares the ledger quantity of listed lots with the channel.
// An adapter serves one scan; it remembers the mismatches it created.
type listingAdapter struct {
	svc *Service

	mu      sync.Mutex
	created []uint
}

var (
	_ reconcile.Adapter = (*listingAdapter)(nil)
	_ reconcile.Mutator = (*listingAdapter)(nil)
)

func (a *listingAdapter) Name() string {
	return "listings"
}

func (a *listingAdapter) LoadInternalIndex(ctx context.Context, scope string) (map[string]reconcile.InternalItem, error) {
	shopID, err := strconv.ParseUint(scope, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid scan scope %q: %w", scope, err)
	}
	listings, err := a.svc.channels.ReconcilableListings(ctx, uint(shopID))
	if err != nil {
		return nil, err
	}
	if len(listings) == 0 {
		return map[string]reconcile.InternalItem{}, nil
	}

	lotIDs := make([]uint, 0, len(listings))
	for _, l := range listings {
		lotIDs = append(lotIDs, l.LotID)
	}
	var lots []inventory.Lot
	if err := a.svc.db.WithContext(ctx).Where("id IN ?", lotIDs).Find(&lots).Error; err != nil {
		return nil, fmt.Errorf("failed to load listed lots: %w", err)
	}
	byID := make(map[uint]inventory.Lot, len(lots))
	for _, lot := range lots {
		byID[lot.ID] = lot
	}

	index := make(map[string]reconcile.InternalItem, len(listings))
	for _, l := range listings {
		lot, ok := byID[l.LotID]
		if !ok {
			continue
		}
		index[strconv.FormatUint(uint64(l.ID), 10)] = &listingItem{ShopID: uint(shopID), Listing: l, Lot: lot}
	}
	return index, nil
}

func (a *listingAdapter) PollChannel(ctx context.Context, key string, item reconcile.InternalItem) (reconcile.ChannelItem, error) {
	it := item.(*listingItem)
	got, err := a.svc.channels.ChannelListing(ctx, it.Listing)
	if errors.Is(err, provider.ErrListingNotFound) {
		return nil, nil
	}
	if err != nil {
		metrics.ScanPollFailures.Inc()
		a.svc.logger.Warn("Channel poll failed during scan",
			zap.Uint("listing_id", it.Listing.ID),
			zap.String("external_listing_id", it.Listing.ExternalListingID),
			zap.Error(err),
		)
		return nil, err
	}
	return got, nil
}

func (a *listingAdapter) ResolveName(item reconcile.InternalItem) string {
	it := item.(*listingItem)
	if it.Listing.Title != "" {
		return it.Listing.Title
	}
	return it.Lot.SKU
}

func (a *listingAdapter) CompareFields(internal reconcile.InternalItem, channel reconcile.ChannelItem) []string {
	it := internal.(*listingItem)
	ch := channel.(*provider.Listing)
	if it.Lot.QuantityAvailable == ch.Quantity {
		return nil
	}
	return []string{fmt.Sprintf("quantity: internal=%d channel=%d", it.Lot.QuantityAvailable, ch.Quantity)}
}

func (a *listingAdapter) GetMetadata(internal reconcile.InternalItem, channel reconcile.ChannelItem) map[string]string {
	it := internal.(*listingItem)
	md := map[string]string{
		"listing_id":          strconv.FormatUint(uint64(it.Listing.ID), 10),
		"lot_id":              strconv.FormatUint(uint64(it.Lot.ID), 10),
		"integration_id":      strconv.FormatUint(uint64(it.Listing.IntegrationID), 10),
		"external_listing_id": it.Listing.ExternalListingID,
		"internal_quantity":   strconv.Itoa(it.Lot.QuantityAvailable),
		"listed_quantity":     strconv.Itoa(it.Listing.ListedQuantity),
	}
	if ch, ok := channel.(*provider.Listing); ok && ch != nil {
		md["channel_quantity"] = strconv.Itoa(ch.Quantity)
	}
	return md
}

// RaiseMismatch stores a pending mismatch unless the listing already has one.
func (a *listingAdapter) RaiseMismatch(ctx context.Context, action reconcile.Action) (bool, error) {
	it := action.Internal.(*listingItem)
	m := &Mismatch{
		ShopID:              it.ShopID,
		IntegrationID:       it.Listing.IntegrationID,
		ListingID:           it.Listing.ID,
		LotID:               it.Lot.ID,
		InternalQuantity:    it.Lot.QuantityAvailable,
		ListedQuantity:      it.Listing.ListedQuantity,
		ExternalListingID:   it.Listing.ExternalListingID,
		ExternalSKU:         it.Listing.ExternalSKU,
		ExternalTitle:       it.Listing.Title,
		Reason:              truncate(action.Reason, 255),
		Status:              StatusPending,
		SuggestedResolution: StatusPushInternal,
		PendingKey:          pendingKey(it.Listing.ID),
	}
	if ch, ok := action.Channel.(*provider.Listing); ok && ch != nil {
		m.ChannelQuantity = ch.Quantity
		if ch.Title != "" {
			m.ExternalTitle = ch.Title
		}
		if ch.ExternalSKU != "" {
			m.ExternalSKU = ch.ExternalSKU
		}
	} else {
		m.ChannelMissing = true
	}

	if err := a.svc.db.WithContext(ctx).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to store mismatch of listing %d: %w", it.Listing.ID, err)
	}

	metrics.MismatchesRaised.Inc()
	a.svc.logger.Info("Mismatch raised",
		zap.Uint("mismatch_id", m.ID),
		zap.Uint("listing_id", m.ListingID),
		zap.Int("internal", m.InternalQuantity),
		zap.Int("channel", m.ChannelQuantity),
	)

	a.mu.Lock()
	a.created = append(a.created, m.ID)
	a.mu.Unlock()
	return true, nil
}

func (a *listingAdapter) createdIDs() []uint {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint(nil), a.created...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
