package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"card-inventory/core/apperr"
	"card-inventory/core/lock"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LinkRequest publishes a lot through an integration.
type LinkRequest struct {
	ShopID            uint
	IntegrationID     uint                `json:"integration_id" validate:"required"`
	LotID             uint                `json:"lot_id" validate:"required"`
	ExternalListingID string              `json:"external_listing_id" validate:"required,max=191"`
	ExternalSKU       string              `json:"external_sku" validate:"max=191"`
	Title             string              `json:"title" validate:"max=255"`
	ListedPrice       decimal.NullDecimal `json:"listed_price"`
}

// Link creates a pending listing and queues its first push. A lot has at most one
// active listing per integration.
func (s *Service) Link(ctx context.Context, req LinkRequest) (*Listing, error) {
	if req.ExternalListingID == "" {
		return nil, apperr.Validationf("external listing id is required")
	}
	if _, err := s.GetIntegration(ctx, req.ShopID, req.IntegrationID); err != nil {
		return nil, err
	}
	lot, err := s.inventory.GetLot(ctx, req.ShopID, req.LotID)
	if err != nil {
		return nil, err
	}
	if lot.Retired() {
		return nil, apperr.Conflictf("lot %d is retired", lot.ID)
	}

	sku := strings.TrimSpace(req.ExternalSKU)
	if sku == "" {
		sku = lot.SKU
	}
	listing := &Listing{
		IntegrationID:     req.IntegrationID,
		LotID:             req.LotID,
		ExternalListingID: strings.TrimSpace(req.ExternalListingID),
		ExternalSKU:       sku,
		Title:             req.Title,
		ListedPrice:       req.ListedPrice,
		SyncState:         SyncPending,
		Metadata:          map[string]any{},
		ActiveKey:         activeKey(req.IntegrationID, req.LotID),
	}
	if err := s.db.WithContext(ctx).Create(listing).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflictf("lot %d already has an active listing on integration %d", req.LotID, req.IntegrationID)
		}
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	s.Enqueue(listing.ID)
	return listing, nil
}

func (s *Service) shopListings(ctx context.Context, shopID uint) *gorm.DB {
	return s.db.WithContext(ctx).Model(&Listing{}).
		Joins("JOIN integrations ON integrations.id = listings.integration_id AND integrations.shop_id = ?", shopID)
}

// GetListing returns a listing of the shop.
func (s *Service) GetListing(ctx context.Context, shopID, id uint) (*Listing, error) {
	var listing Listing
	err := s.shopListings(ctx, shopID).Select("listings.*").Where("listings.id = ?", id).First(&listing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("listing %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load listing %d: %w", id, err)
	}
	return &listing, nil
}

func (s *Service) listingByID(ctx context.Context, id uint) (*Listing, error) {
	var listing Listing
	err := s.db.WithContext(ctx).First(&listing, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("listing %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load listing %d: %w", id, err)
	}
	return &listing, nil
}

// ListingFilter narrows ListListings.
type ListingFilter struct {
	IntegrationID uint
	State         SyncState
	LotID         uint
	Limit         int
	Offset        int
}

// ListListings returns the shop's listings, newest first.
func (s *Service) ListListings(ctx context.Context, shopID uint, f ListingFilter) ([]Listing, int64, error) {
	q := s.shopListings(ctx, shopID)
	if f.IntegrationID != 0 {
		q = q.Where("listings.integration_id = ?", f.IntegrationID)
	}
	if f.State != "" {
		q = q.Where("listings.sync_state = ?", f.State)
	}
	if f.LotID != 0 {
		q = q.Where("listings.lot_id = ?", f.LotID)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count listings: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []Listing
	if err := q.Select("listings.*").Order("listings.id DESC").Limit(limit).Offset(f.Offset).Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list listings: %w", err)
	}
	return out, total, nil
}

// ListingUpdate changes descriptive listing fields. Nil fields are kept.
type ListingUpdate struct {
	ExternalSKU *string              `json:"external_sku" validate:"omitempty,max=191"`
	Title       *string              `json:"title" validate:"omitempty,max=255"`
	ListedPrice *decimal.NullDecimal `json:"listed_price"`
}

// UpdateListing changes the descriptive fields of a listing.
func (s *Service) UpdateListing(ctx context.Context, shopID, id uint, upd ListingUpdate) (*Listing, error) {
	unlock, err := s.locker.Lock(ctx, lock.ListingKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	listing, err := s.GetListing(ctx, shopID, id)
	if err != nil {
		return nil, err
	}
	if listing.SyncState == SyncDelisted {
		return nil, apperr.Conflictf("listing %d is delisted", id)
	}

	updates := map[string]any{}
	if upd.ExternalSKU != nil {
		updates["external_sku"] = strings.TrimSpace(*upd.ExternalSKU)
	}
	if upd.Title != nil {
		updates["title"] = *upd.Title
	}
	if upd.ListedPrice != nil {
		if upd.ListedPrice.Valid && upd.ListedPrice.Decimal.IsNegative() {
			return nil, apperr.Validationf("listed price must not be negative")
		}
		updates["listed_price"] = *upd.ListedPrice
	}
	if len(updates) == 0 {
		return listing, nil
	}
	if err := s.db.WithContext(ctx).Model(&Listing{ID: id}).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update listing %d: %w", id, err)
	}
	return s.GetListing(ctx, shopID, id)
}

// Delist ends a listing. Delisted is terminal; the lot may be listed again with a new row.
func (s *Service) Delist(ctx context.Context, shopID, id uint) (*Listing, error) {
	unlock, err := s.locker.Lock(ctx, lock.ListingKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	listing, err := s.GetListing(ctx, shopID, id)
	if err != nil {
		return nil, err
	}
	if listing.SyncState == SyncDelisted {
		return listing, nil
	}
	if err := s.db.WithContext(ctx).Model(&Listing{ID: id}).Updates(map[string]any{
		"sync_state":    SyncDelisted,
		"active_key":    nil,
		"next_retry_at": nil,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to delist listing %d: %w", id, err)
	}
	s.logger.Info("Listing delisted", zap.Uint("listing_id", id), zap.Uint("lot_id", listing.LotID))
	return s.GetListing(ctx, shopID, id)
}

// ActiveListingCount counts the non-delisted listings of a lot.
func (s *Service) ActiveListingCount(ctx context.Context, lotID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Listing{}).
		Where("lot_id = ? AND sync_state <> ?", lotID, SyncDelisted).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count listings of lot %d: %w", lotID, err)
	}
	return n, nil
}

// ListSyncJobs returns the audit trail of a listing, newest first.
func (s *Service) ListSyncJobs(ctx context.Context, shopID, listingID uint, limit int) ([]SyncJob, error) {
	if _, err := s.GetListing(ctx, shopID, listingID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var jobs []SyncJob
	if err := s.db.WithContext(ctx).Where("listing_id = ?", listingID).Order("id DESC").Limit(limit).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list sync jobs: %w", err)
	}
	return jobs, nil
}

// ReconcilableListings returns the shop's synced and errored listings on active integrations.
func (s *Service) ReconcilableListings(ctx context.Context, shopID uint) ([]Listing, error) {
	var out []Listing
	err := s.shopListings(ctx, shopID).
		Select("listings.*").
		Where("integrations.status = ? AND listings.sync_state IN ?", IntegrationActive, []SyncState{SyncSynced, SyncError}).
		Order("listings.id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reconcilable listings: %w", err)
	}
	return out, nil
}
