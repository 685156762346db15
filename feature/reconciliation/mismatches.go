package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"card-inventory/core/apperr"

	"gorm.io/gorm"
)

// Filter narrows ListMismatches.
type Filter struct {
	Status        Status
	IntegrationID uint
	ListingID     uint
	Limit         int
	Offset        int
}

// ListMismatches returns the shop's mismatches, newest first, with the total count.
func (s *Service) ListMismatches(ctx context.Context, shopID uint, f Filter) ([]Mismatch, int64, error) {
	q := s.db.WithContext(ctx).Model(&Mismatch{}).Where("shop_id = ?", shopID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.IntegrationID != 0 {
		q = q.Where("integration_id = ?", f.IntegrationID)
	}
	if f.ListingID != 0 {
		q = q.Where("listing_id = ?", f.ListingID)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count mismatches: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []Mismatch
	if err := q.Order("id DESC").Limit(limit).Offset(f.Offset).Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list mismatches: %w", err)
	}
	return out, total, nil
}

// GetMismatch returns a mismatch of the shop.
func (s *Service) GetMismatch(ctx context.Context, shopID, id uint) (*Mismatch, error) {
	var m Mismatch
	err := s.db.WithContext(ctx).Where("id = ? AND shop_id = ?", id, shopID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("mismatch %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mismatch %d: %w", id, err)
	}
	return &m, nil
}
