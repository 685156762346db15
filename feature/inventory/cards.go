package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"card-inventory/core/apperr"

	"gorm.io/gorm"
)

// CardInput identifies a card. Matching is exact on every identity field.
type CardInput struct {
	Name       string         `json:"name" validate:"required,max=255"`
	SetName    string         `json:"set_name" validate:"required,max=255"`
	CardNumber string         `json:"card_number" validate:"max=32"`
	Variant    string         `json:"variant" validate:"max=64"`
	Language   string         `json:"language" validate:"max=8"`
	Attributes map[string]any `json:"attributes"`
}

func (in *CardInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.SetName = strings.TrimSpace(in.SetName)
	in.CardNumber = strings.TrimSpace(in.CardNumber)
	in.Variant = strings.TrimSpace(in.Variant)
	in.Language = strings.ToUpper(strings.TrimSpace(in.Language))
	if in.Language == "" {
		in.Language = "EN"
	}
}

func (in CardInput) card(shopID uint) *Card {
	return &Card{
		ShopID:     shopID,
		Name:       in.Name,
		SetName:    in.SetName,
		CardNumber: in.CardNumber,
		Variant:    in.Variant,
		Language:   in.Language,
		Attributes: in.Attributes,
	}
}

func identityScope(db *gorm.DB, shopID uint, in CardInput) *gorm.DB {
	return db.Where("shop_id = ? AND name = ? AND set_name = ? AND card_number = ? AND variant = ?",
		shopID, in.Name, in.SetName, in.CardNumber, in.Variant)
}

// CreateCard creates a card. An existing identical card is a Conflict.
func (s *Service) CreateCard(ctx context.Context, shopID uint, in CardInput) (*Card, error) {
	in.normalize()
	if in.Name == "" || in.SetName == "" {
		return nil, apperr.Validationf("name and set are required")
	}
	card := in.card(shopID)
	if err := s.db.WithContext(ctx).Create(card).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflictf("card %q (%s) already exists", in.Name, in.SetName)
		}
		return nil, fmt.Errorf("failed to create card: %w", err)
	}
	return card, nil
}

// FindOrCreateCard returns the card with exactly this identity, creating it if needed.
func (s *Service) FindOrCreateCard(ctx context.Context, shopID uint, in CardInput) (*Card, bool, error) {
	return findOrCreateCard(s.db.WithContext(ctx), shopID, in)
}

func findOrCreateCard(db *gorm.DB, shopID uint, in CardInput) (*Card, bool, error) {
	in.normalize()
	if in.Name == "" || in.SetName == "" {
		return nil, false, apperr.Validationf("name and set are required")
	}

	var card Card
	err := identityScope(db, shopID, in).First(&card).Error
	if err == nil {
		return &card, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to look up card: %w", err)
	}

	created := in.card(shopID)
	if err := db.Create(created).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a creation race; the winner's row is the card.
			if err := identityScope(db, shopID, in).First(&card).Error; err != nil {
				return nil, false, fmt.Errorf("failed to look up card: %w", err)
			}
			return &card, false, nil
		}
		return nil, false, fmt.Errorf("failed to create card: %w", err)
	}
	return created, true, nil
}

// GetCard returns a card of the shop.
func (s *Service) GetCard(ctx context.Context, shopID, id uint) (*Card, error) {
	var card Card
	err := s.db.WithContext(ctx).Where("id = ? AND shop_id = ?", id, shopID).First(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("card %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load card %d: %w", id, err)
	}
	return &card, nil
}

// CardFilter narrows ListCards.
type CardFilter struct {
	Search  string
	SetName string
	Limit   int
	Offset  int
}

// ListCards returns the shop's cards ordered by name.
func (s *Service) ListCards(ctx context.Context, shopID uint, f CardFilter) ([]Card, int64, error) {
	q := s.db.WithContext(ctx).Model(&Card{}).Where("shop_id = ?", shopID)
	if f.SetName != "" {
		q = q.Where("set_name = ?", f.SetName)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("(name LIKE ? OR set_name LIKE ? OR card_number LIKE ?)", like, like, like)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count cards: %w", err)
	}

	var cards []Card
	if err := q.Order("name, set_name, card_number").Limit(clampLimit(f.Limit)).Offset(f.Offset).Find(&cards).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, total, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 200:
		return 200
	default:
		return limit
	}
}
