package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"card-inventory/core/apperr"
	"card-inventory/core/lock"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ActiveListingCounter reports how many non-delisted listings reference a lot.
// The channels feature provides it; retirement is refused while any exist.
type ActiveListingCounter interface {
	ActiveListingCount(ctx context.Context, lotID uint) (int64, error)
}

// CreateLotRequest describes a new lot. Quantity is applied through the ledger.
type CreateLotRequest struct {
	ShopID    uint
	CardID    uint
	SKU       string
	Condition string
	Language  string
	Location  string
	CostBasis decimal.NullDecimal
	Quantity  int
	// EventType of the initial quantity event: manual (default) or import.
	EventType EventType
	Actor     *string
	Reason    string
	Metadata  map[string]any
}

// CreateLot creates a lot with zero quantity and, in the same transaction, applies
// the initial quantity as a ledger event. Import lots always get an event, even for
// zero quantity.
func (s *Service) CreateLot(ctx context.Context, req CreateLotRequest) (*Lot, *Event, error) {
	return s.createLot(s.db.WithContext(ctx), req)
}

func (s *Service) createLot(db *gorm.DB, req CreateLotRequest) (*Lot, *Event, error) {
	cond, ok := ParseCondition(req.Condition)
	if !ok {
		return nil, nil, apperr.Validationf("unknown condition %q", req.Condition)
	}
	if req.Quantity < 0 {
		return nil, nil, apperr.Validationf("quantity must not be negative")
	}
	if req.EventType == "" {
		req.EventType = EventManual
	}
	if req.EventType != EventManual && req.EventType != EventImport {
		return nil, nil, apperr.Validationf("initial quantity must be a manual or import event")
	}
	lang := strings.ToUpper(strings.TrimSpace(req.Language))
	if lang == "" {
		lang = "EN"
	}

	var (
		lot *Lot
		ev  *Event
	)
	err := db.Transaction(func(tx *gorm.DB) error {
		var card Card
		if err := tx.Where("id = ? AND shop_id = ?", req.CardID, req.ShopID).First(&card).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFoundf("card %d", req.CardID)
			}
			return fmt.Errorf("failed to load card %d: %w", req.CardID, err)
		}

		lot = &Lot{
			ShopID:    req.ShopID,
			CardID:    card.ID,
			SKU:       strings.TrimSpace(req.SKU),
			Condition: cond,
			Language:  lang,
			Location:  strings.TrimSpace(req.Location),
			CostBasis: req.CostBasis,
			Status:    LotStatusAvailable,
		}
		if lot.SKU == "" {
			lot.SKU = generateSKU(cond)
		}
		if err := tx.Create(lot).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.Conflictf("sku %q already exists", lot.SKU)
			}
			return fmt.Errorf("failed to create lot: %w", err)
		}
		lot.Card = &card

		if req.Quantity == 0 && req.EventType != EventImport {
			return nil
		}

		applied, event, err := applyTx(tx.WithContext(withLedger(tx.Statement.Context)), AdjustRequest{
			ShopID:    req.ShopID,
			LotID:     lot.ID,
			Delta:     req.Quantity,
			EventType: req.EventType,
			Actor:     req.Actor,
			Reason:    req.Reason,
			Metadata:  req.Metadata,
		})
		if err != nil {
			return err
		}
		applied.Card = &card
		lot, ev = applied, event
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return lot, ev, nil
}

func generateSKU(cond Condition) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("%s-%s", cond, id[:12])
}

// GetLot returns a lot of the shop with its card.
func (s *Service) GetLot(ctx context.Context, shopID, id uint) (*Lot, error) {
	var lot Lot
	err := s.db.WithContext(ctx).Where("id = ? AND shop_id = ?", id, shopID).First(&lot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("lot %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lot %d: %w", id, err)
	}
	var card Card
	if err := s.db.WithContext(ctx).First(&card, lot.CardID).Error; err == nil {
		lot.Card = &card
	}
	return &lot, nil
}

// GetLotByID loads a lot without shop scoping, for background jobs.
func (s *Service) GetLotByID(ctx context.Context, id uint) (*Lot, error) {
	var lot Lot
	err := s.db.WithContext(ctx).First(&lot, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("lot %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lot %d: %w", id, err)
	}
	return &lot, nil
}

// FindLotBySKU returns the shop's lot with the given SKU, or nil.
func (s *Service) FindLotBySKU(ctx context.Context, shopID uint, sku string) (*Lot, error) {
	var lot Lot
	err := s.db.WithContext(ctx).Where("shop_id = ? AND sku = ?", shopID, sku).First(&lot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up sku %q: %w", sku, err)
	}
	return &lot, nil
}

// LotFilter narrows ListLots.
type LotFilter struct {
	Status    LotStatus
	Condition Condition
	Location  string
	CardID    uint
	Search    string
	Limit     int
	Offset    int
}

// ListLots returns the shop's lots, newest first.
func (s *Service) ListLots(ctx context.Context, shopID uint, f LotFilter) ([]Lot, int64, error) {
	q := s.db.WithContext(ctx).Model(&Lot{}).Where("lots.shop_id = ?", shopID)
	if f.Status != "" {
		q = q.Where("lots.status = ?", f.Status)
	}
	if f.Condition != "" {
		q = q.Where("lots.condition = ?", f.Condition)
	}
	if f.Location != "" {
		q = q.Where("lots.location = ?", f.Location)
	}
	if f.CardID != 0 {
		q = q.Where("lots.card_id = ?", f.CardID)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Joins("JOIN cards ON cards.id = lots.card_id").
			Where("(lots.sku LIKE ? OR lots.location LIKE ? OR cards.name LIKE ? OR cards.set_name LIKE ?)", like, like, like, like)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count lots: %w", err)
	}

	var lots []Lot
	if err := q.Select("lots.*").Order("lots.id DESC").Limit(clampLimit(f.Limit)).Offset(f.Offset).Find(&lots).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list lots: %w", err)
	}
	return lots, total, nil
}

// UpdateLot changes descriptive fields. Quantity fields are derived from the
// ledger and rejected with a validation error.
func (s *Service) UpdateLot(ctx context.Context, shopID, id uint, fields map[string]any) (*Lot, error) {
	allowed := map[string]bool{"location": true, "condition": true, "language": true, "cost_basis": true, "sku": true}
	updates := make(map[string]any, len(fields))
	for key, value := range fields {
		if isDerived(key) {
			return nil, apperr.ErrDerivedFieldWrite
		}
		if !allowed[key] {
			return nil, apperr.Validationf("field %q cannot be updated", key)
		}
		updates[key] = value
	}
	if cond, ok := updates["condition"]; ok {
		str, _ := cond.(string)
		parsed, valid := ParseCondition(str)
		if !valid {
			return nil, apperr.Validationf("unknown condition %q", str)
		}
		updates["condition"] = parsed
	}
	if cost, ok := updates["cost_basis"]; ok {
		parsed, err := parseCost(cost)
		if err != nil {
			return nil, err
		}
		updates["cost_basis"] = parsed
	}

	unlock, err := s.locker.Lock(ctx, lock.LotKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	lot, err := s.GetLot(ctx, shopID, id)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return lot, nil
	}
	if err := s.db.WithContext(ctx).Model(lot).Updates(updates).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflictf("sku already exists")
		}
		if errors.Is(err, apperr.ErrDerivedFieldWrite) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update lot %d: %w", id, err)
	}
	return s.GetLot(ctx, shopID, id)
}

func parseCost(v any) (decimal.NullDecimal, error) {
	switch c := v.(type) {
	case nil:
		return decimal.NullDecimal{}, nil
	case string:
		if strings.TrimSpace(c) == "" {
			return decimal.NullDecimal{}, nil
		}
		d, err := ParseMoney(c)
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		return decimal.NewNullDecimal(d), nil
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(c)), nil
	case decimal.Decimal:
		return decimal.NewNullDecimal(c), nil
	case decimal.NullDecimal:
		return c, nil
	default:
		return decimal.NullDecimal{}, apperr.Validationf("invalid cost %v", v)
	}
}

// ParseMoney parses an amount such as "$1,234.50".
func ParseMoney(s string) (decimal.Decimal, error) {
	clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Decimal{}, apperr.Validationf("invalid amount %q", s)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, apperr.Validationf("amount %q must not be negative", s)
	}
	return d, nil
}

// RetireLot writes a lot off as damaged. Lots with active listings cannot be retired.
func (s *Service) RetireLot(ctx context.Context, shopID, id uint, listings ActiveListingCounter) (*Lot, error) {
	unlock, err := s.locker.Lock(ctx, lock.LotKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	lot, err := s.GetLot(ctx, shopID, id)
	if err != nil {
		return nil, err
	}
	if lot.Retired() {
		return lot, nil
	}
	if listings != nil {
		n, err := listings.ActiveListingCount(ctx, id)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, apperr.Conflictf("lot %d has %d active listings", id, n)
		}
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(lot).Updates(map[string]any{
		"status":     LotStatusDamaged,
		"retired_at": now,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to retire lot %d: %w", id, err)
	}
	lot.Status = LotStatusDamaged
	lot.RetiredAt = &now
	return lot, nil
}
