package inventory

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Condition is a card grade. Grades are ordered NM > LP > MP > HP > DMG.
type Condition string

const (
	ConditionNM  Condition = "NM"
	ConditionLP  Condition = "LP"
	ConditionMP  Condition = "MP"
	ConditionHP  Condition = "HP"
	ConditionDMG Condition = "DMG"
)

var conditionRank = map[Condition]int{
	ConditionNM:  5,
	ConditionLP:  4,
	ConditionMP:  3,
	ConditionHP:  2,
	ConditionDMG: 1,
}

// ParseCondition normalizes a grade. An empty string means NM.
func ParseCondition(s string) (Condition, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ConditionNM, true
	}
	c := Condition(s)
	_, ok := conditionRank[c]
	return c, ok
}

// Better reports whether c is a strictly better grade than other.
func (c Condition) Better(other Condition) bool {
	return conditionRank[c] > conditionRank[other]
}

// LotStatus is the physical state of a lot.
type LotStatus string

const (
	LotStatusAvailable LotStatus = "available"
	LotStatusReserved  LotStatus = "reserved"
	LotStatusGrading   LotStatus = "grading"
	LotStatusDamaged   LotStatus = "damaged"
)

// EventType classifies a ledger event.
type EventType string

const (
	EventSale       EventType = "sale"
	EventAdjustment EventType = "adjustment"
	EventGradingOut EventType = "grading_out"
	EventGradingIn  EventType = "grading_in"
	EventReserve    EventType = "reserve"
	EventUnreserve  EventType = "unreserve"
	EventImport     EventType = "import"
	EventManual     EventType = "manual"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventSale, EventAdjustment, EventGradingOut, EventGradingIn,
		EventReserve, EventUnreserve, EventImport, EventManual:
		return true
	}
	return false
}

// Card is a catalogued card identity, shared by the lots of a shop.
type Card struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	ShopID     uint           `gorm:"not null;uniqueIndex:idx_card_identity,priority:1" json:"shop_id"`
	Name       string         `gorm:"size:255;not null;uniqueIndex:idx_card_identity,priority:2" json:"name"`
	SetName    string         `gorm:"size:255;not null;uniqueIndex:idx_card_identity,priority:3" json:"set_name"`
	CardNumber string         `gorm:"size:32;not null;uniqueIndex:idx_card_identity,priority:4" json:"card_number"`
	Variant    string         `gorm:"size:64;not null;uniqueIndex:idx_card_identity,priority:5" json:"variant"`
	Language   string         `gorm:"size:8;not null" json:"language"`
	Attributes map[string]any `gorm:"serializer:json;type:text" json:"attributes"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Lot is a physical stock unit of one card in one condition.
// QuantityAvailable, QuantityReserved and LedgerVersion are derived from the ledger.
type Lot struct {
	ID                uint                `gorm:"primaryKey" json:"id"`
	ShopID            uint                `gorm:"not null;uniqueIndex:idx_lot_shop_sku,priority:1" json:"shop_id"`
	CardID            uint                `gorm:"not null;index" json:"card_id"`
	SKU               string              `gorm:"column:sku;size:64;not null;uniqueIndex:idx_lot_shop_sku,priority:2" json:"sku"`
	Condition         Condition           `gorm:"size:8;not null" json:"condition"`
	Language          string              `gorm:"size:8;not null" json:"language"`
	Location          string              `gorm:"size:128;not null;index" json:"location"`
	CostBasis         decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"cost_basis"`
	Status            LotStatus           `gorm:"size:16;not null;index" json:"status"`
	QuantityAvailable int                 `gorm:"not null" json:"quantity_available"`
	QuantityReserved  int                 `gorm:"not null" json:"quantity_reserved"`
	LedgerVersion     uint64              `gorm:"not null" json:"ledger_version"`
	RetiredAt         *time.Time          `json:"retired_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`

	Card *Card `gorm:"-" json:"card,omitempty"`
}

// Retired reports whether the lot was written off.
func (l *Lot) Retired() bool {
	return l.RetiredAt != nil
}

// Event is an immutable ledger entry. Events of a lot are totally ordered by Sequence.
type Event struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	LotID             uint           `gorm:"not null;uniqueIndex:idx_event_lot_sequence,priority:1" json:"lot_id"`
	Sequence          uint64         `gorm:"not null;uniqueIndex:idx_event_lot_sequence,priority:2" json:"sequence"`
	EventType         EventType      `gorm:"size:16;not null;index" json:"event_type"`
	QuantityDelta     int            `gorm:"not null" json:"quantity_delta"`
	ResultingQuantity int            `gorm:"not null" json:"resulting_quantity"`
	ReservedDelta     int            `gorm:"not null" json:"reserved_delta"`
	ProviderEventID   *string        `gorm:"size:191;uniqueIndex" json:"provider_event_id,omitempty"`
	OrderID           string         `gorm:"size:64;not null" json:"order_id,omitempty"`
	Actor             *string        `gorm:"size:128" json:"actor,omitempty"`
	Reason            string         `gorm:"size:255;not null" json:"reason,omitempty"`
	Metadata          map[string]any `gorm:"serializer:json;type:text" json:"metadata,omitempty"`
	CreatedAt         time.Time      `gorm:"index" json:"created_at"`
}

// TableName keeps ledger rows apart from other event streams.
func (Event) TableName() string {
	return "lot_events"
}

// Models lists the persisted models of the package for migrations.
func Models() []any {
	return []any{&Card{}, &Lot{}, &Event{}}
}
