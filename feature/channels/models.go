package channels

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// IntegrationStatus is the connection state of an integration.
type IntegrationStatus string

const (
	IntegrationDisconnected IntegrationStatus = "disconnected"
	IntegrationActive       IntegrationStatus = "active"
	IntegrationError        IntegrationStatus = "error"
)

// Integration connects a shop to a sales channel.
type Integration struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	ShopID         uint              `gorm:"not null;uniqueIndex:idx_integration_shop_provider,priority:1" json:"shop_id"`
	Provider       string            `gorm:"size:32;not null;uniqueIndex:idx_integration_shop_provider,priority:2" json:"provider"`
	Credentials    []byte            `json:"-"`
	Scopes         string            `gorm:"type:text" json:"scopes"`
	TokenExpiry    *time.Time        `json:"token_expiry,omitempty"`
	Status         IntegrationStatus `gorm:"size:16;not null;index" json:"status"`
	LastPollCursor string            `gorm:"size:255;not null" json:"last_poll_cursor"`
	LastError      string            `gorm:"type:text" json:"last_error,omitempty"`
	Metadata       map[string]any    `gorm:"serializer:json;type:text" json:"metadata"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// SyncState is the state of a listing's quantity sync.
type SyncState string

const (
	SyncPending  SyncState = "pending"
	SyncSynced   SyncState = "synced"
	SyncError    SyncState = "error"
	SyncDelisted SyncState = "delisted"
)

// CanTransition reports whether a listing may move from s to next.
// Delisted is terminal; every other state may be delisted.
func (s SyncState) CanTransition(next SyncState) bool {
	if s == SyncDelisted {
		return false
	}
	switch next {
	case SyncDelisted:
		return true
	case SyncPending:
		return s == SyncError || s == SyncSynced || s == SyncPending
	case SyncSynced, SyncError:
		return s == SyncPending
	}
	return false
}

// Listing publishes a lot on a sales channel.
type Listing struct {
	ID                uint                `gorm:"primaryKey" json:"id"`
	IntegrationID     uint                `gorm:"not null;index" json:"integration_id"`
	LotID             uint                `gorm:"not null;index" json:"lot_id"`
	ExternalListingID string              `gorm:"size:191;not null" json:"external_listing_id"`
	ExternalSKU       string              `gorm:"size:191;not null" json:"external_sku"`
	Title             string              `gorm:"size:255;not null" json:"title"`
	ListedPrice       decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"listed_price"`
	ListedQuantity    int                 `gorm:"not null" json:"listed_quantity"`
	SyncState         SyncState           `gorm:"size:16;not null;index" json:"sync_state"`
	LastSyncedAt      *time.Time          `json:"last_synced_at,omitempty"`
	Attempts          int                 `gorm:"not null" json:"attempts"`
	NextRetryAt       *time.Time          `gorm:"index" json:"next_retry_at,omitempty"`
	Metadata          map[string]any      `gorm:"serializer:json;type:text" json:"metadata"`
	// ActiveKey is set while the listing is not delisted; its uniqueness allows
	// one active listing per integration and lot.
	ActiveKey *string   `gorm:"size:64;uniqueIndex" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func activeKey(integrationID, lotID uint) *string {
	k := fmt.Sprintf("%d:%d", integrationID, lotID)
	return &k
}

// LastError returns the reason of the last failed push.
func (l *Listing) LastError() string {
	s, _ := l.Metadata["last_error"].(string)
	return s
}

// Sync job directions and results.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	JobSuccess = "success"
	JobFailed  = "failed"
)

// SyncJob audits one exchange with a channel.
type SyncJob struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	IntegrationID   uint           `gorm:"not null;index" json:"integration_id"`
	ListingID       *uint          `gorm:"index" json:"listing_id,omitempty"`
	Operation       string         `gorm:"size:64;not null" json:"operation"`
	Direction       string         `gorm:"size:16;not null" json:"direction"`
	Status          string         `gorm:"size:16;not null;index" json:"status"`
	RequestPayload  map[string]any `gorm:"serializer:json;type:text" json:"request_payload,omitempty"`
	ResponsePayload map[string]any `gorm:"serializer:json;type:text" json:"response_payload,omitempty"`
	Error           string         `gorm:"type:text" json:"error,omitempty"`
	Attempt         int            `gorm:"not null" json:"attempt"`
	CreatedAt       time.Time      `json:"created_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// Models lists the persisted models of the package for migrations.
func Models() []any {
	return []any{&Integration{}, &Listing{}, &SyncJob{}}
}
