package reconciliation

import (
	"strconv"
	"time"
)

// Status is the lifecycle state of a mismatch. Every status but pending is terminal
// and names the resolution that closed it.
type Status string

const (
	StatusPending      Status = "pending"
	StatusPushInternal Status = "push_internal"
	StatusPullChannel  Status = "pull_channel"
	StatusIgnore       Status = "ignore"
)

// Resolution is an operator or policy decision on a pending mismatch.
type Resolution = Status

// ParseResolution validates a resolution name.
func ParseResolution(s string) (Resolution, bool) {
	switch r := Resolution(s); r {
	case StatusPushInternal, StatusPullChannel, StatusIgnore:
		return r, true
	}
	return "", false
}

// Mismatch records a divergence between the ledger and a channel listing.
type Mismatch struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	ShopID              uint       `gorm:"not null;index" json:"shop_id"`
	IntegrationID       uint       `gorm:"not null;index" json:"integration_id"`
	ListingID           uint       `gorm:"not null;index" json:"listing_id"`
	LotID               uint       `gorm:"not null;index" json:"lot_id"`
	InternalQuantity    int        `gorm:"not null" json:"internal_quantity"`
	ChannelQuantity     int        `gorm:"not null" json:"channel_quantity"`
	ListedQuantity      int        `gorm:"not null" json:"listed_quantity"`
	ChannelMissing      bool       `gorm:"not null" json:"channel_missing"`
	ExternalListingID   string     `gorm:"size:191;not null" json:"external_listing_id"`
	ExternalSKU         string     `gorm:"size:191;not null" json:"external_sku"`
	ExternalTitle       string     `gorm:"size:255;not null" json:"external_title"`
	Reason              string     `gorm:"size:255;not null" json:"reason"`
	Status              Status     `gorm:"size:16;not null;index" json:"status"`
	SuggestedResolution Resolution `gorm:"size:16;not null" json:"suggested_resolution"`
	Notes               string     `gorm:"type:text" json:"notes,omitempty"`
	ResolvedBy          *string    `gorm:"size:128" json:"resolved_by,omitempty"`
	ResolvedAt          *time.Time `json:"resolved_at,omitempty"`
	// PendingKey holds the listing id while the mismatch is pending; its uniqueness
	// allows one pending mismatch per listing across processes.
	PendingKey *string   `gorm:"size:32;uniqueIndex" json:"-"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func pendingKey(listingID uint) *string {
	k := strconv.FormatUint(uint64(listingID), 10)
	return &k
}

// Pending reports whether the mismatch still awaits a resolution.
func (m *Mismatch) Pending() bool {
	return m.Status == StatusPending
}

// Models lists the persisted models of the package for migrations.
func Models() []any {
	return []any{&Mismatch{}}
}
