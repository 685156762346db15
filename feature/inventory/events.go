package inventory

import (
	"context"
	"fmt"
)

// EventFilter narrows ListEvents. Cursor is the id of the last event of the previous page.
type EventFilter struct {
	LotID  uint
	Type   EventType
	Search string
	Cursor uint
	Limit  int
}

// EventPage is one page of the audit log, newest first.
type EventPage struct {
	Events     []Event `json:"events"`
	NextCursor uint    `json:"next_cursor,omitempty"`
}

// ListEvents returns the shop's ledger events, newest first. Search matches actor,
// event type, reason and metadata.
func (s *Service) ListEvents(ctx context.Context, shopID uint, f EventFilter) (*EventPage, error) {
	limit := clampLimit(f.Limit)

	q := s.db.WithContext(ctx).Model(&Event{}).
		Joins("JOIN lots ON lots.id = lot_events.lot_id AND lots.shop_id = ?", shopID)
	if f.LotID != 0 {
		q = q.Where("lot_events.lot_id = ?", f.LotID)
	}
	if f.Type != "" {
		q = q.Where("lot_events.event_type = ?", f.Type)
	}
	if f.Cursor != 0 {
		q = q.Where("lot_events.id < ?", f.Cursor)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("(lot_events.actor LIKE ? OR lot_events.event_type LIKE ? OR lot_events.reason LIKE ? OR lot_events.metadata LIKE ?)",
			like, like, like, like)
	}

	var events []Event
	if err := q.Select("lot_events.*").Order("lot_events.id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	page := &EventPage{Events: events}
	if len(events) == limit {
		page.NextCursor = events[len(events)-1].ID
	}
	return page, nil
}

// LotEvents returns every event of a lot in sequence order.
func (s *Service) LotEvents(ctx context.Context, lotID uint) ([]Event, error) {
	var events []Event
	if err := s.db.WithContext(ctx).Where("lot_id = ?", lotID).Order("sequence").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load events of lot %d: %w", lotID, err)
	}
	return events, nil
}
