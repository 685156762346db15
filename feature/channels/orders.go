package channels

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"card-inventory/core/apperr"
	"card-inventory/core/metrics"
	"card-inventory/feature/channels/provider"
	"card-inventory/feature/inventory"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OrderReport summarizes the order lines applied to the ledger.
type OrderReport struct {
	Orders    int `json:"orders"`
	Applied   int `json:"applied"`
	Replayed  int `json:"replayed"`
	Refused   int `json:"refused"`
	Unmatched int `json:"unmatched"`
	Failed    int `json:"failed"`
}

func (r *OrderReport) add(o OrderReport) {
	r.Orders += o.Orders
	r.Applied += o.Applied
	r.Replayed += o.Replayed
	r.Refused += o.Refused
	r.Unmatched += o.Unmatched
	r.Failed += o.Failed
}

// PollReport summarizes an order poll over every active integration.
type PollReport struct {
	Integrations int `json:"integrations"`
	PollFailures int `json:"poll_failures"`
	OrderReport
}

// PollOrders polls every active integration whose provider exposes orders.
func (s *Service) PollOrders(ctx context.Context) (*PollReport, error) {
	integrations, err := s.ActiveIntegrations(ctx, 0)
	if err != nil {
		return nil, err
	}
	report := &PollReport{}
	for i := range integrations {
		integ := &integrations[i]
		r, err := s.PollIntegration(ctx, integ)
		if errors.Is(err, errNoOrderSource) {
			continue
		}
		report.Integrations++
		if err != nil {
			report.PollFailures++
			continue
		}
		report.add(*r)
	}
	return report, nil
}

var errNoOrderSource = errors.New("provider does not expose orders")

// PollIntegration fetches the orders placed since the integration's cursor and
// applies them. The cursor only advances after a successful poll.
func (s *Service) PollIntegration(ctx context.Context, integ *Integration) (*OrderReport, error) {
	p, err := s.providers.Get(integ.Provider)
	if err != nil {
		return nil, err
	}
	src, ok := p.(provider.OrderSource)
	if !ok {
		return nil, errNoOrderSource
	}

	cred, err := s.EnsureFreshCredential(ctx, integ)
	if err != nil {
		return nil, err
	}
	batch, err := src.ListOrders(ctx, cred, integ.LastPollCursor)
	if err != nil {
		s.logger.Error("Order poll failed",
			zap.Uint("integration_id", integ.ID),
			zap.String("provider", integ.Provider),
			zap.Error(err),
		)
		s.recordJob(ctx, &SyncJob{
			IntegrationID:  integ.ID,
			Operation:      "poll_orders",
			Direction:      DirectionInbound,
			Status:         JobFailed,
			RequestPayload: map[string]any{"cursor": integ.LastPollCursor},
			Error:          err.Error(),
			Attempt:        1,
		})
		return nil, apperr.External("poll orders", err)
	}

	report := s.ApplyOrders(ctx, integ, batch.Orders)

	prev := integ.LastPollCursor
	if report.Failed > 0 {
		// Lines that failed are fetched again on the next poll; applied ones replay as no-ops.
		s.logger.Warn("Order lines failed, holding poll cursor",
			zap.Uint("integration_id", integ.ID),
			zap.Int("failed", report.Failed),
			zap.String("cursor", prev),
		)
		s.recordJob(ctx, &SyncJob{
			IntegrationID:   integ.ID,
			Operation:       "poll_orders",
			Direction:       DirectionInbound,
			Status:          JobFailed,
			RequestPayload:  map[string]any{"cursor": prev},
			ResponsePayload: map[string]any{"orders": report.Orders, "applied": report.Applied, "failed": report.Failed},
			Error:           fmt.Sprintf("%d order lines failed", report.Failed),
			Attempt:         1,
		})
		return report, nil
	}
	if err := s.db.WithContext(ctx).Model(&Integration{ID: integ.ID}).
		Update("last_poll_cursor", batch.Cursor).Error; err != nil {
		return nil, fmt.Errorf("failed to advance poll cursor of integration %d: %w", integ.ID, err)
	}
	integ.LastPollCursor = batch.Cursor

	s.recordJob(ctx, &SyncJob{
		IntegrationID:   integ.ID,
		Operation:       "poll_orders",
		Direction:       DirectionInbound,
		Status:          JobSuccess,
		RequestPayload:  map[string]any{"cursor": prev},
		ResponsePayload: map[string]any{"orders": report.Orders, "applied": report.Applied, "refused": report.Refused},
		Attempt:         1,
	})
	return report, nil
}

// ApplyOrders records each order line as a sale on its lot. Cancelled lines whose
// sale was recorded get a compensating adjustment. Replays change nothing.
func (s *Service) ApplyOrders(ctx context.Context, integ *Integration, orders []provider.Order) *OrderReport {
	report := &OrderReport{Orders: len(orders)}
	for _, order := range orders {
		for _, line := range order.LineItems {
			outcome := s.applyLine(ctx, integ, order.OrderID, line)
			metrics.OrdersApplied.WithLabelValues(integ.Provider, outcome).Inc()
			switch outcome {
			case "applied":
				report.Applied++
			case "replayed":
				report.Replayed++
			case "refused":
				report.Refused++
			case "unmatched":
				report.Unmatched++
			default:
				report.Failed++
			}
		}
	}
	return report
}

func (s *Service) applyLine(ctx context.Context, integ *Integration, orderID string, line provider.LineItem) string {
	log := s.logger.With(
		zap.Uint("integration_id", integ.ID),
		zap.String("order_id", orderID),
		zap.String("line_item_id", line.LineItemID),
		zap.String("sku", line.SKU),
	)
	if line.Quantity <= 0 {
		line.Quantity = 1
	}

	lotID, err := s.lotForLine(ctx, integ, line)
	if err != nil {
		log.Error("Failed to resolve order line", zap.Error(err))
		return "failed"
	}
	if lotID == 0 {
		log.Warn("Order line matches no lot")
		return "unmatched"
	}

	saleID := fmt.Sprintf("%s_order_%s_%s", integ.Provider, orderID, line.LineItemID)
	ev := inventory.ExternalEvent{
		ShopID:          integ.ShopID,
		LotID:           lotID,
		Delta:           -line.Quantity,
		ProviderEventID: saleID,
		EventType:       inventory.EventSale,
		OrderID:         orderID,
		Reason:          integ.Provider + " order",
		Metadata:        map[string]any{"line_item_id": line.LineItemID, "sku": line.SKU, "quantity": line.Quantity},
	}

	if line.Cancelled {
		sale, err := s.inventory.ProviderEvent(ctx, lotID, saleID)
		if err != nil {
			log.Error("Failed to look up cancelled sale", zap.Error(err))
			return "failed"
		}
		if sale == nil {
			return "replayed"
		}
		ev.Delta = -sale.QuantityDelta
		ev.ProviderEventID = fmt.Sprintf("%s_cancel_%s_%s", integ.Provider, orderID, line.LineItemID)
		ev.EventType = inventory.EventAdjustment
		ev.Reason = integ.Provider + " order cancelled"
	}

	_, applied, err := s.inventory.ApplyExternalEvent(ctx, ev)
	switch {
	case err == nil && applied:
		return "applied"
	case err == nil:
		return "replayed"
	case errors.Is(err, apperr.ErrInvalidDelta):
		log.Error("Oversell refused by the ledger, left for reconciliation",
			zap.Uint("lot_id", lotID),
			zap.Int("quantity", line.Quantity),
			zap.Error(err),
		)
		return "refused"
	default:
		log.Error("Failed to apply order line", zap.Uint("lot_id", lotID), zap.Error(err))
		return "failed"
	}
}

// lotForLine finds the lot of an order line: through the integration's listing
// of the external id or sku, else through the shop's lot sku.
func (s *Service) lotForLine(ctx context.Context, integ *Integration, line provider.LineItem) (uint, error) {
	var listing Listing
	q := s.db.WithContext(ctx).Where("integration_id = ?", integ.ID)
	switch {
	case line.ExternalListingID != "" && line.SKU != "":
		q = q.Where("(external_listing_id = ? OR external_sku = ?)", line.ExternalListingID, line.SKU)
	case line.ExternalListingID != "":
		q = q.Where("external_listing_id = ?", line.ExternalListingID)
	case line.SKU != "":
		q = q.Where("external_sku = ?", line.SKU)
	default:
		return 0, nil
	}
	err := q.Order("CASE WHEN sync_state = 'delisted' THEN 1 ELSE 0 END, id DESC").First(&listing).Error
	if err == nil {
		return listing.LotID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("failed to look up listing: %w", err)
	}
	if line.SKU == "" {
		return 0, nil
	}
	lot, err := s.inventory.FindLotBySKU(ctx, integ.ShopID, line.SKU)
	if err != nil || lot == nil {
		return 0, err
	}
	return lot.ID, nil
}

// VerifySignature checks a base64 HMAC-SHA256 signature of body.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the base64 HMAC-SHA256 signature of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// WebhookOrders is the payload of the order webhook.
type WebhookOrders struct {
	IntegrationID uint             `json:"integration_id" validate:"required"`
	Orders        []provider.Order `json:"orders" validate:"required"`
}

// ApplyWebhook applies pushed orders to the integration of the named provider.
func (s *Service) ApplyWebhook(ctx context.Context, providerName string, payload WebhookOrders) (*OrderReport, error) {
	integ, err := s.integrationByID(ctx, payload.IntegrationID)
	if err != nil {
		return nil, err
	}
	if integ.Provider != providerName {
		return nil, apperr.NotFoundf("%s integration %d", providerName, payload.IntegrationID)
	}
	if integ.Status != IntegrationActive {
		return nil, apperr.Conflictf("integration %d is not active", integ.ID)
	}
	report := s.ApplyOrders(ctx, integ, payload.Orders)
	s.recordJob(ctx, &SyncJob{
		IntegrationID:   integ.ID,
		Operation:       "order_webhook",
		Direction:       DirectionInbound,
		Status:          JobSuccess,
		ResponsePayload: map[string]any{"orders": report.Orders, "applied": report.Applied, "refused": report.Refused},
		Attempt:         1,
	})
	return report, nil
}
