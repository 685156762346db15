package reconciliation

import (
	"context"
	"sort"
	"strconv"

	"card-inventory/core/reconcile"

	"go.uber.org/zap"
)

// ScanReport summarizes one scan of a shop.
type ScanReport struct {
	ShopID            uint `json:"shop_id"`
	Listings          int  `json:"listings"`
	PollFailures      int  `json:"poll_failures"`
	ChannelMissing    int  `json:"channel_missing"`
	Diverged          int  `json:"diverged"`
	Created           int  `json:"created"`
	AutoResolved      int  `json:"auto_resolved"`
	AutoResolveFailed int  `json:"auto_resolve_failed"`
}

func (s *Service) spec(shopID uint, adapter *listingAdapter) *reconcile.Spec {
	return &reconcile.Spec{
		Adapter:     adapter,
		Scope:       strconv.FormatUint(uint64(shopID), 10),
		Concurrency: s.cfg.Concurrency,
		PollTimeout: s.cfg.PollTimeout,
		CacheTTL:    s.cfg.CacheTTL,
	}
}

// Plan compares the shop's listings with the channel without raising anything.
func (s *Service) Plan(ctx context.Context, shopID uint) (*reconcile.Plan, error) {
	return reconcile.ReconcileWithPlan(ctx, s.spec(shopID, &listingAdapter{svc: s}), reconcile.Options{
		DryRun:       true,
		RaiseMissing: s.cfg.RaiseMissing,
	})
}

// ScanForMismatches polls the channel for every synced or errored listing of the
// shop and raises a pending mismatch where the channel quantity differs from the
// ledger. A listing never has two pending mismatches, so overlapping scans are safe.
// Poll failures are counted and skipped.
func (s *Service) ScanForMismatches(ctx context.Context, shopID uint) (*ScanReport, error) {
	adapter := &listingAdapter{svc: s}
	plan, created, err := reconcile.ReconcileAndApply(ctx, s.spec(shopID, adapter), reconcile.Options{
		Confirmed:    true,
		RaiseMissing: s.cfg.RaiseMissing,
	})
	if err != nil {
		return nil, err
	}

	report := &ScanReport{
		ShopID:         shopID,
		Listings:       plan.Summary.TotalItems,
		PollFailures:   plan.Summary.PollFailures,
		ChannelMissing: plan.Summary.ChannelMissing,
		Diverged:       plan.Summary.Mismatches,
		Created:        created,
	}

	if resolution, ok := s.cfg.policy(); ok {
		for _, id := range adapter.createdIDs() {
			_, err := s.Resolve(ctx, ResolveRequest{
				ShopID:     shopID,
				MismatchID: id,
				Resolution: resolution,
				Notes:      "auto-resolved by " + s.cfg.AutoResolve + " policy",
			})
			if err != nil {
				report.AutoResolveFailed++
				s.logger.Warn("Auto-resolve failed", zap.Uint("mismatch_id", id), zap.Error(err))
				continue
			}
			report.AutoResolved++
		}
	}

	if report.Created > 0 || report.PollFailures > 0 {
		s.logger.Info("Reconciliation scan finished",
			zap.Uint("shop_id", shopID),
			zap.Int("listings", report.Listings),
			zap.Int("created", report.Created),
			zap.Int("poll_failures", report.PollFailures),
			zap.Int("auto_resolved", report.AutoResolved),
		)
	}
	return report, nil
}

// ScanAll scans every shop with an active integration. A failed shop does not stop the others.
func (s *Service) ScanAll(ctx context.Context) ([]ScanReport, error) {
	integrations, err := s.channels.ActiveIntegrations(ctx, 0)
	if err != nil {
		return nil, err
	}
	seen := make(map[uint]struct{})
	var shops []uint
	for _, integ := range integrations {
		if _, ok := seen[integ.ShopID]; ok {
			continue
		}
		seen[integ.ShopID] = struct{}{}
		shops = append(shops, integ.ShopID)
	}
	sort.Slice(shops, func(i, j int) bool { return shops[i] < shops[j] })

	reports := make([]ScanReport, 0, len(shops))
	for _, shopID := range shops {
		r, err := s.ScanForMismatches(ctx, shopID)
		if err != nil {
			s.logger.Error("Reconciliation scan failed", zap.Uint("shop_id", shopID), zap.Error(err))
			continue
		}
		reports = append(reports, *r)
	}
	return reports, nil
}
