package channels

import (
	"context"
	"time"

	"card-inventory/core/lock"
	"card-inventory/core/worker"
	"card-inventory/feature/channels/provider"
	"card-inventory/feature/inventory"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Service manages integrations, listings and the quantity sync with channels.
type Service struct {
	cfg       SyncConfig
	db        *gorm.DB
	inventory *inventory.Service
	locker    lock.Locker
	queue     worker.Enqueuer
	providers *provider.Registry
	sealer    *Sealer
	logger    *zap.Logger

	pushes    singleflight.Group
	refreshes singleflight.Group
	now       func() time.Time
}

// NewService creates a new channels service. Pushes are queued on queue; the
// locker is shared with the inventory service.
func NewService(cfg SyncConfig, db *gorm.DB, inv *inventory.Service, queue worker.Enqueuer, providers *provider.Registry, sealer *Sealer, logger *zap.Logger) *Service {
	return &Service{
		cfg:       cfg.withDefaults(),
		db:        db,
		inventory: inv,
		locker:    inv.Locker(),
		queue:     queue,
		providers: providers,
		sealer:    sealer,
		logger:    logger,
		now:       time.Now,
	}
}

// Providers returns the provider registry.
func (s *Service) Providers() *provider.Registry {
	return s.providers
}

func (s *Service) recordJob(ctx context.Context, job *SyncJob) {
	now := s.now()
	job.CompletedAt = &now
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		s.logger.Error("Failed to record sync job",
			zap.Uint("integration_id", job.IntegrationID),
			zap.String("operation", job.Operation),
			zap.Error(err),
		)
	}
}
