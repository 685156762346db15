package reconciliation

import (
	"time"

	"card-inventory/core/lock"
	"card-inventory/feature/channels"
	"card-inventory/feature/inventory"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service detects and resolves divergences between the ledger and sales channels.
type Service struct {
	cfg       Config
	db        *gorm.DB
	inventory *inventory.Service
	channels  *channels.Service
	locker    lock.Locker
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new reconciliation service.
func NewService(cfg Config, db *gorm.DB, inv *inventory.Service, ch *channels.Service, logger *zap.Logger) *Service {
	return &Service{
		cfg:       cfg,
		db:        db,
		inventory: inv,
		channels:  ch,
		locker:    inv.Locker(),
		logger:    logger,
		now:       time.Now,
	}
}
