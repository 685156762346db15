package integrity

import (
	"context"

	"card-inventory/core/storage"
	"card-inventory/feature/integrity/checks"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service handles integrity checks.
type Service struct {
	db     *gorm.DB
	models []any
	client storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewService creates a new integrity service. models are the persisted models
// the schema check compares against. A nil client skips the storage check.
func NewService(db *gorm.DB, models []any, client storage.Client, bucket, prefix string, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		models: models,
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger,
	}
}

// CheckLedger replays the events of the shop's lots. shopID 0 checks every shop.
func (s *Service) CheckLedger(ctx context.Context, shopID uint) (*checks.LedgerReport, error) {
	report, err := checks.CheckLedger(ctx, s.db, shopID)
	if err != nil {
		return nil, err
	}
	if !report.Consistent {
		s.logger.Error("Ledger replay found inconsistencies",
			zap.Uint("shop_id", shopID),
			zap.Int("issues", len(report.Issues)),
		)
	}
	return report, nil
}

// CheckSchema compares the database with the models.
func (s *Service) CheckSchema(ctx context.Context) (*checks.SchemaReport, error) {
	return checks.CheckSchema(s.db.WithContext(ctx), s.models...)
}

// StorageEnabled reports whether object storage is configured.
func (s *Service) StorageEnabled() bool {
	return s.client != nil
}

// CheckStorage verifies the bucket, creating it when fix is set.
func (s *Service) CheckStorage(ctx context.Context, fix bool) (*checks.StorageReport, error) {
	return checks.CheckStorage(ctx, s.client, s.bucket, s.prefix, fix, s.logger)
}
