package cmd

import (
	"context"
	"fmt"

	"card-inventory/core/config"
	"card-inventory/core/database"
	"card-inventory/core/lock"
	"card-inventory/core/logger"
	"card-inventory/core/storage"
	"card-inventory/core/worker"
	"card-inventory/feature/channels"
	"card-inventory/feature/channels/provider"
	"card-inventory/feature/channels/provider/ebay"
	"card-inventory/feature/channels/provider/memory"
	"card-inventory/feature/ingest"
	"card-inventory/feature/integrity"
	"card-inventory/feature/inventory"
	"card-inventory/feature/reconciliation"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds the services shared by the commands.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	db    *gorm.DB
	store storage.Client

	inventory *inventory.Service
	channels  *channels.Service
	reconcile *reconciliation.Service
	ingest    *ingest.Service
	integrity *integrity.Service
}

// models lists every persisted model, in migration order.
func models() []any {
	all := inventory.Models()
	all = append(all, channels.Models()...)
	all = append(all, reconciliation.Models()...)
	return append(all, ingest.Models()...)
}

// loadConfig loads the configuration and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logg, nil
}

// loadApp wires the services for a CLI command. Jobs run inline.
func loadApp(ctx context.Context) (*app, error) {
	cfg, logg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := newApp(ctx, cfg, logg, nil)
	if err != nil {
		_ = logg.Sync()
		return nil, err
	}
	return a, nil
}

// newApp connects the database and storage and wires the services. Jobs go to
// queue, or run inline when it is nil.
func newApp(ctx context.Context, cfg *config.Config, logg *zap.Logger, queue worker.Enqueuer) (*app, error) {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database connection required: %w", err)
	}

	var store storage.Client
	if cfg.Storage.Enabled {
		if store, err = storage.NewClient(cfg.Storage); err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		if err := storage.EnsureBucket(ctx, store, cfg.Storage.Bucket); err != nil {
			return nil, err
		}
	}

	locker, err := lock.New(cfg.Lock)
	if err != nil {
		return nil, err
	}

	sealer, err := newSealer(cfg, logg)
	if err != nil {
		return nil, err
	}

	registry := provider.NewRegistry()
	if cfg.Channels.Ebay.AppID != "" {
		registry.Register(ebay.New(cfg.Channels.Ebay, logg.Named("ebay")))
	}
	if cfg.Channels.Sandbox && !cfg.Server.IsProduction() {
		registry.Register(memory.New())
	}

	if queue == nil {
		queue = worker.Inline{Ctx: ctx, Log: logg}
	}

	inv := inventory.NewService(db, locker, logg.Named("inventory"))
	ch := channels.NewService(cfg.Sync, db, inv, queue, registry, sealer, logg.Named("channels"))
	inv.AddListener(ch)

	return &app{
		cfg:       cfg,
		log:       logg,
		db:        db,
		store:     store,
		inventory: inv,
		channels:  ch,
		reconcile: reconciliation.NewService(cfg.Reconcile, db, inv, ch, logg.Named("reconciliation")),
		ingest:    ingest.NewService(cfg.Ingest, db, inv, store, cfg.Storage.Bucket, queue, logg.Named("ingest")),
		integrity: integrity.NewService(db, models(), store, cfg.Storage.Bucket, cfg.Ingest.Prefix, logg.Named("integrity")),
	}, nil
}

// newSealer builds the credential sealer. Without a key outside production a
// random one is used, so credentials do not survive a restart.
func newSealer(cfg *config.Config, logg *zap.Logger) (*channels.Sealer, error) {
	if cfg.Channels.EncryptionKey != "" {
		return channels.NewSealer(cfg.Channels.EncryptionKey)
	}
	if cfg.Server.IsProduction() {
		return nil, fmt.Errorf("channels.encryption_key is required in production")
	}
	logg.Warn("No channel encryption key configured, using a random key")
	return channels.RandomSealer()
}
