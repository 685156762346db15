package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"card-inventory/core/loader"
	"card-inventory/core/logger"
	"card-inventory/core/metrics"
	"card-inventory/core/middleware/auth"
	"card-inventory/core/middleware/rayid"
	"card-inventory/core/middleware/shop"
	"card-inventory/core/scheduler"
	"card-inventory/core/worker"
	"card-inventory/feature/channels"
	"card-inventory/feature/ingest"
	"card-inventory/feature/integrity"
	"card-inventory/feature/inventory"
	"card-inventory/feature/reconciliation"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "card-inventory/docs/swagger"
)

// @title Card Inventory API
// @version 1.0
// @description Inventory ledger, channel sync, reconciliation and imports for trading card shops.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

// publicPaths are served without API key and shop scope.
var publicPaths = []string{"/health", "/metrics", "/swagger", "/webhooks"}

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the inventory server",
	Long:  `Starts the HTTP server, the background workers and the scheduled sweeps.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, logg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		pool := worker.NewPool(cfg.Worker.Workers, cfg.Worker.QueueSize, logg.Named("worker"))
		a, err := newApp(ctx, cfg, logg, pool)
		if err != nil {
			return err
		}
		pool.Start()
		defer pool.Stop()

		sched := scheduler.New(pool, logg.Named("scheduler"))
		defer sched.Stop()
		sched.Schedule(a.cfg.Sync.SweepInterval, worker.Func("retry-sweep", func(ctx context.Context) error {
			_, err := a.channels.RetrySweep(ctx)
			return err
		}))
		sched.Schedule(a.cfg.Sync.OrderPollInterval, worker.Func("order-poll", func(ctx context.Context) error {
			_, err := a.channels.PollOrders(ctx)
			return err
		}))
		sched.Schedule(a.cfg.Reconcile.ScanInterval, worker.Func("mismatch-scan", func(ctx context.Context) error {
			_, err := a.reconcile.ScanAll(ctx)
			return err
		}))

		app := fiber.New(fiber.Config{
			DisableStartupMessage: true,
			BodyLimit:             a.cfg.Server.BodyLimit(),
		})

		mgr := loader.NewManager(logg)
		mgr.Register(inventory.NewFeature(a.inventory, a.channels, logg))
		mgr.Register(channels.NewFeature(a.channels, a.cfg.Channels, logg))
		mgr.Register(reconciliation.NewFeature(a.reconcile, logg))
		mgr.Register(ingest.NewFeature(a.ingest, logg))
		mgr.Register(integrity.NewFeature(a.integrity))

		// RayID first so every log line carries it.
		app.Use(rayid.New())
		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		app.Get("/health", func(c *fiber.Ctx) error {
			if sqlDB, err := a.db.DB(); err != nil || sqlDB.PingContext(c.Context()) != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
			}
			return c.JSON(fiber.Map{"status": "ok"})
		})
		app.Get("/metrics", metrics.Handler())
		app.Get("/swagger/*", swagger.HandlerDefault)

		app.Use(auth.New(auth.Config{ApiKey: a.cfg.Server.ApiKey, Skip: publicPaths}))
		app.Use(shop.New(publicPaths...))

		if err := mgr.LoadAll(app); err != nil {
			return fmt.Errorf("failed to load features: %w", err)
		}

		errc := make(chan error, 1)
		go func() {
			logg.Info("Starting server", zap.String("port", a.cfg.Server.Port), zap.Strings("channels", a.channels.Providers().Names()))
			errc <- app.Listen(":" + a.cfg.Server.Port)
		}()

		select {
		case err := <-errc:
			return fmt.Errorf("server failed: %w", err)
		case <-ctx.Done():
		}
		logg.Info("Shutting down server...")
		return app.Shutdown()
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}
