package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// syncCmd groups the channel synchronization commands.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push listing quantities to the sales channels",
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Retry errored and stale pending listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.log.Sync()

		report, err := a.channels.RetrySweep(ctx)
		if err != nil {
			return fmt.Errorf("retry sweep failed: %w", err)
		}
		a.log.Info("Retry sweep finished",
			zap.Int("candidates", report.Candidates),
			zap.Int("synced", report.Synced),
			zap.Int("failed", report.Failed),
		)
		return nil
	},
}

var pushCmd = &cobra.Command{
	Use:   "push <listing-id>",
	Short: "Push the quantity of one listing now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid listing id %q", args[0])
		}
		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.log.Sync()

		listing, err := a.channels.PushQuantity(ctx, uint(id))
		if err != nil {
			return err
		}
		a.log.Info("Listing pushed",
			zap.Uint("listing_id", listing.ID),
			zap.String("state", string(listing.SyncState)),
			zap.Int("listed_quantity", listing.ListedQuantity),
		)
		return nil
	},
}

// ordersCmd polls the channels for new orders.
var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Poll active integrations for orders and cancellations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.log.Sync()

		report, err := a.channels.PollOrders(ctx)
		if err != nil {
			return fmt.Errorf("order poll failed: %w", err)
		}
		a.log.Info("Order poll finished",
			zap.Int("integrations", report.Integrations),
			zap.Int("poll_failures", report.PollFailures),
			zap.Int("orders", report.Orders),
			zap.Int("applied", report.Applied),
			zap.Int("replayed", report.Replayed),
			zap.Int("refused", report.Refused),
			zap.Int("unmatched", report.Unmatched),
			zap.Int("failed", report.Failed),
		)
		return nil
	},
}

func init() {
	syncCmd.AddCommand(sweepCmd, pushCmd)
	RootCmd.AddCommand(syncCmd, ordersCmd)
}
