package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"card-inventory/core/reconcile"
	"card-inventory/feature/reconciliation"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	reconcileShop   uint
	dryRunReconcile bool
	resolveAs       string
	resolveNotes    string
	resolveActor    string
	yesConfirm      bool
	listStatus      string
)

// reconcileCmd is the parent command for all reconcile operations.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare internal and channel quantities and resolve mismatches",
	Long: `Reconcile listing quantities between the ledger and the sales channels.
Scans raise pending mismatches; each mismatch is resolved once by pushing the
internal quantity, pulling the channel quantity into the ledger, or ignoring it.`,
}

// scanReconcileCmd scans listings for mismatches.
var scanReconcileCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan listings and raise mismatches",
	Long: `Scan the listings of one shop, or of every shop with an active integration.

Examples:
  # Report only, nothing is written
  reconcile scan --shop 1 --dry-run

  # Raise mismatches for every shop
  reconcile scan`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.log.Sync()

		if dryRunReconcile {
			if reconcileShop == 0 {
				return fmt.Errorf("--dry-run needs --shop")
			}
			plan, err := a.reconcile.Plan(ctx, reconcileShop)
			if err != nil {
				return fmt.Errorf("failed to plan reconciliation: %w", err)
			}
			printReconcileReport(a.log, plan)
			a.log.Info("Dry-run mode: No changes were made.")
			return nil
		}

		var reports []reconciliation.ScanReport
		if reconcileShop != 0 {
			report, err := a.reconcile.ScanForMismatches(ctx, reconcileShop)
			if err != nil {
				return err
			}
			reports = append(reports, *report)
		} else if reports, err = a.reconcile.ScanAll(ctx); err != nil {
			return err
		}

		for _, r := range reports {
			a.log.Info("Scan finished",
				zap.Uint("shop_id", r.ShopID),
				zap.Int("listings", r.Listings),
				zap.Int("diverged", r.Diverged),
				zap.Int("channel_missing", r.ChannelMissing),
				zap.Int("poll_failures", r.PollFailures),
				zap.Int("created", r.Created),
				zap.Int("auto_resolved", r.AutoResolved),
			)
		}
		return nil
	},
}

// listReconcileCmd prints mismatches.
var listReconcileCmd = &cobra.Command{
	Use:   "list",
	Short: "List mismatches of a shop as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.log.Sync()

		out, total, err := a.reconcile.ListMismatches(ctx, reconcileShop, reconciliation.Filter{
			Status: reconciliation.Status(listStatus),
			Limit:  200,
		})
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"mismatches": out, "total": total})
	},
}

// resolveReconcileCmd resolves one mismatch.
var resolveReconcileCmd = &cobra.Command{
	Use:   "resolve <mismatch-id>",
	Short: "Resolve a pending mismatch",
	Long: `Resolve a pending mismatch with push_internal, pull_channel or ignore.
push_internal and pull_channel change the channel or the ledger and ask for
confirmation unless --yes is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid mismatch id %q", args[0])
		}
		resolution, ok := reconciliation.ParseResolution(resolveAs)
		if !ok {
			return fmt.Errorf("unknown resolution %q, want push_internal, pull_channel or ignore", resolveAs)
		}

		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.log.Sync()

		m, err := a.reconcile.GetMismatch(ctx, reconcileShop, uint(id))
		if err != nil {
			return err
		}
		a.log.Info("Mismatch",
			zap.Uint("id", m.ID),
			zap.Uint("listing_id", m.ListingID),
			zap.Int("internal", m.InternalQuantity),
			zap.Int("channel", m.ChannelQuantity),
			zap.String("status", string(m.Status)),
		)

		if resolution != reconciliation.StatusIgnore && !confirmDestructiveAction() {
			a.log.Warn("Operation cancelled by user. No changes were made.")
			return nil
		}

		var actor *string
		if resolveActor != "" {
			actor = &resolveActor
		}
		m, err = a.reconcile.Resolve(ctx, reconciliation.ResolveRequest{
			ShopID:     reconcileShop,
			MismatchID: uint(id),
			Resolution: resolution,
			Actor:      actor,
			Notes:      resolveNotes,
		})
		if err != nil {
			return err
		}
		a.log.Info("Mismatch resolved", zap.Uint("id", m.ID), zap.String("status", string(m.Status)))
		return nil
	},
}

func init() {
	reconcileCmd.AddCommand(scanReconcileCmd, listReconcileCmd, resolveReconcileCmd)
	reconcileCmd.PersistentFlags().UintVar(&reconcileShop, "shop", 0, "Shop ID")

	scanReconcileCmd.Flags().BoolVar(&dryRunReconcile, "dry-run", false, "Plan only, raise nothing")
	listReconcileCmd.Flags().StringVar(&listStatus, "status", "pending", "Filter by status (empty for all)")
	resolveReconcileCmd.Flags().StringVar(&resolveAs, "as", "", "Resolution: push_internal, pull_channel or ignore")
	resolveReconcileCmd.Flags().StringVar(&resolveNotes, "notes", "", "Notes stored on the mismatch")
	resolveReconcileCmd.Flags().StringVar(&resolveActor, "actor", "", "User recorded as resolver")
	resolveReconcileCmd.Flags().BoolVar(&yesConfirm, "yes", false, "Auto-confirm (non-interactive)")
	_ = resolveReconcileCmd.MarkFlagRequired("as")

	RootCmd.AddCommand(reconcileCmd)
}

// printReconcileReport prints a formatted reconciliation report using logger.
func printReconcileReport(l *zap.Logger, plan *reconcile.Plan) {
	s := plan.Summary

	l.Info("Reconciliation report",
		zap.Int("total_items", s.TotalItems),
		zap.Int("mismatches", s.Mismatches),
		zap.Int("channel_missing", s.ChannelMissing),
		zap.Int("poll_failures", s.PollFailures),
		zap.Int("raise_actions", s.RaiseActions),
	)

	maxShow := 5
	if len(plan.Actions) < maxShow {
		maxShow = len(plan.Actions)
	}
	for i := 0; i < maxShow; i++ {
		action := plan.Actions[i]
		l.Info("Sample action",
			zap.String("type", string(action.Type)),
			zap.String("key", action.Key),
			zap.String("reason", action.Reason),
		)
	}
	if len(plan.Actions) > maxShow {
		l.Info("Additional actions not shown", zap.Int("count", len(plan.Actions)-maxShow))
	}
}

// confirmDestructiveAction prompts the user for confirmation or uses --yes flag.
func confirmDestructiveAction() bool {
	if yesConfirm {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Print("\n⚠️  Type 'yes' to confirm: ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(response) == "yes"
}
