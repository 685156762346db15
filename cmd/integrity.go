package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	fixFlag       bool
	integrityShop uint
	integrityJSON bool
)

// integrityCmd represents the integrity command
var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Perform integrity checks on the ledger, schema and storage",
	Long:  `Replays the inventory ledger, compares the database schema with the models and checks the staging bucket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return cmd.Help()
		}
		return runIntegrityChecks(cmd.Context(), true, true, true)
	},
}

// ledgerCmd represents the integrity ledger command
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Replay lot events and compare with the cached quantities",
	Long: `Folds every lot's event history and reports sequence gaps, negative quantities
and cached quantities that disagree with the ledger. Outputs a summary by default
or a detailed JSON file with --json.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntegrityChecks(cmd.Context(), true, false, false)
	},
}

// schemaCmd represents the integrity schema command
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Check the database schema against the models",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntegrityChecks(cmd.Context(), false, true, false)
	},
}

// storageCmd represents the integrity storage command
var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Check the import staging bucket",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntegrityChecks(cmd.Context(), false, false, true)
	},
}

func init() {
	RootCmd.AddCommand(integrityCmd)
	integrityCmd.AddCommand(ledgerCmd, schemaCmd, storageCmd)

	ledgerCmd.Flags().UintVar(&integrityShop, "shop", 0, "Shop ID (0 checks every shop)")
	ledgerCmd.Flags().BoolVar(&integrityJSON, "json", false, "Save detailed JSON report")
	storageCmd.Flags().BoolVar(&fixFlag, "fix", false, "Create the bucket when missing")
}

func runIntegrityChecks(ctx context.Context, runLedger, runSchema, runStorage bool) error {
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.log.Sync()
	logg := a.log
	svc := a.integrity
	failed := false

	if runLedger {
		startTime := time.Now()
		logg.Info("Replaying ledger (this might take a while)...", zap.Uint("shop_id", integrityShop))
		report, err := svc.CheckLedger(ctx, integrityShop)
		if err != nil {
			return fmt.Errorf("ledger check failed: %w", err)
		}

		if integrityJSON {
			filename := fmt.Sprintf("integrity_ledger_%d.json", time.Now().Unix())
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal JSON: %w", err)
			}
			if err := os.WriteFile(filename, data, 0644); err != nil {
				return fmt.Errorf("failed to save JSON file: %w", err)
			}
			logg.Info("Detailed JSON report saved", zap.String("file", filename), zap.Int("issues", len(report.Issues)))
		}

		if report.Consistent {
			logg.Info("Ledger is consistent.",
				zap.Int("lots", report.Lots),
				zap.Int("events", report.Events),
				zap.Duration("execution_time", time.Since(startTime)),
			)
		} else {
			failed = true
			for _, issue := range report.Issues {
				logg.Warn("Ledger issue",
					zap.Uint("lot_id", issue.LotID),
					zap.String("sku", issue.SKU),
					zap.Uint64("sequence", issue.Sequence),
					zap.String("problem", issue.Problem),
				)
			}
			logg.Warn("Ledger inconsistencies found",
				zap.Int("lots", report.Lots),
				zap.Int("events", report.Events),
				zap.Int("issues", len(report.Issues)),
			)
		}
	}

	if runSchema {
		logg.Info("Checking database schema...", zap.String("driver", a.cfg.Database.Driver))
		report, err := svc.CheckSchema(ctx)
		if err != nil {
			return fmt.Errorf("schema check failed: %w", err)
		}
		if report.Matched {
			logg.Info("Schema matches the models.")
		} else {
			failed = true
			for table, tblReport := range report.Tables {
				if tblReport.Status == "ok" {
					continue
				}
				logg.Warn("Table mismatch",
					zap.String("table", table),
					zap.String("status", tblReport.Status),
					zap.Strings("missing_columns", tblReport.MissingColumns),
				)
			}
			for _, e := range report.Errors {
				logg.Error("Inspection Error", zap.String("error", e))
			}
			logg.Info("Run migrate to create missing tables and columns.")
		}
	}

	if runStorage {
		if !svc.StorageEnabled() {
			logg.Info("Storage is disabled, skipping bucket check.")
		} else {
			logg.Info("Checking staging bucket...", zap.String("bucket", a.cfg.Storage.Bucket))
			report, err := svc.CheckStorage(ctx, fixFlag)
			if err != nil {
				return fmt.Errorf("storage check failed: %w", err)
			}
			switch {
			case report.Exists && report.Writable:
				logg.Info("Bucket is writable.", zap.Bool("fixed", report.Fixed))
			case !report.Exists && !fixFlag:
				failed = true
				logg.Warn("Bucket is missing. Run with --fix to create it.")
			default:
				failed = true
				logg.Warn("Bucket check failed", zap.Bool("exists", report.Exists), zap.String("error", report.Error))
			}
		}
	}

	if failed {
		return fmt.Errorf("integrity checks found problems")
	}
	return nil
}
