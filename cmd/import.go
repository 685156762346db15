package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"card-inventory/feature/ingest"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	importShop    uint
	importActor   string
	importMapping []string
	importJSON    bool
)

// importCmd imports a CSV or XLSX file of lots.
var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import lots from a CSV or XLSX file",
	Long: `Imports one lot per data row. Rows failing validation are skipped and reported
with their row number; the rest of the file is still imported.

Examples:
  # Columns named after the fields (name, set, quantity, condition, ...)
  import stock.csv --shop 1

  # Map file columns to fields
  import export.xlsx --shop 1 --map "Card Name=name" --map "Edition=set" --map "Qty=quantity"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.log.Sync()

		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		mapping, err := ingest.ParseMapping(importMapping)
		if err != nil {
			return err
		}

		var actor *string
		if importActor != "" {
			actor = &importActor
		}
		// Jobs run inline, so the task is finished when Submit returns.
		task, err := a.ingest.Submit(ctx, ingest.SubmitRequest{
			ShopID:   importShop,
			Actor:    actor,
			FileName: filepath.Base(args[0]),
			Content:  content,
			Mapping:  mapping,
		})
		if err != nil {
			return err
		}
		task, err = a.ingest.GetTask(ctx, importShop, task.ID)
		if err != nil {
			return err
		}

		if importJSON {
			return printJSON(task)
		}
		for _, e := range task.Errors {
			a.log.Warn("Row skipped", zap.Int("row", e.Row), zap.String("reason", e.Reason))
		}
		a.log.Info("Import finished",
			zap.String("task_id", task.ID),
			zap.String("status", string(task.Status)),
			zap.Int("created", task.Created),
			zap.Int("skipped", task.Skipped),
		)
		if task.Status == ingest.StatusFailed {
			return fmt.Errorf("import failed: %s", task.FailureReason)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(importCmd)
	importCmd.Flags().UintVar(&importShop, "shop", 0, "Shop ID (required)")
	importCmd.Flags().StringVar(&importActor, "actor", "", "User recorded on the import events")
	importCmd.Flags().StringArrayVar(&importMapping, "map", nil, "Column mapping as column=field, repeatable")
	importCmd.Flags().BoolVar(&importJSON, "json", false, "Print the task as JSON")
	_ = importCmd.MarkFlagRequired("shop")
}
