package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"lg/nutrition-ledger-go-api/internal/goals"
	"lg/nutrition-ledger-go-api/internal/ledgercsv"
	"lg/nutrition-ledger-go-api/internal/store"
)

var (
	summaryBurned float64
	summaryMode   string

	exportArchive bool
	exportOut     string
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the open ledger, its total and the day's targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		if summaryBurned < 0 {
			return fmt.Errorf("--burned must not be negative")
		}
		return withDeps(cmd, func(ctx context.Context, d *deps) error {
			mode := d.targetMode
			if summaryMode != "" {
				m, err := goals.ParseMode(summaryMode)
				if err != nil {
					return err
				}
				mode = m
			}

			ledger, err := d.store.LoadLedger(ctx, userID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range ledger.Entries() {
				fmt.Fprintf(out, "%s\t%s\t%gg\t%.1f kcal\n", e.Timestamp.Format("15:04"), e.FoodName, e.QuantityG, e.Nutrients.Calories)
			}
			total := ledger.CurrentTotal()
			fmt.Fprintf(out, "Total: %.1f kcal | P %.1fg | C %.1fg | F %.1fg\n", total.Calories, total.ProteinG, total.CarbohydrateG, total.FatG)

			profile, err := d.store.LoadProfile(ctx, userID)
			if errors.Is(err, store.ErrProfileNotFound) {
				fmt.Fprintln(out, "Targets: no profile saved")
				return nil
			}
			if err != nil {
				return err
			}
			targets, err := goals.ComputeTargets(profile, goals.Options{BurnedCalories: summaryBurned, Mode: mode})
			if err != nil {
				return err
			}
			alerts := goals.Evaluate(total, targets)
			fmt.Fprintf(out, "Target (%s): %.1f kcal [%s]\n", goals.Describe(profile.Goal), targets.CalorieTarget, alerts.Calorie)
			fmt.Fprintf(out, "Protein target: %.1fg [%s]\n", targets.ProteinTargetG, alerts.Protein)
			return nil
		})
	},
}

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Archive the open ledger and start a new day",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd, func(ctx context.Context, d *deps) error {
			res, err := d.closer.Close(ctx, userID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Record == nil {
				fmt.Fprintln(out, "Nothing to close: the ledger is empty.")
				return nil
			}
			fmt.Fprintf(out, "Closed %d entries at %s (%.1f kcal)\n", len(res.Record.Entries), res.Record.ClosedAt.Format("2006-01-02 15:04:05"), res.Total.Calories)
			if res.SyncErr != nil {
				fmt.Fprintf(out, "Backup failed, local archive kept: %v\n", res.SyncErr)
			} else if d.backup != nil {
				fmt.Fprintf(out, "Backed up as %s\n", res.SyncKey)
			}
			return nil
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the open ledger (or the archive) as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd, func(ctx context.Context, d *deps) error {
			var buf bytes.Buffer
			if exportArchive {
				records, err := d.store.Archives(ctx, userID)
				if err != nil {
					return err
				}
				if err := ledgercsv.EncodeArchive(&buf, records); err != nil {
					return err
				}
			} else {
				ledger, err := d.store.LoadLedger(ctx, userID)
				if err != nil {
					return err
				}
				if err := ledgercsv.EncodeLedger(&buf, ledger.Entries()); err != nil {
					return err
				}
			}

			var w io.Writer = cmd.OutOrStdout()
			if exportOut != "" {
				f, err := os.Create(exportOut)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			_, err := w.Write(buf.Bytes())
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd, closeCmd, exportCmd)
	summaryCmd.Flags().Float64Var(&summaryBurned, "burned", 0, "Calories burned today (goal mode only)")
	summaryCmd.Flags().StringVar(&summaryMode, "mode", "", "Target mode: goal or activity (default TARGET_MODE)")
	exportCmd.Flags().BoolVar(&exportArchive, "archive", false, "Export the historical archive instead of the open ledger")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (default stdout)")
}
