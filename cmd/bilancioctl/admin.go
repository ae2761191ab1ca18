package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bilancio/internal/services"
	gsheet "bilancio/internal/sheets/google"
	"bilancio/internal/storage"
)

var (
	flagForce   bool
	flagConfirm bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Append a month's zero-based summary to the Google spreadsheet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		planID, err := requirePlan()
		if err != nil {
			return err
		}
		now := time.Now()
		month, err := parseMonthArg(flagMonth, now)
		if err != nil {
			return err
		}
		year := flagYear
		if year == 0 {
			year = now.Year()
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.cfg.ValidateExport(); err != nil {
				return err
			}
			sheets, err := gsheet.New(ctx, a.cfg.GoogleSpreadsheetID, a.cfg.GoogleSheetName)
			if err != nil {
				return fmt.Errorf("google sheets: %w", err)
			}
			res, err := services.NewSummaryExportService(a.store.Store, a.svc.ZeroBased, sheets).
				Export(ctx, planID, year, month, flagForce)
			if err != nil {
				return fmt.Errorf("export summary: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"planId":  planID,
				"month":   string(res.Row.Month),
				"rowRef":  res.RowRef,
				"skipped": res.Skipped,
			})
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending SQLite schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		newLogger()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", cfg.SQLiteDBPath)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Roll back every SQLite migration, dropping all data",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !flagConfirm {
			return fmt.Errorf("reset drops every table; pass --yes to confirm")
		}
		newLogger()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := storage.RollbackMigrations(cfg.SQLiteDBPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", cfg.SQLiteDBPath)
		return nil
	},
}

func init() {
	exportCmd.Flags().IntVarP(&flagYear, "year", "y", 0, "Year (default: current)")
	exportCmd.Flags().StringVarP(&flagMonth, "month", "m", "", "Month number or name (default: current)")
	exportCmd.Flags().BoolVar(&flagForce, "force", false, "Append even when the month was already exported")

	resetCmd.Flags().BoolVar(&flagConfirm, "yes", false, "Confirm dropping all data")

	rootCmd.AddCommand(exportCmd, migrateCmd, resetCmd)
}
