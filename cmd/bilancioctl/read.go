package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bilancio/internal/core"
	"bilancio/internal/services"
)

var (
	flagExpenseDebts bool
	flagNoSync       bool
	flagYear         int
	flagMonth        string
	flagPlanned      float64
	flagMaxMonths    int
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Debt summary for a plan",
	RunE: func(cmd *cobra.Command, _ []string) error {
		planID, err := requirePlan()
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			summary, err := a.svc.Summary.GetDebtSummaryForPlan(ctx, planID, services.SummaryOptions{
				IncludeExpenseDebts: flagExpenseDebts,
				EnsureSynced:        !flagNoSync,
			})
			if err != nil {
				return fmt.Errorf("debt summary: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), summary)
		})
	},
}

var debtPlanCmd = &cobra.Command{
	Use:   "debt-plan",
	Short: "Planned and paid debt payments for a month",
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
			plan, err := a.svc.DebtPlan.GetMonthlyDebtPlan(ctx, planID, year, month)
			if err != nil {
				return fmt.Errorf("monthly debt plan: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), plan)
		})
	},
}

var zeroBasedCmd = &cobra.Command{
	Use:   "zero-based",
	Short: "Zero-based budget summary for a month",
	Long:  "Zero-based budget summary for a month. Without --year the latest year holding income or expenses is used.",
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
		var year *int
		if flagYear != 0 {
			year = &flagYear
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			summary, err := a.svc.ZeroBased.GetZeroBasedSummary(ctx, planID, formatMonth(month), year, now)
			if err != nil {
				return fmt.Errorf("zero-based summary: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), summary)
		})
	},
}

var projectionCmd = &cobra.Command{
	Use:   "projection <debt-id>",
	Short: "Payoff projection for a debt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagPlanned < 0 {
			return fmt.Errorf("--planned must not be negative")
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			debt, err := a.store.Store.GetDebt(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get debt: %w", err)
			}
			if flagPlan != "" && debt.PlanID != flagPlan {
				return fmt.Errorf("debt %s in plan %s: %w", debt.ID, flagPlan, core.ErrNotFound)
			}
			params := services.ProjectionParamsFromDebt(debt, flagPlanned)
			maxMonths := a.cfg.ProjectionMaxMonths
			if flagMaxMonths > 0 && flagMaxMonths < maxMonths {
				maxMonths = flagMaxMonths
			}
			params.MaxMonths = maxMonths
			params.Now = time.Now()
			return printJSON(cmd.OutOrStdout(), a.svc.Projections.Compute(params))
		})
	},
}

func init() {
	summaryCmd.Flags().BoolVar(&flagExpenseDebts, "expense-debts", true, "Include debts carried over from unpaid expenses")
	summaryCmd.Flags().BoolVar(&flagNoSync, "no-sync", false, "Read without running the carryover passes first")

	for _, c := range []*cobra.Command{debtPlanCmd, zeroBasedCmd} {
		c.Flags().IntVarP(&flagYear, "year", "y", 0, "Year (default: current, or latest with data for zero-based)")
		c.Flags().StringVarP(&flagMonth, "month", "m", "", "Month number or name (default: current)")
	}

	projectionCmd.Flags().Float64Var(&flagPlanned, "planned", 0, "Planned monthly payment in major units")
	projectionCmd.Flags().IntVar(&flagMaxMonths, "max-months", 0, "Projection horizon in months (capped by PROJECTION_MAX_MONTHS)")

	rootCmd.AddCommand(summaryCmd, debtPlanCmd, zeroBasedCmd, projectionCmd)
}
