package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

var (
	flagAmount  string
	flagSource  string
	flagCard    string
	flagPaidAt  string
	flagBookY   int
	flagBookM   string
	flagExpense bool
	flagAll     bool
)

var payCmd = &cobra.Command{
	Use:   "pay <debt-id|expense-id>",
	Short: "Record a payment against a debt or, with --expense, an expense",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cents, err := core.ParseDecimalToCents(flagAmount)
		if err != nil {
			return fmt.Errorf("amount %q: %w", flagAmount, err)
		}
		paidAt, err := parsePaidAtFlag(flagPaidAt)
		if err != nil {
			return err
		}
		month := 0
		if flagBookM != "" {
			if month, err = core.ParseMonth(flagBookM); err != nil {
				return fmt.Errorf("month %q: %w", flagBookM, err)
			}
		}
		source := core.PaymentSource(flagSource)

		return withApp(cmd, func(ctx context.Context, a *app) error {
			structured := applog.NewStructuredLogger(a.logger)
			if flagExpense {
				p, err := a.svc.Payments.RecordExpensePayment(ctx, services.ExpensePaymentRequest{
					PlanID:    flagPlan,
					ExpenseID: args[0],
					Amount:    core.Money{Cents: cents},
					PaidAt:    paidAt,
					Year:      flagBookY,
					Month:     month,
					Source:    source,
				})
				if err != nil {
					return fmt.Errorf("record expense payment: %w", err)
				}
				structured.LogPaymentRecorded(ctx, flagPlan, "", p.Amount.Cents, string(p.Source))
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"id":        p.ID,
					"expenseId": p.ExpenseID,
					"amount":    p.Amount.Major(),
					"paidAt":    p.PaidAt,
					"year":      p.Year,
					"month":     p.Month,
					"source":    string(p.Source),
				})
			}

			p, err := a.svc.Payments.RecordDebtPayment(ctx, services.DebtPaymentRequest{
				PlanID:     flagPlan,
				DebtID:     args[0],
				Amount:     core.Money{Cents: cents},
				PaidAt:     paidAt,
				Year:       flagBookY,
				Month:      month,
				Source:     source,
				CardDebtID: flagCard,
			})
			if err != nil {
				return fmt.Errorf("record debt payment: %w", err)
			}
			structured.LogPaymentRecorded(ctx, flagPlan, p.DebtID, p.Amount.Cents, string(p.Source))
			return printJSON(cmd.OutOrStdout(), p)
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the carryover passes for a plan, or for every plan with --all",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !flagAll {
			if _, err := requirePlan(); err != nil {
				return err
			}
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if flagAll {
				sweeper := services.NewSweepProcessor(a.store.Store, a.svc.Carryover, a.cfg.Sweep())
				stats, err := sweeper.SweepAllPlans(ctx)
				if err != nil {
					return fmt.Errorf("sweep plans: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"plans":     stats.Plans,
					"failed":    stats.Failed,
					"elapsedMs": stats.Elapsed.Milliseconds(),
				})
			}

			mode, err := a.svc.Sync.RequestSync(ctx, flagPlan)
			if err != nil {
				return fmt.Errorf("sync plan: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"planId": flagPlan, "mode": string(mode)})
		})
	},
}

// parsePaidAtFlag accepts RFC3339 or YYYY-MM-DD; empty means now.
func parsePaidAtFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("paid-at %q: expected RFC3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

func init() {
	payCmd.Flags().StringVarP(&flagAmount, "amount", "a", "", "Amount in major units, dot or comma decimals")
	payCmd.Flags().StringVarP(&flagSource, "source", "s", "", "Payment source (default: the debt's default, else income)")
	payCmd.Flags().StringVar(&flagCard, "card", "", "Paying credit card debt ID when --source=credit_card")
	payCmd.Flags().StringVar(&flagPaidAt, "paid-at", "", "Payment time, RFC3339 or YYYY-MM-DD (default: now)")
	payCmd.Flags().IntVar(&flagBookY, "year", 0, "Budget year the payment is booked in (default: paid-at's)")
	payCmd.Flags().StringVar(&flagBookM, "month", "", "Budget month the payment is booked in (default: paid-at's)")
	payCmd.Flags().BoolVar(&flagExpense, "expense", false, "Pay an expense instead of a debt")
	_ = payCmd.MarkFlagRequired("amount")

	syncCmd.Flags().BoolVar(&flagAll, "all", false, "Sync every plan in the store")

	rootCmd.AddCommand(payCmd, syncCmd)
}
