package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

type MonthlyDebtPlan struct {
	Year                       int
	Month                      int
	PlannedDebtPayments        core.Money
	TotalPaidDebtPayments      core.Money
	PaidDebtPaymentsFromIncome core.Money
	RemainingDebtPayments      core.Money
}

// ComputeMonthlyDebtPlan totals the nominal obligation of every open debt
// against the payments booked in the month.
func ComputeMonthlyDebtPlan(year, month int, debts []core.Debt, payments []core.DebtPayment) MonthlyDebtPlan {
	plan := MonthlyDebtPlan{Year: year, Month: month}
	for _, d := range debts {
		if d.Paid || !d.IsActive() {
			continue
		}
		plan.PlannedDebtPayments = plan.PlannedDebtPayments.Add(d.Amount.NonNegative())
	}
	for _, p := range payments {
		if p.Year != year || p.Month != month {
			continue
		}
		amount := p.Amount.NonNegative()
		plan.TotalPaidDebtPayments = plan.TotalPaidDebtPayments.Add(amount)
		if p.Source == core.SourceIncome {
			plan.PaidDebtPaymentsFromIncome = plan.PaidDebtPaymentsFromIncome.Add(amount)
		}
	}
	plan.RemainingDebtPayments = plan.PlannedDebtPayments.Sub(plan.TotalPaidDebtPayments).NonNegative()
	return plan
}

type DebtPlanService struct {
	store ledger.Store
}

func NewDebtPlanService(store ledger.Store) *DebtPlanService {
	return &DebtPlanService{store: store}
}

func (s *DebtPlanService) GetMonthlyDebtPlan(ctx context.Context, planID string, year, month int) (MonthlyDebtPlan, error) {
	if !core.ValidMonth(month) {
		return MonthlyDebtPlan{}, fmt.Errorf("month %d: %w", month, core.ErrInvalidMonth)
	}
	if _, err := s.store.GetPlan(ctx, planID); err != nil {
		return MonthlyDebtPlan{}, fmt.Errorf("get plan: %w", err)
	}

	var (
		debts    []core.Debt
		payments []core.DebtPayment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		debts, err = s.store.ListDebts(gctx, planID, ledger.AllDebts)
		if err != nil {
			return fmt.Errorf("list debts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		payments, err = s.store.ListPlanDebtPayments(gctx, planID, year, month)
		if err != nil {
			return fmt.Errorf("list debt payments: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return MonthlyDebtPlan{}, err
	}
	return ComputeMonthlyDebtPlan(year, month, debts, payments), nil
}
