package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

type CustomAllocation struct {
	ID     string
	Name   string
	Amount core.Money
}

// ZeroBasedInputs is everything the zero-based calculation reads for one month.
type ZeroBasedInputs struct {
	Year              int
	Month             int
	IncomeTotal       core.Money
	Expenses          ledger.ExpenseTotals
	DebtPlan          MonthlyDebtPlan
	Allowance         core.Money
	Savings           core.Money
	Emergency         core.Money
	Investments       core.Money
	CustomAllocations []CustomAllocation
}

type ZeroBasedSummary struct {
	Year     int
	Month    int
	MonthKey core.MonthKey

	IncomeTotal            core.Money
	ExpenseTotal           core.Money
	DebtPaymentsTotal      core.Money
	PlannedAllowance       core.Money
	PlannedSavings         core.Money
	PlannedEmergency       core.Money
	PlannedInvestments     core.Money
	CustomAllocations      []CustomAllocation
	CustomAllocationsTotal core.Money
	Unallocated            core.Money

	GrossIncome                core.Money
	PlannedExpenses            core.Money
	PaidExpenses               core.Money
	PlannedDebtPayments        core.Money
	PaidDebtPaymentsFromIncome core.Money
	PlannedBills               core.Money
	PlannedSetAside            core.Money
	MoneyLeftAfterPlan         core.Money
	PaidBillsSoFar             core.Money
	IncomeLeftRightNow         core.Money
	RemainingBills             core.Money
	IsOnPlan                   bool
}

// ComputeZeroBased derives the month's unallocated figure and plan views.
// Inputs are clamped to zero; the derived leftovers may go negative.
func ComputeZeroBased(in ZeroBasedInputs) ZeroBasedSummary {
	income := in.IncomeTotal.NonNegative()
	custom := make([]CustomAllocation, 0, len(in.CustomAllocations))
	var customTotal core.Money
	for _, c := range in.CustomAllocations {
		c.Amount = c.Amount.NonNegative()
		customTotal = customTotal.Add(c.Amount)
		custom = append(custom, c)
	}

	s := ZeroBasedSummary{
		Year:                   in.Year,
		Month:                  in.Month,
		MonthKey:               core.NewMonthKey(in.Year, in.Month),
		IncomeTotal:            income,
		ExpenseTotal:           in.Expenses.Planned.NonNegative(),
		DebtPaymentsTotal:      in.DebtPlan.TotalPaidDebtPayments.NonNegative(),
		PlannedAllowance:       in.Allowance.NonNegative(),
		PlannedSavings:         in.Savings.NonNegative(),
		PlannedEmergency:       in.Emergency.NonNegative(),
		PlannedInvestments:     in.Investments.NonNegative(),
		CustomAllocations:      custom,
		CustomAllocationsTotal: customTotal,

		GrossIncome:                income,
		PlannedExpenses:            in.Expenses.Planned.NonNegative(),
		PaidExpenses:               in.Expenses.Paid.NonNegative(),
		PlannedDebtPayments:        in.DebtPlan.PlannedDebtPayments.NonNegative(),
		PaidDebtPaymentsFromIncome: in.DebtPlan.PaidDebtPaymentsFromIncome.NonNegative(),
	}

	s.Unallocated = s.IncomeTotal.
		Sub(s.ExpenseTotal).
		Sub(s.DebtPaymentsTotal).
		Sub(s.PlannedAllowance).
		Sub(s.PlannedSavings).
		Sub(s.PlannedEmergency).
		Sub(s.PlannedInvestments).
		Sub(s.CustomAllocationsTotal)

	s.PlannedBills = s.PlannedExpenses.Add(s.PlannedDebtPayments)
	s.PlannedSetAside = core.SumMoney(s.PlannedAllowance, s.PlannedSavings, s.PlannedEmergency, s.PlannedInvestments, s.CustomAllocationsTotal)
	s.MoneyLeftAfterPlan = s.GrossIncome.Sub(s.PlannedBills).Sub(s.PlannedSetAside)
	s.PaidBillsSoFar = s.PaidExpenses.Add(s.PaidDebtPaymentsFromIncome)
	s.IncomeLeftRightNow = s.GrossIncome.Sub(s.PaidBillsSoFar).Sub(s.PlannedSetAside)
	s.RemainingBills = s.PlannedBills.Sub(s.PaidBillsSoFar).NonNegative()
	s.IsOnPlan = s.MoneyLeftAfterPlan.Cents >= 0
	return s
}

// AllocationSnapshot resolves the month's contributions: the month row where
// set, else the plan defaults.
func AllocationSnapshot(plan core.BudgetPlan, month core.MonthlyAllocation, found bool) (allowance, savings, emergency, investments core.Money) {
	pick := func(override *core.Money, fallback core.Money) core.Money {
		if found && override != nil {
			return *override
		}
		return fallback
	}
	return pick(month.MonthlyAllowance, plan.MonthlyAllowance),
		pick(month.MonthlySavingsContribution, plan.MonthlySavingsContribution),
		pick(month.MonthlyEmergencyContribution, plan.MonthlyEmergencyContribution),
		pick(month.MonthlyInvestmentContribution, plan.MonthlyInvestmentContribution)
}

// ResolveCustomAllocations applies per-month overrides to the definitions.
func ResolveCustomAllocations(defs []core.AllocationDefinition, overrides []core.AllocationOverride) []CustomAllocation {
	byID := make(map[string]core.Money, len(overrides))
	for _, o := range overrides {
		byID[o.AllocationID] = o.Amount
	}
	out := make([]CustomAllocation, 0, len(defs))
	for _, d := range defs {
		if d.Archived {
			continue
		}
		amount, ok := byID[d.ID]
		if !ok {
			amount = d.DefaultAmount
		}
		out = append(out, CustomAllocation{ID: d.ID, Name: d.Name, Amount: amount})
	}
	return out
}

type ZeroBasedService struct {
	store    ledger.Store
	debtPlan *DebtPlanService
}

func NewZeroBasedService(store ledger.Store, debtPlan *DebtPlanService) *ZeroBasedService {
	if debtPlan == nil {
		debtPlan = NewDebtPlanService(store)
	}
	return &ZeroBasedService{store: store, debtPlan: debtPlan}
}

// ResolveYear picks the latest year with income, else with expenses, else now.
func (s *ZeroBasedService) ResolveYear(ctx context.Context, planID string, now time.Time) (int, error) {
	year, ok, err := s.store.LatestIncomeYear(ctx, planID)
	if err != nil {
		return 0, fmt.Errorf("latest income year: %w", err)
	}
	if ok {
		return year, nil
	}
	year, ok, err = s.store.LatestExpenseYear(ctx, planID)
	if err != nil {
		return 0, fmt.Errorf("latest expense year: %w", err)
	}
	if ok {
		return year, nil
	}
	return now.Year(), nil
}

// GetZeroBasedSummary builds the zero-based view of one month. month is 1-12
// or an English month name; a nil year is resolved with ResolveYear.
func (s *ZeroBasedService) GetZeroBasedSummary(ctx context.Context, planID, month string, year *int, now time.Time) (ZeroBasedSummary, error) {
	m, err := core.ParseMonth(month)
	if err != nil {
		return ZeroBasedSummary{}, fmt.Errorf("month %q: %w", month, err)
	}
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return ZeroBasedSummary{}, fmt.Errorf("get plan: %w", err)
	}

	var y int
	if year != nil {
		y = *year
	} else if y, err = s.ResolveYear(ctx, planID, now); err != nil {
		return ZeroBasedSummary{}, err
	}

	in := ZeroBasedInputs{Year: y, Month: m}
	var (
		monthRow  core.MonthlyAllocation
		found     bool
		defs      []core.AllocationDefinition
		overrides []core.AllocationOverride
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if in.IncomeTotal, err = s.store.SumIncome(gctx, planID, y, m); err != nil {
			return fmt.Errorf("sum income: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if in.Expenses, err = s.store.AggregateExpenses(gctx, planID, y, m); err != nil {
			return fmt.Errorf("aggregate expenses: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		in.DebtPlan, err = s.debtPlan.GetMonthlyDebtPlan(gctx, planID, y, m)
		return err
	})
	g.Go(func() error {
		var err error
		if monthRow, found, err = s.store.GetMonthlyAllocation(gctx, planID, y, m); err != nil {
			return fmt.Errorf("get monthly allocation: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if defs, err = s.store.ListAllocationDefinitions(gctx, planID); err != nil {
			return fmt.Errorf("list allocation definitions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if overrides, err = s.store.ListAllocationOverrides(gctx, planID, y, m); err != nil {
			return fmt.Errorf("list allocation overrides: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return ZeroBasedSummary{}, err
	}

	in.Allowance, in.Savings, in.Emergency, in.Investments = AllocationSnapshot(plan, monthRow, found)
	in.CustomAllocations = ResolveCustomAllocations(defs, overrides)
	return ComputeZeroBased(in), nil
}
