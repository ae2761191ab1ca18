package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/ledger/memory"
)

func cents(v int64) core.Money { return core.Money{Cents: v} }

func TestComputeZeroBased(t *testing.T) {
	in := ZeroBasedInputs{
		Year:        2025,
		Month:       3,
		IncomeTotal: cents(300000),
		Expenses:    ledger.ExpenseTotals{Planned: cents(120000), Paid: cents(80000)},
		DebtPlan: MonthlyDebtPlan{
			PlannedDebtPayments:        cents(40000),
			TotalPaidDebtPayments:      cents(30000),
			PaidDebtPaymentsFromIncome: cents(25000),
		},
		Allowance:   cents(20000),
		Savings:     cents(10000),
		Emergency:   cents(5000),
		Investments: cents(5000),
	}

	got := ComputeZeroBased(in)

	checks := []struct {
		name string
		got  core.Money
		want int64
	}{
		{"Unallocated", got.Unallocated, 110000},
		{"PlannedBills", got.PlannedBills, 160000},
		{"PlannedSetAside", got.PlannedSetAside, 40000},
		{"MoneyLeftAfterPlan", got.MoneyLeftAfterPlan, 100000},
		{"PaidBillsSoFar", got.PaidBillsSoFar, 105000},
		{"IncomeLeftRightNow", got.IncomeLeftRightNow, 155000},
		{"RemainingBills", got.RemainingBills, 55000},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			if c.got.Cents != c.want {
				t.Errorf("%s = %d, want %d", c.name, c.got.Cents, c.want)
			}
		})
	}
	if !got.IsOnPlan {
		t.Error("IsOnPlan = false")
	}
	if got.MonthKey != "2025-03" {
		t.Errorf("MonthKey = %q", got.MonthKey)
	}
}

func TestComputeZeroBased_OverCommitted(t *testing.T) {
	got := ComputeZeroBased(ZeroBasedInputs{
		Year: 2025, Month: 3,
		IncomeTotal:       cents(100000),
		Expenses:          ledger.ExpenseTotals{Planned: cents(90000), Paid: cents(-500)},
		CustomAllocations: []CustomAllocation{{Name: "Gifts", Amount: cents(20000)}, {Name: "Bad", Amount: cents(-100)}},
	})
	if got.Unallocated.Cents != -10000 || got.MoneyLeftAfterPlan.Cents != -10000 {
		t.Errorf("leftovers = %d / %d", got.Unallocated.Cents, got.MoneyLeftAfterPlan.Cents)
	}
	if got.IsOnPlan {
		t.Error("IsOnPlan = true")
	}
	if got.PaidExpenses.Cents != 0 || got.CustomAllocationsTotal.Cents != 20000 {
		t.Errorf("clamping: paid %d custom %d", got.PaidExpenses.Cents, got.CustomAllocationsTotal.Cents)
	}
}

func TestAllocationSnapshot(t *testing.T) {
	plan := core.BudgetPlan{
		MonthlyAllowance:              cents(20000),
		MonthlySavingsContribution:    cents(10000),
		MonthlyEmergencyContribution:  cents(5000),
		MonthlyInvestmentContribution: cents(5000),
	}
	zero := cents(0)
	savings := cents(25000)
	row := core.MonthlyAllocation{MonthlySavingsContribution: &savings, MonthlyEmergencyContribution: &zero}

	allowance, s, e, i := AllocationSnapshot(plan, row, true)
	if allowance.Cents != 20000 || s.Cents != 25000 || e.Cents != 0 || i.Cents != 5000 {
		t.Errorf("snapshot = %d %d %d %d", allowance.Cents, s.Cents, e.Cents, i.Cents)
	}

	_, s, _, _ = AllocationSnapshot(plan, row, false)
	if s.Cents != 10000 {
		t.Errorf("missing row should use plan default, got %d", s.Cents)
	}
}

func TestResolveCustomAllocations(t *testing.T) {
	defs := []core.AllocationDefinition{
		{ID: "gifts", Name: "Gifts", DefaultAmount: cents(1000)},
		{ID: "travel", Name: "Travel", DefaultAmount: cents(5000)},
		{ID: "old", Name: "Old", DefaultAmount: cents(9000), Archived: true},
	}
	overrides := []core.AllocationOverride{{AllocationID: "travel", Amount: cents(0)}}

	got := ResolveCustomAllocations(defs, overrides)
	if len(got) != 2 {
		t.Fatalf("got %d allocations, want 2", len(got))
	}
	if got[0].Amount.Cents != 1000 || got[1].Amount.Cents != 0 {
		t.Errorf("amounts = %d, %d", got[0].Amount.Cents, got[1].Amount.Cents)
	}
}

func TestGetZeroBasedSummary(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	plan, err := store.CreatePlan(ctx, core.BudgetPlan{
		Name: "Household", PayDate: 27,
		MonthlyAllowance: cents(20000), MonthlySavingsContribution: cents(10000),
		MonthlyEmergencyContribution: cents(5000), MonthlyInvestmentContribution: cents(5000),
	})
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	if _, err := store.CreateIncome(ctx, core.Income{PlanID: plan.ID, Year: 2024, Month: 11, Name: "Salary", Amount: cents(300000)}); err != nil {
		t.Fatalf("CreateIncome: %v", err)
	}
	mustExpense(t, store, core.Expense{PlanID: plan.ID, Year: 2024, Month: 11, Name: "Rent", Amount: cents(120000)})
	mustExpense(t, store, core.Expense{PlanID: plan.ID, Year: 2026, Month: 1, Name: "Future", Amount: cents(1)})
	loan := mustDebt(t, store, core.Debt{PlanID: plan.ID, Name: "Loan", Type: core.DebtLoan, Amount: cents(30000), CurrentBalance: cents(90000)})
	if _, _, err := store.ApplyDebtPayment(ctx, core.DebtPayment{
		DebtID: loan.ID, Amount: cents(30000), PaidAt: time.Date(2024, 11, 20, 0, 0, 0, 0, time.UTC), Year: 2024, Month: 11, Source: core.SourceIncome,
	}); err != nil {
		t.Fatalf("ApplyDebtPayment: %v", err)
	}

	svc := NewZeroBasedService(store, nil)
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	// income decides the year even though expenses exist later
	got, err := svc.GetZeroBasedSummary(ctx, plan.ID, "november", nil, now)
	if err != nil {
		t.Fatalf("GetZeroBasedSummary: %v", err)
	}
	if got.Year != 2024 || got.Month != 11 {
		t.Errorf("resolved %d-%d, want 2024-11", got.Year, got.Month)
	}
	if got.Unallocated.Cents != 110000 {
		t.Errorf("Unallocated = %d, want 110000", got.Unallocated.Cents)
	}

	t.Run("explicit year", func(t *testing.T) {
		year := 2026
		got, err := svc.GetZeroBasedSummary(ctx, plan.ID, "1", &year, now)
		if err != nil {
			t.Fatalf("GetZeroBasedSummary: %v", err)
		}
		if got.ExpenseTotal.Cents != 1 || got.IncomeTotal.Cents != 0 {
			t.Errorf("totals = %+v", got)
		}
	})

	t.Run("bad month", func(t *testing.T) {
		if _, err := svc.GetZeroBasedSummary(ctx, plan.ID, "smarch", nil, now); !errors.Is(err, core.ErrInvalidMonth) {
			t.Errorf("error = %v, want ErrInvalidMonth", err)
		}
	})
}

func TestZeroBasedService_ResolveYear(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	plan := newPlan(t, store, core.PlanPersonal)
	svc := NewZeroBasedService(store, nil)
	now := time.Date(2031, 6, 1, 0, 0, 0, 0, time.UTC)

	if y, _ := svc.ResolveYear(ctx, plan.ID, now); y != 2031 {
		t.Errorf("empty plan year = %d, want 2031", y)
	}
	mustExpense(t, store, core.Expense{PlanID: plan.ID, Year: 2027, Month: 5, Name: "Gym", Amount: cents(100)})
	if y, _ := svc.ResolveYear(ctx, plan.ID, now); y != 2027 {
		t.Errorf("expense-only year = %d, want 2027", y)
	}
}
