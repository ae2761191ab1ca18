// Package ledger declares the persistence ports used by the reconciliation
// services. Implementations live in ledger/memory and storage (SQLite).
package ledger

import (
	"context"
	"time"

	"bilancio/internal/core"
)

// DebtScope selects debts by origin.
type DebtScope int

const (
	AllDebts DebtScope = iota
	RegularDebts
	ExpenseDebts
)

// ExpenseTotals aggregates the expenses of one budget month.
type ExpenseTotals struct {
	Planned core.Money // sum of amounts
	Paid    core.Money // sum of paid amounts
	Count   int
}

// PaymentLinks are the writes committed in the same unit as a debt payment.
type PaymentLinks struct {
	// ChargeCardID raises that card's balance by the stored amount.
	ChargeCardID string
	// MirrorExpenseID books the stored amount against the expense, capped at
	// its remaining amount. A fully paid expense is left alone.
	MirrorExpenseID string
}

// AppliedPayment is the committed state after ApplyLinkedDebtPayment.
type AppliedPayment struct {
	Payment core.DebtPayment
	Debt    core.Debt
	Card    *core.Debt    // set when a card was charged
	Expense *core.Expense // set when the payment was mirrored
}

type (
	PlanStore interface {
		GetPlan(ctx context.Context, planID string) (core.BudgetPlan, error)
		ListPlans(ctx context.Context) ([]core.BudgetPlan, error)
		CreatePlan(ctx context.Context, p core.BudgetPlan) (core.BudgetPlan, error)
	}

	DebtStore interface {
		ListDebts(ctx context.Context, planID string, scope DebtScope) ([]core.Debt, error)
		GetDebt(ctx context.Context, debtID string) (core.Debt, error)
		CreateDebt(ctx context.Context, d core.Debt) (core.Debt, error)

		// UpsertExpenseDebt creates or updates the shadow debt keyed by
		// (PlanID, ExpenseOrigin.ExpenseID). Fields are last-writer-wins.
		UpsertExpenseDebt(ctx context.Context, d core.Debt) (saved core.Debt, created bool, err error)

		// AccrueMissedCycle adds amount to the balance and moves the accrual
		// cursor to cycle, but only if the stored cursor is older than cycle.
		// It reports whether the update was applied.
		AccrueMissedCycle(ctx context.Context, debtID string, cycle core.MonthKey, amount core.Money, at time.Time) (bool, error)

		// ApplyDebtPayment appends the ledger row and decrements the balance in
		// one unit. The stored amount is capped at the balance at write time.
		ApplyDebtPayment(ctx context.Context, p core.DebtPayment) (core.DebtPayment, core.Debt, error)

		// ApplyLinkedDebtPayment is ApplyDebtPayment plus links, all or nothing.
		ApplyLinkedDebtPayment(ctx context.Context, p core.DebtPayment, links PaymentLinks) (AppliedPayment, error)
	}

	PaymentLedger interface {
		ListDebtPayments(ctx context.Context, debtID string) ([]core.DebtPayment, error)
		// SumDebtPaymentsByDebt groups every debt payment of the plan by debt.
		SumDebtPaymentsByDebt(ctx context.Context, planID string) (map[string]core.Money, error)
		// ListPlanDebtPayments returns the payments booked in one budget month.
		ListPlanDebtPayments(ctx context.Context, planID string, year, month int) ([]core.DebtPayment, error)
	}

	ExpenseStore interface {
		ListExpenses(ctx context.Context, planID string) ([]core.Expense, error)
		GetExpense(ctx context.Context, expenseID string) (core.Expense, error)
		CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		// ApplyExpensePayment appends the ledger row and raises PaidAmount, capped at Amount.
		ApplyExpensePayment(ctx context.Context, p core.ExpensePayment) (core.ExpensePayment, core.Expense, error)
		AggregateExpenses(ctx context.Context, planID string, year, month int) (ExpenseTotals, error)
		LatestExpenseYear(ctx context.Context, planID string) (int, bool, error)
	}

	IncomeStore interface {
		CreateIncome(ctx context.Context, in core.Income) (core.Income, error)
		SumIncome(ctx context.Context, planID string, year, month int) (core.Money, error)
		LatestIncomeYear(ctx context.Context, planID string) (int, bool, error)
	}

	AllocationStore interface {
		// GetMonthlyAllocation returns the override row for the month, if any.
		GetMonthlyAllocation(ctx context.Context, planID string, year, month int) (core.MonthlyAllocation, bool, error)
		SaveMonthlyAllocation(ctx context.Context, a core.MonthlyAllocation) error
		// ListAllocationDefinitions excludes archived definitions.
		ListAllocationDefinitions(ctx context.Context, planID string) ([]core.AllocationDefinition, error)
		CreateAllocationDefinition(ctx context.Context, def core.AllocationDefinition) (core.AllocationDefinition, error)
		ListAllocationOverrides(ctx context.Context, planID string, year, month int) ([]core.AllocationOverride, error)
		SetAllocationOverride(ctx context.Context, o core.AllocationOverride) error
	}

	// Store is everything the services need from persistence.
	Store interface {
		PlanStore
		DebtStore
		PaymentLedger
		ExpenseStore
		IncomeStore
		AllocationStore
	}
)
