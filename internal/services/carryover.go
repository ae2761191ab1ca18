package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

// CarryoverConfig tunes the carryover passes.
type CarryoverConfig struct {
	// ExpenseGraceDays delays shadow debt creation past the due point (default: 0)
	ExpenseGraceDays int

	// AccrualGraceDays is how long after a due date a cycle stays open (default: 5)
	AccrualGraceDays int

	// MaxCatchUpCycles bounds how many missed cycles one pass evaluates (default: 12)
	MaxCatchUpCycles int

	// DefaultPayDay is used when a plan has no valid pay date (default: 27)
	DefaultPayDay int
}

// DefaultCarryoverConfig returns sensible defaults
func DefaultCarryoverConfig() CarryoverConfig {
	return CarryoverConfig{
		ExpenseGraceDays: 0,
		AccrualGraceDays: 5,
		MaxCatchUpCycles: 12,
		DefaultPayDay:    core.DefaultPayDate,
	}
}

type CarryoverResult struct {
	Checked  int // overdue, non-allocation expenses considered
	Upserted int // shadow debts created or refreshed with a balance
	Settled  int // shadow debts driven to zero
	Failed   int
}

type AccrualResult struct {
	Checked       int // regular debts with a balance
	Accrued       int // debts whose balance grew
	AccruedCycles int
	Failed        int
}

// CarryoverProcessor turns overdue expenses into shadow debts and accrues
// missed debt payment cycles. Both passes are idempotent.
type CarryoverProcessor struct {
	store  ledger.Store
	config CarryoverConfig
}

func NewCarryoverProcessor(store ledger.Store, config CarryoverConfig) *CarryoverProcessor {
	defaults := DefaultCarryoverConfig()
	if config.AccrualGraceDays < 0 {
		config.AccrualGraceDays = defaults.AccrualGraceDays
	}
	if config.ExpenseGraceDays < 0 {
		config.ExpenseGraceDays = defaults.ExpenseGraceDays
	}
	if config.MaxCatchUpCycles <= 0 {
		config.MaxCatchUpCycles = defaults.MaxCatchUpCycles
	}
	if config.DefaultPayDay < 1 || config.DefaultPayDay > 31 {
		config.DefaultPayDay = defaults.DefaultPayDay
	}
	return &CarryoverProcessor{store: store, config: config}
}

func (p *CarryoverProcessor) calendar(plan core.BudgetPlan) DueCalendar {
	payDay := plan.PayDate
	if payDay < 1 || payDay > 31 {
		payDay = p.config.DefaultPayDay
	}
	return DueCalendar{
		PayDay:           payDay,
		ExpenseGraceDays: p.config.ExpenseGraceDays,
		AccrualGraceDays: p.config.AccrualGraceDays,
	}
}

// ShadowDebtName renders "<Category>: <Expense> (<month> <year>)".
func ShadowDebtName(e core.Expense) string {
	category := strings.TrimSpace(e.CategoryName)
	if category == "" {
		category = "Uncategorized"
	}
	month := strings.ToLower(time.Month(e.Month).String())
	return fmt.Sprintf("%s: %s (%s %d)", category, e.Name, month, e.Year)
}

// shadowFromExpense mirrors the expense onto its shadow debt.
func shadowFromExpense(e core.Expense, now time.Time) core.Debt {
	remaining := e.Remaining()
	paid := core.MinMoney(e.PaidAmount.NonNegative(), e.Amount.NonNegative())
	return core.Debt{
		PlanID:         e.PlanID,
		Name:           ShadowDebtName(e),
		Type:           core.DebtHighPurchase,
		InitialBalance: e.Amount.NonNegative(),
		CurrentBalance: remaining,
		Amount:         e.Amount.NonNegative(),
		Paid:           remaining.Cents == 0,
		PaidAmount:     paid,
		Origin: core.ExpenseOrigin{
			ExpenseID:    e.ID,
			Year:         e.Year,
			Month:        e.Month,
			CategoryID:   e.CategoryID,
			CategoryName: e.CategoryName,
			ExpenseName:  e.Name,
		},
		UpdatedAt: now,
	}
}

// ProcessOverdueExpensesToDebts upserts a shadow debt for every overdue,
// unpaid expense and zeroes the shadows of expenses since paid in full.
func (p *CarryoverProcessor) ProcessOverdueExpensesToDebts(ctx context.Context, planID string, now time.Time) (CarryoverResult, error) {
	var result CarryoverResult
	if p.store == nil {
		return result, fmt.Errorf("processor not properly initialized")
	}

	plan, err := p.store.GetPlan(ctx, planID)
	if err != nil {
		return result, fmt.Errorf("get plan: %w", err)
	}
	if plan.Kind != "" && plan.Kind != core.PlanPersonal {
		slog.DebugContext(ctx, "Skipping expense carryover for non-personal plan",
			"plan_id", planID,
			"kind", plan.Kind)
		return result, nil
	}

	expenses, err := p.store.ListExpenses(ctx, planID)
	if err != nil {
		return result, fmt.Errorf("list expenses: %w", err)
	}
	shadows, err := p.store.ListDebts(ctx, planID, ledger.ExpenseDebts)
	if err != nil {
		return result, fmt.Errorf("list expense debts: %w", err)
	}
	existing := make(map[string]core.Debt, len(shadows))
	for _, d := range shadows {
		if src, ok := d.ExpenseSource(); ok {
			existing[src.ExpenseID] = d
		}
	}

	cal := p.calendar(plan)
	for _, e := range expenses {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if e.IsAllocation {
			continue
		}
		current, hasShadow := existing[e.ID]
		remaining := e.Remaining()

		switch {
		case remaining.Cents > 0 && cal.IsExpenseOverdue(e, now):
			result.Checked++
		case hasShadow && remaining.Cents == 0 && current.CurrentBalance.Cents > 0:
			result.Checked++
		case hasShadow:
			// refresh the mirror so renamed or re-priced expenses stay in sync
		default:
			continue
		}

		shadow := shadowFromExpense(e, now)
		if hasShadow && shadowUnchanged(current, shadow) {
			continue
		}
		saved, created, err := p.store.UpsertExpenseDebt(ctx, shadow)
		if err != nil {
			result.Failed++
			slog.ErrorContext(ctx, "Failed to upsert shadow debt",
				"plan_id", planID,
				"expense_id", e.ID,
				"error", err)
			continue
		}

		if saved.CurrentBalance.Cents == 0 {
			result.Settled++
			slog.InfoContext(ctx, "Shadow debt settled",
				"plan_id", planID,
				"expense_id", e.ID,
				"debt_id", saved.ID)
			continue
		}
		result.Upserted++
		slog.InfoContext(ctx, "Shadow debt synced from overdue expense",
			"plan_id", planID,
			"expense_id", e.ID,
			"debt_id", saved.ID,
			"created", created,
			"balance_cents", saved.CurrentBalance.Cents)
	}

	slog.InfoContext(ctx, "Expense carryover complete",
		"plan_id", planID,
		"checked", result.Checked,
		"upserted", result.Upserted,
		"settled", result.Settled,
		"failed", result.Failed)
	return result, nil
}

func shadowUnchanged(current, next core.Debt) bool {
	return current.Name == next.Name &&
		current.Amount == next.Amount &&
		current.CurrentBalance == next.CurrentBalance &&
		current.PaidAmount == next.PaidAmount &&
		current.Paid == next.Paid
}

// ProcessMissedDebtPaymentsToAccrue adds the required payment of every closed,
// unpaid cycle to the debt's balance and advances its accrual cursor.
func (p *CarryoverProcessor) ProcessMissedDebtPaymentsToAccrue(ctx context.Context, planID string, now time.Time) (AccrualResult, error) {
	var result AccrualResult
	if p.store == nil {
		return result, fmt.Errorf("processor not properly initialized")
	}

	plan, err := p.store.GetPlan(ctx, planID)
	if err != nil {
		return result, fmt.Errorf("get plan: %w", err)
	}
	debts, err := p.store.ListDebts(ctx, planID, ledger.RegularDebts)
	if err != nil {
		return result, fmt.Errorf("list regular debts: %w", err)
	}

	cal := p.calendar(plan)
	for _, d := range debts {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if d.Paid || !d.IsActive() {
			continue
		}
		result.Checked++

		cycles, err := p.accrueDebt(ctx, cal, d, now)
		if err != nil {
			result.Failed++
			slog.ErrorContext(ctx, "Failed to accrue missed debt payments",
				"plan_id", planID,
				"debt_id", d.ID,
				"error", err)
			continue
		}
		if cycles > 0 {
			result.Accrued++
			result.AccruedCycles += cycles
		}
	}

	slog.InfoContext(ctx, "Debt accrual complete",
		"plan_id", planID,
		"checked", result.Checked,
		"accrued", result.Accrued,
		"cycles", result.AccruedCycles,
		"failed", result.Failed)
	return result, nil
}

func (p *CarryoverProcessor) accrueDebt(ctx context.Context, cal DueCalendar, d core.Debt, now time.Time) (int, error) {
	cycles := cal.PendingCycles(d, now, p.config.MaxCatchUpCycles)
	if len(cycles) == 0 {
		return 0, nil
	}
	payments, err := p.store.ListDebtPayments(ctx, d.ID)
	if err != nil {
		return 0, fmt.Errorf("list debt payments: %w", err)
	}

	accrued := 0
	for _, cycle := range cycles {
		amount := core.Money{}
		if !cal.CyclePaid(d, cycle, payments) {
			amount = RequiredPayment(d)
		}
		// the store only applies this when its cursor is still behind cycle
		applied, err := p.store.AccrueMissedCycle(ctx, d.ID, cycle, amount, now)
		if err != nil {
			return accrued, fmt.Errorf("accrue cycle %s: %w", cycle, err)
		}
		if applied && amount.Cents > 0 {
			accrued++
			slog.InfoContext(ctx, "Accrued missed debt payment",
				"debt_id", d.ID,
				"cycle", cycle,
				"amount_cents", amount.Cents)
		}
	}
	return accrued, nil
}

// SyncPlan runs both carryover passes for one plan.
func (p *CarryoverProcessor) SyncPlan(ctx context.Context, planID string, now time.Time) error {
	_, expErr := p.ProcessOverdueExpensesToDebts(ctx, planID, now)
	_, accErr := p.ProcessMissedDebtPaymentsToAccrue(ctx, planID, now)
	if err := errors.Join(expErr, accErr); err != nil {
		return fmt.Errorf("sync plan %s: %w", planID, err)
	}
	return nil
}
