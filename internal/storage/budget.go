package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

const expenseColumns = `id, plan_id, year, month, name, category_id, category_name, amount_cents,
	paid, paid_amount_cents, due_date, is_allocation, series_key, created_at`

func scanExpense(row scanner) (core.Expense, error) {
	var (
		e                  core.Expense
		paid, isAllocation int
		dueDate, createdAt string
	)
	err := row.Scan(&e.ID, &e.PlanID, &e.Year, &e.Month, &e.Name, &e.CategoryID, &e.CategoryName,
		&e.Amount.Cents, &paid, &e.PaidAmount.Cents, &dueDate, &isAllocation, &e.SeriesKey, &createdAt)
	if err != nil {
		return core.Expense{}, err
	}
	e.Paid = paid != 0
	e.IsAllocation = isAllocation != 0
	e.CreatedAt = parseTime(createdAt)
	if dueDate != "" {
		if t, err := time.Parse("2006-01-02", dueDate); err == nil {
			e.DueDate = core.Date{Time: t}
		}
	}
	return e, nil
}

func formatDate(d core.Date) string {
	if d.IsEmpty() {
		return ""
	}
	return d.Format("2006-01-02")
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, planID string) ([]core.Expense, error) {
	if err := r.planExists(ctx, planID); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+expenseColumns+` FROM expenses
		WHERE plan_id = ? ORDER BY year, month, created_at, id`, planID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func getExpense(ctx context.Context, q queryRower, expenseID string) (core.Expense, error) {
	e, err := scanExpense(q.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, expenseID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, notFound("expense", expenseID)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", expenseID, err)
	}
	return e, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, expenseID string) (core.Expense, error) {
	return getExpense(ctx, r.db, expenseID)
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, fmt.Errorf("validate expense: %w", err)
	}
	if err := r.planExists(ctx, e.PlanID); err != nil {
		return core.Expense{}, err
	}
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.Paid = e.Amount.Cents > 0 && e.PaidAmount.Cents >= e.Amount.Cents
	_, err := r.db.ExecContext(ctx, `INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PlanID, e.Year, e.Month, e.Name, e.CategoryID, e.CategoryName, e.Amount.Cents,
		boolToInt(e.Paid), e.PaidAmount.Cents, formatDate(e.DueDate), boolToInt(e.IsAllocation),
		e.SeriesKey, formatTime(e.CreatedAt))
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) ApplyExpensePayment(ctx context.Context, p core.ExpensePayment) (core.ExpensePayment, core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.ExpensePayment{}, core.Expense{}, fmt.Errorf("begin expense payment: %w", err)
	}
	defer tx.Rollback()

	p, e, err := applyExpensePayment(ctx, tx, p)
	if err != nil {
		return core.ExpensePayment{}, core.Expense{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.ExpensePayment{}, core.Expense{}, fmt.Errorf("commit expense payment: %w", err)
	}
	return p, e, nil
}

func applyExpensePayment(ctx context.Context, tx *sql.Tx, p core.ExpensePayment) (core.ExpensePayment, core.Expense, error) {
	e, err := getExpense(ctx, tx, p.ExpenseID)
	if err != nil {
		return core.ExpensePayment{}, core.Expense{}, err
	}
	remaining := e.Remaining()
	if remaining.Cents <= 0 {
		return core.ExpensePayment{}, core.Expense{}, fmt.Errorf("expense %s: %w", p.ExpenseID, core.ErrExpenseFullyPaid)
	}
	p.Amount = core.MinMoney(p.Amount, remaining)
	if p.ID == "" {
		p.ID = newID()
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO expense_payments (id, expense_id, amount_cents, paid_at, year, month, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ExpenseID, p.Amount.Cents, formatTime(p.PaidAt), p.Year, p.Month, string(p.Source)); err != nil {
		return core.ExpensePayment{}, core.Expense{}, fmt.Errorf("insert expense payment: %w", err)
	}

	e.PaidAmount = e.PaidAmount.Add(p.Amount)
	e.Paid = e.PaidAmount.Cents >= e.Amount.Cents
	if _, err := tx.ExecContext(ctx, `UPDATE expenses SET paid_amount_cents = ?, paid = ? WHERE id = ?`,
		e.PaidAmount.Cents, boolToInt(e.Paid), e.ID); err != nil {
		return core.ExpensePayment{}, core.Expense{}, fmt.Errorf("update expense paid amount: %w", err)
	}
	return p, e, nil
}

func (r *SQLiteRepository) AggregateExpenses(ctx context.Context, planID string, year, month int) (ledger.ExpenseTotals, error) {
	var t ledger.ExpenseTotals
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount_cents), 0), COALESCE(SUM(paid_amount_cents), 0), COUNT(*)
		FROM expenses WHERE plan_id = ? AND year = ? AND month = ?`, planID, year, month).
		Scan(&t.Planned.Cents, &t.Paid.Cents, &t.Count)
	if err != nil {
		return ledger.ExpenseTotals{}, fmt.Errorf("aggregate expenses: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) latestYear(ctx context.Context, table, planID string) (int, bool, error) {
	var year sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT MAX(year) FROM `+table+` WHERE plan_id = ?`, planID).Scan(&year)
	if err != nil {
		return 0, false, fmt.Errorf("latest %s year: %w", table, err)
	}
	if !year.Valid {
		return 0, false, nil
	}
	return int(year.Int64), true, nil
}

func (r *SQLiteRepository) LatestExpenseYear(ctx context.Context, planID string) (int, bool, error) {
	return r.latestYear(ctx, "expenses", planID)
}

// Income

func (r *SQLiteRepository) CreateIncome(ctx context.Context, in core.Income) (core.Income, error) {
	if err := r.planExists(ctx, in.PlanID); err != nil {
		return core.Income{}, err
	}
	if in.ID == "" {
		in.ID = newID()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO incomes (id, plan_id, year, month, name, amount_cents)
		VALUES (?, ?, ?, ?, ?, ?)`, in.ID, in.PlanID, in.Year, in.Month, in.Name, in.Amount.Cents)
	if err != nil {
		return core.Income{}, fmt.Errorf("create income: %w", err)
	}
	return in, nil
}

func (r *SQLiteRepository) SumIncome(ctx context.Context, planID string, year, month int) (core.Money, error) {
	var total core.Money
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount_cents), 0) FROM incomes
		WHERE plan_id = ? AND year = ? AND month = ?`, planID, year, month).Scan(&total.Cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum income: %w", err)
	}
	return total, nil
}

func (r *SQLiteRepository) LatestIncomeYear(ctx context.Context, planID string) (int, bool, error) {
	return r.latestYear(ctx, "incomes", planID)
}

// Allocations

func nullMoney(v sql.NullInt64) *core.Money {
	if !v.Valid {
		return nil
	}
	return &core.Money{Cents: v.Int64}
}

func moneyArg(m *core.Money) any {
	if m == nil {
		return nil
	}
	return m.Cents
}

func (r *SQLiteRepository) GetMonthlyAllocation(ctx context.Context, planID string, year, month int) (core.MonthlyAllocation, bool, error) {
	var allowance, savings, emergency, investment sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT allowance_cents, savings_cents, emergency_cents, investment_cents
		FROM monthly_allocations WHERE plan_id = ? AND year = ? AND month = ?`, planID, year, month).
		Scan(&allowance, &savings, &emergency, &investment)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MonthlyAllocation{}, false, nil
	}
	if err != nil {
		return core.MonthlyAllocation{}, false, fmt.Errorf("get monthly allocation: %w", err)
	}
	return core.MonthlyAllocation{
		PlanID:                        planID,
		Year:                          year,
		Month:                         month,
		MonthlyAllowance:              nullMoney(allowance),
		MonthlySavingsContribution:    nullMoney(savings),
		MonthlyEmergencyContribution:  nullMoney(emergency),
		MonthlyInvestmentContribution: nullMoney(investment),
	}, true, nil
}

func (r *SQLiteRepository) SaveMonthlyAllocation(ctx context.Context, a core.MonthlyAllocation) error {
	if err := r.planExists(ctx, a.PlanID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO monthly_allocations
			(plan_id, year, month, allowance_cents, savings_cents, emergency_cents, investment_cents)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_id, year, month) DO UPDATE SET
			allowance_cents = excluded.allowance_cents,
			savings_cents = excluded.savings_cents,
			emergency_cents = excluded.emergency_cents,
			investment_cents = excluded.investment_cents`,
		a.PlanID, a.Year, a.Month, moneyArg(a.MonthlyAllowance), moneyArg(a.MonthlySavingsContribution),
		moneyArg(a.MonthlyEmergencyContribution), moneyArg(a.MonthlyInvestmentContribution))
	if err != nil {
		return fmt.Errorf("save monthly allocation: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListAllocationDefinitions(ctx context.Context, planID string) ([]core.AllocationDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, plan_id, name, default_amount_cents, sort_order, archived
		FROM allocation_definitions WHERE plan_id = ? AND archived = 0 ORDER BY sort_order, name`, planID)
	if err != nil {
		return nil, fmt.Errorf("list allocation definitions: %w", err)
	}
	defer rows.Close()

	var out []core.AllocationDefinition
	for rows.Next() {
		var (
			def      core.AllocationDefinition
			archived int
		)
		if err := rows.Scan(&def.ID, &def.PlanID, &def.Name, &def.DefaultAmount.Cents, &def.SortOrder, &archived); err != nil {
			return nil, fmt.Errorf("scan allocation definition: %w", err)
		}
		def.Archived = archived != 0
		out = append(out, def)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateAllocationDefinition(ctx context.Context, def core.AllocationDefinition) (core.AllocationDefinition, error) {
	if err := r.planExists(ctx, def.PlanID); err != nil {
		return core.AllocationDefinition{}, err
	}
	if def.ID == "" {
		def.ID = newID()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO allocation_definitions (id, plan_id, name, default_amount_cents, sort_order, archived)
		VALUES (?, ?, ?, ?, ?, ?)`, def.ID, def.PlanID, def.Name, def.DefaultAmount.Cents, def.SortOrder, boolToInt(def.Archived))
	if err != nil {
		return core.AllocationDefinition{}, fmt.Errorf("create allocation definition: %w", err)
	}
	return def, nil
}

func (r *SQLiteRepository) ListAllocationOverrides(ctx context.Context, planID string, year, month int) ([]core.AllocationOverride, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT o.allocation_id, o.year, o.month, o.amount_cents
		FROM allocation_overrides o JOIN allocation_definitions d ON d.id = o.allocation_id
		WHERE d.plan_id = ? AND o.year = ? AND o.month = ?`, planID, year, month)
	if err != nil {
		return nil, fmt.Errorf("list allocation overrides: %w", err)
	}
	defer rows.Close()

	var out []core.AllocationOverride
	for rows.Next() {
		var o core.AllocationOverride
		if err := rows.Scan(&o.AllocationID, &o.Year, &o.Month, &o.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan allocation override: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SetAllocationOverride(ctx context.Context, o core.AllocationOverride) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO allocation_overrides (allocation_id, year, month, amount_cents)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(allocation_id, year, month) DO UPDATE SET amount_cents = excluded.amount_cents`,
		o.AllocationID, o.Year, o.Month, o.Amount.Cents)
	if err != nil {
		return fmt.Errorf("set allocation override: %w", err)
	}
	return nil
}
