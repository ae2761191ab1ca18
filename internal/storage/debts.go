package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

const (
	sourceRegular = "regular"
	sourceExpense = "expense"
)

const debtColumns = `id, plan_id, name, type, initial_balance_cents, current_balance_cents, amount_cents,
	paid, paid_amount_cents, monthly_minimum_cents, interest_rate_pct, installment_months, due_day,
	default_payment_source, last_accrual_cycle, source_type, source_expense_id, source_year,
	source_month, source_category_id, source_category_name, source_expense_name, created_at, updated_at`

func scanDebt(row scanner) (core.Debt, error) {
	var (
		d                    core.Debt
		debtType, source     string
		paid                 int
		lastCycle            string
		sourceType           string
		sourceExpenseID      sql.NullString
		origin               core.ExpenseOrigin
		createdAt, updatedAt string
	)
	err := row.Scan(&d.ID, &d.PlanID, &d.Name, &debtType,
		&d.InitialBalance.Cents, &d.CurrentBalance.Cents, &d.Amount.Cents,
		&paid, &d.PaidAmount.Cents, &d.MonthlyMinimum.Cents, &d.InterestRatePct,
		&d.InstallmentMonths, &d.DueDay, &source, &lastCycle, &sourceType, &sourceExpenseID,
		&origin.Year, &origin.Month, &origin.CategoryID, &origin.CategoryName, &origin.ExpenseName,
		&createdAt, &updatedAt)
	if err != nil {
		return core.Debt{}, err
	}
	d.Type = core.DebtType(debtType)
	d.Paid = paid != 0
	d.DefaultPaymentSource = core.PaymentSource(source)
	d.LastAccrualCycle = core.MonthKey(lastCycle)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	if sourceType == sourceExpense && sourceExpenseID.Valid {
		origin.ExpenseID = sourceExpenseID.String
		d.Origin = origin
	} else {
		d.Origin = core.RegularOrigin{}
	}
	return d, nil
}

func (r *SQLiteRepository) ListDebts(ctx context.Context, planID string, scope ledger.DebtScope) ([]core.Debt, error) {
	if err := r.planExists(ctx, planID); err != nil {
		return nil, err
	}
	query := `SELECT ` + debtColumns + ` FROM debts WHERE plan_id = ?`
	args := []any{planID}
	switch scope {
	case ledger.RegularDebts:
		query += ` AND source_type = ?`
		args = append(args, sourceRegular)
	case ledger.ExpenseDebts:
		query += ` AND source_type = ?`
		args = append(args, sourceExpense)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	defer rows.Close()

	var out []core.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debt: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetDebt(ctx context.Context, debtID string) (core.Debt, error) {
	return getDebt(ctx, r.db, debtID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDebt(ctx context.Context, q queryRower, debtID string) (core.Debt, error) {
	d, err := scanDebt(q.QueryRowContext(ctx, `SELECT `+debtColumns+` FROM debts WHERE id = ?`, debtID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Debt{}, notFound("debt", debtID)
	}
	if err != nil {
		return core.Debt{}, fmt.Errorf("get debt %s: %w", debtID, err)
	}
	return d, nil
}

func (r *SQLiteRepository) CreateDebt(ctx context.Context, d core.Debt) (core.Debt, error) {
	if err := d.Validate(); err != nil {
		return core.Debt{}, fmt.Errorf("validate debt: %w", err)
	}
	if err := r.planExists(ctx, d.PlanID); err != nil {
		return core.Debt{}, err
	}
	if d.ID == "" {
		d.ID = newID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	d.UpdatedAt = d.CreatedAt

	sourceType, origin, expenseID := sourceRegular, core.ExpenseOrigin{}, sql.NullString{}
	if src, ok := d.ExpenseSource(); ok {
		sourceType, origin = sourceExpense, src
		expenseID = sql.NullString{String: src.ExpenseID, Valid: true}
	} else {
		d.Origin = core.RegularOrigin{}
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO debts (`+debtColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.PlanID, d.Name, string(d.Type), d.InitialBalance.Cents, d.CurrentBalance.Cents, d.Amount.Cents,
		boolToInt(d.Paid), d.PaidAmount.Cents, d.MonthlyMinimum.Cents, d.InterestRatePct, d.InstallmentMonths,
		d.DueDay, string(d.DefaultPaymentSource), string(d.LastAccrualCycle), sourceType, expenseID,
		origin.Year, origin.Month, origin.CategoryID, origin.CategoryName, origin.ExpenseName,
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
	if err != nil {
		return core.Debt{}, fmt.Errorf("create debt: %w", err)
	}

	slog.InfoContext(ctx, "Debt saved to SQLite",
		"id", d.ID,
		"plan_id", d.PlanID,
		"type", d.Type,
		"balance_cents", d.CurrentBalance.Cents)

	return d, nil
}

func (r *SQLiteRepository) UpsertExpenseDebt(ctx context.Context, d core.Debt) (core.Debt, bool, error) {
	src, ok := d.ExpenseSource()
	if !ok {
		return core.Debt{}, false, errors.New("upsert expense debt: missing expense origin")
	}
	if err := r.planExists(ctx, d.PlanID); err != nil {
		return core.Debt{}, false, err
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = d.UpdatedAt
	}
	candidateID := newID()

	// the unique partial index resolves concurrent creates; the loser updates
	var (
		id       string
		inserted int
	)
	err := r.db.QueryRowContext(ctx, `INSERT INTO debts (`+debtColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_id, source_expense_id) WHERE source_expense_id IS NOT NULL DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			initial_balance_cents = excluded.initial_balance_cents,
			current_balance_cents = excluded.current_balance_cents,
			amount_cents = excluded.amount_cents,
			paid = excluded.paid,
			paid_amount_cents = excluded.paid_amount_cents,
			monthly_minimum_cents = excluded.monthly_minimum_cents,
			interest_rate_pct = excluded.interest_rate_pct,
			installment_months = excluded.installment_months,
			due_day = excluded.due_day,
			default_payment_source = excluded.default_payment_source,
			source_year = excluded.source_year,
			source_month = excluded.source_month,
			source_category_id = excluded.source_category_id,
			source_category_name = excluded.source_category_name,
			source_expense_name = excluded.source_expense_name,
			updated_at = excluded.updated_at
		RETURNING id, CASE WHEN id = ? THEN 1 ELSE 0 END`,
		candidateID, d.PlanID, d.Name, string(d.Type), d.InitialBalance.Cents, d.CurrentBalance.Cents, d.Amount.Cents,
		boolToInt(d.Paid), d.PaidAmount.Cents, d.MonthlyMinimum.Cents, d.InterestRatePct, d.InstallmentMonths,
		d.DueDay, string(d.DefaultPaymentSource), sourceExpense, src.ExpenseID,
		src.Year, src.Month, src.CategoryID, src.CategoryName, src.ExpenseName,
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt), candidateID,
	).Scan(&id, &inserted)
	if err != nil {
		return core.Debt{}, false, fmt.Errorf("upsert expense debt %s: %w", src.ExpenseID, err)
	}

	saved, err := r.GetDebt(ctx, id)
	if err != nil {
		return core.Debt{}, false, err
	}
	return saved, inserted == 1, nil
}

func (r *SQLiteRepository) AccrueMissedCycle(ctx context.Context, debtID string, cycle core.MonthKey, amount core.Money, at time.Time) (bool, error) {
	add := amount.NonNegative().Cents
	res, err := r.db.ExecContext(ctx, `UPDATE debts SET
			current_balance_cents = current_balance_cents + ?,
			paid = CASE WHEN current_balance_cents + ? = 0 THEN 1 ELSE 0 END,
			last_accrual_cycle = ?,
			updated_at = ?
		WHERE id = ? AND (last_accrual_cycle = '' OR last_accrual_cycle < ?)`,
		add, add, string(cycle), formatTime(at), debtID, string(cycle))
	if err != nil {
		return false, fmt.Errorf("accrue debt %s cycle %s: %w", debtID, cycle, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("accrue debt %s: %w", debtID, err)
	}
	if n == 0 {
		if _, err := r.GetDebt(ctx, debtID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *SQLiteRepository) ApplyDebtPayment(ctx context.Context, p core.DebtPayment) (core.DebtPayment, core.Debt, error) {
	res, err := r.ApplyLinkedDebtPayment(ctx, p, ledger.PaymentLinks{})
	return res.Payment, res.Debt, err
}

func (r *SQLiteRepository) ApplyLinkedDebtPayment(ctx context.Context, p core.DebtPayment, links ledger.PaymentLinks) (ledger.AppliedPayment, error) {
	if links.ChargeCardID != "" && links.ChargeCardID == p.DebtID {
		return ledger.AppliedPayment{}, core.ErrInvalidCard
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.AppliedPayment{}, fmt.Errorf("begin payment: %w", err)
	}
	defer tx.Rollback()

	p, d, err := applyDebtPayment(ctx, tx, p)
	if err != nil {
		return ledger.AppliedPayment{}, err
	}
	out := ledger.AppliedPayment{Payment: p, Debt: d}

	if links.ChargeCardID != "" {
		card, err := increaseDebtBalance(ctx, tx, links.ChargeCardID, p.Amount, p.PaidAt)
		if err != nil {
			return ledger.AppliedPayment{}, err
		}
		out.Card = &card
	}
	if links.MirrorExpenseID != "" {
		_, e, err := applyExpensePayment(ctx, tx, core.ExpensePayment{
			ExpenseID: links.MirrorExpenseID,
			Amount:    p.Amount,
			PaidAt:    p.PaidAt,
			Year:      p.Year,
			Month:     p.Month,
			Source:    p.Source,
		})
		switch {
		case errors.Is(err, core.ErrExpenseFullyPaid):
		case err != nil:
			return ledger.AppliedPayment{}, err
		default:
			out.Expense = &e
		}
	}

	if err := tx.Commit(); err != nil {
		return ledger.AppliedPayment{}, fmt.Errorf("commit payment: %w", err)
	}

	slog.InfoContext(ctx, "Debt payment recorded",
		"payment_id", p.ID,
		"debt_id", p.DebtID,
		"amount_cents", p.Amount.Cents,
		"source", p.Source,
		"card_id", links.ChargeCardID,
		"mirrored", out.Expense != nil)

	return out, nil
}

func applyDebtPayment(ctx context.Context, tx *sql.Tx, p core.DebtPayment) (core.DebtPayment, core.Debt, error) {
	var balance int64
	err := tx.QueryRowContext(ctx, `SELECT current_balance_cents FROM debts WHERE id = ?`, p.DebtID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DebtPayment{}, core.Debt{}, notFound("debt", p.DebtID)
	}
	if err != nil {
		return core.DebtPayment{}, core.Debt{}, fmt.Errorf("read debt balance: %w", err)
	}
	if balance <= 0 {
		return core.DebtPayment{}, core.Debt{}, fmt.Errorf("debt %s: %w", p.DebtID, core.ErrDebtAlreadyPaid)
	}

	p.Amount = core.MinMoney(p.Amount, core.Money{Cents: balance})
	if p.ID == "" {
		p.ID = newID()
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO debt_payments (id, debt_id, amount_cents, paid_at, year, month, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.DebtID, p.Amount.Cents, formatTime(p.PaidAt), p.Year, p.Month, string(p.Source)); err != nil {
		return core.DebtPayment{}, core.Debt{}, fmt.Errorf("insert debt payment: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE debts SET
			current_balance_cents = current_balance_cents - ?,
			paid_amount_cents = paid_amount_cents + ?,
			paid = CASE WHEN current_balance_cents - ? = 0 THEN 1 ELSE 0 END,
			updated_at = ?
		WHERE id = ?`,
		p.Amount.Cents, p.Amount.Cents, p.Amount.Cents, formatTime(p.PaidAt), p.DebtID); err != nil {
		return core.DebtPayment{}, core.Debt{}, fmt.Errorf("update debt balance: %w", err)
	}

	d, err := getDebt(ctx, tx, p.DebtID)
	if err != nil {
		return core.DebtPayment{}, core.Debt{}, err
	}
	return p, d, nil
}

// increaseDebtBalance raises a card's balance when it pays for another debt.
func increaseDebtBalance(ctx context.Context, tx *sql.Tx, debtID string, amount core.Money, at time.Time) (core.Debt, error) {
	add := amount.NonNegative().Cents
	res, err := tx.ExecContext(ctx, `UPDATE debts SET
			current_balance_cents = current_balance_cents + ?,
			paid = CASE WHEN current_balance_cents + ? = 0 THEN 1 ELSE 0 END,
			updated_at = ?
		WHERE id = ?`, add, add, formatTime(at), debtID)
	if err != nil {
		return core.Debt{}, fmt.Errorf("increase debt %s balance: %w", debtID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Debt{}, notFound("debt", debtID)
	}
	return getDebt(ctx, tx, debtID)
}

// Payment ledger

func scanDebtPayment(row scanner) (core.DebtPayment, error) {
	var (
		p      core.DebtPayment
		paidAt string
		source string
	)
	if err := row.Scan(&p.ID, &p.DebtID, &p.Amount.Cents, &paidAt, &p.Year, &p.Month, &source); err != nil {
		return core.DebtPayment{}, err
	}
	p.PaidAt = parseTime(paidAt)
	p.Source = core.PaymentSource(source)
	return p, nil
}

func (r *SQLiteRepository) queryDebtPayments(ctx context.Context, query string, args ...any) ([]core.DebtPayment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query debt payments: %w", err)
	}
	defer rows.Close()

	var out []core.DebtPayment
	for rows.Next() {
		p, err := scanDebtPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debt payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListDebtPayments(ctx context.Context, debtID string) ([]core.DebtPayment, error) {
	return r.queryDebtPayments(ctx, `SELECT id, debt_id, amount_cents, paid_at, year, month, source
		FROM debt_payments WHERE debt_id = ? ORDER BY paid_at, id`, debtID)
}

func (r *SQLiteRepository) ListPlanDebtPayments(ctx context.Context, planID string, year, month int) ([]core.DebtPayment, error) {
	return r.queryDebtPayments(ctx, `SELECT p.id, p.debt_id, p.amount_cents, p.paid_at, p.year, p.month, p.source
		FROM debt_payments p JOIN debts d ON d.id = p.debt_id
		WHERE d.plan_id = ? AND p.year = ? AND p.month = ?
		ORDER BY p.paid_at, p.id`, planID, year, month)
}

func (r *SQLiteRepository) SumDebtPaymentsByDebt(ctx context.Context, planID string) (map[string]core.Money, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT p.debt_id, SUM(p.amount_cents)
		FROM debt_payments p JOIN debts d ON d.id = p.debt_id
		WHERE d.plan_id = ?
		GROUP BY p.debt_id`, planID)
	if err != nil {
		return nil, fmt.Errorf("sum debt payments: %w", err)
	}
	defer rows.Close()

	out := make(map[string]core.Money)
	for rows.Next() {
		var (
			id    string
			total int64
		)
		if err := rows.Scan(&id, &total); err != nil {
			return nil, fmt.Errorf("scan payment sum: %w", err)
		}
		out[id] = core.Money{Cents: total}
	}
	return out, rows.Err()
}
