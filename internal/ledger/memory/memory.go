// Package memory is an in-process ledger.Store used for local runs and tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

type Store struct {
	mu              sync.Mutex
	plans           map[string]core.BudgetPlan
	debts           map[string]core.Debt
	debtPayments    []core.DebtPayment
	expenses        map[string]core.Expense
	expensePayments []core.ExpensePayment
	incomes         []core.Income
	monthly         map[string]core.MonthlyAllocation
	definitions     map[string]core.AllocationDefinition
	overrides       map[string]core.AllocationOverride
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		plans:       make(map[string]core.BudgetPlan),
		debts:       make(map[string]core.Debt),
		expenses:    make(map[string]core.Expense),
		monthly:     make(map[string]core.MonthlyAllocation),
		definitions: make(map[string]core.AllocationDefinition),
		overrides:   make(map[string]core.AllocationOverride),
	}
}

func newID() string { return uuid.NewString() }

func monthKey(planID string, year, month int) string {
	return fmt.Sprintf("%s|%04d-%02d", planID, year, month)
}

func overrideKey(allocationID string, year, month int) string {
	return fmt.Sprintf("%s|%04d-%02d", allocationID, year, month)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
}

// Plans

func (s *Store) GetPlan(_ context.Context, planID string) (core.BudgetPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok {
		return core.BudgetPlan{}, notFound("plan", planID)
	}
	return p, nil
}

func (s *Store) ListPlans(_ context.Context) ([]core.BudgetPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.BudgetPlan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b core.BudgetPlan) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (s *Store) CreatePlan(_ context.Context, p core.BudgetPlan) (core.BudgetPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = newID()
	}
	if p.Kind == "" {
		p.Kind = core.PlanPersonal
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.plans[p.ID] = p
	return p, nil
}

// Debts

func (s *Store) ListDebts(_ context.Context, planID string, scope ledger.DebtScope) ([]core.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[planID]; !ok {
		return nil, notFound("plan", planID)
	}
	var out []core.Debt
	for _, d := range s.debts {
		if d.PlanID != planID {
			continue
		}
		derived := d.IsExpenseDerived()
		if (scope == ledger.RegularDebts && derived) || (scope == ledger.ExpenseDebts && !derived) {
			continue
		}
		out = append(out, d)
	}
	sortDebts(out)
	return out, nil
}

func sortDebts(ds []core.Debt) {
	slices.SortFunc(ds, func(a, b core.Debt) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
}

func (s *Store) GetDebt(_ context.Context, debtID string) (core.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.debts[debtID]
	if !ok {
		return core.Debt{}, notFound("debt", debtID)
	}
	return d, nil
}

func (s *Store) CreateDebt(_ context.Context, d core.Debt) (core.Debt, error) {
	if err := d.Validate(); err != nil {
		return core.Debt{}, fmt.Errorf("validate debt: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[d.PlanID]; !ok {
		return core.Debt{}, notFound("plan", d.PlanID)
	}
	if d.ID == "" {
		d.ID = newID()
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = d.CreatedAt
	if d.Origin == nil {
		d.Origin = core.RegularOrigin{}
	}
	s.debts[d.ID] = d
	return d, nil
}

func (s *Store) UpsertExpenseDebt(_ context.Context, d core.Debt) (core.Debt, bool, error) {
	src, ok := d.ExpenseSource()
	if !ok {
		return core.Debt{}, false, fmt.Errorf("upsert expense debt: missing expense origin")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[d.PlanID]; !ok {
		return core.Debt{}, false, notFound("plan", d.PlanID)
	}
	d.Origin = src
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}
	for id, existing := range s.debts {
		es, ok := existing.ExpenseSource()
		if !ok || existing.PlanID != d.PlanID || es.ExpenseID != src.ExpenseID {
			continue
		}
		d.ID = id
		d.CreatedAt = existing.CreatedAt
		d.LastAccrualCycle = existing.LastAccrualCycle
		s.debts[id] = d
		return d, false, nil
	}
	d.ID = newID()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = d.UpdatedAt
	}
	s.debts[d.ID] = d
	return d, true, nil
}

func (s *Store) AccrueMissedCycle(_ context.Context, debtID string, cycle core.MonthKey, amount core.Money, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.debts[debtID]
	if !ok {
		return false, notFound("debt", debtID)
	}
	if !d.LastAccrualCycle.IsZero() && !d.LastAccrualCycle.Before(cycle) {
		return false, nil
	}
	d.CurrentBalance = d.CurrentBalance.Add(amount.NonNegative())
	d.Paid = d.CurrentBalance.Cents == 0
	d.LastAccrualCycle = cycle
	d.UpdatedAt = at
	s.debts[debtID] = d
	return true, nil
}

func (s *Store) ApplyDebtPayment(ctx context.Context, p core.DebtPayment) (core.DebtPayment, core.Debt, error) {
	res, err := s.ApplyLinkedDebtPayment(ctx, p, ledger.PaymentLinks{})
	return res.Payment, res.Debt, err
}

func (s *Store) ApplyLinkedDebtPayment(_ context.Context, p core.DebtPayment, links ledger.PaymentLinks) (ledger.AppliedPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// resolve every row before the first write
	d, ok := s.debts[p.DebtID]
	if !ok {
		return ledger.AppliedPayment{}, notFound("debt", p.DebtID)
	}
	if d.CurrentBalance.Cents <= 0 {
		return ledger.AppliedPayment{}, fmt.Errorf("debt %s: %w", p.DebtID, core.ErrDebtAlreadyPaid)
	}
	var card core.Debt
	if links.ChargeCardID != "" {
		if links.ChargeCardID == p.DebtID {
			return ledger.AppliedPayment{}, core.ErrInvalidCard
		}
		if card, ok = s.debts[links.ChargeCardID]; !ok {
			return ledger.AppliedPayment{}, notFound("debt", links.ChargeCardID)
		}
	}
	if links.MirrorExpenseID != "" {
		if _, ok := s.expenses[links.MirrorExpenseID]; !ok {
			return ledger.AppliedPayment{}, notFound("expense", links.MirrorExpenseID)
		}
	}

	p.Amount = core.MinMoney(p.Amount, d.CurrentBalance)
	if p.ID == "" {
		p.ID = newID()
	}
	s.debtPayments = append(s.debtPayments, p)

	d.CurrentBalance = d.CurrentBalance.Sub(p.Amount)
	d.PaidAmount = d.PaidAmount.Add(p.Amount)
	d.Paid = d.CurrentBalance.Cents == 0
	d.UpdatedAt = p.PaidAt
	s.debts[d.ID] = d
	out := ledger.AppliedPayment{Payment: p, Debt: d}

	if card.ID != "" {
		card.CurrentBalance = card.CurrentBalance.Add(p.Amount)
		card.Paid = card.CurrentBalance.Cents == 0
		card.UpdatedAt = p.PaidAt
		s.debts[card.ID] = card
		out.Card = &card
	}
	if links.MirrorExpenseID != "" {
		_, e, err := s.applyExpensePayment(core.ExpensePayment{
			ExpenseID: links.MirrorExpenseID,
			Amount:    p.Amount,
			PaidAt:    p.PaidAt,
			Year:      p.Year,
			Month:     p.Month,
			Source:    p.Source,
		})
		if err == nil {
			out.Expense = &e
		}
	}
	return out, nil
}

// Payment ledger

func (s *Store) ListDebtPayments(_ context.Context, debtID string) ([]core.DebtPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.DebtPayment
	for _, p := range s.debtPayments {
		if p.DebtID == debtID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) SumDebtPaymentsByDebt(_ context.Context, planID string) (map[string]core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]core.Money)
	for _, p := range s.debtPayments {
		if d, ok := s.debts[p.DebtID]; ok && d.PlanID == planID {
			out[p.DebtID] = out[p.DebtID].Add(p.Amount)
		}
	}
	return out, nil
}

func (s *Store) ListPlanDebtPayments(_ context.Context, planID string, year, month int) ([]core.DebtPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.DebtPayment
	for _, p := range s.debtPayments {
		if p.Year != year || p.Month != month {
			continue
		}
		if d, ok := s.debts[p.DebtID]; ok && d.PlanID == planID {
			out = append(out, p)
		}
	}
	return out, nil
}

// Expenses

func (s *Store) ListExpenses(_ context.Context, planID string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[planID]; !ok {
		return nil, notFound("plan", planID)
	}
	var out []core.Expense
	for _, e := range s.expenses {
		if e.PlanID == planID {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b core.Expense) int {
		return cmp.Or(cmp.Compare(a.Year, b.Year), cmp.Compare(a.Month, b.Month), a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (s *Store) GetExpense(_ context.Context, expenseID string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[expenseID]
	if !ok {
		return core.Expense{}, notFound("expense", expenseID)
	}
	return e, nil
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, fmt.Errorf("validate expense: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[e.PlanID]; !ok {
		return core.Expense{}, notFound("plan", e.PlanID)
	}
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.Paid = e.Amount.Cents > 0 && e.PaidAmount.Cents >= e.Amount.Cents
	s.expenses[e.ID] = e
	return e, nil
}

func (s *Store) ApplyExpensePayment(_ context.Context, p core.ExpensePayment) (core.ExpensePayment, core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyExpensePayment(p)
}

// applyExpensePayment requires s.mu.
func (s *Store) applyExpensePayment(p core.ExpensePayment) (core.ExpensePayment, core.Expense, error) {
	e, ok := s.expenses[p.ExpenseID]
	if !ok {
		return core.ExpensePayment{}, core.Expense{}, notFound("expense", p.ExpenseID)
	}
	remaining := e.Remaining()
	if remaining.Cents <= 0 {
		return core.ExpensePayment{}, core.Expense{}, fmt.Errorf("expense %s: %w", p.ExpenseID, core.ErrExpenseFullyPaid)
	}
	p.Amount = core.MinMoney(p.Amount, remaining)
	if p.ID == "" {
		p.ID = newID()
	}
	s.expensePayments = append(s.expensePayments, p)

	e.PaidAmount = e.PaidAmount.Add(p.Amount)
	e.Paid = e.PaidAmount.Cents >= e.Amount.Cents
	s.expenses[e.ID] = e
	return p, e, nil
}

func (s *Store) AggregateExpenses(_ context.Context, planID string, year, month int) (ledger.ExpenseTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var t ledger.ExpenseTotals
	for _, e := range s.expenses {
		if e.PlanID != planID || e.Year != year || e.Month != month {
			continue
		}
		t.Planned = t.Planned.Add(e.Amount)
		t.Paid = t.Paid.Add(e.PaidAmount)
		t.Count++
	}
	return t, nil
}

func (s *Store) LatestExpenseYear(_ context.Context, planID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest, found := 0, false
	for _, e := range s.expenses {
		if e.PlanID == planID && (!found || e.Year > latest) {
			latest, found = e.Year, true
		}
	}
	return latest, found, nil
}

// Income

func (s *Store) CreateIncome(_ context.Context, in core.Income) (core.Income, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[in.PlanID]; !ok {
		return core.Income{}, notFound("plan", in.PlanID)
	}
	if in.ID == "" {
		in.ID = newID()
	}
	s.incomes = append(s.incomes, in)
	return in, nil
}

func (s *Store) SumIncome(_ context.Context, planID string, year, month int) (core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total core.Money
	for _, in := range s.incomes {
		if in.PlanID == planID && in.Year == year && in.Month == month {
			total = total.Add(in.Amount)
		}
	}
	return total, nil
}

func (s *Store) LatestIncomeYear(_ context.Context, planID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest, found := 0, false
	for _, in := range s.incomes {
		if in.PlanID == planID && (!found || in.Year > latest) {
			latest, found = in.Year, true
		}
	}
	return latest, found, nil
}

// Allocations

func (s *Store) GetMonthlyAllocation(_ context.Context, planID string, year, month int) (core.MonthlyAllocation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.monthly[monthKey(planID, year, month)]
	return a, ok, nil
}

func (s *Store) SaveMonthlyAllocation(_ context.Context, a core.MonthlyAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[a.PlanID]; !ok {
		return notFound("plan", a.PlanID)
	}
	s.monthly[monthKey(a.PlanID, a.Year, a.Month)] = a
	return nil
}

func (s *Store) ListAllocationDefinitions(_ context.Context, planID string) ([]core.AllocationDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.AllocationDefinition
	for _, def := range s.definitions {
		if def.PlanID == planID && !def.Archived {
			out = append(out, def)
		}
	}
	slices.SortFunc(out, func(a, b core.AllocationDefinition) int {
		return cmp.Or(cmp.Compare(a.SortOrder, b.SortOrder), cmp.Compare(a.Name, b.Name))
	})
	return out, nil
}

func (s *Store) CreateAllocationDefinition(_ context.Context, def core.AllocationDefinition) (core.AllocationDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[def.PlanID]; !ok {
		return core.AllocationDefinition{}, notFound("plan", def.PlanID)
	}
	if def.ID == "" {
		def.ID = newID()
	}
	s.definitions[def.ID] = def
	return def, nil
}

func (s *Store) ListAllocationOverrides(_ context.Context, planID string, year, month int) ([]core.AllocationOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.AllocationOverride
	for _, o := range s.overrides {
		def, ok := s.definitions[o.AllocationID]
		if ok && def.PlanID == planID && o.Year == year && o.Month == month {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Store) SetAllocationOverride(_ context.Context, o core.AllocationOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.definitions[o.AllocationID]; !ok {
		return notFound("allocation", o.AllocationID)
	}
	s.overrides[overrideKey(o.AllocationID, o.Year, o.Month)] = o
	return nil
}
