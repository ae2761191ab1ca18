package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

type DebtPaymentRequest struct {
	PlanID string // optional; when set the debt must belong to it
	DebtID string
	Amount core.Money
	PaidAt time.Time // zero means now
	Year   int       // budget month the payment is booked in; zero means PaidAt's
	Month  int
	Source core.PaymentSource // empty means the debt's default, else income
	// CardDebtID is the paying card when Source is credit_card.
	CardDebtID string
}

type ExpensePaymentRequest struct {
	PlanID    string
	ExpenseID string
	Amount    core.Money
	PaidAt    time.Time
	Year      int
	Month     int
	Source    core.PaymentSource
}

// PaymentService appends ledger rows and keeps shadow debts and their
// expenses in step.
type PaymentService struct {
	store ledger.Store
	now   func() time.Time
}

func NewPaymentService(store ledger.Store) *PaymentService {
	return &PaymentService{store: store, now: time.Now}
}

func (s *PaymentService) bookingMonth(paidAt time.Time, year, month int) (time.Time, int, int, error) {
	if paidAt.IsZero() {
		paidAt = s.now()
	}
	paidAt = paidAt.UTC()
	if year == 0 && month == 0 {
		return paidAt, paidAt.Year(), int(paidAt.Month()), nil
	}
	if !core.ValidMonth(month) || year <= 0 {
		return time.Time{}, 0, 0, fmt.Errorf("booking month %d-%d: %w", year, month, core.ErrInvalidMonth)
	}
	return paidAt, year, month, nil
}

// RecordDebtPayment applies min(amount, balance) to the debt.
func (s *PaymentService) RecordDebtPayment(ctx context.Context, req DebtPaymentRequest) (core.DebtPayment, error) {
	if req.Amount.Cents <= 0 {
		return core.DebtPayment{}, core.ErrInvalidAmount
	}
	paidAt, year, month, err := s.bookingMonth(req.PaidAt, req.Year, req.Month)
	if err != nil {
		return core.DebtPayment{}, err
	}

	debt, err := s.store.GetDebt(ctx, req.DebtID)
	if err != nil {
		return core.DebtPayment{}, fmt.Errorf("get debt: %w", err)
	}
	if req.PlanID != "" && debt.PlanID != req.PlanID {
		return core.DebtPayment{}, fmt.Errorf("debt %s in plan %s: %w", req.DebtID, req.PlanID, core.ErrNotFound)
	}
	if !debt.IsActive() {
		return core.DebtPayment{}, fmt.Errorf("debt %s: %w", debt.ID, core.ErrDebtAlreadyPaid)
	}

	source := req.Source
	if source == "" {
		source = debt.DefaultPaymentSource
	}
	if source == "" {
		source = core.SourceIncome
	}
	if !source.IsValid() {
		return core.DebtPayment{}, fmt.Errorf("source %q: %w", source, core.ErrInvalidSource)
	}

	var card core.Debt
	if source == core.SourceCreditCard {
		if card, err = s.payingCard(ctx, debt, req.CardDebtID); err != nil {
			return core.DebtPayment{}, err
		}
	}

	links := ledger.PaymentLinks{ChargeCardID: card.ID}
	src, mirrored := debt.ExpenseSource()
	if mirrored {
		links.MirrorExpenseID = src.ExpenseID
	}

	applied, err := s.store.ApplyLinkedDebtPayment(ctx, core.DebtPayment{
		DebtID: debt.ID,
		Amount: req.Amount,
		PaidAt: paidAt,
		Year:   year,
		Month:  month,
		Source: source,
	}, links)
	if err != nil {
		return core.DebtPayment{}, fmt.Errorf("apply debt payment: %w", err)
	}
	payment := applied.Payment

	slog.InfoContext(ctx, "Debt payment recorded",
		"plan_id", debt.PlanID,
		"debt_id", debt.ID,
		"amount_cents", payment.Amount.Cents,
		"source", source,
		"balance_cents", applied.Debt.CurrentBalance.Cents)

	if applied.Card != nil {
		slog.InfoContext(ctx, "Card charged for debt payment",
			"card_id", applied.Card.ID,
			"debt_id", debt.ID,
			"amount_cents", payment.Amount.Cents)
	}
	if mirrored {
		if applied.Expense == nil {
			slog.WarnContext(ctx, "Source expense already paid, shadow payment not mirrored",
				"expense_id", src.ExpenseID)
		} else {
			s.refreshShadow(ctx, *applied.Expense)
		}
	}
	return payment, nil
}

func (s *PaymentService) payingCard(ctx context.Context, debt core.Debt, cardID string) (core.Debt, error) {
	if cardID == "" || cardID == debt.ID {
		return core.Debt{}, core.ErrInvalidCard
	}
	card, err := s.store.GetDebt(ctx, cardID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Debt{}, fmt.Errorf("card %s: %w", cardID, core.ErrInvalidCard)
	}
	if err != nil {
		return core.Debt{}, fmt.Errorf("get card: %w", err)
	}
	if !card.Type.IsCard() || card.PlanID != debt.PlanID || card.IsExpenseDerived() {
		return core.Debt{}, fmt.Errorf("card %s: %w", cardID, core.ErrInvalidCard)
	}
	return card, nil
}

// refreshShadow rebuilds the shadow debt from its committed expense. A
// failure is logged; the next carryover pass rebuilds it from the same state.
func (s *PaymentService) refreshShadow(ctx context.Context, e core.Expense) {
	if _, _, err := s.store.UpsertExpenseDebt(ctx, shadowFromExpense(e, s.now().UTC())); err != nil {
		slog.WarnContext(ctx, "Failed to refresh shadow debt",
			"expense_id", e.ID,
			"error", err)
	}
}

// RecordExpensePayment applies min(amount, remaining) to the expense. An
// existing shadow debt is refreshed to match.
func (s *PaymentService) RecordExpensePayment(ctx context.Context, req ExpensePaymentRequest) (core.ExpensePayment, error) {
	if req.Amount.Cents <= 0 {
		return core.ExpensePayment{}, core.ErrInvalidAmount
	}
	paidAt, year, month, err := s.bookingMonth(req.PaidAt, req.Year, req.Month)
	if err != nil {
		return core.ExpensePayment{}, err
	}
	source := req.Source
	if source == "" {
		source = core.SourceIncome
	}
	if !source.IsValid() {
		return core.ExpensePayment{}, fmt.Errorf("source %q: %w", source, core.ErrInvalidSource)
	}

	expense, err := s.store.GetExpense(ctx, req.ExpenseID)
	if err != nil {
		return core.ExpensePayment{}, fmt.Errorf("get expense: %w", err)
	}
	if req.PlanID != "" && expense.PlanID != req.PlanID {
		return core.ExpensePayment{}, fmt.Errorf("expense %s in plan %s: %w", req.ExpenseID, req.PlanID, core.ErrNotFound)
	}

	payment, updated, err := s.store.ApplyExpensePayment(ctx, core.ExpensePayment{
		ExpenseID: expense.ID,
		Amount:    req.Amount,
		PaidAt:    paidAt,
		Year:      year,
		Month:     month,
		Source:    source,
	})
	if err != nil {
		return core.ExpensePayment{}, fmt.Errorf("apply expense payment: %w", err)
	}
	slog.InfoContext(ctx, "Expense payment recorded",
		"plan_id", expense.PlanID,
		"expense_id", expense.ID,
		"amount_cents", payment.Amount.Cents,
		"paid", updated.Paid)

	shadows, err := s.store.ListDebts(ctx, expense.PlanID, ledger.ExpenseDebts)
	if err != nil {
		slog.WarnContext(ctx, "Failed to list shadow debts after expense payment",
			"expense_id", expense.ID,
			"error", err)
		return payment, nil
	}
	for _, d := range shadows {
		if src, ok := d.ExpenseSource(); ok && src.ExpenseID == expense.ID {
			s.refreshShadow(ctx, updated)
			break
		}
	}
	return payment, nil
}
