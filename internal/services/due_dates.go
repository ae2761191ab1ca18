// Package services provides business logic and orchestration services.
//
// This file holds the calendar rules shared by the carryover passes: when an
// expense becomes overdue, when a debt payment cycle closes, and how much a
// missed cycle costs.

package services

import (
	"time"

	"bilancio/internal/core"
)

// DueCalendar resolves due points for one plan.
type DueCalendar struct {
	PayDay           int // plan pay date, used when an expense or debt has no own day
	ExpenseGraceDays int
	AccrualGraceDays int
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ExpenseDuePoint returns the explicit due date, or the pay day clamped into
// the expense's month.
func (c DueCalendar) ExpenseDuePoint(e core.Expense) time.Time {
	if !e.DueDate.IsEmpty() {
		return startOfDay(e.DueDate.Time)
	}
	return core.ClampDay(e.Year, e.Month, c.PayDay)
}

// IsExpenseOverdue reports whether the due point plus grace lies strictly
// before today.
func (c DueCalendar) IsExpenseOverdue(e core.Expense, now time.Time) bool {
	due := c.ExpenseDuePoint(e).AddDate(0, 0, c.ExpenseGraceDays)
	return due.Before(startOfDay(now))
}

func (c DueCalendar) debtDueDay(d core.Debt) int {
	if d.DueDay >= 1 && d.DueDay <= 31 {
		return d.DueDay
	}
	return c.PayDay
}

// CycleDueDate returns the day the debt's payment for cycle is due.
func (c DueCalendar) CycleDueDate(d core.Debt, cycle core.MonthKey) time.Time {
	y, m := cycle.YearMonth()
	return core.ClampDay(y, m, c.debtDueDay(d))
}

// cycleBoundary is the first instant after the grace window of cycle.
func (c DueCalendar) cycleBoundary(d core.Debt, cycle core.MonthKey) time.Time {
	return c.CycleDueDate(d, cycle).AddDate(0, 0, c.AccrualGraceDays+1)
}

// IsCycleClosed reports whether now is past the due date plus the whole grace window.
func (c DueCalendar) IsCycleClosed(d core.Debt, cycle core.MonthKey, now time.Time) bool {
	return !now.Before(c.cycleBoundary(d, cycle))
}

// LatestClosedCycle walks back from the month of now to the newest closed cycle.
func (c DueCalendar) LatestClosedCycle(d core.Debt, now time.Time) core.MonthKey {
	k := core.MonthKeyOf(now)
	for i := 0; i < 3 && !c.IsCycleClosed(d, k, now); i++ {
		k = k.AddMonths(-1)
	}
	return k
}

// firstOpenCycle is the first cycle the debt has not yet been evaluated for.
func (c DueCalendar) firstOpenCycle(d core.Debt) core.MonthKey {
	if !d.LastAccrualCycle.IsZero() {
		return d.LastAccrualCycle.AddMonths(1)
	}
	if d.CreatedAt.IsZero() {
		return ""
	}
	k := core.MonthKeyOf(d.CreatedAt)
	if c.CycleDueDate(d, k).Before(startOfDay(d.CreatedAt)) {
		k = k.AddMonths(1)
	}
	return k
}

// PendingCycles lists the closed cycles not yet evaluated for d, oldest first,
// keeping only the newest maxCycles.
func (c DueCalendar) PendingCycles(d core.Debt, now time.Time, maxCycles int) []core.MonthKey {
	if maxCycles <= 0 {
		return nil
	}
	latest := c.LatestClosedCycle(d, now)
	if !c.IsCycleClosed(d, latest, now) {
		return nil
	}
	first := c.firstOpenCycle(d)
	oldest := latest.AddMonths(-(maxCycles - 1))
	if first.IsZero() || first.Before(oldest) {
		first = oldest
	}

	var out []core.MonthKey
	for k := first; !latest.Before(k); k = k.AddMonths(1) {
		out = append(out, k)
	}
	return out
}

// PaymentCycle is the one cycle a payment settles: its booking month when
// set, else the cycle whose window (previous boundary, this boundary]
// contains PaidAt. ok is false when the payment has neither.
func (c DueCalendar) PaymentCycle(d core.Debt, p core.DebtPayment) (core.MonthKey, bool) {
	if p.Year > 0 && core.ValidMonth(p.Month) {
		return core.NewMonthKey(p.Year, p.Month), true
	}
	if p.PaidAt.IsZero() {
		return "", false
	}
	k := core.MonthKeyOf(p.PaidAt)
	for p.PaidAt.After(c.cycleBoundary(d, k)) {
		k = k.AddMonths(1)
	}
	for !p.PaidAt.After(c.cycleBoundary(d, k.AddMonths(-1))) {
		k = k.AddMonths(-1)
	}
	return k, true
}

// CyclePaid reports whether a positive payment settles cycle. Each payment
// settles at most one cycle, see PaymentCycle.
func (c DueCalendar) CyclePaid(d core.Debt, cycle core.MonthKey, payments []core.DebtPayment) bool {
	for _, p := range payments {
		if p.Amount.Cents <= 0 {
			continue
		}
		if k, ok := c.PaymentCycle(d, p); ok && k == cycle {
			return true
		}
	}
	return false
}

// requiredPaymentRules are tried in order; the first positive amount wins.
var requiredPaymentRules = []func(core.Debt) core.Money{
	func(d core.Debt) core.Money { return d.MonthlyMinimum },
	func(d core.Debt) core.Money {
		if d.InstallmentMonths <= 0 {
			return core.Money{}
		}
		base := d.InitialBalance
		if base.Cents <= 0 {
			base = d.CurrentBalance
		}
		return core.FromMajor(base.Major() / float64(d.InstallmentMonths))
	},
	func(d core.Debt) core.Money { return d.Amount },
}

// RequiredPayment is what one missed cycle adds to the balance.
func RequiredPayment(d core.Debt) core.Money {
	for _, rule := range requiredPaymentRules {
		if m := rule(d).NonNegative(); m.Cents > 0 {
			return m
		}
	}
	return core.Money{}
}
