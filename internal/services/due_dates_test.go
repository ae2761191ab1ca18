package services

import (
	"slices"
	"testing"
	"time"

	"bilancio/internal/core"
)

func TestDueCalendar_ExpenseDuePoint(t *testing.T) {
	cal := DueCalendar{PayDay: 31}

	tests := []struct {
		name    string
		expense core.Expense
		want    time.Time
	}{
		{
			name:    "explicit due date wins",
			expense: core.Expense{Year: 2025, Month: 2, DueDate: core.NewDate(2025, 2, 3)},
			want:    time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "pay day clamped to february",
			expense: core.Expense{Year: 2025, Month: 2},
			want:    time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "pay day clamped to leap february",
			expense: core.Expense{Year: 2024, Month: 2},
			want:    time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cal.ExpenseDuePoint(tt.expense); !got.Equal(tt.want) {
				t.Errorf("ExpenseDuePoint() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDueCalendar_IsExpenseOverdue(t *testing.T) {
	expense := core.Expense{Year: 2025, Month: 3}

	tests := []struct {
		name  string
		grace int
		now   time.Time
		want  bool
	}{
		{"on due day - not overdue", 0, time.Date(2025, 3, 27, 18, 0, 0, 0, time.UTC), false},
		{"day after - overdue", 0, time.Date(2025, 3, 28, 0, 0, 0, 0, time.UTC), true},
		{"inside grace - not overdue", 2, time.Date(2025, 3, 29, 12, 0, 0, 0, time.UTC), false},
		{"after grace - overdue", 2, time.Date(2025, 3, 30, 0, 0, 0, 0, time.UTC), true},
		{"earlier month - not overdue", 0, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := DueCalendar{PayDay: 27, ExpenseGraceDays: tt.grace}
			if got := cal.IsExpenseOverdue(expense, tt.now); got != tt.want {
				t.Errorf("IsExpenseOverdue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDueCalendar_IsCycleClosed(t *testing.T) {
	cal := DueCalendar{PayDay: 27, AccrualGraceDays: 5}
	debt := core.Debt{DueDay: 10}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"on due date", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), false},
		{"last grace day", time.Date(2025, 3, 15, 23, 59, 0, 0, time.UTC), false},
		{"grace elapsed", time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cal.IsCycleClosed(debt, "2025-03", tt.now); got != tt.want {
				t.Errorf("IsCycleClosed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDueCalendar_PendingCycles(t *testing.T) {
	cal := DueCalendar{PayDay: 27, AccrualGraceDays: 5}

	tests := []struct {
		name      string
		debt      core.Debt
		now       time.Time
		maxCycles int
		want      []core.MonthKey
	}{
		{
			name:      "from cursor through current month",
			debt:      core.Debt{DueDay: 10, LastAccrualCycle: "2025-01"},
			now:       time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC),
			maxCycles: 12,
			want:      []core.MonthKey{"2025-02", "2025-03", "2025-04"},
		},
		{
			name:      "current month still in grace",
			debt:      core.Debt{DueDay: 10, LastAccrualCycle: "2025-01"},
			now:       time.Date(2025, 4, 12, 0, 0, 0, 0, time.UTC),
			maxCycles: 12,
			want:      []core.MonthKey{"2025-02", "2025-03"},
		},
		{
			name:      "first cycle due after creation",
			debt:      core.Debt{DueDay: 10, CreatedAt: time.Date(2025, 2, 15, 9, 0, 0, 0, time.UTC)},
			now:       time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC),
			maxCycles: 12,
			want:      []core.MonthKey{"2025-03", "2025-04"},
		},
		{
			name:      "catch-up bounded",
			debt:      core.Debt{DueDay: 10, LastAccrualCycle: "2024-01"},
			now:       time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC),
			maxCycles: 2,
			want:      []core.MonthKey{"2025-03", "2025-04"},
		},
		{
			name:      "cursor already current",
			debt:      core.Debt{DueDay: 10, LastAccrualCycle: "2025-04"},
			now:       time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC),
			maxCycles: 12,
			want:      nil,
		},
		{
			name:      "falls back to plan pay day",
			debt:      core.Debt{LastAccrualCycle: "2025-02"},
			now:       time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC),
			maxCycles: 12,
			want:      []core.MonthKey{"2025-03"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cal.PendingCycles(tt.debt, tt.now, tt.maxCycles)
			if !slices.Equal(got, tt.want) {
				t.Errorf("PendingCycles() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDueCalendar_CyclePaid(t *testing.T) {
	cal := DueCalendar{PayDay: 27, AccrualGraceDays: 5}
	debt := core.Debt{DueDay: 10}

	tests := []struct {
		name     string
		payments []core.DebtPayment
		want     bool
	}{
		{
			name:     "no payments",
			payments: nil,
			want:     false,
		},
		{
			name:     "booked in cycle month",
			payments: []core.DebtPayment{{Amount: core.Money{Cents: 100}, Year: 2025, Month: 3, PaidAt: time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)}},
			want:     true,
		},
		{
			name:     "unbooked paid inside window",
			payments: []core.DebtPayment{{Amount: core.Money{Cents: 100}, PaidAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}},
			want:     true,
		},
		{
			name:     "unbooked paid in the previous window",
			payments: []core.DebtPayment{{Amount: core.Money{Cents: 100}, PaidAt: time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)}},
			want:     false,
		},
		{
			name:     "booked to february even when paid in the march window",
			payments: []core.DebtPayment{{Amount: core.Money{Cents: 100}, Year: 2025, Month: 2, PaidAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}},
			want:     false,
		},
		{
			name:     "zero amount ignored",
			payments: []core.DebtPayment{{Year: 2025, Month: 3}},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cal.CyclePaid(debt, "2025-03", tt.payments); got != tt.want {
				t.Errorf("CyclePaid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDueCalendar_PaymentCycle(t *testing.T) {
	// due on the 10th, grace 5: windows close on the 16th
	cal := DueCalendar{PayDay: 27, AccrualGraceDays: 5}
	debt := core.Debt{DueDay: 10}

	tests := []struct {
		name    string
		payment core.DebtPayment
		want    core.MonthKey
		wantOK  bool
	}{
		{
			name:    "booking month wins over paid at",
			payment: core.DebtPayment{Year: 2025, Month: 3, PaidAt: time.Date(2025, 4, 12, 0, 0, 0, 0, time.UTC)},
			want:    "2025-03",
			wantOK:  true,
		},
		{
			name:    "before the boundary belongs to this month",
			payment: core.DebtPayment{PaidAt: time.Date(2025, 4, 12, 0, 0, 0, 0, time.UTC)},
			want:    "2025-04",
			wantOK:  true,
		},
		{
			name:    "after the boundary belongs to next month",
			payment: core.DebtPayment{PaidAt: time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC)},
			want:    "2025-05",
			wantOK:  true,
		},
		{
			name:    "exactly on the boundary closes this month",
			payment: core.DebtPayment{PaidAt: time.Date(2025, 4, 16, 0, 0, 0, 0, time.UTC)},
			want:    "2025-04",
			wantOK:  true,
		},
		{
			name:    "neither booking nor paid at",
			payment: core.DebtPayment{},
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := cal.PaymentCycle(debt, tt.payment)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("PaymentCycle() = %q, %v, want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestRequiredPayment(t *testing.T) {
	tests := []struct {
		name string
		debt core.Debt
		want int64
	}{
		{
			name: "minimum first",
			debt: core.Debt{MonthlyMinimum: core.Money{Cents: 15000}, InstallmentMonths: 10, InitialBalance: core.Money{Cents: 100000}, Amount: core.Money{Cents: 50000}},
			want: 15000,
		},
		{
			name: "installment from initial balance",
			debt: core.Debt{InstallmentMonths: 10, InitialBalance: core.Money{Cents: 100000}, CurrentBalance: core.Money{Cents: 40000}},
			want: 10000,
		},
		{
			name: "installment from current balance",
			debt: core.Debt{InstallmentMonths: 6, CurrentBalance: core.Money{Cents: 60000}},
			want: 10000,
		},
		{
			name: "nominal amount",
			debt: core.Debt{Amount: core.Money{Cents: 7500}},
			want: 7500,
		},
		{
			name: "nothing to charge",
			debt: core.Debt{Amount: core.Money{Cents: -10}},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequiredPayment(tt.debt); got.Cents != tt.want {
				t.Errorf("RequiredPayment() = %d, want %d", got.Cents, tt.want)
			}
		})
	}
}
