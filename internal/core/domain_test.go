package core

import (
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{
		Name:   "Rent",
		Year:   2025,
		Month:  1,
		Amount: Money{Cents: 100},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Expense{
		{Name: "", Year: 2025, Month: 1, Amount: Money{Cents: 1}},
		{Name: "a", Year: 2025, Month: 13, Amount: Money{Cents: 1}},
		{Name: "a", Year: 2025, Month: 1, Amount: Money{Cents: -1}},
		{Name: "a", Year: 2025, Month: 1, Amount: Money{Cents: 1}, PaidAmount: Money{Cents: -5}},
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestExpenseRemaining(t *testing.T) {
	cases := []struct {
		amount, paid, want int64
	}{
		{10000, 0, 10000},
		{10000, 2500, 7500},
		{10000, 10000, 0},
		{10000, 12000, 0}, // overpaid clamps
	}
	for _, tc := range cases {
		e := Expense{Amount: Money{Cents: tc.amount}, PaidAmount: Money{Cents: tc.paid}}
		if got := e.Remaining().Cents; got != tc.want {
			t.Errorf("Remaining(%d,%d) = %d, want %d", tc.amount, tc.paid, got, tc.want)
		}
	}
}

func TestDebtExpenseSource(t *testing.T) {
	regular := Debt{Name: "Card", Type: DebtCreditCard}
	if _, ok := regular.ExpenseSource(); ok {
		t.Fatal("nil origin should be regular")
	}
	regular.Origin = RegularOrigin{}
	if regular.IsExpenseDerived() {
		t.Fatal("RegularOrigin should not be expense-derived")
	}

	shadow := Debt{Origin: ExpenseOrigin{ExpenseID: "e1", Year: 2025, Month: 3}}
	src, ok := shadow.ExpenseSource()
	if !ok || src.ExpenseID != "e1" {
		t.Fatalf("ExpenseSource() = %+v, %v", src, ok)
	}
	if src.MonthKey() != "2025-03" {
		t.Errorf("MonthKey() = %q", src.MonthKey())
	}

	ptr := Debt{Origin: &ExpenseOrigin{ExpenseID: "e2"}}
	if !ptr.IsExpenseDerived() {
		t.Error("pointer origin should be recognised")
	}
}

func TestDebtValidate(t *testing.T) {
	good := Debt{Name: "Loan", Type: DebtLoan, CurrentBalance: Money{Cents: 100}, DueDay: 15}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []Debt{
		{Name: " ", Type: DebtLoan},
		{Name: "a", Type: "mortgage"},
		{Name: "a", Type: DebtLoan, CurrentBalance: Money{Cents: -1}},
		{Name: "a", Type: DebtLoan, DueDay: 32},
		{Name: "a", Type: DebtLoan, DefaultPaymentSource: "piggy_bank"},
	}
	for i, d := range bads {
		if err := d.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}
