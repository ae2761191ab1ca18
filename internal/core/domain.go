package core

import (
	"errors"
	"strings"
	"time"
)

const (
	DebtCreditCard   DebtType = "credit_card"
	DebtStoreCard    DebtType = "store_card"
	DebtLoan         DebtType = "loan"
	DebtHighPurchase DebtType = "high_purchase"
	DebtOther        DebtType = "other"
)

const (
	SourceIncome         PaymentSource = "income"
	SourceExtraFunds     PaymentSource = "extra_funds"
	SourceCreditCard     PaymentSource = "credit_card"
	SourceSavings        PaymentSource = "savings"
	SourceEmergency      PaymentSource = "emergency"
	SourceExtraUntracked PaymentSource = "extra_untracked"
)

const (
	PlanPersonal PlanKind = "personal"
	PlanHoliday  PlanKind = "holiday"
	PlanCarnival PlanKind = "carnival"
)

// DefaultPayDate is the due day used when a plan does not set one.
const DefaultPayDate = 27

type (
	DebtType      string
	PaymentSource string
	PlanKind      string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// DebtOrigin tells a user-created debt apart from the shadow of an expense.
	DebtOrigin interface {
		isDebtOrigin()
	}

	// RegularOrigin marks a debt the user created explicitly.
	RegularOrigin struct{}

	// ExpenseOrigin marks a shadow debt mirroring one unpaid expense.
	ExpenseOrigin struct {
		ExpenseID    string
		Year         int
		Month        int
		CategoryID   string
		CategoryName string
		ExpenseName  string
	}

	Debt struct {
		ID                   string
		PlanID               string
		Name                 string
		Type                 DebtType
		InitialBalance       Money
		CurrentBalance       Money
		Amount               Money // nominal obligation per cycle
		Paid                 bool
		PaidAmount           Money // cached; the payment ledger is authoritative
		MonthlyMinimum       Money
		InterestRatePct      float64
		InstallmentMonths    int
		DueDay               int // 0 means the plan pay date
		DefaultPaymentSource PaymentSource
		LastAccrualCycle     MonthKey
		Origin               DebtOrigin
		CreatedAt            time.Time
		UpdatedAt            time.Time
	}

	Expense struct {
		ID           string
		PlanID       string
		Year         int
		Month        int
		Name         string
		CategoryID   string
		CategoryName string
		Amount       Money
		Paid         bool
		PaidAmount   Money
		DueDate      Date // empty means the plan pay date in Year/Month
		IsAllocation bool
		SeriesKey    string
		CreatedAt    time.Time
	}

	// DebtPayment is an append-only ledger row.
	DebtPayment struct {
		ID     string
		DebtID string
		Amount Money
		PaidAt time.Time
		Year   int
		Month  int
		Source PaymentSource
	}

	// ExpensePayment is an append-only ledger row.
	ExpensePayment struct {
		ID        string
		ExpenseID string
		Amount    Money
		PaidAt    time.Time
		Year      int
		Month     int
		Source    PaymentSource
	}

	BudgetPlan struct {
		ID                            string
		Name                          string
		Kind                          PlanKind
		PayDate                       int
		MonthlyAllowance              Money
		MonthlySavingsContribution    Money
		MonthlyEmergencyContribution  Money
		MonthlyInvestmentContribution Money
		CreatedAt                     time.Time
	}

	// MonthlyAllocation overrides the plan contribution defaults for one month.
	// Nil fields fall back to the plan.
	MonthlyAllocation struct {
		PlanID                        string
		Year                          int
		Month                         int
		MonthlyAllowance              *Money
		MonthlySavingsContribution    *Money
		MonthlyEmergencyContribution  *Money
		MonthlyInvestmentContribution *Money
	}

	AllocationDefinition struct {
		ID            string
		PlanID        string
		Name          string
		DefaultAmount Money
		SortOrder     int
		Archived      bool
	}

	AllocationOverride struct {
		AllocationID string
		Year         int
		Month        int
		Amount       Money
	}

	Income struct {
		ID     string
		PlanID string
		Year   int
		Month  int
		Name   string
		Amount Money
	}
)

func (RegularOrigin) isDebtOrigin() {}
func (ExpenseOrigin) isDebtOrigin() {}

// MonthKey returns the budget month the shadowed expense belongs to.
func (o ExpenseOrigin) MonthKey() MonthKey {
	return NewMonthKey(o.Year, o.Month)
}

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidDay        = errors.New("invalid day")
	ErrInvalidMonth      = errors.New("invalid month")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidSource     = errors.New("invalid payment source")
	ErrInvalidCard       = errors.New("invalid credit card")
	ErrDebtAlreadyPaid   = errors.New("debt already paid")
	ErrExpenseFullyPaid  = errors.New("expense already fully paid")
	ErrEmptyName         = errors.New("empty name")
	ErrShadowDebtManaged = errors.New("expense-derived debts are managed by carryover")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// IsEmpty returns true if the date is zero
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// IsCard reports whether the debt type is a revolving card.
func (t DebtType) IsCard() bool {
	return t == DebtCreditCard || t == DebtStoreCard
}

func (t DebtType) IsValid() bool {
	switch t {
	case DebtCreditCard, DebtStoreCard, DebtLoan, DebtHighPurchase, DebtOther:
		return true
	}
	return false
}

func (s PaymentSource) IsValid() bool {
	switch s {
	case SourceIncome, SourceExtraFunds, SourceCreditCard, SourceSavings, SourceEmergency, SourceExtraUntracked:
		return true
	}
	return false
}

// ExpenseSource returns the shadowed expense when the debt is expense-derived.
func (d Debt) ExpenseSource() (ExpenseOrigin, bool) {
	switch o := d.Origin.(type) {
	case ExpenseOrigin:
		return o, true
	case *ExpenseOrigin:
		if o != nil {
			return *o, true
		}
	}
	return ExpenseOrigin{}, false
}

func (d Debt) IsExpenseDerived() bool {
	_, ok := d.ExpenseSource()
	return ok
}

// IsActive reports whether the debt still carries a balance.
func (d Debt) IsActive() bool {
	return d.CurrentBalance.Cents > 0
}

func (d Debt) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrEmptyName
	}
	if len(d.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if !d.Type.IsValid() {
		return errors.New("invalid debt type")
	}
	if d.CurrentBalance.Cents < 0 || d.InitialBalance.Cents < 0 || d.Amount.Cents < 0 || d.MonthlyMinimum.Cents < 0 {
		return ErrInvalidAmount
	}
	if d.DueDay < 0 || d.DueDay > 31 {
		return ErrInvalidDay
	}
	if d.InstallmentMonths < 0 {
		return errors.New("installment months cannot be negative")
	}
	if d.DefaultPaymentSource != "" && !d.DefaultPaymentSource.IsValid() {
		return ErrInvalidSource
	}
	return nil
}

// Remaining returns the unpaid part of the expense, never below zero.
func (e Expense) Remaining() Money {
	return e.Amount.Sub(e.PaidAmount).NonNegative()
}

func (e Expense) MonthKey() MonthKey {
	return NewMonthKey(e.Year, e.Month)
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if len(e.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if e.Month < 1 || e.Month > 12 {
		return ErrInvalidMonth
	}
	if e.Amount.Cents < 0 || e.PaidAmount.Cents < 0 {
		return ErrInvalidAmount
	}
	if !e.DueDate.IsEmpty() {
		if err := e.DueDate.Validate(); err != nil {
			return err
		}
	}
	return nil
}
