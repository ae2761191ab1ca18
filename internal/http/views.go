package http

import (
	"time"

	"bilancio/internal/core"
	"bilancio/internal/services"
)

// JSON views of the service records. Money is rendered in major units.

type debtView struct {
	ID                   string   `json:"id"`
	PlanID               string   `json:"planId"`
	Name                 string   `json:"name"`
	Type                 string   `json:"type"`
	Origin               string   `json:"origin"`
	InitialBalance       float64  `json:"initialBalance"`
	CurrentBalance       float64  `json:"currentBalance"`
	Amount               float64  `json:"amount"`
	Paid                 bool     `json:"paid"`
	PaidAmount           float64  `json:"paidAmount"`
	MonthlyMinimum       float64  `json:"monthlyMinimum"`
	InterestRatePct      float64  `json:"interestRatePct"`
	InstallmentMonths    int      `json:"installmentMonths"`
	DueDay               int      `json:"dueDay,omitempty"`
	DefaultPaymentSource string   `json:"defaultPaymentSource,omitempty"`
	LastAccrualCycle     string   `json:"lastAccrualCycle,omitempty"`
	Source               *srcView `json:"source,omitempty"`
}

type srcView struct {
	ExpenseID    string `json:"expenseId"`
	Year         int    `json:"year"`
	Month        int    `json:"month"`
	CategoryID   string `json:"categoryId,omitempty"`
	CategoryName string `json:"categoryName,omitempty"`
	ExpenseName  string `json:"expenseName"`
}

func newDebtView(d core.Debt) debtView {
	v := debtView{
		ID:                   d.ID,
		PlanID:               d.PlanID,
		Name:                 d.Name,
		Type:                 string(d.Type),
		Origin:               "regular",
		InitialBalance:       d.InitialBalance.Major(),
		CurrentBalance:       d.CurrentBalance.Major(),
		Amount:               d.Amount.Major(),
		Paid:                 d.Paid,
		PaidAmount:           d.PaidAmount.Major(),
		MonthlyMinimum:       d.MonthlyMinimum.Major(),
		InterestRatePct:      d.InterestRatePct,
		InstallmentMonths:    d.InstallmentMonths,
		DueDay:               d.DueDay,
		DefaultPaymentSource: string(d.DefaultPaymentSource),
		LastAccrualCycle:     string(d.LastAccrualCycle),
	}
	if src, ok := d.ExpenseSource(); ok {
		v.Origin = "expense"
		v.Source = &srcView{
			ExpenseID:    src.ExpenseID,
			Year:         src.Year,
			Month:        src.Month,
			CategoryID:   src.CategoryID,
			CategoryName: src.CategoryName,
			ExpenseName:  src.ExpenseName,
		}
	}
	return v
}

func debtViews(ds []core.Debt) []debtView {
	out := make([]debtView, 0, len(ds))
	for _, d := range ds {
		out = append(out, newDebtView(d))
	}
	return out
}

type debtSummaryView struct {
	RegularDebts       []debtView `json:"regularDebts"`
	ExpenseDebts       []debtView `json:"expenseDebts"`
	AllDebts           []debtView `json:"allDebts"`
	ActiveDebts        []debtView `json:"activeDebts"`
	ActiveRegularDebts []debtView `json:"activeRegularDebts"`
	ActiveExpenseDebts []debtView `json:"activeExpenseDebts"`
	CreditCards        []debtView `json:"creditCards"`
	TotalDebtBalance   float64    `json:"totalDebtBalance"`
	Synced             bool       `json:"synced"`
}

func newDebtSummaryView(s services.DebtSummary) debtSummaryView {
	return debtSummaryView{
		RegularDebts:       debtViews(s.RegularDebts),
		ExpenseDebts:       debtViews(s.ExpenseDebts),
		AllDebts:           debtViews(s.AllDebts),
		ActiveDebts:        debtViews(s.ActiveDebts),
		ActiveRegularDebts: debtViews(s.ActiveRegularDebts),
		ActiveExpenseDebts: debtViews(s.ActiveExpenseDebts),
		CreditCards:        debtViews(s.CreditCards),
		TotalDebtBalance:   s.TotalDebtBalance.Major(),
		Synced:             s.Synced,
	}
}

type debtPlanView struct {
	Year                       int     `json:"year"`
	Month                      int     `json:"month"`
	PlannedDebtPayments        float64 `json:"plannedDebtPayments"`
	TotalPaidDebtPayments      float64 `json:"totalPaidDebtPayments"`
	PaidDebtPaymentsFromIncome float64 `json:"paidDebtPaymentsFromIncome"`
	RemainingDebtPayments      float64 `json:"remainingDebtPayments"`
}

func newDebtPlanView(p services.MonthlyDebtPlan) debtPlanView {
	return debtPlanView{
		Year:                       p.Year,
		Month:                      p.Month,
		PlannedDebtPayments:        p.PlannedDebtPayments.Major(),
		TotalPaidDebtPayments:      p.TotalPaidDebtPayments.Major(),
		PaidDebtPaymentsFromIncome: p.PaidDebtPaymentsFromIncome.Major(),
		RemainingDebtPayments:      p.RemainingDebtPayments.Major(),
	}
}

type allocationView struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

type zeroBasedView struct {
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	MonthKey string `json:"monthKey"`

	IncomeTotal            float64          `json:"incomeTotal"`
	ExpenseTotal           float64          `json:"expenseTotal"`
	DebtPaymentsTotal      float64          `json:"debtPaymentsTotal"`
	PlannedAllowance       float64          `json:"plannedAllowance"`
	PlannedSavings         float64          `json:"plannedSavings"`
	PlannedEmergency       float64          `json:"plannedEmergency"`
	PlannedInvestments     float64          `json:"plannedInvestments"`
	CustomAllocations      []allocationView `json:"customAllocations"`
	CustomAllocationsTotal float64          `json:"customAllocationsTotal"`
	Unallocated            float64          `json:"unallocated"`

	GrossIncome                float64 `json:"grossIncome"`
	PlannedExpenses            float64 `json:"plannedExpenses"`
	PaidExpenses               float64 `json:"paidExpenses"`
	PlannedDebtPayments        float64 `json:"plannedDebtPayments"`
	PaidDebtPaymentsFromIncome float64 `json:"paidDebtPaymentsFromIncome"`
	PlannedBills               float64 `json:"plannedBills"`
	PlannedSetAside            float64 `json:"plannedSetAside"`
	MoneyLeftAfterPlan         float64 `json:"moneyLeftAfterPlan"`
	PaidBillsSoFar             float64 `json:"paidBillsSoFar"`
	IncomeLeftRightNow         float64 `json:"incomeLeftRightNow"`
	RemainingBills             float64 `json:"remainingBills"`
	IsOnPlan                   bool    `json:"isOnPlan"`
}

func newZeroBasedView(s services.ZeroBasedSummary) zeroBasedView {
	custom := make([]allocationView, 0, len(s.CustomAllocations))
	for _, c := range s.CustomAllocations {
		custom = append(custom, allocationView{ID: c.ID, Name: c.Name, Amount: c.Amount.Major()})
	}
	return zeroBasedView{
		Year:                       s.Year,
		Month:                      s.Month,
		MonthKey:                   string(s.MonthKey),
		IncomeTotal:                s.IncomeTotal.Major(),
		ExpenseTotal:               s.ExpenseTotal.Major(),
		DebtPaymentsTotal:          s.DebtPaymentsTotal.Major(),
		PlannedAllowance:           s.PlannedAllowance.Major(),
		PlannedSavings:             s.PlannedSavings.Major(),
		PlannedEmergency:           s.PlannedEmergency.Major(),
		PlannedInvestments:         s.PlannedInvestments.Major(),
		CustomAllocations:          custom,
		CustomAllocationsTotal:     s.CustomAllocationsTotal.Major(),
		Unallocated:                s.Unallocated.Major(),
		GrossIncome:                s.GrossIncome.Major(),
		PlannedExpenses:            s.PlannedExpenses.Major(),
		PaidExpenses:               s.PaidExpenses.Major(),
		PlannedDebtPayments:        s.PlannedDebtPayments.Major(),
		PaidDebtPaymentsFromIncome: s.PaidDebtPaymentsFromIncome.Major(),
		PlannedBills:               s.PlannedBills.Major(),
		PlannedSetAside:            s.PlannedSetAside.Major(),
		MoneyLeftAfterPlan:         s.MoneyLeftAfterPlan.Major(),
		PaidBillsSoFar:             s.PaidBillsSoFar.Major(),
		IncomeLeftRightNow:         s.IncomeLeftRightNow.Major(),
		RemainingBills:             s.RemainingBills.Major(),
		IsOnPlan:                   s.IsOnPlan,
	}
}

type paymentView struct {
	ID     string    `json:"id"`
	DebtID string    `json:"debtId"`
	Amount float64   `json:"amount"`
	PaidAt time.Time `json:"paidAt"`
	Year   int       `json:"year"`
	Month  int       `json:"month"`
	Source string    `json:"source"`
}

func newPaymentView(p core.DebtPayment) paymentView {
	return paymentView{
		ID:     p.ID,
		DebtID: p.DebtID,
		Amount: p.Amount.Major(),
		PaidAt: p.PaidAt,
		Year:   p.Year,
		Month:  p.Month,
		Source: string(p.Source),
	}
}

type syncView struct {
	PlanID string `json:"planId"`
	Mode   string `json:"mode"`
}

// View returns the JSON rendering the API uses for a service record. Values
// without a dedicated view are returned unchanged.
func View(v any) any {
	switch t := v.(type) {
	case services.DebtSummary:
		return newDebtSummaryView(t)
	case services.MonthlyDebtPlan:
		return newDebtPlanView(t)
	case services.ZeroBasedSummary:
		return newZeroBasedView(t)
	case core.DebtPayment:
		return newPaymentView(t)
	case core.Debt:
		return newDebtView(t)
	default:
		return v
	}
}
