package services

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// DefaultProjectionMaxMonths bounds the payoff simulation.
const DefaultProjectionMaxMonths = 60

// settledBelow is the remainder under which a balance counts as paid; an
// installment share like 100/3 otherwise leaves a sub-cent tail.
var settledBelow = decimal.New(5, -3)

// ProjectionParams are in major currency units.
type ProjectionParams struct {
	CurrentBalance        float64
	PlannedMonthlyPayment float64
	MonthlyMinimum        float64
	InstallmentMonths     int
	InitialBalance        float64
	InterestRatePct       float64 // annual
	MaxMonths             int
	Now                   time.Time
}

// PayoffProjection is nil-valued where the debt cannot be retired within the
// horizon. ComputedPaidOffBy is a UTC date at midnight.
type PayoffProjection struct {
	ComputedMonthlyPayment float64    `json:"computedMonthlyPayment"`
	ComputedMonthsLeft     *int       `json:"computedMonthsLeft"`
	ComputedPaidOffBy      *time.Time `json:"computedPaidOffBy"`
}

// ProjectionParamsFromDebt fills params from a stored debt. planned may be 0.
func ProjectionParamsFromDebt(d core.Debt, planned float64) ProjectionParams {
	return ProjectionParams{
		CurrentBalance:        d.CurrentBalance.Major(),
		PlannedMonthlyPayment: planned,
		MonthlyMinimum:        d.MonthlyMinimum.Major(),
		InstallmentMonths:     d.InstallmentMonths,
		InitialBalance:        d.InitialBalance.Major(),
		InterestRatePct:       d.InterestRatePct,
	}
}

func finiteNonNegative(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

// effectivePayment resolves the monthly payment: the planned amount, else the
// installment share, raised to the minimum when that is higher.
func effectivePayment(planned, minimum, initial, current decimal.Decimal, installments int) decimal.Decimal {
	payment := decimal.Zero
	switch {
	case planned.IsPositive():
		payment = planned
	case installments > 0:
		base := initial
		if !base.IsPositive() {
			base = current
		}
		payment = base.Div(decimal.NewFromInt(int64(installments)))
	}
	if minimum.IsPositive() && minimum.GreaterThan(payment) {
		payment = minimum
	}
	return payment
}

// ComputeDebtPayoffProjection simulates month-by-month amortization. It never
// fails: malformed inputs count as zero and an unpayable debt yields nil fields.
func ComputeDebtPayoffProjection(params ProjectionParams) PayoffProjection {
	balance := finiteNonNegative(params.CurrentBalance)
	installments := max(params.InstallmentMonths, 0)
	payment := effectivePayment(
		finiteNonNegative(params.PlannedMonthlyPayment),
		finiteNonNegative(params.MonthlyMinimum),
		finiteNonNegative(params.InitialBalance),
		balance,
		installments,
	)
	rate := finiteNonNegative(params.InterestRatePct).Div(decimal.NewFromInt(1200))
	maxMonths := params.MaxMonths
	if maxMonths <= 0 {
		maxMonths = DefaultProjectionMaxMonths
	}

	out := PayoffProjection{ComputedMonthlyPayment: payment.Round(2).InexactFloat64()}

	if !balance.IsPositive() {
		zero := 0
		out.ComputedMonthsLeft = &zero
		return out
	}
	if !payment.IsPositive() {
		return out
	}

	growth := decimal.NewFromInt(1).Add(rate)
	for month := 1; month <= maxMonths; month++ {
		if rate.IsPositive() {
			balance = balance.Mul(growth)
		}
		balance = balance.Sub(payment)
		if balance.LessThan(settledBelow) {
			months := month
			paidOff := core.AddMonthsClamped(startOfDay(params.Now), months)
			out.ComputedMonthsLeft = &months
			out.ComputedPaidOffBy = &paidOff
			return out
		}
	}
	return out
}
