package sheets

import (
	"context"

	"bilancio/internal/core"
)

// SummaryRow is one exported month of a plan's zero-based budget.
type SummaryRow struct {
	PlanName           string
	Month              core.MonthKey
	Income             core.Money
	Expenses           core.Money
	DebtPayments       core.Money
	SetAside           core.Money
	Unallocated        core.Money
	MoneyLeftAfterPlan core.Money
	RemainingBills     core.Money
	OnPlan             bool
}

// Ports for outbound adapters.
type (
	SummaryExporter interface {
		AppendSummary(ctx context.Context, row SummaryRow) (rowRef string, err error)
	}

	// SummaryLister reads back rows already exported for a year.
	SummaryLister interface {
		ListSummaries(ctx context.Context, year int) ([]SummaryRow, error)
	}
)
