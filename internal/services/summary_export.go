package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/sheets"
)

type ExportResult struct {
	RowRef  string
	Skipped bool
	Row     sheets.SummaryRow
}

// SummaryExportService appends a month's zero-based summary to a spreadsheet.
type SummaryExportService struct {
	plans     ledger.PlanStore
	zeroBased *ZeroBasedService
	exporter  sheets.SummaryExporter
	now       func() time.Time
}

func NewSummaryExportService(plans ledger.PlanStore, zeroBased *ZeroBasedService, exporter sheets.SummaryExporter) *SummaryExportService {
	return &SummaryExportService{plans: plans, zeroBased: zeroBased, exporter: exporter, now: time.Now}
}

// SummaryRowFrom flattens a zero-based summary into an export row.
func SummaryRowFrom(planName string, s ZeroBasedSummary) sheets.SummaryRow {
	return sheets.SummaryRow{
		PlanName:           planName,
		Month:              s.MonthKey,
		Income:             s.GrossIncome,
		Expenses:           s.PlannedExpenses,
		DebtPayments:       s.PlannedDebtPayments,
		SetAside:           s.PlannedSetAside,
		Unallocated:        s.Unallocated,
		MoneyLeftAfterPlan: s.MoneyLeftAfterPlan,
		RemainingBills:     s.RemainingBills,
		OnPlan:             s.IsOnPlan,
	}
}

// Export writes one row per plan and month. When the exporter can list rows,
// a month already exported is skipped unless force is set.
func (s *SummaryExportService) Export(ctx context.Context, planID string, year, month int, force bool) (ExportResult, error) {
	if !core.ValidMonth(month) {
		return ExportResult{}, fmt.Errorf("month %d: %w", month, core.ErrInvalidMonth)
	}
	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		return ExportResult{}, fmt.Errorf("get plan: %w", err)
	}
	summary, err := s.zeroBased.GetZeroBasedSummary(ctx, planID, strconv.Itoa(month), &year, s.now())
	if err != nil {
		return ExportResult{}, err
	}
	row := SummaryRowFrom(plan.Name, summary)

	if lister, ok := s.exporter.(sheets.SummaryLister); ok && !force {
		existing, err := lister.ListSummaries(ctx, year)
		if err != nil {
			return ExportResult{}, fmt.Errorf("list exported summaries: %w", err)
		}
		for _, r := range existing {
			if r.PlanName == row.PlanName && r.Month == row.Month {
				slog.InfoContext(ctx, "Summary already exported, skipping",
					"plan_id", planID,
					"month", row.Month)
				return ExportResult{Skipped: true, Row: row}, nil
			}
		}
	}

	ref, err := s.exporter.AppendSummary(ctx, row)
	if err != nil {
		return ExportResult{}, fmt.Errorf("append summary: %w", err)
	}
	return ExportResult{RowRef: ref, Row: row}, nil
}
