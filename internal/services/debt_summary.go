package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

// DefaultSyncTimeout bounds the carryover pass run before a summary read.
const DefaultSyncTimeout = 5 * time.Second

// PlanSyncer runs the carryover passes for a plan.
type PlanSyncer interface {
	SyncPlan(ctx context.Context, planID string, now time.Time) error
}

type SummaryOptions struct {
	IncludeExpenseDebts bool
	EnsureSynced        bool
}

func DefaultSummaryOptions() SummaryOptions {
	return SummaryOptions{IncludeExpenseDebts: true, EnsureSynced: true}
}

type DebtSummary struct {
	RegularDebts       []core.Debt
	ExpenseDebts       []core.Debt
	AllDebts           []core.Debt
	ActiveDebts        []core.Debt
	ActiveRegularDebts []core.Debt
	ActiveExpenseDebts []core.Debt
	CreditCards        []core.Debt
	TotalDebtBalance   core.Money
	Synced             bool
}

// DebtSummaryService merges regular and expense-derived debts into one view
// whose paid amounts come from the payment ledger.
type DebtSummaryService struct {
	store       ledger.Store
	syncer      PlanSyncer
	syncTimeout time.Duration
	now         func() time.Time
}

func NewDebtSummaryService(store ledger.Store, syncer PlanSyncer, syncTimeout time.Duration) *DebtSummaryService {
	if syncTimeout <= 0 {
		syncTimeout = DefaultSyncTimeout
	}
	return &DebtSummaryService{
		store:       store,
		syncer:      syncer,
		syncTimeout: syncTimeout,
		now:         time.Now,
	}
}

// GetDebtSummaryForPlan returns the plan's debts. With EnsureSynced the
// carryover passes run first; a failing pass is logged and the read proceeds
// on unsynced data.
func (s *DebtSummaryService) GetDebtSummaryForPlan(ctx context.Context, planID string, opts SummaryOptions) (DebtSummary, error) {
	if _, err := s.store.GetPlan(ctx, planID); err != nil {
		return DebtSummary{}, fmt.Errorf("get plan: %w", err)
	}

	synced := false
	if opts.EnsureSynced && s.syncer != nil {
		if err := s.syncBounded(ctx, planID); err != nil {
			slog.WarnContext(ctx, "Carryover sync failed, reading unsynced debts",
				"plan_id", planID,
				"error", err)
		} else {
			synced = true
		}
	}

	summary, err := s.read(ctx, planID, opts.IncludeExpenseDebts)
	if err != nil {
		return DebtSummary{}, err
	}
	summary.Synced = synced
	return summary, nil
}

func (s *DebtSummaryService) syncBounded(ctx context.Context, planID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()
	return s.syncer.SyncPlan(ctx, planID, s.now())
}

func (s *DebtSummaryService) read(ctx context.Context, planID string, includeExpenseDebts bool) (DebtSummary, error) {
	var (
		regular, shadows []core.Debt
		paid             map[string]core.Money
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		regular, err = s.store.ListDebts(gctx, planID, ledger.RegularDebts)
		if err != nil {
			return fmt.Errorf("list regular debts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		paid, err = s.store.SumDebtPaymentsByDebt(gctx, planID)
		if err != nil {
			return fmt.Errorf("sum debt payments: %w", err)
		}
		return nil
	})
	if includeExpenseDebts {
		g.Go(func() error {
			var err error
			shadows, err = s.store.ListDebts(gctx, planID, ledger.ExpenseDebts)
			if err != nil {
				return fmt.Errorf("list expense debts: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return DebtSummary{}, err
	}

	for i := range regular {
		regular[i].PaidAmount = paid[regular[i].ID]
	}
	return BuildDebtSummary(regular, shadows), nil
}

// BuildDebtSummary derives every view from the two debt lists.
func BuildDebtSummary(regular, shadows []core.Debt) DebtSummary {
	out := DebtSummary{
		RegularDebts: nonNil(regular),
		ExpenseDebts: nonNil(shadows),
	}
	out.AllDebts = append(append(make([]core.Debt, 0, len(regular)+len(shadows)), out.RegularDebts...), out.ExpenseDebts...)
	out.ActiveDebts = []core.Debt{}
	out.ActiveRegularDebts = []core.Debt{}
	out.ActiveExpenseDebts = []core.Debt{}
	out.CreditCards = []core.Debt{}

	for _, d := range out.RegularDebts {
		if d.IsActive() {
			out.ActiveRegularDebts = append(out.ActiveRegularDebts, d)
		}
		if d.Type.IsCard() {
			out.CreditCards = append(out.CreditCards, d)
		}
	}
	for _, d := range out.ExpenseDebts {
		if d.IsActive() {
			out.ActiveExpenseDebts = append(out.ActiveExpenseDebts, d)
		}
	}
	for _, d := range out.AllDebts {
		if d.IsActive() {
			out.ActiveDebts = append(out.ActiveDebts, d)
		}
		out.TotalDebtBalance = out.TotalDebtBalance.Add(d.CurrentBalance.NonNegative())
	}
	return out
}

func nonNil(ds []core.Debt) []core.Debt {
	if ds == nil {
		return []core.Debt{}
	}
	return ds
}
