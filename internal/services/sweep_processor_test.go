package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/ledger/memory"
)

func TestDefaultSweepConfig(t *testing.T) {
	config := DefaultSweepConfig()
	if config.Interval != time.Hour {
		t.Errorf("expected Interval 1h, got %v", config.Interval)
	}
	if config.PlanTimeout != 30*time.Second {
		t.Errorf("expected PlanTimeout 30s, got %v", config.PlanTimeout)
	}

	p := NewSweepProcessor(nil, nil, SweepConfig{})
	if p.config != DefaultSweepConfig() {
		t.Errorf("zero config should fall back to defaults, got %+v", p.config)
	}
}

func TestSweepAllPlans_IsolatesFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := newPlan(t, store, core.PlanPersonal)
	b := newPlan(t, store, core.PlanPersonal)
	c := newPlan(t, store, core.PlanHoliday)

	var mu sync.Mutex
	seen := map[string]bool{}
	syncer := syncerFunc(func(ctx context.Context, planID string, now time.Time) error {
		mu.Lock()
		seen[planID] = true
		mu.Unlock()
		if planID == b.ID {
			return errors.New("boom")
		}
		return nil
	})

	p := NewSweepProcessor(store, syncer, DefaultSweepConfig())
	stats, err := p.SweepAllPlans(ctx)
	if err != nil {
		t.Fatalf("SweepAllPlans: %v", err)
	}
	if stats.Plans != 3 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want 3 plans 1 failed", stats)
	}
	for _, id := range []string{a.ID, b.ID, c.ID} {
		if !seen[id] {
			t.Errorf("plan %s not swept", id)
		}
	}
	if p.LastSweep() != stats {
		t.Errorf("LastSweep() = %+v, want %+v", p.LastSweep(), stats)
	}
}

func TestSweepAllPlans_RunsCarryover(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	plan := newPlan(t, store, core.PlanPersonal)
	mustExpense(t, store, core.Expense{
		PlanID: plan.ID, Year: 2025, Month: 2, Name: "Water", CategoryName: "Bills",
		Amount: core.Money{Cents: 4000},
	})

	p := NewSweepProcessor(store, NewCarryoverProcessor(store, DefaultCarryoverConfig()), DefaultSweepConfig())
	p.now = func() time.Time { return carryoverNow }

	// a second sweep must not duplicate the shadow
	for i := 0; i < 2; i++ {
		if _, err := p.SweepAllPlans(ctx); err != nil {
			t.Fatalf("SweepAllPlans: %v", err)
		}
	}
	shadows, err := store.ListDebts(ctx, plan.ID, ledger.ExpenseDebts)
	if err != nil {
		t.Fatalf("ListDebts: %v", err)
	}
	if len(shadows) != 1 {
		t.Errorf("shadow debts = %d, want 1", len(shadows))
	}
}

func TestSweepProcessor_StartTwice(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewSweepProcessor(nil, nil, DefaultSweepConfig())
	p.mu.Lock()
	p.running = true
	p.mu.Unlock()

	if err := p.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}
}

func TestSweepProcessor_StopNotRunning(t *testing.T) {
	p := NewSweepProcessor(nil, nil, DefaultSweepConfig())
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop on idle processor: %v", err)
	}
}

func TestSweepProcessor_Lifecycle(t *testing.T) {
	store := memory.New()
	newPlan(t, store, core.PlanPersonal)

	swept := make(chan struct{}, 1)
	syncer := syncerFunc(func(ctx context.Context, planID string, now time.Time) error {
		select {
		case swept <- struct{}{}:
		default:
		}
		return nil
	})

	p := NewSweepProcessor(store, syncer, SweepConfig{Interval: time.Hour, PlanTimeout: time.Second})
	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("second Start should fail while running")
	}

	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		t.Fatal("startup sweep did not run")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("restart after Stop: %v", err)
	}
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop after restart: %v", err)
	}
}

func TestSweepProcessor_ConcurrentStop(t *testing.T) {
	store := memory.New()
	newPlan(t, store, core.PlanPersonal)
	syncer := syncerFunc(func(ctx context.Context, planID string, now time.Time) error { return nil })

	p := NewSweepProcessor(store, syncer, SweepConfig{Interval: time.Hour, PlanTimeout: time.Second})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Stop(ctx); err != nil {
				t.Errorf("Stop: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestSweepProcessor_StopTimeoutAllowsRestart(t *testing.T) {
	store := memory.New()
	newPlan(t, store, core.PlanPersonal)
	release := make(chan struct{})
	syncer := syncerFunc(func(ctx context.Context, planID string, now time.Time) error {
		<-release
		return nil
	})

	p := NewSweepProcessor(store, syncer, SweepConfig{Interval: time.Hour, PlanTimeout: 5 * time.Second})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop err = %v, want deadline exceeded", err)
	}
	close(release)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start after timed out Stop: %v", err)
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
