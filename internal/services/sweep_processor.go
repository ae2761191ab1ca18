package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bilancio/internal/ledger"
)

// SweepConfig holds configuration for the periodic plan sweep
type SweepConfig struct {
	// Interval is how often every plan is synced (default: 1h)
	Interval time.Duration

	// PlanTimeout bounds the carryover passes of a single plan (default: 30s)
	PlanTimeout time.Duration
}

// DefaultSweepConfig returns sensible defaults
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Interval:    time.Hour,
		PlanTimeout: 30 * time.Second,
	}
}

// SweepStats describes the last completed sweep.
type SweepStats struct {
	Plans   int
	Failed  int
	Started time.Time
	Elapsed time.Duration
}

// SweepProcessor runs SyncPlan for every plan on a ticker.
type SweepProcessor struct {
	plans  ledger.PlanStore
	syncer PlanSyncer
	config SweepConfig
	now    func() time.Time

	statsMu sync.Mutex
	last    SweepStats

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSweepProcessor(plans ledger.PlanStore, syncer PlanSyncer, config SweepConfig) *SweepProcessor {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepConfig().Interval
	}
	if config.PlanTimeout <= 0 {
		config.PlanTimeout = DefaultSweepConfig().PlanTimeout
	}
	return &SweepProcessor{
		plans:  plans,
		syncer: syncer,
		config: config,
		now:    time.Now,
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (p *SweepProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sweep processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stop, done := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stop, done)

	slog.InfoContext(ctx, "Sweep processor started",
		"interval", p.config.Interval,
		"plan_timeout", p.config.PlanTimeout)

	return nil
}

// Stop signals the loop and waits for the current sweep to finish. Only the
// first of concurrent Stop calls closes the loop; the others return at once.
func (p *SweepProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stop, done := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stop)

	select {
	case <-done:
		slog.InfoContext(ctx, "Sweep processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sweep processor stop timed out")
		return ctx.Err()
	}
	return nil
}

func (p *SweepProcessor) runLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Sweep immediately on startup
	p.sweep(ctx)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *SweepProcessor) sweep(ctx context.Context) {
	if _, err := p.SweepAllPlans(ctx); err != nil {
		slog.ErrorContext(ctx, "Plan sweep failed", "error", err)
	}
}

// SweepAllPlans syncs every plan once. A failing plan is logged and the
// sweep moves on; only a failure to list plans is returned.
func (p *SweepProcessor) SweepAllPlans(ctx context.Context) (SweepStats, error) {
	started := p.now()
	plans, err := p.plans.ListPlans(ctx)
	if err != nil {
		return SweepStats{}, fmt.Errorf("list plans: %w", err)
	}

	stats := SweepStats{Started: started}
	for _, plan := range plans {
		select {
		case <-p.stopCh:
			return p.record(stats), nil
		case <-ctx.Done():
			return p.record(stats), ctx.Err()
		default:
		}

		stats.Plans++
		planCtx, cancel := context.WithTimeout(ctx, p.config.PlanTimeout)
		err := p.syncer.SyncPlan(planCtx, plan.ID, p.now())
		cancel()
		if err != nil {
			stats.Failed++
			slog.ErrorContext(ctx, "Failed to sync plan during sweep",
				"plan_id", plan.ID,
				"error", err)
			continue
		}
	}

	stats.Elapsed = p.now().Sub(started)
	slog.InfoContext(ctx, "Plan sweep completed",
		"plans", stats.Plans,
		"failed", stats.Failed,
		"elapsed", stats.Elapsed)
	return p.record(stats), nil
}

func (p *SweepProcessor) record(s SweepStats) SweepStats {
	p.statsMu.Lock()
	p.last = s
	p.statsMu.Unlock()
	return s
}

// LastSweep returns the stats of the most recent sweep.
func (p *SweepProcessor) LastSweep() SweepStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.last
}
