package cli

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"bilancio/internal/cache"
	"bilancio/internal/config"
	"bilancio/internal/ledger/memory"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

func TestBuildServices(t *testing.T) {
	cfg := config.Load()
	svc := BuildServices(memory.New(), cfg, nil, nil)

	if svc.Carryover == nil || svc.Summary == nil || svc.DebtPlan == nil ||
		svc.ZeroBased == nil || svc.Payments == nil || svc.Sync == nil {
		t.Fatalf("BuildServices left a service nil: %+v", svc)
	}

	// Without a publisher the sync runs inline; an unknown plan is still rejected.
	if _, err := svc.Sync.RequestSync(context.Background(), "missing"); err == nil {
		t.Error("RequestSync() should fail for an unknown plan")
	}
}

func TestProjectionCache_FallsBackToLRU(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	cfg := config.Load()
	cfg.RedisAddr = addr
	cfg.ProjectionCacheSize = 8
	cfg.ProjectionCacheTTL = time.Minute

	mgr := cache.NewManager()
	pc, closeFn := ProjectionCache(context.Background(), quietLogger(), cfg, mgr)
	defer closeFn()

	if pc == nil {
		t.Fatal("ProjectionCache() returned nil")
	}
	got := pc.Compute(services.ProjectionParams{CurrentBalance: 100, PlannedMonthlyPayment: 50, MaxMonths: 12, Now: time.Now()})
	if got.ComputedMonthsLeft == nil || *got.ComputedMonthsLeft != 2 {
		t.Errorf("ComputedMonthsLeft = %v, want 2", got.ComputedMonthsLeft)
	}
}
