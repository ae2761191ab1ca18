package cli

import (
	"context"

	"bilancio/internal/cache"
	"bilancio/internal/config"
	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

// Services is the service graph shared by the HTTP server and the CLI.
type Services struct {
	Carryover   *services.CarryoverProcessor
	Summary     *services.DebtSummaryService
	DebtPlan    *services.DebtPlanService
	ZeroBased   *services.ZeroBasedService
	Payments    *services.PaymentService
	Sync        *services.SyncService
	Projections *services.ProjectionCache
}

// BuildServices wires every service over one store. publisher and
// projections may be nil; pass an untyped nil publisher when no broker is
// configured.
func BuildServices(store ledger.Store, cfg *config.Config, publisher services.SyncPublisher, projections *services.ProjectionCache) *Services {
	carryover := services.NewCarryoverProcessor(store, cfg.Carryover())
	debtPlan := services.NewDebtPlanService(store)

	return &Services{
		Carryover:   carryover,
		Summary:     services.NewDebtSummaryService(store, carryover, cfg.SyncTimeout),
		DebtPlan:    debtPlan,
		ZeroBased:   services.NewZeroBasedService(store, debtPlan),
		Payments:    services.NewPaymentService(store),
		Sync:        services.NewSyncService(store, carryover, publisher),
		Projections: projections,
	}
}

// ProjectionCache returns the projection cache: Redis when an address is
// configured and reachable, the in-process LRU otherwise. close releases the
// Redis client and is never nil.
func ProjectionCache(ctx context.Context, logger *applog.Logger, cfg *config.Config, mgr *cache.Manager) (*services.ProjectionCache, func() error) {
	noop := func() error { return nil }

	if cfg.RedisAddr != "" {
		rc := cache.NewRedisCache[services.PayoffProjection](cfg.RedisAddr, "bilancio:projection:", cfg.ProjectionCacheTTL)
		err := rc.Ping(ctx)
		if err == nil {
			logger.Info("Using Redis projection cache", "addr", cfg.RedisAddr)
			return services.NewProjectionCache(rc), rc.Close
		}
		logger.Warn("Redis unreachable, falling back to in-process cache", "addr", cfg.RedisAddr, "error", err)
		_ = rc.Close()
	}

	lru := cache.NewLRUCache[services.PayoffProjection](cfg.ProjectionCacheSize, cfg.ProjectionCacheTTL)
	if mgr != nil {
		mgr.Register(lru)
	}
	return services.NewProjectionCache(lru), noop
}
