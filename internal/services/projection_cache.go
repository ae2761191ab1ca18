package services

import (
	"fmt"

	"bilancio/internal/cache"
)

// ProjectionCache memoizes payoff projections keyed by their full input.
type ProjectionCache struct {
	cache cache.Cache[PayoffProjection]
}

func NewProjectionCache(c cache.Cache[PayoffProjection]) *ProjectionCache {
	return &ProjectionCache{cache: c}
}

func projectionKey(p ProjectionParams) string {
	return fmt.Sprintf("proj:%g:%g:%g:%d:%g:%g:%d:%s",
		p.CurrentBalance, p.PlannedMonthlyPayment, p.MonthlyMinimum, p.InstallmentMonths,
		p.InitialBalance, p.InterestRatePct, p.MaxMonths, p.Now.UTC().Format("2006-01-02"))
}

// Compute returns the cached projection or computes and stores it. A nil
// receiver or cache computes directly.
func (c *ProjectionCache) Compute(p ProjectionParams) PayoffProjection {
	if c == nil || c.cache == nil {
		return ComputeDebtPayoffProjection(p)
	}
	p.Now = startOfDay(p.Now)
	key := projectionKey(p)
	if hit, ok := c.cache.Get(key); ok {
		return hit
	}
	out := ComputeDebtPayoffProjection(p)
	c.cache.Set(key, out)
	return out
}
