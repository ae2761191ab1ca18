package services

import (
	"testing"
	"time"

	"bilancio/internal/cache"
)

type countingCache struct {
	*cache.LRUCache[PayoffProjection]
	sets int
}

func (c *countingCache) Set(key string, p PayoffProjection) {
	c.sets++
	c.LRUCache.Set(key, p)
}

func TestProjectionCache_Compute(t *testing.T) {
	backing := &countingCache{LRUCache: cache.NewLRUCache[PayoffProjection](8, time.Minute)}
	pc := NewProjectionCache(backing)

	params := ProjectionParams{CurrentBalance: 1200, PlannedMonthlyPayment: 100, Now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	first := pc.Compute(params)
	params.Now = params.Now.Add(6 * time.Hour)
	second := pc.Compute(params)

	if backing.sets != 1 {
		t.Errorf("cache sets = %d, want 1", backing.sets)
	}
	if *first.ComputedMonthsLeft != 12 || *second.ComputedMonthsLeft != 12 {
		t.Errorf("months = %d, %d", *first.ComputedMonthsLeft, *second.ComputedMonthsLeft)
	}

	params.PlannedMonthlyPayment = 200
	if got := pc.Compute(params); *got.ComputedMonthsLeft != 6 {
		t.Errorf("different input months = %d, want 6", *got.ComputedMonthsLeft)
	}
	if backing.sets != 2 {
		t.Errorf("cache sets = %d, want 2", backing.sets)
	}
}

func TestProjectionCache_MatchesDirect(t *testing.T) {
	pc := NewProjectionCache(cache.NewLRUCache[PayoffProjection](8, time.Minute))
	params := ProjectionParams{CurrentBalance: 300, PlannedMonthlyPayment: 100, Now: time.Date(2025, 3, 1, 17, 45, 0, 0, time.UTC)}

	direct := ComputeDebtPayoffProjection(params)
	for i := 0; i < 2; i++ {
		got := pc.Compute(params)
		if got.ComputedPaidOffBy == nil || !got.ComputedPaidOffBy.Equal(*direct.ComputedPaidOffBy) {
			t.Errorf("pass %d: cached %v, direct %v", i, got.ComputedPaidOffBy, direct.ComputedPaidOffBy)
		}
	}
}

func TestProjectionCache_NilComputesDirectly(t *testing.T) {
	var pc *ProjectionCache
	got := pc.Compute(ProjectionParams{CurrentBalance: 0})
	if got.ComputedMonthsLeft == nil || *got.ComputedMonthsLeft != 0 {
		t.Errorf("nil cache projection = %+v", got)
	}
}
