package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bilancio/internal/ledger"
)

// SyncPublisher hands a plan sync to the background worker.
type SyncPublisher interface {
	PublishPlanSync(ctx context.Context, planID string) error
}

// SyncMode reports how a sync request was served.
type SyncMode string

const (
	SyncQueued SyncMode = "queued"
	SyncInline SyncMode = "inline"
)

// SyncService queues plan syncs on the broker when one is configured and
// runs them in-process otherwise.
type SyncService struct {
	plans     ledger.PlanStore
	syncer    PlanSyncer
	publisher SyncPublisher
	now       func() time.Time
}

// NewSyncService accepts a nil publisher.
func NewSyncService(plans ledger.PlanStore, syncer PlanSyncer, publisher SyncPublisher) *SyncService {
	return &SyncService{
		plans:     plans,
		syncer:    syncer,
		publisher: publisher,
		now:       time.Now,
	}
}

// RequestSync validates the plan, then publishes. A failed publish falls
// back to an inline sync so the request is never lost.
func (s *SyncService) RequestSync(ctx context.Context, planID string) (SyncMode, error) {
	if _, err := s.plans.GetPlan(ctx, planID); err != nil {
		return "", fmt.Errorf("get plan: %w", err)
	}

	if s.publisher != nil {
		err := s.publisher.PublishPlanSync(ctx, planID)
		if err == nil {
			return SyncQueued, nil
		}
		slog.ErrorContext(ctx, "Failed to publish plan sync, running inline",
			"plan_id", planID,
			"error", err)
	}

	if err := s.syncer.SyncPlan(ctx, planID, s.now()); err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "Plan synced inline", "plan_id", planID)
	return SyncInline, nil
}
