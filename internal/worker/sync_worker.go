package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/services"
)

// PlanSyncConsumer is satisfied by *amqp.Client.
type PlanSyncConsumer interface {
	ConsumePlanSync(ctx context.Context, handler func(context.Context, *amqp.PlanSyncMessage) error) error
}

// Sweeper is satisfied by *services.SweepProcessor.
type Sweeper interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// SyncWorker is the single background writer: it runs queued plan syncs
// and the periodic sweep over all plans.
type SyncWorker struct {
	syncer   services.PlanSyncer
	consumer PlanSyncConsumer
	sweeper  Sweeper
	now      func() time.Time

	stopTimeout time.Duration
}

// NewSyncWorker accepts a nil consumer (sweep only) or a nil sweeper (queue only).
func NewSyncWorker(syncer services.PlanSyncer, consumer PlanSyncConsumer, sweeper Sweeper) *SyncWorker {
	return &SyncWorker{
		syncer:      syncer,
		consumer:    consumer,
		sweeper:     sweeper,
		now:         time.Now,
		stopTimeout: 30 * time.Second,
	}
}

// HandleSyncMessage runs the carryover passes for the plan named in msg.
// A plan that no longer exists is acknowledged, not retried.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.PlanSyncMessage) error {
	slog.InfoContext(ctx, "Processing plan sync message",
		"plan_id", msg.PlanID,
		"reason", msg.Reason,
		"requested_at", msg.RequestedAt)

	err := w.syncer.SyncPlan(ctx, msg.PlanID, w.now())
	switch {
	case errors.Is(err, core.ErrNotFound):
		slog.WarnContext(ctx, "Plan not found, dropping sync message", "plan_id", msg.PlanID)
		return nil
	case err != nil:
		return fmt.Errorf("sync plan: %w", err)
	}
	return nil
}

// Run starts the sweep and consumes messages until ctx is cancelled.
func (w *SyncWorker) Run(ctx context.Context) error {
	if w.sweeper != nil {
		if err := w.sweeper.Start(ctx); err != nil {
			return fmt.Errorf("start sweeper: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.stopTimeout)
			defer cancel()
			if err := w.sweeper.Stop(stopCtx); err != nil {
				slog.ErrorContext(ctx, "Failed to stop sweeper", "error", err)
			}
		}()
	}

	if w.consumer == nil {
		slog.InfoContext(ctx, "No message consumer configured, running sweep only")
		<-ctx.Done()
		return nil
	}

	err := w.consumer.ConsumePlanSync(ctx, w.HandleSyncMessage)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
