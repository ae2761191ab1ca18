package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
)

type fakeSyncer struct {
	err   error
	calls []string
}

func (f *fakeSyncer) SyncPlan(ctx context.Context, planID string, now time.Time) error {
	f.calls = append(f.calls, planID)
	return f.err
}

type fakeConsumer struct {
	messages []*amqp.PlanSyncMessage
	results  []error
}

func (f *fakeConsumer) ConsumePlanSync(ctx context.Context, handler func(context.Context, *amqp.PlanSyncMessage) error) error {
	for _, m := range f.messages {
		f.results = append(f.results, handler(ctx, m))
	}
	<-ctx.Done()
	return ctx.Err()
}

type fakeSweeper struct {
	started, stopped bool
}

func (f *fakeSweeper) Start(context.Context) error { f.started = true; return nil }
func (f *fakeSweeper) Stop(context.Context) error  { f.stopped = true; return nil }

func TestHandleSyncMessage(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"success", nil, false},
		{"missing plan is acknowledged", fmt.Errorf("get plan: %w", core.ErrNotFound), false},
		{"store failure is retried", errors.New("disk I/O error"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &fakeSyncer{err: tt.err}
			w := NewSyncWorker(syncer, nil, nil)

			err := w.HandleSyncMessage(context.Background(), amqp.NewPlanSyncMessage("plan-1", "request"))
			if (err != nil) != tt.wantErr {
				t.Errorf("HandleSyncMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(syncer.calls) != 1 || syncer.calls[0] != "plan-1" {
				t.Errorf("SyncPlan calls = %v", syncer.calls)
			}
		})
	}
}

func TestSyncWorker_Run(t *testing.T) {
	syncer := &fakeSyncer{}
	consumer := &fakeConsumer{messages: []*amqp.PlanSyncMessage{
		amqp.NewPlanSyncMessage("a", "request"),
		amqp.NewPlanSyncMessage("b", "request"),
	}}
	sweeper := &fakeSweeper{}
	w := NewSyncWorker(syncer, consumer, sweeper)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v", err)
	}
	if !sweeper.started || !sweeper.stopped {
		t.Errorf("sweeper started=%v stopped=%v", sweeper.started, sweeper.stopped)
	}
	if len(syncer.calls) != 2 {
		t.Errorf("SyncPlan calls = %v, want 2", syncer.calls)
	}
	for i, err := range consumer.results {
		if err != nil {
			t.Errorf("message %d handler error: %v", i, err)
		}
	}
}

func TestSyncWorker_RunSweepOnly(t *testing.T) {
	sweeper := &fakeSweeper{}
	w := NewSyncWorker(&fakeSyncer{}, nil, sweeper)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !sweeper.started || !sweeper.stopped {
		t.Errorf("sweeper started=%v stopped=%v", sweeper.started, sweeper.stopped)
	}
}
