package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ledger/memory"
)

type publisherFunc func(ctx context.Context, planID string) error

func (f publisherFunc) PublishPlanSync(ctx context.Context, planID string) error {
	return f(ctx, planID)
}

func TestSyncService_RequestSync(t *testing.T) {
	store := memory.New()
	plan := newPlan(t, store, core.PlanPersonal)

	tests := []struct {
		name       string
		publisher  SyncPublisher
		wantMode   SyncMode
		wantInline bool
	}{
		{
			name:       "no broker",
			wantMode:   SyncInline,
			wantInline: true,
		},
		{
			name:      "queued",
			publisher: publisherFunc(func(context.Context, string) error { return nil }),
			wantMode:  SyncQueued,
		},
		{
			name:       "publish failure falls back",
			publisher:  publisherFunc(func(context.Context, string) error { return errors.New("broker down") }),
			wantMode:   SyncInline,
			wantInline: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inline := false
			syncer := syncerFunc(func(ctx context.Context, planID string, now time.Time) error {
				inline = true
				return nil
			})
			svc := NewSyncService(store, syncer, tt.publisher)

			mode, err := svc.RequestSync(context.Background(), plan.ID)
			if err != nil {
				t.Fatalf("RequestSync: %v", err)
			}
			if mode != tt.wantMode {
				t.Errorf("mode = %q, want %q", mode, tt.wantMode)
			}
			if inline != tt.wantInline {
				t.Errorf("inline sync ran = %v, want %v", inline, tt.wantInline)
			}
		})
	}
}

func TestSyncService_UnknownPlan(t *testing.T) {
	published := false
	svc := NewSyncService(memory.New(), nil, publisherFunc(func(context.Context, string) error {
		published = true
		return nil
	}))
	if _, err := svc.RequestSync(context.Background(), "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if published {
		t.Error("unknown plan should not be published")
	}
}
