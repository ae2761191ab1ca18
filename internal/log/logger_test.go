package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer, component string) *Logger {
	return New(Config{
		Component: component,
		Handler:   slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLogger_ComponentField(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, ComponentCarryover)

	logger.InfoContext(context.Background(), "Shadow debt upserted", FieldPlanID, "p1", FieldCycle, "2025-03")

	out := buf.String()
	for _, want := range []string{"component=carryover", "plan_id=p1", "cycle=2025-03"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
	if logger.WithComponent(ComponentWorker).Component() != ComponentWorker {
		t.Error("WithComponent did not change the component")
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().WithPlan("p1", "").WithError(nil).WithPayment(1500, "income")
	if _, ok := f[FieldDebtID]; ok {
		t.Error("empty debt id should be omitted")
	}
	if _, ok := f[FieldError]; ok {
		t.Error("nil error should be omitted")
	}
	if f[FieldAmountCents] != int64(1500) || len(f.ToSlice()) != 2*len(f) {
		t.Errorf("fields = %v", f)
	}
	f.WithError(errors.New("boom"))
	if f[FieldError] != "boom" {
		t.Errorf("error field = %v", f[FieldError])
	}
}

func TestMiddleware_FromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, ComponentHTTP)

	var got *Logger
	h := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
			got.InfoContext(r.Context(), "inside")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if got == nil || got.Component() != ComponentHTTP {
		t.Fatalf("FromContext = %+v", got)
	}
	if !strings.Contains(buf.String(), "request_id=req-1") {
		t.Errorf("request id not propagated: %q", buf.String())
	}
	if FromContext(context.Background()).Component() != "unknown" {
		t.Error("empty context should yield the default logger")
	}
}

func TestStructuredLogger_HTTPLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{200, "level=INFO"},
		{404, "level=WARN"},
		{500, "level=ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			sl := NewStructuredLogger(newBufferLogger(&buf, ComponentHTTP))
			sl.LogHTTPEnd(context.Background(), httptest.NewRequest(http.MethodGet, "/api/plans/p1/debts/summary", nil), tt.status, 3, "127.0.0.1")
			if !strings.Contains(buf.String(), tt.level) {
				t.Errorf("output %q missing %q", buf.String(), tt.level)
			}
		})
	}
}

func TestLogger_SingleComponentAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, ComponentApp).
		With(FieldPlanID, "p1").
		WithComponent(ComponentWorker)

	logger.Info("Plan sweep completed")

	out := buf.String()
	if n := strings.Count(out, "component="); n != 1 {
		t.Errorf("component attr appears %d times in %q", n, out)
	}
	if !strings.Contains(out, "component=worker") || !strings.Contains(out, "plan_id=p1") {
		t.Errorf("output %q missing worker component or plan id", out)
	}
}

func TestStructuredLogger_LogErrorComponent(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf, ComponentHTTP))

	sl.LogError(context.Background(), "Sync failed", errors.New("boom"), ComponentCarryover, OpSync, nil)

	out := buf.String()
	for _, want := range []string{"level=ERROR", "component=carryover", "operation=sync", "error=boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "component=http") {
		t.Errorf("output %q kept the caller's component", out)
	}
}
