package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"bilancio/internal/core"
)

func TestParseMonthParams(t *testing.T) {
	now := time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		query     url.Values
		wantYear  int
		wantMonth int
		wantErr   bool
	}{
		{"defaults to now", url.Values{}, 2025, 4, false},
		{"explicit", url.Values{"year": {"2024"}, "month": {"11"}}, 2024, 11, false},
		{"month name", url.Values{"month": {"february"}}, 2025, 2, false},
		{"month 13", url.Values{"month": {"13"}}, 0, 0, true},
		{"bad year", url.Values{"year": {"abc"}}, 0, 0, true},
		{"negative year", url.Values{"year": {"-1"}}, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMonthParams(tt.query, now)
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidMonth) {
					t.Errorf("error = %v, want ErrInvalidMonth", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMonthParams: %v", err)
			}
			if got.Year != tt.wantYear || got.Month != tt.wantMonth {
				t.Errorf("got %d-%d, want %d-%d", got.Year, got.Month, tt.wantYear, tt.wantMonth)
			}
		})
	}
}

func TestQueryParams(t *testing.T) {
	q := url.Values{"sync": {"false"}, "bad": {"nope"}, "n": {"12"}, "f": {"12,5"}, "neg": {"-3"}}

	if v, err := ParseBoolParam(q, "sync", true); err != nil || v {
		t.Errorf("sync = %v, %v", v, err)
	}
	if v, _ := ParseBoolParam(q, "missing", true); !v {
		t.Error("missing bool should use the default")
	}
	if _, err := ParseBoolParam(q, "bad", true); err == nil {
		t.Error("expected error for non-boolean")
	}

	if v, err := ParseOptionalInt(q, "n"); err != nil || v == nil || *v != 12 {
		t.Errorf("n = %v, %v", v, err)
	}
	if v, err := ParseOptionalInt(q, "missing"); err != nil || v != nil {
		t.Errorf("missing int = %v, %v", v, err)
	}
	if _, err := ParseOptionalInt(q, "f"); err == nil {
		t.Error("expected error for non-integer")
	}

	if v, err := ParseNonNegativeFloat(q, "f"); err != nil || v != 12.5 {
		t.Errorf("f = %v, %v", v, err)
	}
	if _, err := ParseNonNegativeFloat(q, "neg"); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("negative float error = %v", err)
	}
	if _, err := ParseNonNegativeFloat(url.Values{"x": {"NaN"}}, "x"); err == nil {
		t.Error("expected error for NaN")
	}
}

func TestRequestBodyParser(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		key      string
		want     string
		wantJSON bool
	}{
		{"json string", `{"source":"savings"}`, "source", "savings", true},
		{"json number", `{"amount":12.5}`, "amount", "12.5", true},
		{"json missing key", `{"amount":1}`, "source", "", true},
		{"form", "source=income&amount=3", "source", "income", false},
		{"control characters stripped", "source=inc%00ome", "source", "income", false},
		{"empty body", "", "source", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			p := NewRequestBodyParser(req)
			if err := p.Parse(); err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got := p.Get(tt.key); got != tt.want {
				t.Errorf("Get(%q) = %q, want %q", tt.key, got, tt.want)
			}
			if p.IsJSON() != tt.wantJSON {
				t.Errorf("IsJSON = %v", p.IsJSON())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":`))
	if err := NewRequestBodyParser(req).Parse(); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestParseDebtPaymentRequest(t *testing.T) {
	body := `{"amount":"12,34","source":"credit_card","cardDebtId":"card-1","paidAt":"2025-04-02","year":2025,"month":3}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	got, err := ParseDebtPaymentRequest(req, "plan-1", "debt-1")
	if err != nil {
		t.Fatalf("ParseDebtPaymentRequest: %v", err)
	}
	if got.PlanID != "plan-1" || got.DebtID != "debt-1" || got.Amount.Cents != 1234 {
		t.Errorf("ids/amount = %+v", got)
	}
	if got.Source != core.SourceCreditCard || got.CardDebtID != "card-1" || got.Year != 2025 || got.Month != 3 {
		t.Errorf("source/booking = %+v", got)
	}
	if !got.PaidAt.Equal(time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("PaidAt = %v", got.PaidAt)
	}

	for _, bad := range []string{`{"amount":"0"}`, `{"amount":"5","paidAt":"yesterday"}`, `{"amount":"5","month":"march"}`} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(bad))
		if _, err := ParseDebtPaymentRequest(req, "p", "d"); err == nil {
			t.Errorf("%s: expected error", bad)
		}
	}
}
