package google

import (
	"context"
	"strings"
	"testing"

	"bilancio/internal/core"
	ports "bilancio/internal/sheets"
)

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewSheetsService_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", "")
	t.Setenv("GOOGLE_OAUTH_CLIENT_FILE", "")

	_, err := newSheetsService(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing credentials") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewSheetsService_UnreadableFile(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", t.TempDir()+"/missing.json")

	_, err := newSheetsService(context.Background())
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Bilancio", 2025, "2025 Bilancio"},
		{"  Bilancio ", 2025, "2025 Bilancio"},
		{"2024 Bilancio", 2025, "2024 Bilancio"},
		{"1800 Archive", 2025, "2025 1800 Archive"},
		{"", 2025, ""},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
				t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
			}
		})
	}
}

func TestNewClient_DefaultSheet(t *testing.T) {
	c := newClient(nil, "sheet-id", "")
	if got := c.sheetName(2025); got != "2025 Bilancio" {
		t.Errorf("sheetName = %q", got)
	}
}

func TestAppendSummary_Validation(t *testing.T) {
	c := newClient(nil, "sheet-id", "Bilancio")
	ctx := context.Background()

	tests := []struct {
		name string
		row  ports.SummaryRow
		want string
	}{
		{"missing plan", ports.SummaryRow{Month: "2025-03"}, "plan name is required"},
		{"bad month", ports.SummaryRow{PlanName: "Home", Month: "2025-13"}, "validation failed"},
		{"no service", ports.SummaryRow{PlanName: "Home", Month: core.NewMonthKey(2025, 3)}, "sheets service not initialized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.AppendSummary(ctx, tt.row)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("AppendSummary() error = %v, want %q", err, tt.want)
			}
		})
	}

	if _, err := c.ListSummaries(ctx, 2025); err == nil {
		t.Error("ListSummaries without service should fail")
	}
}
