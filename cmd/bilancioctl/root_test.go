package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"bilancio/internal/core"
)

// runCLI executes the root command against a fresh SQLite file.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATA_BACKEND", "sqlite")
	t.Setenv("AMQP_URL", "")
	t.Setenv("REDIS_ADDR", "")

	flagPlan, flagAll, flagExpense, flagNoSync = "", false, false, false
	flagAmount, flagMonth, flagYear = "", "", 0

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append(args, "--db", filepath.Join(t.TempDir(), "bilancio.db")))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSyncAll_EmptyStore(t *testing.T) {
	out, err := runCLI(t, "sync", "--all")
	if err != nil {
		t.Fatalf("sync --all: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got["plans"] != float64(0) || got["failed"] != float64(0) {
		t.Errorf("sweep stats = %v, want zero plans and failures", got)
	}
}

func TestSummary_UnknownPlan(t *testing.T) {
	_, err := runCLI(t, "summary", "--plan", "missing")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCommands_RequirePlan(t *testing.T) {
	for _, name := range []string{"summary", "debt-plan", "zero-based", "sync", "export"} {
		t.Run(name, func(t *testing.T) {
			_, err := runCLI(t, name)
			if err == nil || err.Error() != "--plan is required" {
				t.Errorf("err = %v, want --plan is required", err)
			}
		})
	}
}

func TestPay_InvalidAmount(t *testing.T) {
	_, err := runCLI(t, "pay", "debt-1", "--amount=-5")
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestReset_RequiresConfirmation(t *testing.T) {
	flagConfirm = false
	_, err := runCLI(t, "reset")
	if err == nil {
		t.Fatal("reset without --yes should fail")
	}
}

func TestParseMonthArg(t *testing.T) {
	now := time.Date(2025, time.July, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "", want: 7},
		{in: "3", want: 3},
		{in: "march", want: 3},
		{in: "13", wantErr: true},
		{in: "smarch", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMonthArg(tt.in, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseMonthArg(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParsePaidAtFlag(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: ""},
		{in: "2025-03-04T10:00:00Z", want: time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)},
		{in: "2025-03-04", want: time.Date(2025, 3, 4, 0, 0, 0, 0, time.Local)},
		{in: "04/03/2025", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePaidAtFlag(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parsePaidAtFlag(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
