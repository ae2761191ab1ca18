package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"bilancio/internal/backend"
	"bilancio/internal/cli"
	"bilancio/internal/config"
	"bilancio/internal/core"
	apphttp "bilancio/internal/http"
	applog "bilancio/internal/log"
)

var (
	flagPlan     string
	flagDBPath   string
	flagBackend  string
	flagLogLevel string
	flagTimeout  time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "bilancioctl",
	Short:         "Operate on bilancio budget plans",
	Long:          "Read debt summaries and zero-based budgets, record payments and run carryover syncs against the bilancio store.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bilancioctl: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagPlan, "plan", "p", "", "Budget plan ID")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "SQLite database path (overrides SQLITE_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "Data backend: sqlite or memory (overrides DATA_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level for stderr diagnostics")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", time.Minute, "Overall command timeout")
}

// app is the per-invocation wiring shared by every subcommand.
type app struct {
	logger     *applog.Logger
	cfg        *config.Config
	store      *backend.BackendResult
	svc        *cli.Services
	closeCache func() error
}

// loadConfig applies flag overrides on top of the environment.
func loadConfig() (*config.Config, error) {
	cli.LoadEnvFile()
	cfg := config.Load()
	if flagDBPath != "" {
		cfg.SQLiteDBPath = flagDBPath
	}
	if flagBackend != "" {
		cfg.DataBackend = flagBackend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger() *applog.Logger {
	level := applog.ParseLevel(flagLogLevel)
	logger := applog.New(applog.Config{
		Level:     level,
		Component: applog.ComponentCLI,
		Handler:   slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	})
	applog.SetDefault(logger)
	return logger
}

// openApp opens the store and builds the services. Syncs always run inline:
// the CLI is a writer in its own right.
func openApp(ctx context.Context) (*app, error) {
	logger := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := cli.OpenStore(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}
	projections, closeCache := cli.ProjectionCache(ctx, logger, cfg, nil)
	return &app{
		logger:     logger,
		cfg:        cfg,
		store:      store,
		svc:        cli.BuildServices(store.Store, cfg, nil, projections),
		closeCache: closeCache,
	}, nil
}

func (a *app) close() {
	if err := a.closeCache(); err != nil {
		a.logger.Warn("Failed to close projection cache", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close store", "error", err)
	}
}

// withApp runs fn with a bounded context and an open app.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func requirePlan() (string, error) {
	if flagPlan == "" {
		return "", fmt.Errorf("--plan is required")
	}
	return flagPlan, nil
}

// parseMonthArg accepts a month number or name; empty means the current month.
func parseMonthArg(s string, now time.Time) (int, error) {
	if s == "" {
		return int(now.Month()), nil
	}
	m, err := core.ParseMonth(s)
	if err != nil {
		return 0, fmt.Errorf("month %q: %w", s, err)
	}
	return m, nil
}

func formatMonth(m int) string {
	return strconv.Itoa(m)
}

// printJSON writes v as indented JSON using the API's views.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(apphttp.View(v))
}
