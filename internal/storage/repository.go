package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/ledger"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db *sql.DB
}

var _ ledger.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// single writer; keeps read-modify-write transactions serialized
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func newID() string { return uuid.NewString() }

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
}

type scanner interface {
	Scan(dest ...any) error
}

// Plans

const planColumns = `id, name, kind, pay_date, monthly_allowance_cents, monthly_savings_cents,
	monthly_emergency_cents, monthly_investment_cents, created_at`

func scanPlan(row scanner) (core.BudgetPlan, error) {
	var (
		p         core.BudgetPlan
		kind      string
		createdAt string
	)
	err := row.Scan(&p.ID, &p.Name, &kind, &p.PayDate,
		&p.MonthlyAllowance.Cents, &p.MonthlySavingsContribution.Cents,
		&p.MonthlyEmergencyContribution.Cents, &p.MonthlyInvestmentContribution.Cents, &createdAt)
	if err != nil {
		return core.BudgetPlan{}, err
	}
	p.Kind = core.PlanKind(kind)
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

func (r *SQLiteRepository) GetPlan(ctx context.Context, planID string) (core.BudgetPlan, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM budget_plans WHERE id = ?`, planID)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetPlan{}, notFound("plan", planID)
	}
	if err != nil {
		return core.BudgetPlan{}, fmt.Errorf("get plan %s: %w", planID, err)
	}
	return p, nil
}

func (r *SQLiteRepository) ListPlans(ctx context.Context) ([]core.BudgetPlan, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+planColumns+` FROM budget_plans ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []core.BudgetPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreatePlan(ctx context.Context, p core.BudgetPlan) (core.BudgetPlan, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.Kind == "" {
		p.Kind = core.PlanPersonal
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO budget_plans (`+planColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, string(p.Kind), p.PayDate,
		p.MonthlyAllowance.Cents, p.MonthlySavingsContribution.Cents,
		p.MonthlyEmergencyContribution.Cents, p.MonthlyInvestmentContribution.Cents, formatTime(p.CreatedAt))
	if err != nil {
		return core.BudgetPlan{}, fmt.Errorf("create plan: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) planExists(ctx context.Context, planID string) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM budget_plans WHERE id = ?`, planID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("plan", planID)
	}
	if err != nil {
		return fmt.Errorf("check plan %s: %w", planID, err)
	}
	return nil
}
