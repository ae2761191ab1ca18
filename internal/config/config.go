package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bilancio/internal/services"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Storage
	DataBackend  string
	SQLiteDBPath string

	// AMQP; an empty URL disables the queue and syncs run inline
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Redis; an empty address keeps the projection cache in process
	RedisAddr string

	// Carryover
	AccrualGraceDays int
	ExpenseGraceDays int
	DefaultPayDay    int
	MaxCatchUpCycles int
	SyncTimeout      time.Duration
	SyncInterval     time.Duration

	// Projection
	ProjectionMaxMonths int
	ProjectionCacheSize int
	ProjectionCacheTTL  time.Duration

	// Google Sheets export
	GoogleSpreadsheetID string
	GoogleSheetName     string

	LogLevel string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/bilancio.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "bilancio"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "plan.sync"),

		RedisAddr: getEnv("REDIS_ADDR", ""),

		AccrualGraceDays: getEnvInt("ACCRUAL_GRACE_DAYS", 5),
		ExpenseGraceDays: getEnvInt("EXPENSE_GRACE_DAYS", 0),
		DefaultPayDay:    getEnvInt("DEFAULT_PAY_DAY", 27),
		MaxCatchUpCycles: getEnvInt("MAX_CATCH_UP_CYCLES", 12),
		SyncTimeout:      getEnvDuration("SYNC_TIMEOUT", 5*time.Second),
		SyncInterval:     getEnvDuration("SYNC_INTERVAL", time.Hour),

		ProjectionMaxMonths: getEnvInt("PROJECTION_MAX_MONTHS", services.DefaultProjectionMaxMonths),
		ProjectionCacheSize: getEnvInt("PROJECTION_CACHE_SIZE", 256),
		ProjectionCacheTTL:  getEnvDuration("PROJECTION_CACHE_TTL", 10*time.Minute),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Bilancio"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Carryover returns the carryover settings.
func (c *Config) Carryover() services.CarryoverConfig {
	return services.CarryoverConfig{
		ExpenseGraceDays: c.ExpenseGraceDays,
		AccrualGraceDays: c.AccrualGraceDays,
		MaxCatchUpCycles: c.MaxCatchUpCycles,
		DefaultPayDay:    c.DefaultPayDay,
	}
}

// Sweep returns the background sweep settings.
func (c *Config) Sweep() services.SweepConfig {
	cfg := services.DefaultSweepConfig()
	cfg.Interval = c.SyncInterval
	return cfg
}

// Validate validates the configuration and returns every problem at once
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DataBackend {
	case "memory":
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of [memory sqlite]", c.DataBackend))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.AccrualGraceDays < 0 || c.AccrualGraceDays > 27 {
		errors = append(errors, fmt.Sprintf("invalid accrual grace days %d: must be between 0 and 27", c.AccrualGraceDays))
	}
	if c.ExpenseGraceDays < 0 || c.ExpenseGraceDays > 27 {
		errors = append(errors, fmt.Sprintf("invalid expense grace days %d: must be between 0 and 27", c.ExpenseGraceDays))
	}
	if c.DefaultPayDay < 1 || c.DefaultPayDay > 31 {
		errors = append(errors, fmt.Sprintf("invalid default pay day %d: must be between 1 and 31", c.DefaultPayDay))
	}
	if c.MaxCatchUpCycles < 1 || c.MaxCatchUpCycles > 120 {
		errors = append(errors, fmt.Sprintf("invalid max catch-up cycles %d: must be between 1 and 120", c.MaxCatchUpCycles))
	}

	if c.SyncTimeout <= 0 || c.SyncTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid sync timeout %v: must be positive and at most 1 minute", c.SyncTimeout))
	}
	if c.SyncInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 minute", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if c.ProjectionMaxMonths < 1 || c.ProjectionMaxMonths > 600 {
		errors = append(errors, fmt.Sprintf("invalid projection max months %d: must be between 1 and 600", c.ProjectionMaxMonths))
	}
	if c.ProjectionCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid projection cache size %d: must be at least 1", c.ProjectionCacheSize))
	}
	if c.ProjectionCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid projection cache TTL %v: must be positive", c.ProjectionCacheTTL))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateExport checks the settings the Sheets export needs.
func (c *Config) ValidateExport() error {
	if strings.TrimSpace(c.GoogleSpreadsheetID) == "" {
		return fmt.Errorf("GOOGLE_SPREADSHEET_ID is required for export")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
