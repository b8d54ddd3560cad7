package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port               string
	LogLevel           string
	RateLimitPerMinute int

	// Database
	SQLiteDBPath string

	// Accrual trigger and scheduler
	CronSecret      string
	AccrualTimezone string
	AccrualWorkers  int
	AccrualInterval time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Ledger export
	LedgerBackend         string
	GoogleSpreadsheetID   string
	GoogleLedgerSheetName string
	ExportBatchSize       int
	ExportInterval        time.Duration
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/cashflow.db"),

		CronSecret:      getEnv("CRON_SECRET", ""),
		AccrualTimezone: getEnv("ACCRUAL_TIMEZONE", "Local"),
		AccrualWorkers:  getEnvInt("ACCRUAL_WORKERS", 4),
		AccrualInterval: getEnvDuration("ACCRUAL_INTERVAL", time.Hour),

		// Empty disables snapshot events; exports then rely on the backfill.
		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "cashflow"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "snapshot_export"),

		LedgerBackend:         getEnv("LEDGER_BACKEND", "memory"),
		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleLedgerSheetName: getEnv("GOOGLE_LEDGER_SHEET_NAME", "Interest Ledger"),
		ExportBatchSize:       getEnvInt("EXPORT_BATCH_SIZE", 50),
		ExportInterval:        getEnvDuration("EXPORT_INTERVAL", 5*time.Minute),
	}
}

// Location resolves AccrualTimezone; "Local" and "" mean the process time zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.AccrualTimezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.AccrualTimezone)
	if err != nil {
		return nil, fmt.Errorf("load accrual timezone %q: %w", c.AccrualTimezone, err)
	}
	return loc, nil
}

// Validate validates the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid accrual timezone '%s'", c.AccrualTimezone))
	}

	if c.AccrualWorkers < 1 || c.AccrualWorkers > 64 {
		errors = append(errors, fmt.Sprintf("invalid accrual workers %d: must be between 1 and 64", c.AccrualWorkers))
	}

	if c.AccrualInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid accrual interval %v: must be at least 1 minute", c.AccrualInterval))
	} else if c.AccrualInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid accrual interval %v: must be at most 24 hours", c.AccrualInterval))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
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

	switch c.LedgerBackend {
	case "memory":
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets ledger backend")
		}
		if c.GoogleLedgerSheetName == "" {
			errors = append(errors, "Google ledger sheet name is required when using sheets ledger backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid ledger backend '%s': must be one of [memory sheets]", c.LedgerBackend))
	}

	if c.ExportBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid export batch size %d: must be at least 1", c.ExportBatchSize))
	} else if c.ExportBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid export batch size %d: must be at most 1000", c.ExportBatchSize))
	}

	if c.ExportInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid export interval %v: must be at least 1 second", c.ExportInterval))
	} else if c.ExportInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid export interval %v: must be at most 24 hours", c.ExportInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
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
