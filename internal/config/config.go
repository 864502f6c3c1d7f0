package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	inventory "fuel-ledger/internal/inventory/domain"
)

// Config is the full service configuration.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	HTTPAddr    string `yaml:"http_addr"`
	TenantID    string `yaml:"tenant_id"`
	JWTSecret   string `yaml:"-"`

	Ledger   LedgerConfig   `yaml:"ledger"`
	Outbox   OutboxConfig   `yaml:"outbox"`
	Activity ActivityConfig `yaml:"activity"`
	Units    []UnitSeed     `yaml:"units"`
}

// LedgerConfig tunes lot sequencing.
type LedgerConfig struct {
	Timezone        string        `yaml:"timezone"`
	LockWait        time.Duration `yaml:"lock_wait"`
	SequenceRetries int           `yaml:"sequence_retries"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	SnapshotCron    string        `yaml:"snapshot_schedule"`
}

// OutboxConfig tunes the activity relay.
type OutboxConfig struct {
	RelaySchedule      string        `yaml:"relay_schedule"`
	BatchSize          int           `yaml:"batch_size"`
	MaxAttempts        int           `yaml:"max_attempts"`
	ProcessedRetention time.Duration `yaml:"processed_retention"`
	PurgeSchedule      string        `yaml:"purge_schedule"`
}

// ActivityConfig selects activity trail sinks.
type ActivityConfig struct {
	AppendTimeout time.Duration `yaml:"append_timeout"`
	KafkaBrokers  []string      `yaml:"kafka_brokers"`
	KafkaTopic    string        `yaml:"kafka_topic"`
	WebhookURL    string        `yaml:"webhook_url"`
	WebhookToken  string        `yaml:"-"`
}

// UnitSeed declares a storage unit registered at startup.
type UnitSeed struct {
	ID             string `yaml:"id"`
	Type           string `yaml:"type"`
	Code           string `yaml:"code"`
	CapacityLiters int64  `yaml:"capacity_liters"`
	Active         *bool  `yaml:"active"`
}

// Load reads .env (optional), environment variables and the YAML file named
// by LEDGER_CONFIG, in that order of precedence from lowest to highest.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := &Config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		TenantID:    getenvDefault("TENANT_ID", "tenant-default"),
		JWTSecret:   getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		Ledger: LedgerConfig{
			Timezone:        getenvDefault("LEDGER_TIMEZONE", "UTC"),
			LockWait:        getenvDuration("LEDGER_LOCK_WAIT", 2*time.Second),
			SequenceRetries: getenvIntDefault("LEDGER_SEQUENCE_RETRIES", 3),
			RetryBackoff:    getenvDuration("LEDGER_RETRY_BACKOFF", 15*time.Millisecond),
			SnapshotCron:    getenvDefault("STOCK_SNAPSHOT_SCHEDULE", "0 6 * * *"),
		},
		Outbox: OutboxConfig{
			RelaySchedule:      getenvDefault("OUTBOX_RELAY_SCHEDULE", "@every 5s"),
			BatchSize:          getenvIntDefault("OUTBOX_BATCH_SIZE", 100),
			MaxAttempts:        getenvIntDefault("OUTBOX_MAX_ATTEMPTS", 5),
			ProcessedRetention: getenvDuration("PROCESSED_EVENTS_RETENTION", 30*24*time.Hour),
			PurgeSchedule:      getenvDefault("PROCESSED_EVENTS_PURGE_SCHEDULE", "30 3 * * *"),
		},
		Activity: ActivityConfig{
			AppendTimeout: getenvDuration("ACTIVITY_APPEND_TIMEOUT", 5*time.Second),
			KafkaBrokers:  splitCSV(os.Getenv("ACTIVITY_KAFKA_BROKERS")),
			KafkaTopic:    getenvDefault("ACTIVITY_KAFKA_TOPIC", "fuel-ledger.activity"),
			WebhookURL:    os.Getenv("ACTIVITY_WEBHOOK_URL"),
			WebhookToken:  os.Getenv("ACTIVITY_WEBHOOK_TOKEN"),
		},
	}

	if path := os.Getenv("LEDGER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.HTTPAddr == "" {
		return errors.New("HTTP_ADDR must not be empty")
	}
	if c.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("LEDGER_TIMEZONE: %w", err)
	}
	if c.Ledger.SequenceRetries < 0 {
		return errors.New("LEDGER_SEQUENCE_RETRIES must be >= 0")
	}
	if c.Outbox.BatchSize <= 0 {
		return errors.New("OUTBOX_BATCH_SIZE must be > 0")
	}
	if c.Outbox.MaxAttempts <= 0 {
		return errors.New("OUTBOX_MAX_ATTEMPTS must be > 0")
	}
	if c.Outbox.RelaySchedule == "" {
		return errors.New("OUTBOX_RELAY_SCHEDULE must not be empty")
	}
	if len(c.Activity.KafkaBrokers) > 0 && c.Activity.KafkaTopic == "" {
		return errors.New("ACTIVITY_KAFKA_TOPIC is required with ACTIVITY_KAFKA_BROKERS")
	}
	for i, seed := range c.Units {
		if _, err := seed.Unit(); err != nil {
			return fmt.Errorf("units[%d]: %w", i, err)
		}
	}
	return nil
}

// Location resolves the ledger timezone used for the default load date.
func (c *Config) Location() (*time.Location, error) {
	if c.Ledger.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Ledger.Timezone)
}

// SeedUnits converts the configured seeds into storage units.
func (c *Config) SeedUnits() ([]inventory.StorageUnit, error) {
	units := make([]inventory.StorageUnit, 0, len(c.Units))
	for _, seed := range c.Units {
		unit, err := seed.Unit()
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, nil
}

// Unit converts a seed into a validated storage unit. Seeds are active unless
// they say otherwise.
func (s UnitSeed) Unit() (inventory.StorageUnit, error) {
	active := true
	if s.Active != nil {
		active = *s.Active
	}
	unit := inventory.StorageUnit{
		ID:             strings.TrimSpace(s.ID),
		UnitType:       inventory.UnitType(strings.ToUpper(strings.TrimSpace(s.Type))),
		UnitCode:       strings.TrimSpace(s.Code),
		CapacityLiters: s.CapacityLiters,
		Active:         active,
	}
	if err := unit.Validate(); err != nil {
		return inventory.StorageUnit{}, err
	}
	return unit, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
