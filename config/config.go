// Package config loads server and CLI settings from the environment,
// optionally seeded from a .env file in the working directory.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/provenance-ledger/provenance"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all configuration for the ledger server.
type Config struct {
	Database DatabaseConfig
	App      AppConfig
	Ledger   provenance.Config
}

type DatabaseConfig struct {
	Driver string
	Path   string // sqlite file, ":memory:" allowed
	URL    string // postgres connection string
}

type AppConfig struct {
	Port           int
	ActorsFile     string
	AllowedOrigins []string
	NotifyInterval time.Duration
}

// Load reads configuration from environment variables. A missing .env
// file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Driver: strings.ToLower(getEnvWithDefault("PROVENANCE_DB_DRIVER", DriverSQLite)),
			Path:   getEnvWithDefault("PROVENANCE_DB_PATH", "provenance.db"),
			URL:    getEnvWithDefault("PROVENANCE_DATABASE_URL", ""),
		},
		App: AppConfig{
			Port:           getEnvAsInt("PROVENANCE_PORT", 8080),
			ActorsFile:     getEnvWithDefault("PROVENANCE_ACTORS_FILE", ""),
			AllowedOrigins: getEnvAsList("PROVENANCE_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
			NotifyInterval: getEnvAsDuration("PROVENANCE_NOTIFY_INTERVAL", 2*time.Second),
		},
		Ledger: provenance.Config{
			StrictCheckpointTimes: getEnvAsBool("PROVENANCE_STRICT_CHECKPOINT_TIMES", false),
			SealOnDelivery:        getEnvAsBool("PROVENANCE_SEAL_ON_DELIVERY", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("PROVENANCE_DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("PROVENANCE_DATABASE_URL is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown PROVENANCE_DB_DRIVER %q (want sqlite, postgres or memory)", c.Database.Driver)
	}

	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("PROVENANCE_PORT must be between 1 and 65535")
	}
	if c.App.NotifyInterval <= 0 {
		return fmt.Errorf("PROVENANCE_NOTIFY_INTERVAL must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if valueStr := os.Getenv(key); valueStr != "" {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if valueStr := os.Getenv(key); valueStr != "" {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr := os.Getenv(key); valueStr != "" {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
