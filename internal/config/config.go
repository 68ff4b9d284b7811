// Package config loads process configuration from the environment. A .env
// file in the working directory is read first when present; variables
// already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is shared by the server, worker and seed binaries.
type Config struct {
	AppEnv   string
	LogLevel string
	Port     string

	DatabaseURL string
	DBMaxConns  int

	JWTSecret          string
	IdempotencyEnabled bool
	IdempotencyTTL     time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	ConsulAddr  string
	ServiceName string
	ServiceID   string

	OutboxBatchSize int
	OutboxInterval  time.Duration
	CleanupInterval time.Duration

	// SyncInterval enables periodic snapshot rebuilds in the worker when > 0
	SyncInterval time.Duration
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Load reads configuration. DATABASE_URL is required.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnv("APP_PORT", "8080"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 25),

		JWTSecret:          getEnv("JWT_SECRET", "dev-secret-change-in-production"),
		IdempotencyEnabled: getEnvBool("IDEMPOTENCY_ENABLED", true),
		IdempotencyTTL:     getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),

		KafkaBrokers: getEnvList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "stockledger.events"),

		ConsulAddr:  os.Getenv("CONSUL_ADDR"),
		ServiceName: getEnv("SERVICE_NAME", "stockledger"),
		ServiceID:   getEnv("SERVICE_ID", "stockledger-1"),

		OutboxBatchSize: getEnvInt("OUTBOX_BATCH_SIZE", 100),
		OutboxInterval:  getEnvDuration("OUTBOX_INTERVAL", time.Second),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", time.Hour),
		SyncInterval:    getEnvDuration("SYNC_INTERVAL", 0),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("required environment variable DATABASE_URL not set")
	}
	if !cfg.IsDevelopment() && strings.HasPrefix(cfg.JWTSecret, "dev-") {
		return nil, fmt.Errorf("JWT_SECRET must be set outside development")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
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

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
