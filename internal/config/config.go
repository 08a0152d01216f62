// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Webhook ingestion
	WebhookSecret  string        // Per-provider HMAC secret for inbound bank events
	HandlerTimeout time.Duration // Deadline for processing a single webhook event

	// Classifier
	ModelPath      string  // Path to the persisted model artifact
	AlertThreshold float64 // Gambling confidence required to fire an alert
	LexiconPath    string  // Optional YAML merchant lexicon override

	// Alert delivery
	NotifyURL    string // Guardian notification collaborator endpoint (optional)
	NotifySecret string // HMAC secret for signing outbound alerts

	// Security
	AdminSecret  string // Admin API secret (retrain, whitelist admin)
	RateLimitRPS int

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; empty disables tracing
}

const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultModelPath      = "data/model.json"
	DefaultAlertThreshold = 0.5
	DefaultHandlerTimeout = 5 * time.Second
	DefaultRateLimit      = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", DefaultPort),
		Env:            getEnv("ENV", DefaultEnv),
		LogLevel:       getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:    os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		WebhookSecret:  os.Getenv("WEBHOOK_SECRET"),
		HandlerTimeout: getEnvDuration("HANDLER_TIMEOUT", DefaultHandlerTimeout),
		ModelPath:      getEnv("MODEL_PATH", DefaultModelPath),
		AlertThreshold: getEnvFloat("ALERT_THRESHOLD", DefaultAlertThreshold),
		LexiconPath:    os.Getenv("LEXICON_PATH"),
		NotifyURL:      os.Getenv("NOTIFY_URL"),
		NotifySecret:   os.Getenv("NOTIFY_SECRET"),
		AdminSecret:    os.Getenv("ADMIN_SECRET"),
		RateLimitRPS:   int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required")
	}
	if c.AlertThreshold < 0 || c.AlertThreshold > 1 {
		return fmt.Errorf("ALERT_THRESHOLD must be in [0, 1], got %v", c.AlertThreshold)
	}
	if c.HandlerTimeout <= 0 {
		return fmt.Errorf("HANDLER_TIMEOUT must be positive")
	}
	if c.NotifyURL != "" && c.NotifySecret == "" {
		return fmt.Errorf("NOTIFY_SECRET is required when NOTIFY_URL is set")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
