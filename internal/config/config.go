// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"
	LogFile   string // optional rotating file sink

	// Storage
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)
	SQLitePath  string // optional local catalog database, used when DatabaseURL is empty

	// Marketplace economics
	PlatformFeeRate   string        // decimal fraction in [0,1], e.g. "0.10"
	PlatformAccountID string        // ledger account that collects fees
	OfferTTL          time.Duration // 0 keeps offers open until confirmed or cancelled

	// Background checks
	ReconcileInterval time.Duration

	// Deposits
	StripeSecretKey     string
	StripeWebhookSecret string

	// Security
	AdminSecret  string
	RateLimitRPM int
	CORSOrigins  []string // empty allows every origin

	// Observability
	OTLPEndpoint string
}

const (
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultPlatformFeeRate   = "0.10"
	DefaultPlatformAccountID = "platform"
	DefaultRateLimit         = 120
	DefaultReconcileInterval = 5 * time.Minute
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:           getEnv("LOG_FORMAT", DefaultLogFormat),
		LogFile:             os.Getenv("LOG_FILE"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		SQLitePath:          os.Getenv("SQLITE_PATH"),
		PlatformFeeRate:     getEnv("PLATFORM_FEE_RATE", DefaultPlatformFeeRate),
		PlatformAccountID:   getEnv("PLATFORM_ACCOUNT_ID", DefaultPlatformAccountID),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		AdminSecret:         os.Getenv("ADMIN_SECRET"),
		RateLimitRPM:        int(getEnvInt64("RATE_LIMIT_RPM", int64(DefaultRateLimit))),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		CORSOrigins:         getEnvList("CORS_ORIGINS"),
	}

	ttl, err := getEnvDuration("OFFER_TTL", 0)
	if err != nil {
		return nil, err
	}
	cfg.OfferTTL = ttl

	interval, err := getEnvDuration("RECONCILE_INTERVAL", DefaultReconcileInterval)
	if err != nil {
		return nil, err
	}
	cfg.ReconcileInterval = interval

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	rate, err := decimal.NewFromString(c.PlatformFeeRate)
	if err != nil {
		return fmt.Errorf("PLATFORM_FEE_RATE must be a decimal fraction: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("PLATFORM_FEE_RATE must be between 0 and 1")
	}
	if c.PlatformAccountID == "" {
		return fmt.Errorf("PLATFORM_ACCOUNT_ID is required")
	}
	if c.OfferTTL < 0 {
		return fmt.Errorf("OFFER_TTL must not be negative")
	}
	if c.ReconcileInterval < 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must not be negative")
	}
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}
	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" && c.IsProduction() {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when card deposits are enabled")
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

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
