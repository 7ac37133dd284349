package config

import (
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	// API Configuration
	APIPort        string
	APIHost        string
	APIEnvironment string

	// Database
	DatabaseDSN string

	// Redis
	RedisURL string

	// Stripe
	StripeSecretKey      string
	StripePublishableKey string
	StripeWebhookSecret  string
	StripePriceProMonthly string
	StripePriceProYearly  string

	// Trials
	TrialPeriodDays int

	// Reconciliation sweep
	SweepSchedule       string
	SweepWorkers        int
	SweepTimeoutMinutes int

	// Sentry
	SentryDSN         string
	SentryEnvironment string

	// Frontend
	FrontendURL string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		// API
		APIPort:        getEnv("API_PORT", "8080"),
		APIHost:        getEnv("API_HOST", "0.0.0.0"),
		APIEnvironment: getEnv("API_ENVIRONMENT", "development"),

		// Database
		DatabaseDSN: getEnv("DATABASE_DSN", "draftboard:localdev@tcp(localhost:3306)/draftboard?charset=utf8mb4&parseTime=True&loc=Local"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		// Stripe
		StripeSecretKey:       getEnv("STRIPE_SECRET_KEY", ""),
		StripePublishableKey:  getEnv("STRIPE_PUBLISHABLE_KEY", ""),
		StripeWebhookSecret:   getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripePriceProMonthly: getEnv("STRIPE_PRICE_PRO_MONTHLY", ""),
		StripePriceProYearly:  getEnv("STRIPE_PRICE_PRO_YEARLY", ""),

		// Trials
		TrialPeriodDays: getEnvAsInt("TRIAL_PERIOD_DAYS", 14),

		// Sweep
		SweepSchedule:       getEnv("SWEEP_SCHEDULE", "0 */6 * * *"),
		SweepWorkers:        getEnvAsInt("SWEEP_WORKERS", 4),
		SweepTimeoutMinutes: getEnvAsInt("SWEEP_TIMEOUT_MINUTES", 30),

		// Sentry
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", getEnv("API_ENVIRONMENT", "development")),

		// Frontend
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
