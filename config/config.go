package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Reservation configuration
	HoldTTL   time.Duration
	HoldGrace time.Duration // clock-skew tolerance for start-in-the-past checks

	// Payment configuration
	IntentTTL       time.Duration
	DefaultCurrency string
	Provider        string

	// Reconciler configuration
	HoldSweepInterval   time.Duration
	IntentSweepInterval time.Duration
	SweepBatch          int

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Reservation
		HoldTTL:   getEnvAsDuration("HOLD_TTL", "10m"),
		HoldGrace: getEnvAsDuration("HOLD_GRACE", "60s"),

		// Payment
		IntentTTL:       getEnvAsDuration("INTENT_TTL", "15m"),
		DefaultCurrency: getEnv("DEFAULT_CURRENCY", "EUR"),
		Provider:        getEnv("PAYMENT_PROVIDER", "simulator"),

		// Reconciler
		HoldSweepInterval:   getEnvAsDuration("HOLD_SWEEP_INTERVAL", "60s"),
		IntentSweepInterval: getEnvAsDuration("INTENT_SWEEP_INTERVAL", "60s"),
		SweepBatch:          getEnvAsInt("SWEEP_BATCH", 200),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
