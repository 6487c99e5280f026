package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Port        string
	DBUrl       string
	JWTSecret   string
	AppEnv      string
	StoreDriver string
	RedisURL    string

	StripeSecretKey     string
	StripeWebhookSecret string

	AMQPURL      string
	AMQPExchange string

	CancelCutoff   time.Duration
	RefundOnCancel bool
	PassPlansFile  string

	OTelEnabled       bool
	OTelCollectorAddr string
	OTelSampleRatio   float64
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cancelCutoff, err := getEnvDuration("CANCEL_CUTOFF", 2*time.Hour)
	if err != nil {
		return nil, err
	}
	if cancelCutoff <= 0 {
		return nil, fmt.Errorf("CANCEL_CUTOFF must be positive")
	}

	storeDriver := strings.ToLower(strings.TrimSpace(getEnv("STORE_DRIVER", StoreDriverPostgres)))
	switch storeDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", storeDriver)
	}

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		DBUrl:               getEnv("DB_URL", ""),
		JWTSecret:           jwtSecret,
		AppEnv:              normalizeEnv(getEnv("APP_ENV", "production")),
		StoreDriver:         storeDriver,
		RedisURL:            getEnv("REDIS_URL", ""),
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		AMQPURL:             getEnv("AMQP_URL", ""),
		AMQPExchange:        getEnv("AMQP_EXCHANGE", "studio.events"),
		CancelCutoff:        cancelCutoff,
		RefundOnCancel:      getEnvBool("REFUND_ON_CANCEL", false),
		PassPlansFile:       getEnv("PASS_PLANS_FILE", ""),
		OTelEnabled:         getEnvBool("OTEL_ENABLED", false),
		OTelCollectorAddr:   getEnv("OTEL_COLLECTOR_ADDR", "localhost:4317"),
		OTelSampleRatio:     1.0,
	}

	if cfg.StoreDriver == StoreDriverPostgres && cfg.DBUrl == "" {
		return nil, fmt.Errorf("DB_URL is required when STORE_DRIVER=%s", StoreDriverPostgres)
	}
	if cfg.StoreDriver == StoreDriverMemory && cfg.AppEnv == "production" {
		return nil, fmt.Errorf("STORE_DRIVER=%s is not allowed in production", StoreDriverMemory)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
