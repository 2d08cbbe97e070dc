package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	validator "github.com/go-playground/validator/v10"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreSupabase = "supabase"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int    `validate:"min=1,max=65535"`
	LogLevel string `validate:"oneof=debug info warn error"`
	LogFile  string

	// Storage
	StoreBackend string `validate:"oneof=memory redis supabase"`

	RedisAddr     string `validate:"required_if=StoreBackend redis"`
	RedisPassword string
	RedisDB       int `validate:"min=0"`

	SupabaseURL        string `validate:"required_if=StoreBackend supabase,omitempty,url"`
	SupabaseAnonKey    string
	SupabaseServiceKey string `validate:"required_if=StoreBackend supabase"`

	// PIX gateway. Empty means codes are issued locally.
	PixGatewayURL string `validate:"omitempty,url"`

	// HTTP client
	HTTPTimeout time.Duration `validate:"gt=0"`

	// Resilience
	MaxRetries     int           `validate:"min=0"`
	InitialBackoff time.Duration `validate:"gte=0"`
	MaxConcurrency int           `validate:"min=1"`

	// Idempotent replay of withdrawals
	IdempotencyTTL time.Duration `validate:"gt=0"`

	// Observability
	OTLPEndpoint string

	// JWT / Auth
	JWTSecret    string        `validate:"required,min=16"`
	JWTAccessTTL time.Duration `validate:"gt=0"`

	// Shared secrets for the payment webhooks and the operator API.
	WebhookSecret string `validate:"required"`
	AdminToken    string `validate:"required"`

	// Ledger
	Timezone       string
	DailyResetCron string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		StoreBackend: getEnv("STORE_BACKEND", StoreMemory),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		PixGatewayURL: getEnv("PIX_GATEWAY_URL", ""),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		IdempotencyTTL: getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		JWTSecret:    getEnv("JWT_SECRET", "ledger-default-dev-secret-change-me"),
		JWTAccessTTL: getEnvDuration("JWT_ACCESS_TTL", 24*time.Hour),

		WebhookSecret: getEnv("WEBHOOK_SECRET", "dev-webhook-secret"),
		AdminToken:    getEnv("ADMIN_TOKEN", "dev-admin-token"),

		Timezone:       getEnv("LEDGER_TIMEZONE", "America/Sao_Paulo"),
		DailyResetCron: getEnv("DAILY_RESET_CRON", ""),
	}
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("validate config: LEDGER_TIMEZONE: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
