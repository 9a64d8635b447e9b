package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port           string `envconfig:"PORT" default:"8080"`
	DatabaseURL    string `envconfig:"DATABASE_URL" required:"true"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"migrations"`
	JWTSecret      string `envconfig:"JWT_SECRET" required:"true"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	RabbitURL      string `envconfig:"RABBITMQ_URL"`
	EventsExchange string `envconfig:"EVENTS_EXCHANGE" default:"skibook.events"`

	OmisePublicKey   string `envconfig:"OMISE_PUBLIC_KEY"`
	OmiseSecretKey   string `envconfig:"OMISE_SECRET_KEY"`
	OmiseSourceType  string `envconfig:"OMISE_SOURCE_TYPE" default:"promptpay"`
	PaymentReturnURL string `envconfig:"PAYMENT_RETURN_URL" default:"http://localhost:8080/payments/return"`
	Currency         string `envconfig:"CURRENCY" default:"RUB"`

	// Slot dates and times are wall-clock values in this zone.
	Timezone string `envconfig:"TIMEZONE" default:"Europe/Moscow"`

	HoldTTL           time.Duration `envconfig:"HOLD_TTL" default:"15m"`
	SweepInterval     time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"5m"`
	PendingTimeout    time.Duration `envconfig:"PENDING_TIMEOUT" default:"30m"`

	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"10"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"20"`

	// Provider webhooks get their own, looser per-IP bucket.
	WebhookRateLimitRPS   float64 `envconfig:"WEBHOOK_RATE_LIMIT_RPS" default:"50"`
	WebhookRateLimitBurst int     `envconfig:"WEBHOOK_RATE_LIMIT_BURST" default:"100"`
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.HoldTTL <= 0 || c.SweepInterval <= 0 || c.ReconcileInterval <= 0 || c.PendingTimeout <= 0 {
		return errors.New("durations must be positive")
	}
	// a pending transaction must outlive its hold, otherwise the poller races the sweep
	if c.PendingTimeout <= c.HoldTTL {
		return errors.New("PENDING_TIMEOUT must be greater than HOLD_TTL")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 || c.WebhookRateLimitRPS <= 0 || c.WebhookRateLimitBurst <= 0 {
		return errors.New("rate limit settings must be positive")
	}
	return nil
}

// PaymentsEnabled reports whether bank acquiring credentials are configured.
func (c *Config) PaymentsEnabled() bool {
	return c.OmisePublicKey != "" && c.OmiseSecretKey != ""
}

// Location returns the business time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
