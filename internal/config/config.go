package config

import (
	"errors"
	"fmt"
	"time"

	"portfolio_backend/internal/logger"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	AppPort    string `env:"APP_PORT" envDefault:"8080"`
	AppVersion string `env:"APP_VERSION" envDefault:"dev"`
	JWTSecret  string `env:"JWT_SECRET"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"data/ledger.db"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`

	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	LedgerCacheTTL time.Duration `env:"LEDGER_CACHE_TTL" envDefault:"30s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"false"`

	// Ledger rules
	CatalogPath        string `env:"CATALOG_PATH"`
	InitialCredits     int64  `env:"INITIAL_CREDITS" envDefault:"0"`
	EventRewardCredits int64  `env:"EVENT_REWARD_CREDITS" envDefault:"100"`
	EventRewardMax     int64  `env:"EVENT_REWARD_MAX" envDefault:"0"`
	TxMaxAttempts      int    `env:"TX_MAX_ATTEMPTS" envDefault:"5"`

	// Payment gateway
	RazorpayKeyID         string `env:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret     string `env:"RAZORPAY_KEY_SECRET"`
	RazorpayWebhookSecret string `env:"RAZORPAY_WEBHOOK_SECRET"`
	RazorpayBaseURL       string `env:"RAZORPAY_BASE_URL"`
	ReconcileSchedule     string `env:"RECONCILE_SCHEDULE" envDefault:"@every 1m"`

	// Admin bot
	AdminBotEnabled  bool    `env:"ADMIN_BOT_ENABLED" envDefault:"false"`
	AdminBotToken    string  `env:"ADMIN_BOT_TOKEN"`
	AdminTelegramIDs []int64 `env:"ADMIN_TELEGRAM_IDS" envSeparator:","`

	// HTTP
	AllowedOrigin      string        `env:"ALLOWED_ORIGIN"`
	APIRateLimit       int           `env:"API_RATE_LIMIT" envDefault:"120"`
	APIRateWindow      time.Duration `env:"API_RATE_WINDOW" envDefault:"1m"`
	PurchaseRateLimit  int           `env:"PURCHASE_RATE_LIMIT" envDefault:"20"`
	PurchaseRateWindow time.Duration `env:"PURCHASE_RATE_WINDOW" envDefault:"1m"`

	// Tracing
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load for binaries: it exits on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	return cfg
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is not set"))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.StoreDriver))
	}
	if c.InitialCredits < 0 {
		errs = append(errs, errors.New("INITIAL_CREDITS must not be negative"))
	}
	if c.EventRewardCredits <= 0 {
		errs = append(errs, errors.New("EVENT_REWARD_CREDITS must be positive"))
	}
	if c.EventRewardMax < 0 || (c.EventRewardMax > 0 && c.EventRewardCredits > c.EventRewardMax) {
		errs = append(errs, errors.New("EVENT_REWARD_CREDITS exceeds EVENT_REWARD_MAX"))
	}
	if c.TxMaxAttempts < 1 {
		errs = append(errs, errors.New("TX_MAX_ATTEMPTS must be at least 1"))
	}
	if c.AdminBotEnabled && c.AdminBotToken == "" {
		errs = append(errs, errors.New("ADMIN_BOT_TOKEN is required when ADMIN_BOT_ENABLED"))
	}
	return errors.Join(errs...)
}

// PaymentsEnabled reports whether gateway credentials are configured.
func (c *Config) PaymentsEnabled() bool {
	return c.RazorpayKeyID != "" && c.RazorpayKeySecret != ""
}
