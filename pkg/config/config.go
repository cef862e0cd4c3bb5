package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Billing      BillingConfig
	Idempotency  IdempotencyConfig
	HTTP         HTTPConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Billing.TaxRate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"REPAIRDESK_APP_ENV" required:"true"`
	Port         string `envconfig:"REPAIRDESK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"REPAIRDESK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"REPAIRDESK_LOG_WARN_STACK" default:"false"`
	// LogFormat is "json" for the log pipeline or "console" at a desk terminal.
	LogFormat    string `envconfig:"REPAIRDESK_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"REPAIRDESK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"REPAIRDESK_DB_DSN"`
	Driver string `envconfig:"REPAIRDESK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"REPAIRDESK_DB_HOST"`
	LegacyPort     int    `envconfig:"REPAIRDESK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"REPAIRDESK_DB_USER"`
	LegacyPassword string `envconfig:"REPAIRDESK_DB_PASSWORD"`
	LegacyName     string `envconfig:"REPAIRDESK_DB_NAME"`
	LegacySSLMode  string `envconfig:"REPAIRDESK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"REPAIRDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"REPAIRDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"REPAIRDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"REPAIRDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"REPAIRDESK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"REPAIRDESK_REDIS_ADDR"`
	Password     string        `envconfig:"REPAIRDESK_REDIS_PASSWORD"`
	DB           int           `envconfig:"REPAIRDESK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REPAIRDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REPAIRDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"REPAIRDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REPAIRDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"REPAIRDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig validates tokens minted by the identity service.
type JWTConfig struct {
	Secret            string `envconfig:"REPAIRDESK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"REPAIRDESK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"REPAIRDESK_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"REPAIRDESK_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"REPAIRDESK_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	RequestsTopic     string `envconfig:"REPAIRDESK_PUBSUB_REQUESTS_TOPIC" default:"repairdesk-request-events"`
	NotificationTopic string `envconfig:"REPAIRDESK_PUBSUB_NOTIFICATION_TOPIC" default:"repairdesk-notification-events"`
}

// OutboxConfig tunes the relay. NotificationMaxAge bounds how late a
// customer-facing message may still be sent; lifecycle events never expire.
type OutboxConfig struct {
	BatchSize          int           `envconfig:"REPAIRDESK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS     int           `envconfig:"REPAIRDESK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts        int           `envconfig:"REPAIRDESK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	NotificationMaxAge time.Duration `envconfig:"REPAIRDESK_OUTBOX_NOTIFICATION_MAX_AGE" default:"24h"`
}

// BillingConfig carries invoice defaults. Rates are fractions (0.13 = 13%).
type BillingConfig struct {
	DefaultTaxRate string `envconfig:"REPAIRDESK_BILLING_DEFAULT_TAX_RATE" default:"0.13"`
}

// TaxRate parses the configured default tax rate.
func (b BillingConfig) TaxRate() (decimal.Decimal, error) {
	raw := strings.TrimSpace(b.DefaultTaxRate)
	if raw == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s: %w", EnvBillingDefaultTaxRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s must be within [0, 1)", EnvBillingDefaultTaxRate)
	}
	return rate, nil
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"REPAIRDESK_IDEMPOTENCY_TTL" default:"24h"`
}

// HTTPConfig covers the edge policy of the API server.
type HTTPConfig struct {
	CORSAllowedOrigins []string      `envconfig:"REPAIRDESK_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	RateLimitRequests  int64         `envconfig:"REPAIRDESK_RATE_LIMIT_REQUESTS" default:"120"`
	RateLimitWindow    time.Duration `envconfig:"REPAIRDESK_RATE_LIMIT_WINDOW" default:"1m"`
	ShutdownTimeout    time.Duration `envconfig:"REPAIRDESK_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

// CronConfig drives the cron worker. Tick is how often the worker wakes to
// look for due jobs; each job then runs on its own cadence.
type CronConfig struct {
	Tick                   time.Duration `envconfig:"REPAIRDESK_CRON_TICK" default:"5m"`
	QuoteReminderEvery     time.Duration `envconfig:"REPAIRDESK_CRON_QUOTE_REMINDER_EVERY" default:"1h"`
	QuoteReminderAfterDays int           `envconfig:"REPAIRDESK_CRON_QUOTE_REMINDER_AFTER_DAYS" default:"3"`
	OutboxRetentionEvery   time.Duration `envconfig:"REPAIRDESK_CRON_OUTBOX_RETENTION_EVERY" default:"24h"`
	OutboxRetentionDays    int           `envconfig:"REPAIRDESK_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
