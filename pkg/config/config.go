package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Commission   CommissionConfig
	Gateway      GatewayConfig
	Ledger       LedgerConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	RateLimit    RateLimitConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CRAFTCONNECT_APP_ENV" required:"true"`
	Port         string `envconfig:"CRAFTCONNECT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CRAFTCONNECT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CRAFTCONNECT_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"CRAFTCONNECT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"CRAFTCONNECT_DB_DSN"`

	LegacyHost     string `envconfig:"CRAFTCONNECT_DB_HOST"`
	LegacyPort     int    `envconfig:"CRAFTCONNECT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CRAFTCONNECT_DB_USER"`
	LegacyPassword string `envconfig:"CRAFTCONNECT_DB_PASSWORD"`
	LegacyName     string `envconfig:"CRAFTCONNECT_DB_NAME"`
	LegacySSLMode  string `envconfig:"CRAFTCONNECT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CRAFTCONNECT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CRAFTCONNECT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CRAFTCONNECT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CRAFTCONNECT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// LockTimeout bounds how long a settlement waits on a seller balance row lock.
	LockTimeout time.Duration `envconfig:"CRAFTCONNECT_DB_LOCK_TIMEOUT" default:"5s"`
	// SlowQueryThreshold logs statements slower than this at warn; zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"CRAFTCONNECT_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CRAFTCONNECT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CRAFTCONNECT_REDIS_ADDR"`
	Password     string        `envconfig:"CRAFTCONNECT_REDIS_PASSWORD"`
	DB           int           `envconfig:"CRAFTCONNECT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CRAFTCONNECT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CRAFTCONNECT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CRAFTCONNECT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CRAFTCONNECT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CRAFTCONNECT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds the verification settings for tokens minted by the auth service.
type JWTConfig struct {
	Secret            string `envconfig:"CRAFTCONNECT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CRAFTCONNECT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CRAFTCONNECT_JWT_EXPIRATION_MINUTES" default:"15"`
}

// CommissionConfig carries the default platform commission rate. The live value
// is re-read from the environment on every settlement.
type CommissionConfig struct {
	Rate string `envconfig:"CRAFTCONNECT_COMMISSION_RATE" default:"0.02"`
}

// LoadCommission reads only the commission section so the rate can be
// refreshed per settlement without reloading the whole configuration.
func LoadCommission() (CommissionConfig, error) {
	var cfg CommissionConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return CommissionConfig{}, fmt.Errorf("parsing commission config: %w", err)
	}
	return cfg, nil
}

type GatewayConfig struct {
	CallbackSecret      string        `envconfig:"CRAFTCONNECT_GATEWAY_CALLBACK_SECRET"`
	StripeWebhookSecret string        `envconfig:"CRAFTCONNECT_STRIPE_WEBHOOK_SECRET"`
	IdempotencyTTL      time.Duration `envconfig:"CRAFTCONNECT_GATEWAY_IDEMPOTENCY_TTL" default:"72h"`
	Currency            string        `envconfig:"CRAFTCONNECT_GATEWAY_CURRENCY" default:"PHP"`
}

type LedgerConfig struct {
	MaxAttempts int           `envconfig:"CRAFTCONNECT_LEDGER_MAX_ATTEMPTS" default:"4"`
	BaseBackoff time.Duration `envconfig:"CRAFTCONNECT_LEDGER_BASE_BACKOFF" default:"25ms"`
}

func (l LedgerConfig) validate() error {
	if l.MaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvLedgerMaxAttempts)
	}
	if l.BaseBackoff < 0 {
		return fmt.Errorf("%s must be non-negative", EnvLedgerBaseBackoff)
	}
	return nil
}

type GCPConfig struct {
	ProjectID string `envconfig:"CRAFTCONNECT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	PaymentEventsTopic string `envconfig:"CRAFTCONNECT_PUBSUB_PAYMENT_EVENTS_TOPIC"`
}

// Enabled reports whether payment notifications should go through Pub/Sub.
func (p PubSubConfig) Enabled(gcp GCPConfig) bool {
	return strings.TrimSpace(p.PaymentEventsTopic) != "" && strings.TrimSpace(gcp.ProjectID) != ""
}

// RateLimitConfig holds fixed-window limits. A zero limit disables the surface.
type RateLimitConfig struct {
	Window       time.Duration `envconfig:"CRAFTCONNECT_RATE_LIMIT_WINDOW" default:"1m"`
	WebhookLimit int           `envconfig:"CRAFTCONNECT_RATE_LIMIT_WEBHOOK" default:"600"`
	AdminLimit   int           `envconfig:"CRAFTCONNECT_RATE_LIMIT_ADMIN" default:"120"`
}

// OutboxConfig controls the transactional outbox. When Enabled, ledger
// writes queue events and cmd/outbox-publisher delivers them.
type OutboxConfig struct {
	Enabled        bool `envconfig:"CRAFTCONNECT_OUTBOX_ENABLED" default:"false"`
	BatchSize      int  `envconfig:"CRAFTCONNECT_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int  `envconfig:"CRAFTCONNECT_OUTBOX_POLL_INTERVAL_MS" default:"500"`
	MaxAttempts    int  `envconfig:"CRAFTCONNECT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int  `envconfig:"CRAFTCONNECT_OUTBOX_RETENTION_DAYS" default:"30"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"CRAFTCONNECT_CRON_INTERVAL" default:"24h"`
	// RunOnce exits after a single cycle, for schedulers that own the cadence.
	RunOnce bool `envconfig:"CRAFTCONNECT_CRON_RUN_ONCE" default:"false"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CRAFTCONNECT_AUTO_MIGRATE" default:"false"`
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
