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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Square       SquareConfig
	Licensing    LicensingConfig
	Redeem       RedeemConfig
	Renewal      RenewalConfig
	Webhooks     WebhooksConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Licensing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LICENSING_APP_ENV" required:"true"`
	Port         string `envconfig:"LICENSING_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LICENSING_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LICENSING_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma separated list of storefront origins.
	CORSOrigins []string `envconfig:"LICENSING_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LICENSING_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LICENSING_DB_DSN"`
	Driver string `envconfig:"LICENSING_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LICENSING_DB_HOST"`
	LegacyPort     int    `envconfig:"LICENSING_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LICENSING_DB_USER"`
	LegacyPassword string `envconfig:"LICENSING_DB_PASSWORD"`
	LegacyName     string `envconfig:"LICENSING_DB_NAME"`
	LegacySSLMode  string `envconfig:"LICENSING_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LICENSING_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LICENSING_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LICENSING_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LICENSING_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LICENSING_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LICENSING_REDIS_ADDR"`
	Password     string        `envconfig:"LICENSING_REDIS_PASSWORD"`
	DB           int           `envconfig:"LICENSING_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LICENSING_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LICENSING_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LICENSING_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LICENSING_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LICENSING_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds the settings used to verify access tokens minted by the auth layer.
type JWTConfig struct {
	Secret            string `envconfig:"LICENSING_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LICENSING_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LICENSING_JWT_EXPIRATION_MINUTES" default:"60"`
}

func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LICENSING_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LICENSING_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"LICENSING_EVENTING_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LICENSING_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"LICENSING_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LICENSING_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LicenseTopic      string `envconfig:"LICENSING_PUBSUB_LICENSE_TOPIC" default:"license-events"`
	SubscriptionTopic string `envconfig:"LICENSING_PUBSUB_SUBSCRIPTION_TOPIC" default:"subscription-events"`
}

// Topics lists every configured topic the publisher writes to.
func (p PubSubConfig) Topics() []string {
	topics := []string{}
	for _, name := range []string{p.LicenseTopic, p.SubscriptionTopic} {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			topics = append(topics, trimmed)
		}
	}
	return topics
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LICENSING_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LICENSING_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LICENSING_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type SquareConfig struct {
	AccessToken string `envconfig:"LICENSING_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"LICENSING_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"LICENSING_SQUARE_LOCATION_ID"`
	Currency    string `envconfig:"LICENSING_SQUARE_CURRENCY" default:"USD"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// LicensingConfig holds the signing material for session and offline tokens.
type LicensingConfig struct {
	SigningSecret   string        `envconfig:"LICENSING_TOKEN_SIGNING_SECRET"`
	TokenIssuer     string        `envconfig:"LICENSING_TOKEN_ISSUER" default:"licensing-backend"`
	SigningKeyID    string        `envconfig:"LICENSING_TOKEN_KEY_ID" default:"v1"`
	SessionTokenTTL time.Duration `envconfig:"LICENSING_SESSION_TOKEN_TTL" default:"15m"`
	SweepBatchSize  int           `envconfig:"LICENSING_SWEEP_BATCH_SIZE" default:"200"`
	OrderPendingTTL time.Duration `envconfig:"LICENSING_ORDER_PENDING_TTL" default:"72h"`
	// Per-user budget for validate and heartbeat calls.
	SessionRateLimitPerMin int `envconfig:"LICENSING_SESSION_RATE_LIMIT" default:"60"`
	// Per-IP budget for the payment webhook.
	WebhookRateLimitPerMin int `envconfig:"LICENSING_WEBHOOK_RATE_LIMIT" default:"120"`
}

func (l LicensingConfig) validate() error {
	if strings.TrimSpace(l.SigningSecret) == "" {
		return fmt.Errorf("%s is required", EnvTokenSigningSecret)
	}
	if len(l.SigningSecret) < minSigningSecretLen {
		return fmt.Errorf("%s must be at least %d characters", EnvTokenSigningSecret, minSigningSecretLen)
	}
	return nil
}

type RedeemConfig struct {
	Pepper          string        `envconfig:"LICENSING_REDEEM_PEPPER"`
	RateLimitPerMin int           `envconfig:"LICENSING_REDEEM_RATE_LIMIT" default:"5"`
	RateLimitWindow time.Duration `envconfig:"LICENSING_REDEEM_RATE_WINDOW" default:"1m"`
}

type RenewalConfig struct {
	RetryBudget    int           `envconfig:"LICENSING_RENEWAL_RETRY_BUDGET" default:"2"`
	RetryDelay     time.Duration `envconfig:"LICENSING_RENEWAL_RETRY_DELAY" default:"24h"`
	PaymentTimeout time.Duration `envconfig:"LICENSING_RENEWAL_PAYMENT_TIMEOUT" default:"15s"`
	Interval       time.Duration `envconfig:"LICENSING_RENEWAL_INTERVAL" default:"1h"`
	ExpiryInterval time.Duration `envconfig:"LICENSING_EXPIRY_INTERVAL" default:"15m"`
	StaleInterval  time.Duration `envconfig:"LICENSING_STALE_INTERVAL" default:"6h"`
	JobTimeout     time.Duration `envconfig:"LICENSING_CRON_JOB_TIMEOUT" default:"10m"`
}

type WebhooksConfig struct {
	PaymentsSecret string `envconfig:"LICENSING_PAYMENTS_WEBHOOK_SECRET"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.Driver == DBDriverSQLite {
		db.DSN = "file:licensing.db?_busy_timeout=5000"
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
