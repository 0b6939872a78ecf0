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
	HTTP         HTTPConfig
	FeatureFlags FeatureFlagsConfig
	Checkout     CheckoutConfig
	Stripe       StripeConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validateFor(cfg.Stripe); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GATEPASS_APP_ENV" required:"true"`
	Port         string `envconfig:"GATEPASS_APP_PORT" default:"8080"`
	PublicURL    string `envconfig:"GATEPASS_APP_PUBLIC_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"GATEPASS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GATEPASS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GATEPASS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"GATEPASS_DB_DSN"`
	Driver string `envconfig:"GATEPASS_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"GATEPASS_DB_HOST"`
	Port     int    `envconfig:"GATEPASS_DB_PORT" default:"5432"`
	User     string `envconfig:"GATEPASS_DB_USER"`
	Password string `envconfig:"GATEPASS_DB_PASSWORD"`
	Name     string `envconfig:"GATEPASS_DB_NAME"`
	SSLMode  string `envconfig:"GATEPASS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GATEPASS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GATEPASS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GATEPASS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GATEPASS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GATEPASS_REDIS_URL"`
	Address      string        `envconfig:"GATEPASS_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"GATEPASS_REDIS_PASSWORD"`
	DB           int           `envconfig:"GATEPASS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GATEPASS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GATEPASS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GATEPASS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GATEPASS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GATEPASS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret    string        `envconfig:"GATEPASS_JWT_SECRET" required:"true"`
	Issuer    string        `envconfig:"GATEPASS_JWT_ISSUER" required:"true"`
	AccessTTL time.Duration `envconfig:"GATEPASS_JWT_ACCESS_TTL" default:"15m"`
}

// HTTPConfig covers the API edge: browser origins and per-surface throttles.
type HTTPConfig struct {
	CORSOrigins       []string      `envconfig:"GATEPASS_CORS_ORIGINS" default:"http://localhost:3000"`
	RateLimitWindow   time.Duration `envconfig:"GATEPASS_RATE_LIMIT_WINDOW" default:"1m"`
	CheckoutUserLimit int           `envconfig:"GATEPASS_CHECKOUT_USER_LIMIT" default:"20"`
	CheckoutIPLimit   int           `envconfig:"GATEPASS_CHECKOUT_IP_LIMIT" default:"60"`
	ScanUserLimit     int           `envconfig:"GATEPASS_SCAN_USER_LIMIT" default:"240"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"GATEPASS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"GATEPASS_AUTO_MIGRATE" default:"false"`
}

// CheckoutConfig drives holds, QR signing, and the post-checkout redirect targets.
type CheckoutConfig struct {
	// HoldTTL doubles as the payment session lifetime. Stripe rejects sessions
	// expiring less than 30 minutes after creation, and the session is created
	// after the holds, so the default leaves headroom.
	HoldTTL            time.Duration `envconfig:"GATEPASS_CHECKOUT_HOLD_TTL" default:"35m"`
	SuccessPath        string        `envconfig:"GATEPASS_CHECKOUT_SUCCESS_PATH" default:"/orders/{orderId}/confirmation"`
	CancelPath         string        `envconfig:"GATEPASS_CHECKOUT_CANCEL_PATH" default:"/events/{eventId}"`
	Currency           string        `envconfig:"GATEPASS_CHECKOUT_CURRENCY" default:"usd"`
	QRSecret           string        `envconfig:"GATEPASS_QR_SECRET"`
	QRVersion          int           `envconfig:"GATEPASS_QR_VERSION" default:"1"`
	IdempotencyTTL     time.Duration `envconfig:"GATEPASS_CHECKOUT_IDEMPOTENCY_TTL" default:"24h"`
	WebhookIdempotency time.Duration `envconfig:"GATEPASS_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

// MinGatewayHoldTTL is the shortest session lifetime Stripe accepts.
const MinGatewayHoldTTL = 30 * time.Minute

// validateFor rejects a hold TTL the payment gateway would refuse as a
// session lifetime. Without a gateway key any positive TTL is allowed.
func (c CheckoutConfig) validateFor(stripe StripeConfig) error {
	if strings.TrimSpace(stripe.APIKey) == "" {
		return nil
	}
	if c.HoldTTL < MinGatewayHoldTTL {
		return fmt.Errorf("%s must be at least %s when %s is set", EnvHoldTTL, MinGatewayHoldTTL, EnvStripeKey)
	}
	return nil
}

func (c CheckoutConfig) validate() error {
	if strings.TrimSpace(c.QRSecret) == "" {
		return fmt.Errorf("%s is required", EnvQRSecret)
	}
	if c.HoldTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvHoldTTL)
	}
	if c.QRVersion <= 0 {
		return fmt.Errorf("%s must be positive", EnvQRVersion)
	}
	return nil
}

type StripeConfig struct {
	APIKey string `envconfig:"GATEPASS_STRIPE_API_KEY"`
	Secret string `envconfig:"GATEPASS_STRIPE_SECRET"`
	Env    string `envconfig:"GATEPASS_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type GCPConfig struct {
	ProjectID       string `envconfig:"GATEPASS_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"GATEPASS_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	DomainTopic string `envconfig:"GATEPASS_PUBSUB_DOMAIN_TOPIC" default:"gatepass-domain-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GATEPASS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GATEPASS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GATEPASS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval         time.Duration `envconfig:"GATEPASS_CRON_INTERVAL" default:"1m"`
	LockTTL          time.Duration `envconfig:"GATEPASS_CRON_LOCK_TTL" default:"55s"`
	SweepBatchSize   int           `envconfig:"GATEPASS_CRON_SWEEP_BATCH_SIZE" default:"500"`
	PendingOrderTTL  time.Duration `envconfig:"GATEPASS_CRON_PENDING_ORDER_TTL" default:"2h"`
	PendingBatchSize int           `envconfig:"GATEPASS_CRON_PENDING_BATCH_SIZE" default:"100"`
	OutboxRetention  time.Duration `envconfig:"GATEPASS_CRON_OUTBOX_RETENTION" default:"720h"`
	DLQRetention     time.Duration `envconfig:"GATEPASS_CRON_DLQ_RETENTION" default:"2160h"`
	InboxRetention   time.Duration `envconfig:"GATEPASS_CRON_INBOX_RETENTION" default:"720h"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.DSN = "file:gatepass.db?cache=shared"
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}
	db.DSN = u.String()
	return nil
}
