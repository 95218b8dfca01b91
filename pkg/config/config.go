package config

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/corporatepranks/storefront-backend/pkg/enums"
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
	GCS          GCSConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Stripe       StripeConfig
	PayPal       PayPalConfig
	Square       SquareConfig
	Checkout     CheckoutConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		if cfg.App.IsProd() {
			return nil, fmt.Errorf("config: %s is not allowed in prod", EnvUseSQLite)
		}
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CORPORATEPRANKS_APP_ENV" required:"true"`
	Port         string `envconfig:"CORPORATEPRANKS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CORPORATEPRANKS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CORPORATEPRANKS_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"CORPORATEPRANKS_CORS_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	var out []string
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type ServiceConfig struct {
	Kind string `envconfig:"CORPORATEPRANKS_SERVICE_KIND" default:"api"`
}

// DBConfig takes either a full DSN or the discrete connection parts.
type DBConfig struct {
	DSN    string `envconfig:"CORPORATEPRANKS_DB_DSN"`
	Driver string `envconfig:"CORPORATEPRANKS_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"CORPORATEPRANKS_DB_HOST"`
	Port     int    `envconfig:"CORPORATEPRANKS_DB_PORT" default:"5432"`
	User     string `envconfig:"CORPORATEPRANKS_DB_USER"`
	Password string `envconfig:"CORPORATEPRANKS_DB_PASSWORD"`
	Name     string `envconfig:"CORPORATEPRANKS_DB_NAME"`
	SSLMode  string `envconfig:"CORPORATEPRANKS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CORPORATEPRANKS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CORPORATEPRANKS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CORPORATEPRANKS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CORPORATEPRANKS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CORPORATEPRANKS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CORPORATEPRANKS_REDIS_ADDR"`
	Password     string        `envconfig:"CORPORATEPRANKS_REDIS_PASSWORD"`
	DB           int           `envconfig:"CORPORATEPRANKS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CORPORATEPRANKS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CORPORATEPRANKS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CORPORATEPRANKS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CORPORATEPRANKS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CORPORATEPRANKS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds the verification settings for access tokens issued by the identity provider.
type JWTConfig struct {
	Secret string `envconfig:"CORPORATEPRANKS_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"CORPORATEPRANKS_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CORPORATEPRANKS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CORPORATEPRANKS_AUTO_MIGRATE" default:"false"`
	// MemoryDrafts keeps draft orders in process. Honored in dev only.
	MemoryDrafts bool `envconfig:"CORPORATEPRANKS_MEMORY_DRAFTS" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"CORPORATEPRANKS_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
	PurchaseEventTTL      time.Duration `envconfig:"CORPORATEPRANKS_PURCHASE_EVENT_TTL" default:"720h"`
	AnalyticsIdempotency  time.Duration `envconfig:"CORPORATEPRANKS_ANALYTICS_IDEMPOTENCY_TTL" default:"168h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CORPORATEPRANKS_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"CORPORATEPRANKS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CORPORATEPRANKS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName    string `envconfig:"CORPORATEPRANKS_GCS_BUCKET_NAME" required:"true"`
	PublicBaseURL string `envconfig:"CORPORATEPRANKS_GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
	MaxUploadMB   int    `envconfig:"CORPORATEPRANKS_MAX_UPLOAD_MB" default:"10"`
}

type PubSubConfig struct {
	DomainTopic           string `envconfig:"CORPORATEPRANKS_PUBSUB_DOMAIN_TOPIC" required:"true"`
	PurchaseTopic         string `envconfig:"CORPORATEPRANKS_PUBSUB_PURCHASE_TOPIC" required:"true"`
	PurchaseSubscription  string `envconfig:"CORPORATEPRANKS_PUBSUB_PURCHASE_SUBSCRIPTION" required:"true"`
	PublishTimeoutSeconds int    `envconfig:"CORPORATEPRANKS_PUBSUB_PUBLISH_TIMEOUT_SECONDS" default:"5"`
}

// PublishTimeout bounds fire-and-forget publishes.
func (p PubSubConfig) PublishTimeout() time.Duration {
	if p.PublishTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(p.PublishTimeoutSeconds) * time.Second
}

type BigQueryConfig struct {
	Dataset             string `envconfig:"CORPORATEPRANKS_BIGQUERY_DATASET" default:"corporatepranks"`
	PurchaseEventsTable string `envconfig:"CORPORATEPRANKS_BIGQUERY_PURCHASE_TABLE" default:"purchase_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CORPORATEPRANKS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CORPORATEPRANKS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CORPORATEPRANKS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	// Retention is how long finished rows stay before the cron prunes them.
	Retention time.Duration `envconfig:"CORPORATEPRANKS_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval           time.Duration `envconfig:"CORPORATEPRANKS_CRON_INTERVAL" default:"1m"`
	LockTTL            time.Duration `envconfig:"CORPORATEPRANKS_CRON_LOCK_TTL" default:"5m"`
	ReconcileBatchSize int           `envconfig:"CORPORATEPRANKS_RECONCILE_BATCH_SIZE" default:"50"`
	ReconcileMinAge    time.Duration `envconfig:"CORPORATEPRANKS_RECONCILE_MIN_AGE" default:"2m"`
	MetricsPort        string        `envconfig:"CORPORATEPRANKS_CRON_METRICS_PORT" default:"9091"`
}

// RateLimitConfig throttles payment endpoints per client IP and per checkout owner.
type RateLimitConfig struct {
	Window     time.Duration `envconfig:"CORPORATEPRANKS_RATE_LIMIT_WINDOW" default:"10m"`
	IPLimit    int           `envconfig:"CORPORATEPRANKS_RATE_LIMIT_IP" default:"60"`
	OwnerLimit int           `envconfig:"CORPORATEPRANKS_RATE_LIMIT_OWNER" default:"20"`
}

type StripeConfig struct {
	APIKey string `envconfig:"CORPORATEPRANKS_STRIPE_API_KEY"`
	Secret string `envconfig:"CORPORATEPRANKS_STRIPE_SECRET"`
	Env    string `envconfig:"CORPORATEPRANKS_STRIPE_ENV" default:"test"`
}

type PayPalConfig struct {
	ClientID     string `envconfig:"CORPORATEPRANKS_PAYPAL_CLIENT_ID"`
	ClientSecret string `envconfig:"CORPORATEPRANKS_PAYPAL_CLIENT_SECRET"`
	WebhookID    string `envconfig:"CORPORATEPRANKS_PAYPAL_WEBHOOK_ID"`
	Env          string `envconfig:"CORPORATEPRANKS_PAYPAL_ENV" default:"sandbox"`
}

// Environment returns the normalized PayPal environment (sandbox/live).
func (p PayPalConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(p.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type SquareConfig struct {
	AccessToken   string `envconfig:"CORPORATEPRANKS_SQUARE_ACCESS_TOKEN"`
	LocationID    string `envconfig:"CORPORATEPRANKS_SQUARE_LOCATION_ID"`
	WebhookSecret string `envconfig:"CORPORATEPRANKS_SQUARE_WEBHOOK_SIGNATURE_KEY"`
	WebhookURL    string `envconfig:"CORPORATEPRANKS_SQUARE_WEBHOOK_URL"`
	Env           string `envconfig:"CORPORATEPRANKS_SQUARE_ENV" default:"sandbox"`
}

// CheckoutConfig groups the pricing and orchestration knobs of the checkout flows.
type CheckoutConfig struct {
	Currency         string          `envconfig:"CORPORATEPRANKS_CHECKOUT_CURRENCY" default:"usd"`
	FunnelShipping   decimal.Decimal `envconfig:"CORPORATEPRANKS_FUNNEL_SHIPPING_FEE" default:"4.99"`
	FreeShippingQty  int             `envconfig:"CORPORATEPRANKS_FUNNEL_FREE_SHIPPING_QTY" default:"2"`
	HostedProvider   string          `envconfig:"CORPORATEPRANKS_HOSTED_PROVIDER" default:"stripe"`
	PaymentTimeout   time.Duration   `envconfig:"CORPORATEPRANKS_PAYMENT_TIMEOUT" default:"20s"`
	InstanceTTL      time.Duration   `envconfig:"CORPORATEPRANKS_CHECKOUT_INSTANCE_TTL" default:"2h"`
	ConfirmationPath string          `envconfig:"CORPORATEPRANKS_CONFIRMATION_PATH" default:"/confirmation"`
}

// validate also normalizes Currency to its lower-case code.
func (c *CheckoutConfig) validate() error {
	cur, err := enums.ParseCurrency(c.Currency)
	if err != nil {
		return fmt.Errorf("%s: %w", EnvCheckoutCurrency, err)
	}
	c.Currency = cur.Lower()

	switch strings.ToLower(strings.TrimSpace(c.HostedProvider)) {
	case HostedProviderStripe, HostedProviderSquare:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvHostedProvider, HostedProviderStripe, HostedProviderSquare)
	}
	if c.FunnelShipping.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvFunnelShippingFee)
	}
	if c.FreeShippingQty < 1 {
		return fmt.Errorf("%s must be at least 1", EnvFunnelFreeShippingQty)
	}
	return nil
}

// ensureDSN assembles a postgres URL from the parts when no DSN is set.
func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	var missing []string
	for env, val := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if val == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("config: set %s or all of %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.User(db.User),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   db.Name,
	}
	if db.Password != "" {
		dsn.User = url.UserPassword(db.User, db.Password)
	}
	if db.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}
