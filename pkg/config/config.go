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
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Sendgrid     SendgridConfig
	Twilio       TwilioConfig
	Orders       OrdersConfig
	Jobs         JobsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARKETPLACE_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETPLACE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARKETPLACE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MARKETPLACE_LOG_WARN_STACK" default:"false"`

	AllowedOrigins []string `envconfig:"MARKETPLACE_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKETPLACE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETPLACE_DB_DSN"`
	Driver string `envconfig:"MARKETPLACE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARKETPLACE_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETPLACE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETPLACE_DB_USER"`
	LegacyPassword string `envconfig:"MARKETPLACE_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETPLACE_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETPLACE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETPLACE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETPLACE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETPLACE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MARKETPLACE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETPLACE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETPLACE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETPLACE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETPLACE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETPLACE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MARKETPLACE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MARKETPLACE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MARKETPLACE_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MARKETPLACE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MARKETPLACE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"MARKETPLACE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic      string `envconfig:"MARKETPLACE_PUBSUB_ORDERS_TOPIC" default:"marketplace-order-events"`
	SettlementsTopic string `envconfig:"MARKETPLACE_PUBSUB_SETTLEMENTS_TOPIC" default:"marketplace-settlement-events"`
	ReturnsTopic     string `envconfig:"MARKETPLACE_PUBSUB_RETURNS_TOPIC" default:"marketplace-return-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"MARKETPLACE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"MARKETPLACE_OUTBOX_RETENTION" default:"720h"`
	DLQRetention   time.Duration `envconfig:"MARKETPLACE_OUTBOX_DLQ_RETENTION" default:"2160h"`
}

type SendgridConfig struct {
	APIKey      string `envconfig:"MARKETPLACE_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"MARKETPLACE_SENDGRID_FROM_EMAIL"`
	FromName    string `envconfig:"MARKETPLACE_SENDGRID_FROM_NAME" default:"Marketplace"`
}

// Enabled reports whether the email channel has credentials.
func (s SendgridConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != "" && strings.TrimSpace(s.DefaultFrom) != ""
}

type TwilioConfig struct {
	AccountSID string `envconfig:"MARKETPLACE_TWILIO_ACCOUNT_SID"`
	AuthToken  string `envconfig:"MARKETPLACE_TWILIO_AUTH_TOKEN"`
	FromNumber string `envconfig:"MARKETPLACE_TWILIO_FROM_NUMBER"`
}

// Enabled reports whether the SMS channel has credentials.
func (t TwilioConfig) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.FromNumber != ""
}

type OrdersConfig struct {
	DefaultCommissionPct  string `envconfig:"MARKETPLACE_ORDERS_DEFAULT_COMMISSION_PCT" default:"5"`
	EstimatedDeliveryDays int    `envconfig:"MARKETPLACE_ORDERS_ESTIMATED_DELIVERY_DAYS" default:"7"`
	InvoiceBasePath       string `envconfig:"MARKETPLACE_ORDERS_INVOICE_BASE_PATH" default:"/invoices"`
}

type JobsConfig struct {
	TickInterval          time.Duration `envconfig:"MARKETPLACE_JOBS_TICK_INTERVAL" default:"1m"`
	PenaltyReviewWindow   time.Duration `envconfig:"MARKETPLACE_JOBS_PENALTY_REVIEW_WINDOW" default:"9h"`
	SettlementAging       time.Duration `envconfig:"MARKETPLACE_JOBS_SETTLEMENT_AGING" default:"168h"`
	ArchiveAfterMonths    int           `envconfig:"MARKETPLACE_JOBS_ARCHIVE_AFTER_MONTHS" default:"3"`
	NotificationRetention int           `envconfig:"MARKETPLACE_JOBS_NOTIFICATION_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if sqlite {
		db.Driver = DriverSQLite
	}
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.DSN = "file:marketplace.db?cache=shared"
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
