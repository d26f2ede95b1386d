package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "MEALDESK"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv = "MEALDESK_APP_ENV"
	EnvDBDSN  = "MEALDESK_DB_DSN"
	EnvDBHost = "MEALDESK_DB_HOST"
	EnvDBUser = "MEALDESK_DB_USER"
	EnvDBName = "MEALDESK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Ledger       LedgerConfig
	Policy       PolicyConfig
	Idempotency  IdempotencyConfig
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
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

var validate = validator.New()

type AppConfig struct {
	Env          string `envconfig:"MEALDESK_APP_ENV" required:"true" validate:"oneof=development staging production"`
	Port         string `envconfig:"MEALDESK_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"MEALDESK_LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`
	LogWarnStack bool   `envconfig:"MEALDESK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MEALDESK_SERVICE_KIND" default:"api" validate:"oneof=api cron-worker migrate"`
}

type DBConfig struct {
	DSN    string `envconfig:"MEALDESK_DB_DSN"`
	Driver string `envconfig:"MEALDESK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MEALDESK_DB_HOST"`
	LegacyPort     int    `envconfig:"MEALDESK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MEALDESK_DB_USER"`
	LegacyPassword string `envconfig:"MEALDESK_DB_PASSWORD"`
	LegacyName     string `envconfig:"MEALDESK_DB_NAME"`
	LegacySSLMode  string `envconfig:"MEALDESK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MEALDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MEALDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MEALDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MEALDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MEALDESK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MEALDESK_REDIS_ADDR"`
	Password     string        `envconfig:"MEALDESK_REDIS_PASSWORD"`
	DB           int           `envconfig:"MEALDESK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MEALDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MEALDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MEALDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MEALDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MEALDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// LedgerConfig bounds the retry loop used when a debit hits row-lock
// contention on the project balance.
type LedgerConfig struct {
	MaxDebitRetries int           `envconfig:"MEALDESK_LEDGER_MAX_DEBIT_RETRIES" default:"3"`
	RetryBackoff    time.Duration `envconfig:"MEALDESK_LEDGER_RETRY_BACKOFF" default:"50ms"`
}

type PolicyConfig struct {
	DefaultCutoff     string `envconfig:"MEALDESK_POLICY_DEFAULT_CUTOFF" default:"14:00" validate:"required"`
	DefaultTimezone   string `envconfig:"MEALDESK_POLICY_DEFAULT_TIMEZONE" default:"Asia/Bishkek"`
	WeeklyFreezeQuota int    `envconfig:"MEALDESK_POLICY_WEEKLY_FREEZE_QUOTA" default:"2" validate:"min=0"`
}

type IdempotencyConfig struct {
	DefaultTTL time.Duration `envconfig:"MEALDESK_IDEMPOTENCY_DEFAULT_TTL" default:"24h"`
}

type CronConfig struct {
	Interval               time.Duration `envconfig:"MEALDESK_CRON_INTERVAL" default:"24h"`
	MaterializeHorizonDays int           `envconfig:"MEALDESK_CRON_MATERIALIZE_HORIZON_DAYS" default:"14" validate:"min=1,max=90"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MEALDESK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MEALDESK_AUTO_MIGRATE" default:"false"`
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
