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
	Tx           TxConfig
	Import       ImportConfig
	Ledger       LedgerConfig
	Access       AccessConfig
	Cron         CronConfig
	Outbox       OutboxConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Tx.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CODF_APP_ENV" required:"true"`
	Port         string `envconfig:"CODF_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CODF_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CODF_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CODF_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CODF_DB_DSN"`
	Driver string `envconfig:"CODF_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CODF_DB_HOST"`
	LegacyPort     int    `envconfig:"CODF_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CODF_DB_USER"`
	LegacyPassword string `envconfig:"CODF_DB_PASSWORD"`
	LegacyName     string `envconfig:"CODF_DB_NAME"`
	LegacySSLMode  string `envconfig:"CODF_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CODF_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CODF_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CODF_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CODF_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CODF_REDIS_URL"`
	Address      string        `envconfig:"CODF_REDIS_ADDR"`
	Password     string        `envconfig:"CODF_REDIS_PASSWORD"`
	DB           int           `envconfig:"CODF_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CODF_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CODF_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CODF_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CODF_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CODF_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// TxConfig bounds every unit of work: how long a caller may wait for a free
// slot and how long the whole transaction may run once it has one.
type TxConfig struct {
	MaxConcurrent int           `envconfig:"CODF_TX_MAX_CONCURRENT" default:"16"`
	MaxWait       time.Duration `envconfig:"CODF_TX_MAX_WAIT" default:"5s"`
	Timeout       time.Duration `envconfig:"CODF_TX_TIMEOUT" default:"10s"`
}

func (t TxConfig) validate() error {
	if t.MaxConcurrent <= 0 {
		return fmt.Errorf("%s must be positive", EnvTxMaxConcurrent)
	}
	if t.MaxWait <= 0 {
		return fmt.Errorf("%s must be positive", EnvTxMaxWait)
	}
	if t.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvTxTimeout)
	}
	return nil
}

type ImportConfig struct {
	BatchSize int `envconfig:"CODF_IMPORT_BATCH_SIZE" default:"50"`
	// DeletedGrace keeps recently soft-deleted orders visible to duplicate
	// detection. Zero disables the window.
	DeletedGrace time.Duration `envconfig:"CODF_IMPORT_DELETED_GRACE" default:"5m"`
	PhoneRegion  string        `envconfig:"CODF_IMPORT_PHONE_REGION" default:"US"`
}

type LedgerConfig struct {
	CashInTransitCode string `envconfig:"CODF_LEDGER_CASH_IN_TRANSIT_CODE" default:"1150"`
	InventoryCode     string `envconfig:"CODF_LEDGER_INVENTORY_CODE" default:"1300"`
	RevenueCode       string `envconfig:"CODF_LEDGER_REVENUE_CODE" default:"4000"`
	COGSCode          string `envconfig:"CODF_LEDGER_COGS_CODE" default:"5000"`
}

type AccessConfig struct {
	CacheTTL time.Duration `envconfig:"CODF_ACCESS_CACHE_TTL" default:"5m"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"CODF_CRON_INTERVAL" default:"15m"`
	BackfillLimit       int           `envconfig:"CODF_CRON_BACKFILL_LIMIT" default:"200"`
	OutboxRetentionDays int           `envconfig:"CODF_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	LockKey             string        `envconfig:"CODF_CRON_LOCK_KEY" default:"cron"`
	LockTTL             time.Duration `envconfig:"CODF_CRON_LOCK_TTL" default:"10m"`
	JobTimeout          time.Duration `envconfig:"CODF_CRON_JOB_TIMEOUT" default:"5m"`
	// DispatchOutbox drains the outbox from the cron cycle for deployments
	// without an outbox publisher.
	DispatchOutbox bool `envconfig:"CODF_CRON_DISPATCH_OUTBOX" default:"false"`
}

type OutboxConfig struct {
	BatchSize    int           `envconfig:"CODF_OUTBOX_BATCH_SIZE" default:"50"`
	MaxAttempts  int           `envconfig:"CODF_OUTBOX_MAX_ATTEMPTS" default:"10"`
	PollInterval time.Duration `envconfig:"CODF_OUTBOX_POLL_INTERVAL" default:"2s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CODF_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CODF_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.Driver = "sqlite"
		db.DSN = "file:codfulfillment.db?cache=shared"
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
