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
	Dispatch     DispatchConfig
	Sweep        SweepConfig
	Ops          OpsConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Dispatch.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Sweep.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"NOTIFYSTORE_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"NOTIFYSTORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"NOTIFYSTORE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN        string `envconfig:"NOTIFYSTORE_DB_DSN"`
	Driver     string `envconfig:"NOTIFYSTORE_DB_DRIVER" default:"postgres"`
	SQLitePath string `envconfig:"NOTIFYSTORE_DB_SQLITE_PATH" default:"notifystore.db"`

	LegacyHost     string `envconfig:"NOTIFYSTORE_DB_HOST"`
	LegacyPort     int    `envconfig:"NOTIFYSTORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"NOTIFYSTORE_DB_USER"`
	LegacyPassword string `envconfig:"NOTIFYSTORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"NOTIFYSTORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"NOTIFYSTORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"NOTIFYSTORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"NOTIFYSTORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"NOTIFYSTORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"NOTIFYSTORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the store runs on the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"NOTIFYSTORE_REDIS_URL"`
	Address      string        `envconfig:"NOTIFYSTORE_REDIS_ADDR"`
	Password     string        `envconfig:"NOTIFYSTORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"NOTIFYSTORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"NOTIFYSTORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"NOTIFYSTORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"NOTIFYSTORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"NOTIFYSTORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"NOTIFYSTORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Configured reports whether a redis endpoint was supplied.
func (r RedisConfig) Configured() bool {
	return r.URL != "" || r.Address != ""
}

// DispatchConfig holds the claim policy shared by every worker.
type DispatchConfig struct {
	ClaimStaleAfter time.Duration `envconfig:"NOTIFYSTORE_DISPATCH_CLAIM_STALE_AFTER" default:"60s"`
	MaxAttempts     int           `envconfig:"NOTIFYSTORE_DISPATCH_MAX_ATTEMPTS" default:"5"`
}

func (d DispatchConfig) validate() error {
	if d.ClaimStaleAfter <= 0 {
		return fmt.Errorf("%s must be positive", EnvDispatchClaimStaleAfter)
	}
	if d.MaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvDispatchMaxAttempts)
	}
	return nil
}

type SweepConfig struct {
	Interval   time.Duration `envconfig:"NOTIFYSTORE_SWEEP_INTERVAL" default:"30s"`
	LockTTL    time.Duration `envconfig:"NOTIFYSTORE_SWEEP_LOCK_TTL" default:"25s"`
	JobTimeout time.Duration `envconfig:"NOTIFYSTORE_SWEEP_JOB_TIMEOUT" default:"20s"`
}

// validate keeps a job run inside the lock that makes it exclusive.
func (s SweepConfig) validate() error {
	if s.JobTimeout >= s.LockTTL {
		return fmt.Errorf("%s must be shorter than %s", EnvSweepJobTimeout, EnvSweepLockTTL)
	}
	return nil
}

type OpsConfig struct {
	Port            string        `envconfig:"NOTIFYSTORE_OPS_PORT" default:"8090"`
	ShutdownTimeout time.Duration `envconfig:"NOTIFYSTORE_OPS_SHUTDOWN_TIMEOUT" default:"10s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"NOTIFYSTORE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"NOTIFYSTORE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.IsSQLite() {
		if db.DSN == "" {
			db.DSN = fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", db.SQLitePath)
		}
		return nil
	}
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
