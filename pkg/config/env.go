package config

const EnvPrefix = "NOTIFYSTORE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "NOTIFYSTORE_APP_ENV"
	EnvLogLevel = "NOTIFYSTORE_LOG_LEVEL"

	EnvDBDSN        = "NOTIFYSTORE_DB_DSN"
	EnvDBDriver     = "NOTIFYSTORE_DB_DRIVER"
	EnvDBSQLitePath = "NOTIFYSTORE_DB_SQLITE_PATH"
	EnvDBHost       = "NOTIFYSTORE_DB_HOST"
	EnvDBPort       = "NOTIFYSTORE_DB_PORT"
	EnvDBUser       = "NOTIFYSTORE_DB_USER"
	EnvDBPassword   = "NOTIFYSTORE_DB_PASSWORD"
	EnvDBName       = "NOTIFYSTORE_DB_NAME"
	EnvDBSSLMode    = "NOTIFYSTORE_DB_SSLMODE"

	EnvRedisURL = "NOTIFYSTORE_REDIS_URL"

	EnvDispatchClaimStaleAfter = "NOTIFYSTORE_DISPATCH_CLAIM_STALE_AFTER"
	EnvDispatchMaxAttempts     = "NOTIFYSTORE_DISPATCH_MAX_ATTEMPTS"

	EnvSweepInterval   = "NOTIFYSTORE_SWEEP_INTERVAL"
	EnvSweepLockTTL    = "NOTIFYSTORE_SWEEP_LOCK_TTL"
	EnvSweepJobTimeout = "NOTIFYSTORE_SWEEP_JOB_TIMEOUT"

	EnvOpsPort = "NOTIFYSTORE_OPS_PORT"

	EnvUseSQLite   = "NOTIFYSTORE_USE_SQLITE"
	EnvAutoMigrate = "NOTIFYSTORE_AUTO_MIGRATE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
