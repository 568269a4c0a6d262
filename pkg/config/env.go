package config

// EnvPrefix is empty because every field carries its full CODF_ name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "CODF_APP_ENV"
	EnvPort     = "CODF_APP_PORT"
	EnvLogLevel = "CODF_LOG_LEVEL"

	EnvDBDSN  = "CODF_DB_DSN"
	EnvDBHost = "CODF_DB_HOST"
	EnvDBUser = "CODF_DB_USER"
	EnvDBName = "CODF_DB_NAME"

	EnvRedisURL = "CODF_REDIS_URL"

	EnvTxMaxConcurrent = "CODF_TX_MAX_CONCURRENT"
	EnvTxMaxWait       = "CODF_TX_MAX_WAIT"
	EnvTxTimeout       = "CODF_TX_TIMEOUT"

	EnvImportBatchSize    = "CODF_IMPORT_BATCH_SIZE"
	EnvImportDeletedGrace = "CODF_IMPORT_DELETED_GRACE"
	EnvImportPhoneRegion  = "CODF_IMPORT_PHONE_REGION"

	EnvUseSQLite = "CODF_USE_SQLITE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
