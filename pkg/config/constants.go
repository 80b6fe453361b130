package config

const (
	EnvPrefix = "CRAFTCONNECT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "CRAFTCONNECT_APP_ENV"
	EnvPort   = "CRAFTCONNECT_APP_PORT"

	EnvDBDSN  = "CRAFTCONNECT_DB_DSN"
	EnvDBHost = "CRAFTCONNECT_DB_HOST"
	EnvDBUser = "CRAFTCONNECT_DB_USER"
	EnvDBName = "CRAFTCONNECT_DB_NAME"

	EnvRedisURL = "CRAFTCONNECT_REDIS_URL"

	EnvJWTSecret = "CRAFTCONNECT_JWT_SECRET"
	EnvJWTIssuer = "CRAFTCONNECT_JWT_ISSUER"

	EnvCommissionRate = "CRAFTCONNECT_COMMISSION_RATE"

	EnvLedgerMaxAttempts = "CRAFTCONNECT_LEDGER_MAX_ATTEMPTS"
	EnvLedgerBaseBackoff = "CRAFTCONNECT_LEDGER_BASE_BACKOFF"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
