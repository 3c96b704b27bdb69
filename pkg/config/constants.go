package config

const (
	EnvPrefix = "LICENSING"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	EnvAppEnv             = "LICENSING_APP_ENV"
	EnvPort               = "LICENSING_APP_PORT"
	EnvDBDSN              = "LICENSING_DB_DSN"
	EnvDBHost             = "LICENSING_DB_HOST"
	EnvDBUser             = "LICENSING_DB_USER"
	EnvDBName             = "LICENSING_DB_NAME"
	EnvRedisURL           = "LICENSING_REDIS_URL"
	EnvJWTSecret          = "LICENSING_JWT_SECRET"
	EnvJWTIssuer          = "LICENSING_JWT_ISSUER"
	EnvTokenSigningSecret = "LICENSING_TOKEN_SIGNING_SECRET"
	EnvRedeemPepper       = "LICENSING_REDEEM_PEPPER"
	EnvRenewalRetryBudget = "LICENSING_RENEWAL_RETRY_BUDGET"

	minSigningSecretLen = 32
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
