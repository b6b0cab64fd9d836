package config

const (
	EnvPrefix = "MARKETPLACE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	EnvAppEnv        = "MARKETPLACE_APP_ENV"
	EnvPort          = "MARKETPLACE_APP_PORT"
	EnvDBDSN         = "MARKETPLACE_DB_DSN"
	EnvDBHost        = "MARKETPLACE_DB_HOST"
	EnvDBUser        = "MARKETPLACE_DB_USER"
	EnvDBName        = "MARKETPLACE_DB_NAME"
	EnvDBPassword    = "MARKETPLACE_DB_PASSWORD"
	EnvRedisURL      = "MARKETPLACE_REDIS_URL"
	EnvJWTSecret     = "MARKETPLACE_JWT_SECRET"
	EnvJWTIssuer     = "MARKETPLACE_JWT_ISSUER"
	EnvJWTExpMins    = "MARKETPLACE_JWT_EXPIRATION_MINUTES"
	EnvUseSQLite     = "MARKETPLACE_USE_SQLITE"
	EnvPenaltyWindow = "MARKETPLACE_JOBS_PENALTY_REVIEW_WINDOW"
	EnvOrdersTopic   = "MARKETPLACE_PUBSUB_ORDERS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
