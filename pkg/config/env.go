package config

const (
	EnvPrefix = "GATEPASS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "GATEPASS_APP_ENV"
	EnvPort      = "GATEPASS_APP_PORT"
	EnvDBDSN     = "GATEPASS_DB_DSN"
	EnvDBHost    = "GATEPASS_DB_HOST"
	EnvDBUser    = "GATEPASS_DB_USER"
	EnvDBName    = "GATEPASS_DB_NAME"
	EnvUseSQLite = "GATEPASS_USE_SQLITE"
	EnvRedisURL  = "GATEPASS_REDIS_URL"
	EnvJWTSecret = "GATEPASS_JWT_SECRET"
	EnvJWTIssuer = "GATEPASS_JWT_ISSUER"
	EnvHoldTTL   = "GATEPASS_CHECKOUT_HOLD_TTL"
	EnvQRSecret  = "GATEPASS_QR_SECRET"
	EnvQRVersion = "GATEPASS_QR_VERSION"
	EnvStripeKey = "GATEPASS_STRIPE_API_KEY"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
