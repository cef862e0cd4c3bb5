package config

// EnvPrefix is passed to envconfig; every tag below carries the full variable name.
const EnvPrefix = "REPAIRDESK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "REPAIRDESK_APP_ENV"
	EnvPort     = "REPAIRDESK_APP_PORT"
	EnvLogLevel = "REPAIRDESK_LOG_LEVEL"

	EnvDBDSN  = "REPAIRDESK_DB_DSN"
	EnvDBHost = "REPAIRDESK_DB_HOST"
	EnvDBUser = "REPAIRDESK_DB_USER"
	EnvDBName = "REPAIRDESK_DB_NAME"

	EnvRedisURL = "REPAIRDESK_REDIS_URL"

	EnvJWTSecret  = "REPAIRDESK_JWT_SECRET"
	EnvJWTIssuer  = "REPAIRDESK_JWT_ISSUER"
	EnvJWTExpMins = "REPAIRDESK_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "REPAIRDESK_GCP_PROJECT_ID"

	EnvPubSubRequestsTopic        = "REPAIRDESK_PUBSUB_REQUESTS_TOPIC"
	EnvPubSubNotificationTopic    = "REPAIRDESK_PUBSUB_NOTIFICATION_TOPIC"
	EnvBillingDefaultTaxRate      = "REPAIRDESK_BILLING_DEFAULT_TAX_RATE"
	EnvCronQuoteReminderAfterDays = "REPAIRDESK_CRON_QUOTE_REMINDER_AFTER_DAYS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
