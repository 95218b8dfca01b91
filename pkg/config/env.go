package config

// EnvPrefix is passed to envconfig; every field also carries its full variable name.
const EnvPrefix = "CORPORATEPRANKS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	HostedProviderStripe = "stripe"
	HostedProviderSquare = "square"
)

const (
	EnvAppEnv       = "CORPORATEPRANKS_APP_ENV"
	EnvPort         = "CORPORATEPRANKS_APP_PORT"
	EnvLogLevel     = "CORPORATEPRANKS_LOG_LEVEL"
	EnvLogWarnStack = "CORPORATEPRANKS_LOG_WARN_STACK"
	EnvCORSOrigins  = "CORPORATEPRANKS_CORS_ORIGINS"
	EnvServiceKind  = "CORPORATEPRANKS_SERVICE_KIND"

	EnvDBDSN      = "CORPORATEPRANKS_DB_DSN"
	EnvDBDriver   = "CORPORATEPRANKS_DB_DRIVER"
	EnvDBHost     = "CORPORATEPRANKS_DB_HOST"
	EnvDBPort     = "CORPORATEPRANKS_DB_PORT"
	EnvDBUser     = "CORPORATEPRANKS_DB_USER"
	EnvDBPassword = "CORPORATEPRANKS_DB_PASSWORD"
	EnvDBName     = "CORPORATEPRANKS_DB_NAME"
	EnvDBSSLMode  = "CORPORATEPRANKS_DB_SSLMODE"

	EnvRedisURL = "CORPORATEPRANKS_REDIS_URL"

	EnvJWTSecret = "CORPORATEPRANKS_JWT_SECRET"
	EnvJWTIssuer = "CORPORATEPRANKS_JWT_ISSUER"

	EnvAutoMigrate  = "CORPORATEPRANKS_AUTO_MIGRATE"
	EnvUseSQLite    = "CORPORATEPRANKS_USE_SQLITE"
	EnvMemoryDrafts = "CORPORATEPRANKS_MEMORY_DRAFTS"

	EnvGCPProjectID = "CORPORATEPRANKS_GCP_PROJECT_ID"
	EnvGCSBucket    = "CORPORATEPRANKS_GCS_BUCKET_NAME"

	EnvPubSubDomainTopic   = "CORPORATEPRANKS_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubPurchaseTopic = "CORPORATEPRANKS_PUBSUB_PURCHASE_TOPIC"
	EnvPubSubPurchaseSub   = "CORPORATEPRANKS_PUBSUB_PURCHASE_SUBSCRIPTION"

	EnvStripeAPIKey = "CORPORATEPRANKS_STRIPE_API_KEY"
	EnvStripeSecret = "CORPORATEPRANKS_STRIPE_SECRET"
	EnvStripeEnv    = "CORPORATEPRANKS_STRIPE_ENV"

	EnvPayPalClientID     = "CORPORATEPRANKS_PAYPAL_CLIENT_ID"
	EnvPayPalClientSecret = "CORPORATEPRANKS_PAYPAL_CLIENT_SECRET"
	EnvPayPalEnv          = "CORPORATEPRANKS_PAYPAL_ENV"

	EnvSquareAccessToken = "CORPORATEPRANKS_SQUARE_ACCESS_TOKEN"
	EnvSquareLocationID  = "CORPORATEPRANKS_SQUARE_LOCATION_ID"

	EnvCheckoutCurrency      = "CORPORATEPRANKS_CHECKOUT_CURRENCY"
	EnvFunnelShippingFee     = "CORPORATEPRANKS_FUNNEL_SHIPPING_FEE"
	EnvFunnelFreeShippingQty = "CORPORATEPRANKS_FUNNEL_FREE_SHIPPING_QTY"
	EnvHostedProvider        = "CORPORATEPRANKS_HOSTED_PROVIDER"
	EnvPaymentTimeout        = "CORPORATEPRANKS_PAYMENT_TIMEOUT"

	EnvRateLimitWindow = "CORPORATEPRANKS_RATE_LIMIT_WINDOW"
	EnvRateLimitIP     = "CORPORATEPRANKS_RATE_LIMIT_IP"
	EnvRateLimitOwner  = "CORPORATEPRANKS_RATE_LIMIT_OWNER"
)
