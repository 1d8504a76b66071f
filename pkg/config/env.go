package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverSQLite   = "sqlite"
	StorageDriverPostgres = "postgres"
	StorageDriverRedis    = "redis"
)

const (
	EnvAppEnv             = "STOREFRONT_APP_ENV"
	EnvAppAddr            = "STOREFRONT_APP_ADDR"
	EnvAPIBaseURL         = "STOREFRONT_API_BASE_URL"
	EnvAPITimeout         = "STOREFRONT_API_TIMEOUT"
	EnvAPIVendorID        = "STOREFRONT_API_VENDOR_ID"
	EnvStorageDriver      = "STOREFRONT_STORAGE_DRIVER"
	EnvStorageDSN         = "STOREFRONT_STORAGE_DSN"
	EnvStorageSealKey     = "STOREFRONT_STORAGE_SEAL_KEY"
	EnvRedisURL           = "STOREFRONT_REDIS_URL"
	EnvLocationLatitude   = "STOREFRONT_LOCATION_LATITUDE"
	EnvLocationLongitude  = "STOREFRONT_LOCATION_LONGITUDE"
	EnvVendorReportPeriod = "STOREFRONT_VENDOR_REPORT_INTERVAL"
	EnvVendorReportOn     = "STOREFRONT_VENDOR_REPORT_LOCATION"
)
