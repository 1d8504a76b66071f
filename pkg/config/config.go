package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	API      APIConfig
	Storage  StorageConfig
	DB       DBConfig
	Redis    RedisConfig
	Location LocationConfig
	Vendor   VendorConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.API.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadStorage resolves only the sections needed to open the device store.
// Tooling such as the migrate command uses it so the API settings stay optional.
func LoadStorage() (*Config, error) {
	var cfg Config
	for _, section := range []any{&cfg.App, &cfg.Storage, &cfg.DB, &cfg.Redis} {
		if err := envconfig.Process(EnvPrefix, section); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" default:"dev"`
	Addr         string `envconfig:"STOREFRONT_APP_ADDR" default:"127.0.0.1:8787"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type APIConfig struct {
	BaseURL            string        `envconfig:"STOREFRONT_API_BASE_URL" required:"true"`
	Timeout            time.Duration `envconfig:"STOREFRONT_API_TIMEOUT" default:"15s"`
	VendorID           string        `envconfig:"STOREFRONT_API_VENDOR_ID" required:"true"`
	BreakerFailures    uint32        `envconfig:"STOREFRONT_API_BREAKER_FAILURES" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"STOREFRONT_API_BREAKER_OPEN_TIMEOUT" default:"30s"`
}

func (a APIConfig) validate() error {
	parsed, err := url.Parse(a.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute url", EnvAPIBaseURL)
	}
	if a.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvAPITimeout)
	}
	return nil
}

type StorageConfig struct {
	Driver string `envconfig:"STOREFRONT_STORAGE_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"STOREFRONT_STORAGE_DSN" default:"file:storefront.db?_busy_timeout=5000"`
	// SealKey is a base64 encoded 32 byte key used to encrypt the credential and
	// cached profile at rest. Sealing is disabled when empty.
	SealKey string `envconfig:"STOREFRONT_STORAGE_SEAL_KEY"`
}

// SealKeyBytes decodes the configured seal key, returning nil when sealing is disabled.
func (s StorageConfig) SealKeyBytes() ([]byte, error) {
	if strings.TrimSpace(s.SealKey) == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s.SealKey))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", EnvStorageSealKey, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", EnvStorageSealKey, len(key))
	}
	return key, nil
}

func (s StorageConfig) validate() error {
	switch strings.ToLower(s.Driver) {
	case StorageDriverMemory, StorageDriverRedis:
		return nil
	case StorageDriverSQLite, StorageDriverPostgres:
		if s.DSN == "" {
			return fmt.Errorf("%s is required for driver %s", EnvStorageDSN, s.Driver)
		}
		return nil
	}
	return fmt.Errorf("unsupported %s %q", EnvStorageDriver, s.Driver)
}

type DBConfig struct {
	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"4"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"4"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// LocationConfig drives the static locator standing in for the device sensor.
type LocationConfig struct {
	Timeout   time.Duration `envconfig:"STOREFRONT_LOCATION_TIMEOUT" default:"10s"`
	Latitude  float64       `envconfig:"STOREFRONT_LOCATION_LATITUDE"`
	Longitude float64       `envconfig:"STOREFRONT_LOCATION_LONGITUDE"`
	Denied    bool          `envconfig:"STOREFRONT_LOCATION_DENIED" default:"false"`
}

// VendorConfig drives the vendor location reporter. Reporting is opt-in and
// only meant for devices operated by a vendor.
type VendorConfig struct {
	ReportLocation bool          `envconfig:"STOREFRONT_VENDOR_REPORT_LOCATION" default:"false"`
	ReportInterval time.Duration `envconfig:"STOREFRONT_VENDOR_REPORT_INTERVAL" default:"10s"`
}
