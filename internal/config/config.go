package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

var ErrMissingRequiredValue = errors.New("missing required value")
var ErrInvalidValue = errors.New("invalid value")

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

type StoreKind string

const (
	StoreMemory     StoreKind = "memory"
	StoreFilesystem StoreKind = "filesystem"
	StorePostgres   StoreKind = "postgres"
	StoreMinio      StoreKind = "minio"
)

const (
	DefaultPort                = "8080"
	DefaultDBSchema            = "assetcache"
	DefaultMemoryCheckInterval = 30 * time.Second
	DefaultUnusedThreshold     = 180 * time.Second
	DefaultMemoryThresholdMB   = 512.0
	DefaultMaxConcurrentLoads  = 8
)

type Config struct {
	env       environment
	port      string
	sentryDSN string

	storeKind          StoreKind
	assetDir           string
	dbConnectionString string
	dbSchema           string
	minioEndpoint      string
	minioAccessKey     string
	minioSecretKey     string
	minioBucket        string
	minioUseSSL        bool

	memoryCheckInterval time.Duration
	unusedThreshold     time.Duration
	memoryThresholdMB   float64
	maxConcurrentLoads  int

	otlpEndpoint string
}

func (c *Config) Port() string {
	return c.port
}

func (c *Config) SentryDSN() string {
	return c.sentryDSN
}

func (c *Config) StoreKind() StoreKind {
	return c.storeKind
}

func (c *Config) AssetDir() string {
	return c.assetDir
}

func (c *Config) DBConnectionString() string {
	return c.dbConnectionString
}

func (c *Config) DBSchema() string {
	return c.dbSchema
}

func (c *Config) MinioEndpoint() string {
	return c.minioEndpoint
}

func (c *Config) MinioAccessKey() string {
	return c.minioAccessKey
}

func (c *Config) MinioSecretKey() string {
	return c.minioSecretKey
}

func (c *Config) MinioBucket() string {
	return c.minioBucket
}

func (c *Config) MinioUseSSL() bool {
	return c.minioUseSSL
}

func (c *Config) MemoryCheckInterval() time.Duration {
	return c.memoryCheckInterval
}

func (c *Config) UnusedThreshold() time.Duration {
	return c.unusedThreshold
}

func (c *Config) MemoryThresholdMB() float64 {
	return c.memoryThresholdMB
}

func (c *Config) MaxConcurrentLoads() int {
	return c.maxConcurrentLoads
}

func (c *Config) OTLPEndpoint() string {
	return c.otlpEndpoint
}

func (c *Config) TelemetryEnabled() bool {
	return c.otlpEndpoint != ""
}

func (c *Config) Environment() string {
	return string(c.env)
}

func (c *Config) IsProduction() bool {
	return c.env == production
}

func (c *Config) IsStaging() bool {
	return c.env == staging
}

func (c *Config) IsDevelopment() bool {
	return c.env == development
}

// Return a string representation suitable for logging etc
func (c *Config) NonSensitiveString() string {
	return fmt.Sprintf(
		"Config{env: %s, store: %s, checkInterval: %s, unusedThreshold: %s, thresholdMB: %.0f, maxLoads: %d, ...}",
		string(c.env),
		string(c.storeKind),
		c.memoryCheckInterval,
		c.unusedThreshold,
		c.memoryThresholdMB,
		c.maxConcurrentLoads,
	)
}

func ConfigFromEnv() (Config, error) {
	missingKey := func(key string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingRequiredValue, key)
	}
	invalidValue := func(key, value string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s (%s)", ErrInvalidValue, key, value)
	}

	var env environment
	rawEnv, ok := os.LookupEnv("ASSETCACHE_ENVIRONMENT")
	if !ok {
		return missingKey("ASSETCACHE_ENVIRONMENT")
	}
	switch rawEnv {
	case "production":
		env = production
	case "staging":
		env = staging
	case "development":
		env = development
	default:
		return invalidValue("ASSETCACHE_ENVIRONMENT", rawEnv)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = DefaultPort
	}

	sentryDSN := os.Getenv("SENTRY_DSN")
	if env != development && sentryDSN == "" {
		return missingKey("SENTRY_DSN")
	}

	var storeKind StoreKind
	rawStoreKind := os.Getenv("ASSET_STORE")
	switch rawStoreKind {
	case "":
		if env != development {
			return missingKey("ASSET_STORE")
		}
		storeKind = StoreMemory
	case string(StoreMemory), string(StoreFilesystem), string(StorePostgres), string(StoreMinio):
		storeKind = StoreKind(rawStoreKind)
	default:
		return invalidValue("ASSET_STORE", rawStoreKind)
	}

	assetDir := os.Getenv("ASSET_DIR")
	dbConnectionString := os.Getenv("DB_CONNECTION_STRING")
	dbSchema := os.Getenv("DB_SCHEMA")
	if dbSchema == "" {
		dbSchema = DefaultDBSchema
	}
	minioEndpoint := os.Getenv("MINIO_ENDPOINT")
	minioAccessKey := os.Getenv("MINIO_ACCESS_KEY")
	minioSecretKey := os.Getenv("MINIO_SECRET_KEY")
	minioBucket := os.Getenv("MINIO_BUCKET")

	switch storeKind {
	case StoreFilesystem:
		if assetDir == "" {
			return missingKey("ASSET_DIR")
		}
	case StorePostgres:
		if dbConnectionString == "" {
			return missingKey("DB_CONNECTION_STRING")
		}
	case StoreMinio:
		if minioEndpoint == "" {
			return missingKey("MINIO_ENDPOINT")
		}
		if minioAccessKey == "" {
			return missingKey("MINIO_ACCESS_KEY")
		}
		if minioSecretKey == "" {
			return missingKey("MINIO_SECRET_KEY")
		}
		if minioBucket == "" {
			return missingKey("MINIO_BUCKET")
		}
	}

	minioUseSSL := false
	if raw := os.Getenv("MINIO_USE_SSL"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return invalidValue("MINIO_USE_SSL", raw)
		}
		minioUseSSL = parsed
	}

	durationOrDefault := func(key string, fallback time.Duration) (time.Duration, bool) {
		raw := os.Getenv(key)
		if raw == "" {
			return fallback, true
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			return 0, false
		}
		return parsed, true
	}

	memoryCheckInterval, ok := durationOrDefault("MEMORY_CHECK_INTERVAL", DefaultMemoryCheckInterval)
	if !ok {
		return invalidValue("MEMORY_CHECK_INTERVAL", os.Getenv("MEMORY_CHECK_INTERVAL"))
	}
	unusedThreshold, ok := durationOrDefault("UNUSED_THRESHOLD", DefaultUnusedThreshold)
	if !ok {
		return invalidValue("UNUSED_THRESHOLD", os.Getenv("UNUSED_THRESHOLD"))
	}

	memoryThresholdMB := DefaultMemoryThresholdMB
	if raw := os.Getenv("MEMORY_THRESHOLD_MB"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			return invalidValue("MEMORY_THRESHOLD_MB", raw)
		}
		memoryThresholdMB = parsed
	}

	maxConcurrentLoads := DefaultMaxConcurrentLoads
	if raw := os.Getenv("MAX_CONCURRENT_LOADS"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return invalidValue("MAX_CONCURRENT_LOADS", raw)
		}
		maxConcurrentLoads = parsed
	}

	return Config{
		env:       env,
		port:      port,
		sentryDSN: sentryDSN,

		storeKind:          storeKind,
		assetDir:           assetDir,
		dbConnectionString: dbConnectionString,
		dbSchema:           dbSchema,
		minioEndpoint:      minioEndpoint,
		minioAccessKey:     minioAccessKey,
		minioSecretKey:     minioSecretKey,
		minioBucket:        minioBucket,
		minioUseSSL:        minioUseSSL,

		memoryCheckInterval: memoryCheckInterval,
		unusedThreshold:     unusedThreshold,
		memoryThresholdMB:   memoryThresholdMB,
		maxConcurrentLoads:  maxConcurrentLoads,

		otlpEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
