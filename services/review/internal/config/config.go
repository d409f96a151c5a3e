package config

import (
	"fmt"
	"slices"
	"time"

	pkgconfig "github.com/rakeshshah18/philanzel-sub001/pkg/config"
	"github.com/rakeshshah18/philanzel-sub001/pkg/database"
	"github.com/rakeshshah18/philanzel-sub001/pkg/tracing"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// ServiceName identifies the service in logs, traces and metrics.
const ServiceName = "review-service"

// Config holds all configuration for the review service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	// HTTP server
	HTTPPort int `env:"REVIEW_HTTP_PORT" envDefault:"8010"`

	// Rate limits
	PublicRPS            float64 `env:"REVIEW_PUBLIC_RPS" envDefault:"50"`
	PublicBurst          int     `env:"REVIEW_PUBLIC_BURST" envDefault:"100"`
	RecalculatePerMinute int     `env:"REVIEW_RECALCULATE_PER_MINUTE" envDefault:"6"`

	// Storage
	StorageDriver       string `env:"REVIEW_STORAGE_DRIVER" envDefault:"postgres"`
	ConflictMaxAttempts int    `env:"REVIEW_CONFLICT_MAX_ATTEMPTS" envDefault:"3"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"philanzel"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"philanzel_secret"`
	PostgresDB   string `env:"REVIEW_DB_NAME" envDefault:"philanzel_reviews"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Redis (storage driver and consumer idempotency keys)
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// MongoDB
	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"philanzel"`

	// Kafka
	KafkaEnabled         bool     `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers         []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" envDefault:"false"`
	KafkaConsumerGroup   string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"review-service"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// Origins allowed to call the API from a browser (the admin console)
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load review config: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges after parsing.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	drivers := []string{DriverPostgres, DriverRedis, DriverMongo, DriverMemory}
	if !slices.Contains(drivers, c.StorageDriver) {
		return fmt.Errorf("REVIEW_STORAGE_DRIVER must be one of %v, got %q", drivers, c.StorageDriver)
	}
	if c.ConflictMaxAttempts < 1 {
		return fmt.Errorf("REVIEW_CONFLICT_MAX_ATTEMPTS must be at least 1, got %d", c.ConflictMaxAttempts)
	}
	if c.StorageDriver == DriverPostgres {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required")
		}
	}
	if c.PublicRPS < 0 || c.PublicBurst < 0 || c.RecalculatePerMinute < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.KafkaConsumerEnabled && !c.KafkaEnabled {
		return fmt.Errorf("KAFKA_CONSUMER_ENABLED requires KAFKA_ENABLED")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// Postgres returns the connection settings for the pgx pool.
// Postgres returns the pool settings. Unset values keep the development
// defaults.
func (c *Config) Postgres() *database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	setString(&pg.Host, c.PostgresHost)
	setString(&pg.User, c.PostgresUser)
	setString(&pg.Password, c.PostgresPass)
	setString(&pg.DBName, c.PostgresDB)
	setString(&pg.SSLMode, c.PostgresSSL)
	if c.PostgresPort > 0 {
		pg.Port = c.PostgresPort
	}
	if c.DBMaxConns > 0 {
		pg.MaxConns = c.DBMaxConns
	}
	if c.DBMinConns > 0 {
		pg.MinConns = c.DBMinConns
	}
	if c.DBMaxConnLifetimeMins > 0 {
		pg.MaxConnLifetime = time.Duration(c.DBMaxConnLifetimeMins) * time.Minute
	}
	if c.DBMaxConnIdleTimeMins > 0 {
		pg.MaxConnIdleTime = time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute
	}
	return &pg
}

func (c *Config) Redis() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	setString(&rc.Addr, c.RedisAddr)
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	return rc
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *Config) Mongo() database.MongoConfig {
	mc := database.DefaultMongoConfig()
	mc.URI = c.MongoURI
	mc.Database = c.MongoDatabase
	return mc
}

// Tracing returns the OpenTelemetry exporter settings.
func (c *Config) Tracing() tracing.Config {
	tc := tracing.DefaultConfig(ServiceName)
	tc.Environment = c.Environment
	tc.OTLPEndpoint = c.OTELEndpoint
	tc.SampleRate = c.OTELSampleRate
	tc.Enabled = c.OTELEnabled
	tc.Insecure = c.Environment == "development"
	return tc
}

// SlowQueryThreshold returns LOG_SLOW_QUERY_MS as a duration.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryThresholdMs) * time.Millisecond
}
