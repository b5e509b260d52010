package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the full process configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Kafka     KafkaConfig     `koanf:"kafka"`
	Audit     AuditConfig     `koanf:"audit"`
	Retention RetentionConfig `koanf:"retention"`
	Export    ExportConfig    `koanf:"export"`
	Auth      AuthConfig      `koanf:"auth"`
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	// CORSAllowedOrigins enables CORS for the admin console. Empty disables it.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"dive,url"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// DatabaseConfig configures the Postgres pool. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"gte=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"gte=0"`
}

// RedisConfig configures the client used for the retention lock. An empty
// URL disables locking.
type RedisConfig struct {
	URL          string        `koanf:"url"`
	PoolSize     int           `koanf:"pool_size" validate:"gte=1"`
	MinIdleConns int           `koanf:"min_idle_conns" validate:"gte=0"`
	DialTimeout  time.Duration `koanf:"dial_timeout" validate:"gt=0"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`
}

// KafkaConfig configures the retention archive sink. No brokers disables
// archiving.
type KafkaConfig struct {
	Brokers         []string      `koanf:"brokers" validate:"dive,hostname_port"`
	ArchiveTopic    string        `koanf:"archive_topic" validate:"required_with=Brokers"`
	Partitions      int32         `koanf:"partitions" validate:"gte=1"`
	Acks            string        `koanf:"acks" validate:"oneof=0 1 all"`
	DeliveryTimeout time.Duration `koanf:"delivery_timeout" validate:"gt=0"`
}

type AuditConfig struct {
	QueueCapacity    int           `koanf:"queue_capacity" validate:"gte=1"`
	BatchSize        int           `koanf:"batch_size" validate:"gte=1"`
	FlushInterval    time.Duration `koanf:"flush_interval" validate:"gt=0"`
	MaxRetries       int           `koanf:"max_retries" validate:"gte=0"`
	RetryBackoff     time.Duration `koanf:"retry_backoff" validate:"gte=0"`
	ShutdownGrace    time.Duration `koanf:"shutdown_grace" validate:"gt=0"`
	BreakerThreshold uint32        `koanf:"breaker_threshold" validate:"gte=1"`
	BreakerOpenFor   time.Duration `koanf:"breaker_open_for" validate:"gt=0"`
}

type RetentionConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Horizon       time.Duration `koanf:"horizon" validate:"gt=0"`
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"gt=0"`
	BatchSize     int           `koanf:"batch_size" validate:"gte=1"`
	BatchesPerSec float64       `koanf:"batches_per_sec" validate:"gte=0"`
}

type ExportConfig struct {
	BatchSize int `koanf:"batch_size" validate:"gte=1,lte=1000"`
	// RequestsPerMinute caps exports per user. Zero disables the limit.
	RequestsPerMinute int `koanf:"requests_per_minute" validate:"gte=0"`
}

// AuthConfig configures bearer-token validation for the read API.
type AuthConfig struct {
	JWTSigningKey string `koanf:"jwt_signing_key" validate:"required,min=16"`
	AdminRole     string `koanf:"admin_role" validate:"required"`
}

// Defaults returns the configuration applied before file and environment
// overrides.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:               ":8080",
			ShutdownTimeout:    15 * time.Second,
			CORSAllowedOrigins: []string{},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 1,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:         []string{},
			ArchiveTopic:    "audit.archive",
			Partitions:      3,
			Acks:            "all",
			DeliveryTimeout: 30 * time.Second,
		},
		Audit: AuditConfig{
			QueueCapacity:    10000,
			BatchSize:        100,
			FlushInterval:    100 * time.Millisecond,
			MaxRetries:       3,
			RetryBackoff:     50 * time.Millisecond,
			ShutdownGrace:    10 * time.Second,
			BreakerThreshold: 5,
			BreakerOpenFor:   10 * time.Second,
		},
		Retention: RetentionConfig{
			Enabled:       true,
			Horizon:       365 * 24 * time.Hour,
			SweepInterval: time.Hour,
			BatchSize:     500,
			BatchesPerSec: 10,
		},
		Export: ExportConfig{
			BatchSize:         100,
			RequestsPerMinute: 10,
		},
		Auth: AuthConfig{
			// Development default; override via AUDITPIPE_AUTH__JWT_SIGNING_KEY.
			JWTSigningKey: "dev-secret-key-change-in-production",
			AdminRole:     "admin",
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints declared in struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
