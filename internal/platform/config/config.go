// Package config loads process configuration from CERT_* environment
// variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix for every variable, e.g. CERT_ADDR, CERT_DATABASE_DSN.
const Prefix = "cert"

// Config is the full runtime configuration.
type Config struct {
	Addr      string        `envconfig:"ADDR" default:":8080"`
	LogLevel  string        `envconfig:"LOG_LEVEL" default:"info"`
	TxTimeout time.Duration `envconfig:"TX_TIMEOUT" default:"5s"`
	LabelSeed string        `envconfig:"LABEL_SEED"`

	Database DatabaseConfig `envconfig:"DATABASE"`
	Redis    RedisConfig    `envconfig:"REDIS"`
	Kafka    KafkaConfig    `envconfig:"KAFKA"`
	Auth     AuthConfig     `envconfig:"AUTH"`
}

// DatabaseConfig configures the Postgres pool. An empty DSN selects the
// in-memory stores.
type DatabaseConfig struct {
	DSN             string        `envconfig:"DSN"`
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"30m"`
}

// RedisConfig configures the population cache. An empty URL disables it.
type RedisConfig struct {
	URL          string        `envconfig:"URL"`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"2s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"1s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"1s"`
	CacheTTL     time.Duration `envconfig:"CACHE_TTL" default:"10m"`
}

// KafkaConfig configures the event relay. No brokers disables publishing;
// events still accumulate in the outbox.
type KafkaConfig struct {
	Brokers      []string      `envconfig:"BROKERS"`
	Topic        string        `envconfig:"TOPIC" default:"cert-events"`
	Partitions   int32         `envconfig:"PARTITIONS" default:"3"`
	Replication  int16         `envconfig:"REPLICATION" default:"1"`
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"1s"`
	BatchSize    int           `envconfig:"BATCH_SIZE" default:"100"`
}

// AuthConfig configures bearer-token validation for staff routes.
type AuthConfig struct {
	SigningKey string `envconfig:"SIGNING_KEY"`
	Issuer     string `envconfig:"ISSUER" default:"certregistry"`
	Audience   string `envconfig:"AUDIENCE" default:"certregistry-staff"`
}

// Enabled helpers keep optional-dependency checks out of main.
func (c DatabaseConfig) Enabled() bool { return c.DSN != "" }
func (c RedisConfig) Enabled() bool    { return c.URL != "" }
func (c KafkaConfig) Enabled() bool    { return len(c.Brokers) > 0 }

// FromEnv reads the environment and validates it for the server, which
// needs a token signing key.
func FromEnv() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if cfg.Auth.SigningKey == "" {
		return nil, fmt.Errorf("invalid configuration: auth signing key is required")
	}
	return cfg, nil
}

// Load reads and validates the environment without requiring auth
// settings. The CLI uses it for commands that never touch tokens.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate rejects combinations that cannot run.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	if c.TxTimeout <= 0 {
		return fmt.Errorf("tx timeout must be positive")
	}
	if c.Kafka.Enabled() {
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic is required when brokers are set")
		}
		if c.Kafka.BatchSize <= 0 {
			return fmt.Errorf("kafka batch size must be positive")
		}
	}
	return nil
}
