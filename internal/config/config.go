package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store kinds accepted by QUOTES_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	AppEnv    string `envconfig:"APP_ENV" default:"development"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	Store         string        `envconfig:"QUOTES_STORE" default:"memory"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"5m"`
	DatabaseURL   string        `envconfig:"DATABASE_URL"`
	DBMaxConns    int32         `envconfig:"DB_MAX_CONNS" default:"5"`
	DBAutoMigrate bool          `envconfig:"DB_AUTO_MIGRATE" default:"false"`
	RedisURL      string        `envconfig:"REDIS_URL"`
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`

	// CarriersFile points at a YAML catalogue; empty uses the built-in one.
	CarriersFile string `envconfig:"CARRIERS_FILE"`
	// Carriers restricts the catalogue to these IDs when set.
	Carriers []string `envconfig:"CARRIERS"`

	KafkaBrokers string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string `envconfig:"KAFKA_TOPIC" default:"shipquote.quotes"`

	CORSOrigins           []string      `envconfig:"CORS_ORIGINS" default:"*"`
	RateLimitPerMinute    int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	RequestTimeout        time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	StatusDegradedLatency time.Duration `envconfig:"STATUS_DEGRADED_LATENCY" default:"2s"`
}

// Load reads the environment. Callers load .env files beforehand.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	for i, id := range cfg.Carriers {
		cfg.Carriers[i] = strings.ToLower(strings.TrimSpace(id))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when QUOTES_STORE=%s", StorePostgres)
		}
	case StoreRedis:
		if c.RedisURL == "" && c.RedisAddr == "" {
			return fmt.Errorf("REDIS_URL or REDIS_ADDR is required when QUOTES_STORE=%s", StoreRedis)
		}
	default:
		return fmt.Errorf("unknown QUOTES_STORE %q (want memory, postgres or redis)", c.Store)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	return nil
}

func (c Config) IsDev() bool {
	return strings.EqualFold(c.AppEnv, "development") || strings.EqualFold(c.AppEnv, "dev")
}

// KafkaEnabled reports whether quote batches should be published.
func (c Config) KafkaEnabled() bool {
	return strings.TrimSpace(c.KafkaBrokers) != ""
}
