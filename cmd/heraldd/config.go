package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/herald"
	"github.com/xraph/herald/ratelimit"
)

// Config is the daemon configuration, read from YAML and then overridden
// by HERALD_* environment variables.
type Config struct {
	Addr     string `yaml:"addr"`
	LogLevel string `yaml:"log_level"`

	Store     StoreConfig     `yaml:"store"`
	Queue     QueueConfig     `yaml:"queue"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Redis     RedisConfig     `yaml:"redis"`

	Herald herald.Config `yaml:"herald"`
}

// StoreConfig selects the persistence backend: "memory", "postgres",
// "sqlite" or "mongo". All but memory require a DSN.
type StoreConfig struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	Migrate bool   `yaml:"migrate"`
}

// QueueConfig selects the dispatch queue: "memory" or "redis".
type QueueConfig struct {
	Driver string `yaml:"driver"`
	Key    string `yaml:"key"`
}

// RateLimitConfig selects the admin API limiter: "local", "redis" or "off".
type RateLimitConfig struct {
	Driver           string `yaml:"driver"`
	ratelimit.Config `yaml:",inline"`
}

// RedisConfig is shared by the redis queue and the redis limiter.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func defaultConfig() Config {
	return Config{
		Addr:     ":8080",
		LogLevel: "info",
		Store:    StoreConfig{Driver: "memory", Migrate: true},
		Queue:    QueueConfig{Driver: "memory"},
		RateLimit: RateLimitConfig{
			Driver: "local",
			Config: ratelimit.DefaultConfig(),
		},
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Herald: herald.DefaultConfig(),
	}
}

// loadConfig reads path (if non-empty) over the defaults and applies the
// environment.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("HERALD_ADDR", &cfg.Addr)
	str("HERALD_LOG_LEVEL", &cfg.LogLevel)
	str("HERALD_STORE_DRIVER", &cfg.Store.Driver)
	str("HERALD_STORE_DSN", &cfg.Store.DSN)
	str("HERALD_QUEUE_DRIVER", &cfg.Queue.Driver)
	str("HERALD_QUEUE_KEY", &cfg.Queue.Key)
	str("HERALD_RATE_LIMIT_DRIVER", &cfg.RateLimit.Driver)
	str("HERALD_REDIS_ADDR", &cfg.Redis.Addr)
	str("HERALD_REDIS_PASSWORD", &cfg.Redis.Password)

	ints := map[string]*int{
		"HERALD_REDIS_DB":         &cfg.Redis.DB,
		"HERALD_CONCURRENCY":      &cfg.Herald.Concurrency,
		"HERALD_FAN_OUT":          &cfg.Herald.FanOut,
		"HERALD_QUEUE_SIZE":       &cfg.Herald.QueueSize,
		"HERALD_RATE_LIMIT_LIMIT": &cfg.RateLimit.Limit,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"HERALD_REQUEST_TIMEOUT":   &cfg.Herald.RequestTimeout,
		"HERALD_BACKOFF_BASE":      &cfg.Herald.BackoffBase,
		"HERALD_BACKOFF_MAX":       &cfg.Herald.BackoffMax,
		"HERALD_SHUTDOWN_TIMEOUT":  &cfg.Herald.ShutdownTimeout,
		"HERALD_CACHE_TTL":         &cfg.Herald.CacheTTL,
		"HERALD_RATE_LIMIT_WINDOW": &cfg.RateLimit.Window,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	if v, ok := lookup("HERALD_STORE_MIGRATE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HERALD_STORE_MIGRATE: %w", err)
		}
		cfg.Store.Migrate = b
	}
	if v, ok := lookup("HERALD_FAST_FAIL_CLIENT_ERRORS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HERALD_FAST_FAIL_CLIENT_ERRORS: %w", err)
		}
		cfg.Herald.FastFailClientErrors = b
	}
	return nil
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case "memory":
	case "postgres", "sqlite", "mongo":
		if c.Store.DSN == "" {
			return fmt.Errorf("store: %s driver requires a dsn", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store: unknown driver %q", c.Store.Driver)
	}
	switch c.Queue.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("queue: unknown driver %q", c.Queue.Driver)
	}
	switch c.RateLimit.Driver {
	case "local", "redis", "off":
	default:
		return fmt.Errorf("rate_limit: unknown driver %q", c.RateLimit.Driver)
	}
	return nil
}
