package herald

import "time"

// Config holds the configuration for a Herald instance.
type Config struct {
	// Concurrency is the number of dispatch tasks processed at once.
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	// FanOut bounds the subscriptions delivered in parallel per dispatch.
	FanOut int `json:"fan_out" yaml:"fan_out" mapstructure:"fan_out"`

	// QueueSize is the capacity of the default in-memory queue.
	QueueSize int `json:"queue_size" yaml:"queue_size" mapstructure:"queue_size"`

	// RequestTimeout bounds an attempt for subscriptions stored without a timeout.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" mapstructure:"request_timeout"`

	// BackoffBase is the wait after the first failed attempt; it doubles per attempt.
	BackoffBase time.Duration `json:"backoff_base" yaml:"backoff_base" mapstructure:"backoff_base"`

	// BackoffMax caps a single backoff wait.
	BackoffMax time.Duration `json:"backoff_max" yaml:"backoff_max" mapstructure:"backoff_max"`

	// FastFailClientErrors stops retrying on 4xx responses other than 408 and 429.
	FastFailClientErrors bool `json:"fast_fail_client_errors" yaml:"fast_fail_client_errors" mapstructure:"fast_fail_client_errors"`

	// ShutdownTimeout is the maximum time to wait for in-flight deliveries on shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	// CacheTTL is the TTL for the catalog's in-memory event type cache.
	// Set to 0 to cache until invalidated.
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     8,
		FanOut:          4,
		QueueSize:       1024,
		RequestTimeout:  30 * time.Second,
		BackoffBase:     2 * time.Second,
		BackoffMax:      5 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		CacheTTL:        30 * time.Second,
	}
}
