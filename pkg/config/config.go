package config

import (
	"errors"
	"time"
)

// ErrInvalid is returned when a loaded configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the root configuration for the throttle service.
type Config struct {
	// Server contains the admission HTTP server settings.
	Server ServerConfig `yaml:"server"`

	// Redis contains the counter store connection settings. Ignored when
	// Throttle.Store is "memory".
	Redis RedisConfig `yaml:"redis"`

	// Throttle contains the engine and quota policy settings.
	Throttle ThrottleConfig `yaml:"throttle"`

	// Logging contains the structured logging settings.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains settings for the admission HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:9040"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 60s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// SelfProtect applies the engine's per-address quotas to the admission
	// endpoints themselves.
	// Default: false
	SelfProtect bool `yaml:"self_protect"`
}

// RedisConfig contains counter store connection settings.
type RedisConfig struct {
	// Address is the Redis host:port.
	// Default: "127.0.0.1:6379"
	Address string `yaml:"address"`

	// Password authenticates the connection. Empty disables AUTH.
	Password string `yaml:"password"`

	// DB selects the logical database.
	// Default: 0
	DB int `yaml:"db"`

	// DialTimeout bounds connection establishment.
	// Default: 5s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// ReadTimeout bounds individual command round trips.
	// Default: 3s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// PoolSize is the connection pool size. Zero uses the client default.
	PoolSize int `yaml:"pool_size"`
}

// ThrottleConfig contains engine and quota policy settings.
type ThrottleConfig struct {
	// Disabled is the engine kill switch: when true, every request is
	// admitted and the counter store is never touched. Watched for changes
	// at runtime.
	// Default: false
	Disabled bool `yaml:"disabled"`

	// Namespace prefixes every counter key.
	// Default: "throttle"
	Namespace string `yaml:"namespace"`

	// Store selects the counter store backend: "redis" or "memory".
	// Default: "redis"
	Store string `yaml:"store"`

	// PurgeSchedule is the cron schedule for sweeping expired keys out of
	// the memory store. Ignored for the Redis store, which expires keys
	// itself.
	// Default: "@every 1m"
	PurgeSchedule string `yaml:"purge_schedule"`

	// DefaultTier is the tier served to unauthenticated requests.
	// Default: "free"
	DefaultTier string `yaml:"default_tier"`

	// TierDB is a path to a SQLite policy database. When set, tier lookups
	// use it instead of the inline Tiers table.
	TierDB string `yaml:"tier_db"`

	// Tiers defines quota tiers inline: tier → resource → action →
	// duration → limit. "*" is accepted at the resource and action levels.
	Tiers map[string]map[string]map[string]map[string]int64 `yaml:"tiers"`

	// IPLimits overrides the built-in per-address quota table: action →
	// duration → limit. "*" is accepted at the action level.
	IPLimits map[string]map[string]int64 `yaml:"ip_limits"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format: "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log records.
	// Default: false
	AddSource bool `yaml:"add_source"`
}
