package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/serandules/throttle/pkg/throttle"
)

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the result.
//
// Environment variables follow the THROTTLE_SECTION_FIELD convention (for
// example THROTTLE_REDIS_ADDRESS) and always take precedence over the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides overrides select fields from the environment.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("THROTTLE_SERVER_LISTEN_ADDRESS"); v != "" {
		cfg.Server.ListenAddress = v
	}
	if v := os.Getenv("THROTTLE_REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
	}
	if v := os.Getenv("THROTTLE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("THROTTLE_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("THROTTLE_DISABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Throttle.Disabled = b
		}
	}
	if v := os.Getenv("THROTTLE_STORE"); v != "" {
		cfg.Throttle.Store = v
	}
	if v := os.Getenv("THROTTLE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

var knownDurations = map[string]bool{
	string(throttle.Second): true,
	string(throttle.Minute): true,
	string(throttle.Hour):   true,
	string(throttle.Day):    true,
	string(throttle.Month):  true,
}

// Validate checks the configuration for values the service cannot run with.
func Validate(cfg *Config) error {
	switch cfg.Throttle.Store {
	case "redis", "memory":
	default:
		return fmt.Errorf("%w: unknown store %q (want \"redis\" or \"memory\")", ErrInvalid, cfg.Throttle.Store)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalid, cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, cfg.Logging.Format)
	}

	if cfg.Server.ShutdownTimeout < time.Second {
		return fmt.Errorf("%w: shutdown timeout %s is below one second", ErrInvalid, cfg.Server.ShutdownTimeout)
	}

	for tier, resources := range cfg.Throttle.Tiers {
		for resource, actions := range resources {
			for action, limits := range actions {
				for duration, quota := range limits {
					if !knownDurations[duration] {
						return fmt.Errorf("%w: tier %q: unknown duration %q under %s/%s",
							ErrInvalid, tier, duration, resource, action)
					}
					if quota < 0 {
						return fmt.Errorf("%w: tier %q: negative limit for %s/%s/%s",
							ErrInvalid, tier, resource, action, duration)
					}
				}
			}
		}
	}
	for action, limits := range cfg.Throttle.IPLimits {
		for duration, quota := range limits {
			if !knownDurations[duration] {
				return fmt.Errorf("%w: ip_limits: unknown duration %q under %s", ErrInvalid, duration, action)
			}
			if quota < 0 {
				return fmt.Errorf("%w: ip_limits: negative limit for %s/%s", ErrInvalid, action, duration)
			}
		}
	}
	return nil
}

// BuildTiers converts the inline tier tables into policy values.
func (c *ThrottleConfig) BuildTiers() map[string]*throttle.Tier {
	tiers := make(map[string]*throttle.Tier, len(c.Tiers))
	for name, resources := range c.Tiers {
		limits := make(throttle.ResourceLimits, len(resources))
		for resource, actions := range resources {
			al := make(throttle.ActionLimits, len(actions))
			for action, durations := range actions {
				l := make(throttle.Limits, len(durations))
				for duration, quota := range durations {
					l[throttle.Duration(duration)] = quota
				}
				al[throttle.Action(action)] = l
			}
			limits[resource] = al
		}
		tiers[name] = &throttle.Tier{Name: name, Limits: limits}
	}
	return tiers
}

// BuildIPLimits converts the inline per-address table, or returns the
// built-in defaults when the config does not override it.
func (c *ThrottleConfig) BuildIPLimits() throttle.IPLimits {
	if len(c.IPLimits) == 0 {
		return throttle.DefaultIPLimits()
	}
	out := make(throttle.IPLimits, len(c.IPLimits))
	for action, durations := range c.IPLimits {
		l := make(throttle.Limits, len(durations))
		for duration, quota := range durations {
			l[throttle.Duration(duration)] = quota
		}
		out[throttle.Action(action)] = l
	}
	return out
}
