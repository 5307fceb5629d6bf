package ratecell

import (
	"fmt"
	"time"
)

// Option is a functional option for configuring a RateLimiter.
type Option func(*rateLimiter) error

// WithStore sets a custom store for the rate limiter.
// If not provided, an in-memory store will be used.
func WithStore(store StateStore) Option {
	return func(rl *rateLimiter) error {
		if store == nil {
			return fmt.Errorf("%w: store cannot be nil", ErrInvalidConfig)
		}
		rl.store = store
		return nil
	}
}

// WithClock sets a custom time source, overriding the configured clock.
// Useful for deterministic tests.
func WithClock(clock TimeSource) Option {
	return func(rl *rateLimiter) error {
		if clock == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfig)
		}
		rl.clock = clock
		return nil
	}
}

// WithConfig sets the configuration for the rate limiter.
func WithConfig(config *Config) Option {
	return func(rl *rateLimiter) error {
		if config == nil {
			return fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
		}
		if err := config.Validate(); err != nil {
			return err
		}
		rl.config = config
		return nil
	}
}

// WithConfigFile loads configuration from a YAML file.
func WithConfigFile(path string) Option {
	return func(rl *rateLimiter) error {
		config, err := LoadConfigFromFile(path)
		if err != nil {
			return err
		}
		rl.config = config
		return nil
	}
}

// WithQuota sets the default quota. This is a convenience option for basic
// use cases.
func WithQuota(quota Quota) Option {
	return func(rl *rateLimiter) error {
		if err := quota.Validate(); err != nil {
			return err
		}

		rl.config = &Config{
			Defaults: PolicyConfig{
				Burst:          quota.Burst,
				CountPerPeriod: quota.CountPerPeriod,
				PeriodSeconds:  quota.PeriodSeconds,
				Enabled:        true,
			},
			Policies:     make(map[string]PolicyConfig),
			KeyExtractor: "ip",
			Clock:        ClockWall,
		}
		return nil
	}
}

// WithKeyExtractor sets a custom key extractor function.
func WithKeyExtractor(extractor KeyExtractor) Option {
	return func(rl *rateLimiter) error {
		if extractor == nil {
			return fmt.Errorf("%w: key extractor cannot be nil", ErrInvalidConfig)
		}
		rl.keyExtractor = extractor
		return nil
	}
}

// WithCleanupInterval sets how often the cleanup goroutine runs.
// Only used when StartBackgroundCleanup is called on an in-memory store.
// Default: 10 minutes
func WithCleanupInterval(interval time.Duration) Option {
	return func(rl *rateLimiter) error {
		if interval < 0 {
			return fmt.Errorf("%w: cleanup interval cannot be negative", ErrInvalidConfig)
		}
		rl.cleanupInterval = interval
		return nil
	}
}

// RouteExtractorFunc maps a request path to the route used for policy lookup.
type RouteExtractorFunc func(path string) string

// WithRouteExtractor sets a function to extract the route from a request.
// By default, r.URL.Path is used as-is.
func WithRouteExtractor(fn RouteExtractorFunc) Option {
	return func(rl *rateLimiter) error {
		if fn == nil {
			return fmt.Errorf("%w: route extractor cannot be nil", ErrInvalidConfig)
		}
		rl.routeExtractor = fn
		return nil
	}
}
