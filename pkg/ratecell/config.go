package ratecell

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Clock selection names accepted in configuration.
const (
	ClockWall      = "wall"
	ClockMonotonic = "monotonic"
)

// Config holds the admission-control configuration.
// It supports both global defaults and per-route policy overrides.
type Config struct {
	// Defaults are applied to all routes unless overridden
	Defaults PolicyConfig `yaml:"defaults"`

	// Policies is a map of route paths to their specific quotas
	// Example: "/api/login" -> strict policy, "/api/search" -> lenient policy
	Policies map[string]PolicyConfig `yaml:"policies,omitempty"`

	// KeyExtractor specifies how to identify clients
	// Examples: "ip", "header:X-API-Key", "bearer"
	KeyExtractor string `yaml:"key_extractor,omitempty"`

	// Clock selects the time source: "wall" keeps limits meaningful across
	// failover but follows operator clock changes; "monotonic" is immune to
	// clock changes but resets on restart.
	Clock string `yaml:"clock,omitempty"`
}

// PolicyConfig defines the quota for a route or default.
type PolicyConfig struct {
	// Burst is the instantaneous overage allowed beyond the steady rate
	Burst int64 `yaml:"burst"`

	// CountPerPeriod is the number of admissions per period
	// Example: count_per_period: 10, period_seconds: 1 = 10 req/sec
	CountPerPeriod int64 `yaml:"count_per_period"`

	// PeriodSeconds is the span over which CountPerPeriod applies
	PeriodSeconds int64 `yaml:"period_seconds"`

	// Enabled allows disabling admission control for specific routes
	Enabled bool `yaml:"enabled"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Defaults: PolicyConfig{
			Burst:          99, // up to 100 at once
			CountPerPeriod: 10, // 10/sec sustained
			PeriodSeconds:  1,
			Enabled:        true,
		},
		Policies:     make(map[string]PolicyConfig),
		KeyExtractor: "ip",
		Clock:        ClockWall,
	}
}

// LoadConfigFromFile loads configuration from a YAML file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrInvalidConfig, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
	}

	if config.KeyExtractor == "" {
		config.KeyExtractor = "ip"
	}
	if config.Clock == "" {
		config.Clock = ClockWall
	}
	if config.Policies == nil {
		config.Policies = make(map[string]PolicyConfig)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("%w: invalid defaults: %v", ErrInvalidConfig, err)
	}

	for route, policy := range c.Policies {
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("%w: invalid policy for route %s: %v", ErrInvalidConfig, route, err)
		}
	}

	switch c.Clock {
	case "", ClockWall, ClockMonotonic:
	default:
		return fmt.Errorf("%w: unknown clock %q", ErrInvalidConfig, c.Clock)
	}

	return nil
}

// Validate checks if a PolicyConfig is valid.
func (p *PolicyConfig) Validate() error {
	return p.Quota().Validate()
}

// Quota converts a PolicyConfig to the engine's quota parameters.
func (p *PolicyConfig) Quota() Quota {
	return Quota{
		Burst:          p.Burst,
		CountPerPeriod: p.CountPerPeriod,
		PeriodSeconds:  p.PeriodSeconds,
	}
}

// GetPolicy returns the quota policy for a given route.
// If no specific policy exists for the route, returns the default policy.
func (c *Config) GetPolicy(route string) PolicyConfig {
	if policy, exists := c.Policies[route]; exists {
		return policy
	}
	return c.Defaults
}

// SetPolicy sets a quota policy for a specific route.
func (c *Config) SetPolicy(route string, policy PolicyConfig) error {
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Policies == nil {
		c.Policies = make(map[string]PolicyConfig)
	}
	c.Policies[route] = policy
	return nil
}

// timeSource builds the configured TimeSource.
func (c *Config) timeSource() TimeSource {
	if c.Clock == ClockMonotonic {
		return NewMonotonicClock()
	}
	return WallClock{}
}
