// Package config loads the TOML configuration shared by the pool, its
// transports and the factory decorators.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"

	apperrors "github.com/go-i2p/connpool/lib/errors"
	"github.com/go-i2p/connpool/lib/pool"
	"github.com/go-i2p/connpool/lib/ratelimit"
	"github.com/go-i2p/connpool/lib/resilience"
	"github.com/go-i2p/connpool/lib/transport"
	"github.com/go-i2p/connpool/lib/validation"
)

// Default configuration values
const (
	DefaultRPCSocket      = "poolctl.sock"
	DefaultMetricsListen  = "127.0.0.1:9464"
	DefaultMaxConnections = 100
)

// Duration is a time.Duration written as a string such as "30s".
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := validation.ParseDuration("duration", string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds all configuration for a pool deployment.
type Config struct {
	Pool       PoolSection       `toml:"pool"`
	Transport  TransportSection  `toml:"transport"`
	Resilience ResilienceSection `toml:"resilience"`
	RateLimit  RateLimitSection  `toml:"ratelimit"`
	RPC        RPCSection        `toml:"rpc"`
	Metrics    MetricsSection    `toml:"metrics"`
}

// PoolSection mirrors pool.Config.
type PoolSection struct {
	MaxConnectionsPerTarget int           `toml:"max_connections_per_target"`
	MinConnections          int           `toml:"min_connections"`
	IdleTimeout             Duration      `toml:"idle_timeout"`
	AcquireTimeout          Duration      `toml:"acquire_timeout"`
	CreateTimeout           Duration      `toml:"create_timeout"`
	ValidationEnabled       bool          `toml:"validation_enabled"`
	ValidationInterval      Duration      `toml:"validation_interval"`
	ValidationTimeout       Duration      `toml:"validation_timeout"`
	ValidationConcurrency   int           `toml:"validation_concurrency"`
	Strategy                pool.Strategy `toml:"strategy"`
	CleanupInterval         Duration      `toml:"cleanup_interval"`
	DrainTimeout            Duration      `toml:"drain_timeout"`
}

// TransportSection configures the endpoint dialers.
type TransportSection struct {
	DialTimeout Duration `toml:"dial_timeout"`
	KeepAlive   Duration `toml:"keep_alive"`
	// ClientName is announced to servers that accept one (NATS, Kafka, Redis).
	ClientName string `toml:"client_name"`
	// SAMAddress is the SAM bridge used for i2p:// endpoints.
	SAMAddress string   `toml:"sam_address"`
	TunnelName string   `toml:"tunnel_name"`
	SAMOptions []string `toml:"sam_options,omitempty"`
}

// ResilienceSection configures the per-endpoint circuit breaker.
type ResilienceSection struct {
	Enabled             bool     `toml:"enabled"`
	FailureThreshold    int      `toml:"failure_threshold"`
	SuccessThreshold    int      `toml:"success_threshold"`
	Timeout             Duration `toml:"timeout"`
	MaxHalfOpenRequests int      `toml:"max_half_open_requests"`
}

// RateLimitSection configures the per-endpoint dial rate limit.
type RateLimitSection struct {
	Enabled bool     `toml:"enabled"`
	Rate    float64  `toml:"rate"`
	Burst   int      `toml:"burst"`
	Wait    bool     `toml:"wait"`
	IdleTTL Duration `toml:"idle_ttl"`
}

// RPCSection contains RPC server settings.
type RPCSection struct {
	// Socket is the Unix socket path. Empty disables it.
	Socket string `toml:"socket"`
	// TCPAddress is an optional TCP address (e.g., "127.0.0.1:9090").
	TCPAddress     string `toml:"tcp_address,omitempty"`
	AuthFile       string `toml:"auth_file,omitempty"`
	MaxConnections int    `toml:"max_connections"`
}

// MetricsSection contains the Prometheus endpoint settings.
type MetricsSection struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	p := pool.DefaultConfig()
	t := transport.DefaultConfig()
	b := resilience.DefaultCircuitBreakerConfig()
	r := ratelimit.DefaultConfig()

	return &Config{
		Pool: PoolSection{
			MaxConnectionsPerTarget: p.MaxConnectionsPerTarget,
			MinConnections:          p.MinConnections,
			IdleTimeout:             Duration(p.IdleTimeout),
			AcquireTimeout:          Duration(p.AcquireTimeout),
			CreateTimeout:           Duration(p.CreateTimeout),
			ValidationEnabled:       p.ValidationEnabled,
			ValidationInterval:      Duration(p.ValidationInterval),
			ValidationTimeout:       Duration(p.ValidationTimeout),
			ValidationConcurrency:   p.ValidationConcurrency,
			Strategy:                p.Strategy,
			CleanupInterval:         Duration(p.CleanupInterval),
			DrainTimeout:            Duration(p.DrainTimeout),
		},
		Transport: TransportSection{
			DialTimeout: Duration(t.DialTimeout),
			KeepAlive:   Duration(t.KeepAlive),
			ClientName:  t.ClientName,
			SAMAddress:  t.SAMAddress,
			TunnelName:  t.TunnelName,
		},
		Resilience: ResilienceSection{
			Enabled:             true,
			FailureThreshold:    b.FailureThreshold,
			SuccessThreshold:    b.SuccessThreshold,
			Timeout:             Duration(b.Timeout),
			MaxHalfOpenRequests: b.MaxHalfOpenRequests,
		},
		RateLimit: RateLimitSection{
			Enabled: false,
			Rate:    r.Rate,
			Burst:   r.Burst,
			Wait:    r.Wait,
			IdleTTL: Duration(r.IdleTTL),
		},
		RPC: RPCSection{
			Socket:         DefaultRPCSocket,
			MaxConnections: DefaultMaxConnections,
		},
		Metrics: MetricsSection{
			Enabled: false,
			Listen:  DefaultMetricsListen,
		},
	}
}

// LoadConfig reads configuration from a TOML file and applies CONNPOOL_*
// environment overrides. If the file doesn't exist, the overrides are
// applied to the default configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err):
		log.WithField("path", path).Debug("config file not found, using defaults")
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration to a TOML file.
// It creates the parent directory if it doesn't exist.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Marshal encodes the configuration as TOML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}

// Validate reports every invalid setting at once. The pool section is
// checked by pool.Config.Validate.
func (c *Config) Validate() error {
	var result *multierror.Error

	if err := c.PoolConfig().Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	result = multierror.Append(result,
		validation.Positive("transport.dial_timeout", c.Transport.DialTimeout.Std()),
		validation.NonNegative("transport.keep_alive", c.Transport.KeepAlive.Std()),
		validation.HostPort("transport.sam_address", c.Transport.SAMAddress),
		validation.NonNegative("rpc.max_connections", c.RPC.MaxConnections),
	)

	if c.Resilience.Enabled {
		result = multierror.Append(result,
			validation.Positive("resilience.failure_threshold", c.Resilience.FailureThreshold),
			validation.Positive("resilience.success_threshold", c.Resilience.SuccessThreshold),
			validation.Positive("resilience.timeout", c.Resilience.Timeout.Std()),
			validation.Positive("resilience.max_half_open_requests", c.Resilience.MaxHalfOpenRequests),
		)
	}

	if c.RateLimit.Enabled {
		result = multierror.Append(result,
			validation.Positive("ratelimit.rate", c.RateLimit.Rate),
			validation.Positive("ratelimit.burst", c.RateLimit.Burst),
			validation.NonNegative("ratelimit.idle_ttl", c.RateLimit.IdleTTL.Std()),
		)
	}

	if c.Metrics.Enabled {
		result = multierror.Append(result, validation.HostPort("metrics.listen", c.Metrics.Listen))
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrConfiguration, err)
	}
	return nil
}

// PoolConfig converts the pool section.
func (c *Config) PoolConfig() pool.Config {
	p := c.Pool
	return pool.Config{
		MaxConnectionsPerTarget: p.MaxConnectionsPerTarget,
		MinConnections:          p.MinConnections,
		IdleTimeout:             p.IdleTimeout.Std(),
		AcquireTimeout:          p.AcquireTimeout.Std(),
		CreateTimeout:           p.CreateTimeout.Std(),
		ValidationEnabled:       p.ValidationEnabled,
		ValidationInterval:      p.ValidationInterval.Std(),
		ValidationTimeout:       p.ValidationTimeout.Std(),
		ValidationConcurrency:   p.ValidationConcurrency,
		Strategy:                p.Strategy,
		CleanupInterval:         p.CleanupInterval.Std(),
		DrainTimeout:            p.DrainTimeout.Std(),
	}
}

// TransportConfig converts the transport section.
func (c *Config) TransportConfig() transport.Config {
	t := c.Transport
	return transport.Config{
		DialTimeout: t.DialTimeout.Std(),
		KeepAlive:   t.KeepAlive.Std(),
		SAMAddress:  t.SAMAddress,
		TunnelName:  t.TunnelName,
		SAMOptions:  t.SAMOptions,
		ClientName:  t.ClientName,
	}
}

// BreakerConfig converts the resilience section.
func (c *Config) BreakerConfig() resilience.CircuitBreakerConfig {
	r := c.Resilience
	return resilience.CircuitBreakerConfig{
		FailureThreshold:    r.FailureThreshold,
		SuccessThreshold:    r.SuccessThreshold,
		Timeout:             r.Timeout.Std(),
		MaxHalfOpenRequests: r.MaxHalfOpenRequests,
	}
}

// LimiterConfig converts the ratelimit section.
func (c *Config) LimiterConfig() ratelimit.Config {
	r := c.RateLimit
	return ratelimit.Config{
		Rate:    r.Rate,
		Burst:   r.Burst,
		Wait:    r.Wait,
		IdleTTL: r.IdleTTL.Std(),
	}
}

// Decorate wraps factory with the enabled decorators. The rate limit is
// outermost so that a rejected dial never reaches the breaker.
func (c *Config) Decorate(factory pool.Factory) pool.Factory {
	if c.Resilience.Enabled {
		factory = resilience.GuardFactory(factory, c.BreakerConfig())
	}
	if c.RateLimit.Enabled {
		factory = ratelimit.LimitFactory(factory, c.LimiterConfig())
	}
	return factory
}
