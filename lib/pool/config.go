package pool

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	apperrors "github.com/go-i2p/connpool/lib/errors"
	"github.com/go-i2p/connpool/lib/validation"
)

// Config configures a Manager. It is read once by New; changing limits
// requires constructing a new Manager.
type Config struct {
	// MaxConnectionsPerTarget bounds live plus in-flight connections per endpoint.
	// Default: 10
	MaxConnectionsPerTarget int
	// MinConnections is the per-endpoint floor the reaper never goes below.
	// Default: 0
	MinConnections int
	// IdleTimeout is how long a connection may sit idle before the reaper may close it.
	// Default: 5 minutes
	IdleTimeout time.Duration
	// AcquireTimeout bounds how long a queued acquisition waits for a release.
	// It does not apply to acquisitions that are creating a connection.
	// Default: 30 seconds
	AcquireTimeout time.Duration
	// ValidationEnabled starts the background validator.
	// Default: true
	ValidationEnabled bool
	// ValidationInterval is both the validator period and the age after
	// which an idle connection is due for another probe.
	// Default: 30 seconds
	ValidationInterval time.Duration
	// ValidationTimeout bounds a single liveness probe.
	// Default: 5 seconds
	ValidationTimeout time.Duration
	// Strategy picks among idle connections of one endpoint.
	// Default: RoundRobin
	Strategy Strategy
	// CleanupInterval is the reaper period. Set to 0 to disable the reaper loop.
	// Default: 1 minute
	CleanupInterval time.Duration
	// CreateTimeout bounds how long an acquirer waits on the factory.
	// Set to 0 to wait as long as the factory takes.
	// Default: 0
	CreateTimeout time.Duration
	// ValidationConcurrency caps probes running at once during a sweep.
	// Default: 4
	ValidationConcurrency int
	// DrainTimeout is how long Close waits for in-use connections to return.
	// Default: 30 seconds
	DrainTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConnectionsPerTarget: 10,
		MinConnections:          0,
		IdleTimeout:             5 * time.Minute,
		AcquireTimeout:          30 * time.Second,
		ValidationEnabled:       true,
		ValidationInterval:      30 * time.Second,
		ValidationTimeout:       5 * time.Second,
		Strategy:                RoundRobin,
		CleanupInterval:         time.Minute,
		CreateTimeout:           0,
		ValidationConcurrency:   4,
		DrainTimeout:            30 * time.Second,
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var result *multierror.Error

	result = multierror.Append(result,
		validation.Positive("MaxConnectionsPerTarget", c.MaxConnectionsPerTarget),
		validation.Between("MinConnections", c.MinConnections, 0, max(c.MaxConnectionsPerTarget, 0)),
		validation.Positive("IdleTimeout", c.IdleTimeout),
		validation.Positive("AcquireTimeout", c.AcquireTimeout),
		validation.NonNegative("CleanupInterval", c.CleanupInterval),
		validation.NonNegative("CreateTimeout", c.CreateTimeout),
		validation.NonNegative("DrainTimeout", c.DrainTimeout),
		validation.Positive("ValidationConcurrency", c.ValidationConcurrency),
	)
	if c.ValidationEnabled {
		result = multierror.Append(result,
			validation.Positive("ValidationInterval", c.ValidationInterval),
			validation.Positive("ValidationTimeout", c.ValidationTimeout),
		)
	}
	if !c.Strategy.valid() {
		result = multierror.Append(result, validation.Invalidf("Strategy",
			validation.ErrInvalidFormat, "unknown strategy %d", int(c.Strategy)))
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrConfiguration, err)
	}
	return nil
}
