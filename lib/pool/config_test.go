package pool

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/go-i2p/connpool/lib/errors"
	"github.com/go-i2p/connpool/lib/validation"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.MaxConnectionsPerTarget)
	assert.Equal(t, 5*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.AcquireTimeout)
	assert.True(t, cfg.ValidationEnabled)
	assert.Equal(t, RoundRobin, cfg.Strategy)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"zero max", func(c *Config) { c.MaxConnectionsPerTarget = 0 }, validation.ErrOutOfRange},
		{"min above max", func(c *Config) { c.MinConnections = 11 }, validation.ErrOutOfRange},
		{"negative min", func(c *Config) { c.MinConnections = -1 }, validation.ErrOutOfRange},
		{"zero idle timeout", func(c *Config) { c.IdleTimeout = 0 }, validation.ErrOutOfRange},
		{"zero acquire timeout", func(c *Config) { c.AcquireTimeout = 0 }, validation.ErrOutOfRange},
		{"negative cleanup", func(c *Config) { c.CleanupInterval = -time.Second }, validation.ErrOutOfRange},
		{"negative create timeout", func(c *Config) { c.CreateTimeout = -1 }, validation.ErrOutOfRange},
		{"zero concurrency", func(c *Config) { c.ValidationConcurrency = 0 }, validation.ErrOutOfRange},
		{"zero validation interval", func(c *Config) { c.ValidationInterval = 0 }, validation.ErrOutOfRange},
		{"unknown strategy", func(c *Config) { c.Strategy = Strategy(42) }, validation.ErrInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrConfiguration)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfigValidateIgnoresValidationFieldsWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ValidationEnabled = false
	cfg.ValidationInterval = 0
	cfg.ValidationTimeout = 0
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidateReportsAll(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnectionsPerTarget = 0
	cfg.IdleTimeout = 0

	err := cfg.Validate()
	var result *validation.FieldError
	require.True(t, errors.As(err, &result))
	assert.Contains(t, err.Error(), "MaxConnectionsPerTarget")
	assert.Contains(t, err.Error(), "IdleTimeout")
}
