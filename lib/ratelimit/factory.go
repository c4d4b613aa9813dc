package ratelimit

import (
	"context"
	"fmt"

	"github.com/go-i2p/connpool/lib/metrics"
	"github.com/go-i2p/connpool/lib/pool"
)

// Factory wraps next so dials to each endpoint respect the limiter. With
// Config.Wait set, a dial waits for a token within its context; otherwise
// it fails at once with an error wrapping ErrRateLimited.
func (kl *KeyedLimiter) Factory(next pool.Factory) pool.Factory {
	return func(ctx context.Context, endpoint string) (pool.Connection, error) {
		var err error
		if kl.config.Wait {
			err = kl.Wait(ctx, endpoint)
		} else if !kl.Allow(endpoint) {
			err = ErrRateLimited
		}
		if err != nil {
			metrics.RateLimitRejections.With(endpoint).Inc()
			log.WithField("endpoint", endpoint).WithError(err).Debug("dial rate limited")
			return nil, fmt.Errorf("dial %s: %w", endpoint, err)
		}
		return next(ctx, endpoint)
	}
}

// LimitFactory is shorthand for NewKeyed(cfg, nil).Factory(next).
func LimitFactory(next pool.Factory, cfg Config) pool.Factory {
	return NewKeyed(cfg, nil).Factory(next)
}
