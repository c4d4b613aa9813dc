package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-i2p/connpool/lib/pool"
)

// Guard keeps one circuit breaker per endpoint.
type Guard struct {
	mu       sync.Mutex
	config   CircuitBreakerConfig
	opts     []Option
	breakers map[string]*CircuitBreaker
}

// NewGuard creates an empty Guard. Breakers are created on first use with cfg.
func NewGuard(cfg CircuitBreakerConfig, opts ...Option) *Guard {
	return &Guard{
		config:   cfg,
		opts:     opts,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Breaker returns the breaker for endpoint, creating it if needed.
func (g *Guard) Breaker(endpoint string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	cb, ok := g.breakers[endpoint]
	if !ok {
		cb = NewCircuitBreaker(endpoint, g.config, g.opts...)
		g.breakers[endpoint] = cb
	}
	return cb
}

// Stats returns a snapshot of every breaker created so far.
func (g *Guard) Stats() []CircuitBreakerStats {
	g.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(g.breakers))
	for _, cb := range g.breakers {
		breakers = append(breakers, cb)
	}
	g.mu.Unlock()

	out := make([]CircuitBreakerStats, 0, len(breakers))
	for _, cb := range breakers {
		out = append(out, cb.Stats())
	}
	return out
}

// Factory wraps next so each endpoint's dials go through its breaker. While
// an endpoint's circuit is open, dials fail immediately with an error
// wrapping ErrCircuitOpen and next is not called.
func (g *Guard) Factory(next pool.Factory) pool.Factory {
	return func(ctx context.Context, endpoint string) (pool.Connection, error) {
		var conn pool.Connection
		err := g.Breaker(endpoint).Execute(ctx, func(ctx context.Context) error {
			var err error
			conn, err = next(ctx, endpoint)
			return err
		})
		if err != nil {
			if conn != nil {
				_ = conn.Close()
			}
			if errors.Is(err, ErrCircuitOpen) {
				return nil, fmt.Errorf("dial %s: %w", endpoint, err)
			}
			return nil, err
		}
		return conn, nil
	}
}

// GuardFactory is shorthand for NewGuard(cfg, opts...).Factory(next).
func GuardFactory(next pool.Factory, cfg CircuitBreakerConfig, opts ...Option) pool.Factory {
	return NewGuard(cfg, opts...).Factory(next)
}
