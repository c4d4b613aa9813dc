// Package ratelimit bounds how fast a pool may open new connections to each
// endpoint. Limits are token buckets from golang.org/x/time/rate, one per
// endpoint, driven by an injectable clock.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	apperrors "github.com/go-i2p/connpool/lib/errors"
)

// ErrRateLimited is returned when a dial is refused by the limiter.
var ErrRateLimited = apperrors.ErrRateLimited

// Config configures a KeyedLimiter.
type Config struct {
	// Rate is the sustained number of dials per second per endpoint.
	Rate float64
	// Burst is the number of dials allowed back to back.
	Burst int
	// Wait makes dials block until a token is available instead of failing.
	Wait bool
	// IdleTTL is how long an unused endpoint bucket is kept. Idle buckets
	// are swept at most once per IdleTTL, on the next use of the limiter.
	// Zero keeps them forever.
	IdleTTL time.Duration
}

// DefaultConfig returns 10 dials/sec with a burst of 5, failing fast.
func DefaultConfig() Config {
	return Config{
		Rate:    10,
		Burst:   5,
		IdleTTL: 10 * time.Minute,
	}
}

type bucket struct {
	lim      *rate.Limiter
	lastUsed time.Time
}

// KeyedLimiter provides per-key rate limiting.
type KeyedLimiter struct {
	mu      sync.Mutex
	config  Config
	clock   clock.Clock
	buckets map[string]*bucket
	swept   time.Time
}

// NewKeyed creates a per-key rate limiter. A nil clock means the wall clock.
func NewKeyed(cfg Config, clk clock.Clock) *KeyedLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &KeyedLimiter{
		config:  cfg,
		clock:   clk,
		buckets: make(map[string]*bucket),
		swept:   clk.Now(),
	}
}

func (kl *KeyedLimiter) bucket(key string, now time.Time) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	if kl.config.IdleTTL > 0 && now.Sub(kl.swept) >= kl.config.IdleTTL {
		if n := kl.pruneLocked(now); n > 0 {
			log.WithField("dropped", n).Debug("pruned idle rate limit buckets")
		}
	}
	b, ok := kl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(kl.config.Rate), kl.config.Burst)}
		kl.buckets[key] = b
	}
	b.lastUsed = now
	return b.lim
}

// Allow reports whether a request for key may proceed now, consuming a token.
func (kl *KeyedLimiter) Allow(key string) bool {
	now := kl.clock.Now()
	return kl.bucket(key, now).AllowN(now, 1)
}

// Wait blocks until a request for key may proceed or ctx ends. It fails
// immediately with ErrRateLimited if the wait would outlast ctx's deadline.
func (kl *KeyedLimiter) Wait(ctx context.Context, key string) error {
	now := kl.clock.Now()
	lim := kl.bucket(key, now)
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return ErrRateLimited
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return nil
	}
	if deadline, ok := ctx.Deadline(); ok && deadline.Sub(now) < delay {
		r.CancelAt(now)
		return ErrRateLimited
	}

	t := kl.clock.Timer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.CancelAt(kl.clock.Now())
		return ctx.Err()
	}
}

// Prune drops buckets that have been idle for longer than IdleTTL and are
// full again. It returns the number dropped.
func (kl *KeyedLimiter) Prune() int {
	if kl.config.IdleTTL <= 0 {
		return 0
	}
	now := kl.clock.Now()
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return kl.pruneLocked(now)
}

func (kl *KeyedLimiter) pruneLocked(now time.Time) int {
	kl.swept = now
	n := 0
	for key, b := range kl.buckets {
		if now.Sub(b.lastUsed) > kl.config.IdleTTL && b.lim.TokensAt(now) >= float64(kl.config.Burst) {
			delete(kl.buckets, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (kl *KeyedLimiter) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.buckets)
}
