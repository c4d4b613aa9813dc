// Package resilience guards connection factories with per-endpoint circuit
// breakers, so a pool stops dialing an endpoint that keeps refusing and
// fails its acquisitions fast instead.
//
// State transitions:
//
//	Closed (normal) -> Open (failing) -> HalfOpen (testing) -> Closed
//	                     ^                    |
//	                     +--------------------+ (if a trial fails)
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets every call through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until Timeout has passed.
	CircuitOpen
	// CircuitHalfOpen lets a limited number of trial calls through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that closes it again.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before allowing trials.
	Timeout time.Duration
	// MaxHalfOpenRequests bounds concurrent trials while half-open.
	MaxHalfOpenRequests int
}

// DefaultCircuitBreakerConfig returns defaults suited to dialing remote endpoints.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	def := DefaultCircuitBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxHalfOpenRequests <= 0 {
		c.MaxHalfOpenRequests = def.MaxHalfOpenRequests
	}
	return c
}

// Option configures a CircuitBreaker or Guard.
type Option func(*options)

type options struct {
	clock         clock.Clock
	onStateChange func(name string, from, to CircuitState)
}

// WithClock sets the clock used for the open timeout. Tests pass a mock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithStateChange registers a callback invoked after every transition,
// outside the breaker's lock.
func WithStateChange(fn func(name string, from, to CircuitState)) Option {
	return func(o *options) { o.onStateChange = fn }
}

func buildOptions(opts []Option) options {
	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// CircuitBreaker implements the circuit breaker pattern for one endpoint.
type CircuitBreaker struct {
	mu     sync.Mutex
	config CircuitBreakerConfig
	name   string
	opts   options

	state         CircuitState
	failureCount  int
	successCount  int
	halfOpenCount int

	lastFailureTime time.Time
	lastStateChange time.Time
	openedAt        time.Time
}

type transition struct {
	from, to CircuitState
}

// NewCircuitBreaker creates a closed circuit breaker. Zero config fields
// take their defaults.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, opts ...Option) *CircuitBreaker {
	o := buildOptions(opts)
	return &CircuitBreaker{
		config:          cfg.withDefaults(),
		name:            name,
		opts:            o,
		state:           CircuitClosed,
		lastStateChange: o.clock.Now(),
	}
}

// Name returns the breaker's name, normally the endpoint it guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state. An open circuit whose timeout has passed
// reports half-open even before the next Allow moves it there.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.observedLocked()
}

func (cb *CircuitBreaker) observedLocked() CircuitState {
	if cb.state == CircuitOpen && cb.opts.clock.Since(cb.openedAt) >= cb.config.Timeout {
		return CircuitHalfOpen
	}
	return cb.state
}

// Allow reports whether a call may proceed. Every allowed call must be
// followed by exactly one RecordSuccess, RecordFailure or Cancel.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	var tr []transition
	ok := false
	switch cb.state {
	case CircuitClosed:
		ok = true
	case CircuitOpen:
		if cb.opts.clock.Since(cb.openedAt) >= cb.config.Timeout {
			tr = cb.transitionLocked(CircuitHalfOpen)
			cb.halfOpenCount = 1
			ok = true
		}
	case CircuitHalfOpen:
		if cb.halfOpenCount < cb.config.MaxHalfOpenRequests {
			cb.halfOpenCount++
			ok = true
		}
	}
	cb.mu.Unlock()
	cb.notify(tr)
	return ok
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	var tr []transition
	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0
	case CircuitHalfOpen:
		cb.successCount++
		cb.halfOpenCount--
		if cb.successCount >= cb.config.SuccessThreshold {
			tr = cb.transitionLocked(CircuitClosed)
		}
	case CircuitOpen:
		log.WithField("circuit", cb.name).Debug("success recorded while circuit open")
	}
	cb.mu.Unlock()
	cb.notify(tr)
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	var tr []transition
	cb.lastFailureTime = cb.opts.clock.Now()
	switch cb.state {
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			tr = cb.transitionLocked(CircuitOpen)
		}
	case CircuitHalfOpen:
		tr = cb.transitionLocked(CircuitOpen)
	}
	cb.mu.Unlock()
	cb.notify(tr)
}

// Cancel returns an allowed call's trial slot without counting it either way.
func (cb *CircuitBreaker) Cancel() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitHalfOpen && cb.halfOpenCount > 0 {
		cb.halfOpenCount--
	}
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) []transition {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	cb.lastStateChange = cb.opts.clock.Now()

	switch to {
	case CircuitClosed:
		cb.failureCount = 0
		cb.successCount = 0
		cb.halfOpenCount = 0
	case CircuitOpen:
		cb.openedAt = cb.lastStateChange
		cb.successCount = 0
		cb.halfOpenCount = 0
	case CircuitHalfOpen:
		cb.successCount = 0
		cb.halfOpenCount = 0
	}

	log.WithField("circuit", cb.name).
		WithField("from", from.String()).
		WithField("to", to.String()).
		Info("circuit breaker state transition")
	return []transition{{from: from, to: to}}
}

func (cb *CircuitBreaker) notify(tr []transition) {
	for _, t := range tr {
		observeTransition(cb.name, t.from, t.to)
		if cb.opts.onStateChange != nil {
			cb.opts.onStateChange(cb.name, t.from, t.to)
		}
	}
}

// Execute runs fn if the circuit allows it and records the outcome.
// It returns ErrCircuitOpen without calling fn when rejected. A failure
// caused by ctx ending is not counted against the circuit.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.Allow() {
		CircuitBreakerRejections.With(cb.name).Inc()
		return ErrCircuitOpen
	}
	if err := ctx.Err(); err != nil {
		cb.Cancel()
		return err
	}

	err := fn(ctx)
	switch {
	case err == nil:
		CircuitBreakerSuccesses.With(cb.name).Inc()
		cb.RecordSuccess()
	case ctx.Err() != nil:
		cb.Cancel()
		return ctx.Err()
	default:
		CircuitBreakerFailures.With(cb.name).Inc()
		cb.RecordFailure()
	}
	return err
}

// Reset returns the breaker to closed with zeroed counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	tr := cb.transitionLocked(CircuitClosed)
	cb.failureCount = 0
	cb.openedAt = time.Time{}
	cb.mu.Unlock()
	cb.notify(tr)
}

// CircuitBreakerStats is a snapshot of a breaker.
type CircuitBreakerStats struct {
	Name            string
	State           CircuitState
	FailureCount    int
	SuccessCount    int
	LastFailureTime time.Time
	LastStateChange time.Time
}

// Stats returns a snapshot of the breaker.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerStats{
		Name:            cb.name,
		State:           cb.observedLocked(),
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
		LastStateChange: cb.lastStateChange,
	}
}
