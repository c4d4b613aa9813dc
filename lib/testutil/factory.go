// Package testutil provides connection and factory doubles shared by the
// pool's decorator, transport and RPC tests, and a guard for tests that need
// a live I2P router.
package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-i2p/connpool/lib/pool"
)

// ErrDial is returned by a Factory for failing endpoints.
var ErrDial = errors.New("testutil: dial failed")

// Conn is a pool.Connection that records Close and can be probed.
type Conn struct {
	ID       int
	Endpoint string

	closed atomic.Bool
	probes atomic.Int32
	// probeErr is returned by Probe when set.
	probeErr atomic.Pointer[error]
}

// Close marks the connection closed.
func (c *Conn) Close() error {
	c.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// Probe fails once the connection is closed or FailProbes was called.
func (c *Conn) Probe(ctx context.Context) (time.Duration, error) {
	c.probes.Add(1)
	if c.Closed() {
		return 0, errors.New("testutil: probe on closed connection")
	}
	if err := c.probeErr.Load(); err != nil {
		return 0, *err
	}
	return time.Millisecond, ctx.Err()
}

// Probes returns how many times Probe ran.
func (c *Conn) Probes() int {
	return int(c.probes.Load())
}

// FailProbes makes every later probe return err.
func (c *Conn) FailProbes(err error) {
	c.probeErr.Store(&err)
}

// Factory hands out Conns. Endpoints marked with Fail get ErrDial until
// Recover is called.
type Factory struct {
	mu      sync.Mutex
	failing map[string]bool
	calls   map[string]int
	conns   []*Conn
	next    int
}

// NewFactory returns a Factory on which every endpoint succeeds.
func NewFactory() *Factory {
	return &Factory{
		failing: make(map[string]bool),
		calls:   make(map[string]int),
	}
}

// Dial implements pool.Factory.
func (f *Factory) Dial(ctx context.Context, endpoint string) (pool.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[endpoint]++
	if f.failing[endpoint] {
		return nil, ErrDial
	}
	f.next++
	c := &Conn{ID: f.next, Endpoint: endpoint}
	f.conns = append(f.conns, c)
	return c, nil
}

// Fail makes later dials to endpoint fail.
func (f *Factory) Fail(endpoint string) {
	f.mu.Lock()
	f.failing[endpoint] = true
	f.mu.Unlock()
}

// Recover undoes Fail.
func (f *Factory) Recover(endpoint string) {
	f.mu.Lock()
	delete(f.failing, endpoint)
	f.mu.Unlock()
}

// Calls returns how many dials endpoint has seen, failed ones included.
func (f *Factory) Calls(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint]
}

// Conns returns every connection created so far.
func (f *Factory) Conns() []*Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Conn(nil), f.conns...)
}
