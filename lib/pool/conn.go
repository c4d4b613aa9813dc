package pool

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// Connection represents a poolable connection.
// Implementations must be comparable (typically a pointer) because the
// pool indexes records by connection value.
type Connection interface {
	// Close closes the connection. Errors are logged and otherwise ignored.
	Close() error
}

// Prober is implemented by connections that support a liveness probe.
// Connections without it are always considered healthy by the validator.
type Prober interface {
	// Probe checks the connection and returns the observed round trip.
	Probe(ctx context.Context) (time.Duration, error)
}

// Factory creates a connection to endpoint. Its error is returned to the
// acquirer unchanged.
type Factory func(ctx context.Context, endpoint string) (Connection, error)

// pooledConn wraps a connection with metadata.
type pooledConn struct {
	id       string
	conn     Connection
	pool     *endpointPool
	created  time.Time
	lastUsed time.Time
	// validatedAt is zero until the first successful probe.
	validatedAt time.Time
	inUse       bool
	// probing reserves an idle record for the validator; acquirers skip it.
	probing  bool
	useCount uint64
}

func (pc *pooledConn) idle() bool {
	return !pc.inUse && !pc.probing
}

// wantConn is an acquisition waiting on a factory call or a release.
// done is guarded by the Manager lock; ch receives at most one result.
type wantConn struct {
	ch    chan acquireResult
	done  bool
	timer *clock.Timer
}

type acquireResult struct {
	pc  *pooledConn
	err error
}

func newWantConn() *wantConn {
	return &wantConn{ch: make(chan acquireResult, 1)}
}

// deliver hands a result to the waiter unless it already gave up.
// Caller must hold the Manager lock.
func (w *wantConn) deliver(pc *pooledConn, err error) bool {
	if w.done {
		return false
	}
	w.claim()
	w.ch <- acquireResult{pc: pc, err: err}
	return true
}

// claim marks the waiter served; the caller must then send exactly one
// result on ch. Caller must hold the Manager lock.
func (w *wantConn) claim() {
	w.done = true
	if w.timer != nil {
		w.timer.Stop()
	}
}

// endpointPool holds the records and wait-list for one endpoint.
type endpointPool struct {
	endpoint string
	conns    []*pooledConn
	waiters  []*wantConn
	// creating counts factory calls in flight; they hold capacity.
	creating int
	// next is the round-robin cursor.
	next int
}

func (ep *endpointPool) size() int {
	return len(ep.conns) + ep.creating
}

func (ep *endpointPool) idleConns() []*pooledConn {
	var idle []*pooledConn
	for _, pc := range ep.conns {
		if pc.idle() {
			idle = append(idle, pc)
		}
	}
	return idle
}

func (ep *endpointPool) remove(pc *pooledConn) bool {
	for i, c := range ep.conns {
		if c == pc {
			ep.conns = append(ep.conns[:i], ep.conns[i+1:]...)
			return true
		}
	}
	return false
}

func (ep *endpointPool) removeWaiter(w *wantConn) {
	for i, x := range ep.waiters {
		if x == w {
			ep.waiters = append(ep.waiters[:i], ep.waiters[i+1:]...)
			return
		}
	}
}

// popWaiter removes and returns the oldest waiter still waiting.
func (ep *endpointPool) popWaiter() *wantConn {
	for len(ep.waiters) > 0 {
		w := ep.waiters[0]
		ep.waiters[0] = nil
		ep.waiters = ep.waiters[1:]
		if !w.done {
			return w
		}
	}
	return nil
}

func (ep *endpointPool) empty() bool {
	return len(ep.conns) == 0 && len(ep.waiters) == 0 && ep.creating == 0
}
