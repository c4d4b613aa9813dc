package rpc

import (
	"errors"
	"net"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/go-i2p/connpool/lib/metrics"
)

// DefaultMaxConnections is the default maximum concurrent connections.
const DefaultMaxConnections = 100

// ErrTooManyConnections is returned when the connection limit is reached.
var ErrTooManyConnections = errors.New("too many connections")

var (
	serverConnections = metrics.NewGauge("connpool_rpc_server_connections",
		"Client connections being served by the RPC server")
	serverRejections = metrics.NewCounter("connpool_rpc_server_rejections_total",
		"Client connections rejected by the RPC connection limit")
)

// ConnectionLimiter caps the number of client connections a server
// handles at once. Connections over the limit are closed on accept.
type ConnectionLimiter struct {
	sem      *semaphore.Weighted
	max      int
	mu       sync.Mutex
	active   int
	onReject func(addr net.Addr)
}

// NewConnectionLimiter creates a limiter admitting maxConns connections.
// If maxConns <= 0, DefaultMaxConnections is used.
func NewConnectionLimiter(maxConns int) *ConnectionLimiter {
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}
	return &ConnectionLimiter{
		sem: semaphore.NewWeighted(int64(maxConns)),
		max: maxConns,
	}
}

// SetOnReject sets a callback invoked with the address of each rejected
// connection.
func (cl *ConnectionLimiter) SetOnReject(fn func(addr net.Addr)) {
	cl.mu.Lock()
	cl.onReject = fn
	cl.mu.Unlock()
}

// Acquire takes a slot without blocking and reports whether it succeeded.
func (cl *ConnectionLimiter) Acquire() bool {
	if !cl.sem.TryAcquire(1) {
		return false
	}
	cl.mu.Lock()
	cl.active++
	cl.mu.Unlock()
	serverConnections.Inc()
	return true
}

// Release returns a slot taken by Acquire.
func (cl *ConnectionLimiter) Release() {
	cl.mu.Lock()
	cl.active--
	cl.mu.Unlock()
	serverConnections.Dec()
	cl.sem.Release(1)
}

// TryAccept admits conn wrapped so that closing it frees the slot. Over
// the limit it closes conn and returns nil.
func (cl *ConnectionLimiter) TryAccept(conn net.Conn) net.Conn {
	if !cl.Acquire() {
		serverRejections.Inc()
		cl.mu.Lock()
		onReject := cl.onReject
		cl.mu.Unlock()
		if onReject != nil {
			onReject(conn.RemoteAddr())
		}
		conn.Close()
		return nil
	}
	return &limitedConn{Conn: conn, limiter: cl}
}

// ActiveConnections returns the current number of active connections.
func (cl *ConnectionLimiter) ActiveConnections() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.active
}

// MaxConnections returns the maximum allowed connections.
func (cl *ConnectionLimiter) MaxConnections() int {
	return cl.max
}

// limitedConn releases its slot on the first Close.
type limitedConn struct {
	net.Conn
	limiter *ConnectionLimiter
	once    sync.Once
}

func (lc *limitedConn) Close() error {
	lc.once.Do(lc.limiter.Release)
	return lc.Conn.Close()
}
