// Package pool provides a per-endpoint connection pool for managing
// reusable connections to remote targets.
//
// The pool supports:
//   - A capacity bound per endpoint, counting connections being created
//   - FIFO queueing of acquisitions with a timeout when an endpoint is saturated
//   - Pluggable selection among idle connections (round-robin, least-connections,
//     random, least-latency)
//   - Periodic validation of idle connections through an optional Probe method
//   - Periodic reaping of idle connections above a per-endpoint floor
//   - Drain, Clear and Close for shutdown
//   - An Observer for pool events and Prometheus metrics
//
// # Basic Usage
//
//	factory := func(ctx context.Context, endpoint string) (pool.Connection, error) {
//	    var d net.Dialer
//	    return d.DialContext(ctx, "tcp", endpoint)
//	}
//
//	cfg := pool.DefaultConfig()
//	cfg.MaxConnectionsPerTarget = 4
//
//	m, err := pool.New(factory, cfg)
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	conn, err := m.Acquire(ctx, "10.0.0.7:9000")
//	if err != nil {
//	    return err
//	}
//	defer m.Release(conn)
//
// Connections that break while in use should be handed back with Discard
// instead of Release.
//
// # Validation
//
// Connections implementing Prober are probed by the validator once their
// last successful probe is older than ValidationInterval:
//
//	func (c *myConn) Probe(ctx context.Context) (time.Duration, error) {
//	    start := time.Now()
//	    err := c.Ping(ctx)
//	    return time.Since(start), err
//	}
//
// A probe that fails or outlives ValidationTimeout evicts the connection.
//
// # Testing
//
// Timestamps, timers and sweep tickers come from a clock.Clock, so tests can
// pass clock.NewMock() through WithClock and advance time explicitly.
//
// # Metrics
//
// Pool metrics are registered with the metrics package, labelled by endpoint:
//   - connpool_connections{state="idle"|"in_use"}: Current connections
//   - connpool_pending_acquisitions: Queued acquisitions
//   - connpool_acquire_success_total: Successful acquisitions
//   - connpool_acquire_failed_total: Failed acquisitions
//   - connpool_acquire_timeout_total: Queued acquisitions that timed out
//   - connpool_connections_created_total: Connections created
//   - connpool_connections_destroyed_total: Connections destroyed
//   - connpool_validation_errors_total: Failed probes
//   - connpool_acquire_duration_seconds: Acquisition latency (unlabelled)
package pool
