package pool

import "github.com/go-i2p/connpool/lib/metrics"

// Pool utilization metrics, partitioned by endpoint. The gauges also carry
// the Manager's name, since two managers may pool the same endpoint; the
// counters add up across managers.
var (
	// PoolConnections is the current number of connections by state (idle, in_use).
	PoolConnections = metrics.NewGaugeVec(
		"connpool_connections",
		"Current number of pooled connections by state",
		"pool", "endpoint", "state",
	)
	// PoolPending is the number of queued acquisitions.
	PoolPending = metrics.NewGaugeVec(
		"connpool_pending_acquisitions",
		"Number of acquisitions waiting for a connection",
		"pool", "endpoint",
	)
	// PoolAcquireSuccessTotal is the number of successful acquisitions.
	PoolAcquireSuccessTotal = metrics.NewCounterVec(
		"connpool_acquire_success_total",
		"Total number of successful connection acquisitions",
		"endpoint",
	)
	// PoolAcquireFailedTotal is the number of failed acquisitions.
	PoolAcquireFailedTotal = metrics.NewCounterVec(
		"connpool_acquire_failed_total",
		"Total number of failed connection acquisitions",
		"endpoint",
	)
	// PoolAcquireTimeoutTotal is the number of queued acquisitions that timed out.
	PoolAcquireTimeoutTotal = metrics.NewCounterVec(
		"connpool_acquire_timeout_total",
		"Total number of queued acquisitions that timed out",
		"endpoint",
	)
	// PoolCreatedTotal is the number of connections created by the factory.
	PoolCreatedTotal = metrics.NewCounterVec(
		"connpool_connections_created_total",
		"Total number of connections created",
		"endpoint",
	)
	// PoolDestroyedTotal is the number of connections closed by the pool.
	PoolDestroyedTotal = metrics.NewCounterVec(
		"connpool_connections_destroyed_total",
		"Total number of connections destroyed",
		"endpoint",
	)
	// PoolValidationErrorsTotal is the number of failed liveness probes.
	PoolValidationErrorsTotal = metrics.NewCounterVec(
		"connpool_validation_errors_total",
		"Total number of idle connections that failed validation",
		"endpoint",
	)
	// PoolAcquireLatency tracks time spent acquiring connections.
	PoolAcquireLatency = metrics.NewHistogram(
		"connpool_acquire_duration_seconds",
		"Time spent acquiring a connection from the pool",
		metrics.DefaultLatencyBuckets,
	)
)

// updateEndpointMetrics publishes the composition of one endpoint.
func updateEndpointMetrics(pool, endpoint string, active, idle, pending int) {
	PoolConnections.With(pool, endpoint, "in_use").Set(int64(active))
	PoolConnections.With(pool, endpoint, "idle").Set(int64(idle))
	PoolPending.With(pool, endpoint).Set(int64(pending))
}

// forgetEndpointMetrics drops the gauges of an endpoint that left the pool.
func forgetEndpointMetrics(pool, endpoint string) {
	PoolConnections.Delete(pool, endpoint, "in_use")
	PoolConnections.Delete(pool, endpoint, "idle")
	PoolPending.Delete(pool, endpoint)
}
