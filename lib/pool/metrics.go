package pool

import "github.com/satfetch/satfetch/lib/metrics"

// Pool utilization metrics
var (
	// PoolConnectionsMax is the configured pool capacity.
	PoolConnectionsMax = metrics.NewGauge(
		"satfetch_pool_connections_max",
		"Maximum number of object-store clients kept by the pool",
	)
	// PoolConnectionsOpen is the current number of clients owned by the pool.
	PoolConnectionsOpen = metrics.NewGauge(
		"satfetch_pool_connections_open",
		"Current number of open object-store clients",
	)
	// PoolConnectionsIdle is the current number of idle clients.
	PoolConnectionsIdle = metrics.NewGauge(
		"satfetch_pool_connections_idle",
		"Current number of idle clients in the pool",
	)
	// PoolConnectionsInUse is the number of clients currently checked out.
	PoolConnectionsInUse = metrics.NewGauge(
		"satfetch_pool_connections_in_use",
		"Number of clients currently checked out",
	)
	// PoolWaiters is the number of callers blocked in Acquire.
	PoolWaiters = metrics.NewGauge(
		"satfetch_pool_waiters",
		"Number of callers waiting for a client",
	)
	// PoolAcquireTotal is the total number of acquire attempts.
	PoolAcquireTotal = metrics.NewCounter(
		"satfetch_pool_acquire_total",
		"Total number of client acquire attempts",
	)
	// PoolAcquireFailedTotal is the number of failed acquires.
	PoolAcquireFailedTotal = metrics.NewCounter(
		"satfetch_pool_acquire_failed_total",
		"Total number of failed client acquires",
	)
	// PoolReleaseTotal is the number of releases and discards.
	PoolReleaseTotal = metrics.NewCounter(
		"satfetch_pool_release_total",
		"Total number of client releases",
	)
	// PoolOverflowTotal is the number of clients created past capacity.
	PoolOverflowTotal = metrics.NewCounter(
		"satfetch_pool_overflow_total",
		"Total number of clients created beyond max connections",
	)
	// PoolHealthCheckFailsTotal is the number of health check failures.
	PoolHealthCheckFailsTotal = metrics.NewCounter(
		"satfetch_pool_healthcheck_fails_total",
		"Total number of clients that failed health checks",
	)
	// PoolAcquireLatency tracks time spent acquiring clients.
	PoolAcquireLatency = metrics.NewHistogram(
		"satfetch_pool_acquire_duration_seconds",
		"Time spent acquiring a client from the pool",
		metrics.DefaultLatencyBuckets,
	)
)

// UpdateMetrics publishes occupancy gauges from a Stats snapshot.
func UpdateMetrics(stats Stats) {
	PoolConnectionsMax.Set(int64(stats.MaxConnections))
	PoolConnectionsOpen.Set(int64(stats.Available + stats.InUse + stats.Pending))
	PoolConnectionsIdle.Set(int64(stats.Available))
	PoolConnectionsInUse.Set(int64(stats.InUse))
	PoolWaiters.Set(int64(stats.Waiting))
}
