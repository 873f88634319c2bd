// Package pool keeps a bounded set of reusable clients to a remote object
// store and lends them out one holder at a time.
//
// The pool supports:
//   - A configurable maximum number of clients (default 10)
//   - Age-based expiry measured from creation (default 5 minutes)
//   - Health checking of clients as they are returned
//   - Block, grow or reject behavior when the pool is full
//   - Counters for reuse, creation, disposal and wait time
//
// # Basic Usage
//
//	p := pool.New(storage.NewFactory(storageCfg), pool.DefaultConfig())
//	defer p.Close()
//
//	conn, err := p.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer conn.Release()
//
//	client := conn.Client().(*storage.Client)
//
// Pool.Do wraps the acquire and release pair:
//
//	err := p.Do(ctx, func(c pool.Client) error {
//	    return c.Ping(ctx)
//	})
//
// # Health Checking
//
// Released clients are passed to Config.HealthCheck, PingChecker by default.
// Clients that fail are closed and never handed out again. Check failures are
// logged and counted; they are not reported to the caller.
//
// # Overflow
//
// With OverflowBlock callers queue in arrival order until a client comes back
// or AcquireTimeout passes. OverflowGrow logs a warning and creates a client
// past the limit. OverflowReject returns ErrPoolExhausted.
//
// # Metrics
//
// Pool utilization metrics are registered with the metrics package:
//   - satfetch_pool_connections_max: Configured capacity
//   - satfetch_pool_connections_open: Clients owned by the pool
//   - satfetch_pool_connections_idle: Idle clients
//   - satfetch_pool_connections_in_use: Checked-out clients
//   - satfetch_pool_waiters: Callers blocked in Acquire
//   - satfetch_pool_acquire_total: Acquire attempts
//   - satfetch_pool_acquire_failed_total: Failed acquires
//   - satfetch_pool_release_total: Releases and discards
//   - satfetch_pool_overflow_total: Clients created past capacity
//   - satfetch_pool_healthcheck_fails_total: Health check failures
//   - satfetch_pool_acquire_duration_seconds: Acquire latency
package pool
