package pool

import (
	"fmt"
	"time"
)

// collector holds the pool's counters. Every field is mutated only while
// the owning Pool's mutex is held, so it carries no synchronization of its own.
type collector struct {
	created        uint64
	reused         uint64
	closed         uint64
	hits           uint64
	misses         uint64
	overflowed     uint64
	exhausted      uint64
	createFailures uint64
	healthFails    uint64
	waitTotal      time.Duration
}

func (c *collector) recordHit(wait time.Duration) {
	c.reused++
	c.hits++
	c.waitTotal += wait
}

func (c *collector) recordMiss(wait time.Duration) {
	c.created++
	c.misses++
	c.waitTotal += wait
}

// Stats is an immutable snapshot of pool counters and occupancy.
type Stats struct {
	// MaxConnections is the configured capacity.
	MaxConnections int
	// Available is the number of idle clients in the queue.
	Available int
	// InUse is the number of checked-out clients.
	InUse int
	// Pending counts clients being created, health-checked on release,
	// or handed to a waiter.
	Pending int
	// Waiting is the number of callers blocked in Acquire.
	Waiting int

	Created    uint64
	Reused     uint64
	Closed     uint64
	PoolHits   uint64
	PoolMisses uint64

	// Overflowed counts clients created past MaxConnections under OverflowGrow.
	Overflowed uint64
	// Exhausted counts acquires refused or timed out because the pool was full.
	Exhausted uint64
	// CreateFailures counts factory errors returned to callers.
	CreateFailures uint64
	// HealthCheckFailures counts clients disposed after a failed check.
	HealthCheckFailures uint64

	// WaitTimeTotal is the cumulative time successful Acquire calls spent
	// before returning.
	WaitTimeTotal time.Duration

	// HitRate is PoolHits / (PoolHits + PoolMisses), 0 when both are zero.
	HitRate float64
	// AvgWaitTime is WaitTimeTotal / (PoolHits + PoolMisses), 0 when both are zero.
	AvgWaitTime time.Duration
}

func (c *collector) snapshot() Stats {
	s := Stats{
		Created:             c.created,
		Reused:              c.reused,
		Closed:              c.closed,
		PoolHits:            c.hits,
		PoolMisses:          c.misses,
		Overflowed:          c.overflowed,
		Exhausted:           c.exhausted,
		CreateFailures:      c.createFailures,
		HealthCheckFailures: c.healthFails,
		WaitTimeTotal:       c.waitTotal,
	}
	if served := c.hits + c.misses; served > 0 {
		s.HitRate = float64(c.hits) / float64(served)
		s.AvgWaitTime = c.waitTotal / time.Duration(served)
	}
	return s
}

// String renders the snapshot as a single log line.
func (s Stats) String() string {
	return fmt.Sprintf(
		"pool stats: available=%d in_use=%d pending=%d waiting=%d max=%d created=%d reused=%d closed=%d hits=%d misses=%d hit_rate=%.2f avg_wait=%s overflowed=%d exhausted=%d create_failures=%d health_failures=%d",
		s.Available, s.InUse, s.Pending, s.Waiting, s.MaxConnections,
		s.Created, s.Reused, s.Closed, s.PoolHits, s.PoolMisses,
		s.HitRate, s.AvgWaitTime, s.Overflowed, s.Exhausted,
		s.CreateFailures, s.HealthCheckFailures,
	)
}
