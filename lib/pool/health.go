package pool

import (
	"context"
	"fmt"
)

// HealthChecker decides whether a previously issued client is still
// serviceable. Implementations must not panic or block past ctx; the pool
// treats false as "dispose".
type HealthChecker interface {
	Check(ctx context.Context, c Client) bool
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context, c Client) bool

// Check calls f.
func (f HealthCheckFunc) Check(ctx context.Context, c Client) bool {
	return f(ctx, c)
}

// PingChecker is the default HealthChecker. It issues a single Client.Ping;
// any error or panic from the round trip counts as unhealthy.
type PingChecker struct{}

// Check implements HealthChecker.
func (PingChecker) Check(ctx context.Context, c Client) (healthy bool) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).Warn("health check panicked")
			healthy = false
		}
	}()

	if err := c.Ping(ctx); err != nil {
		log.WithError(err).Debug("health check failed")
		return false
	}
	return true
}

// safeCheck runs hc and converts a panic into an unhealthy verdict.
func safeCheck(ctx context.Context, hc HealthChecker, c Client) (healthy bool) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).Warn("health checker panicked")
			healthy = false
		}
	}()
	return hc.Check(ctx, c)
}
