package pool

import (
	"context"
	"sync"
	"time"
)

// Conn is a checked-out client. It is returned to the pool by exactly one
// call to Release or Discard; further calls are no-ops.
type Conn struct {
	pool  *Pool
	entry *entry
	once  sync.Once
}

func (p *Pool) newConn(e *entry) *Conn {
	return &Conn{pool: p, entry: e}
}

// Client returns the underlying object-store client.
func (c *Conn) Client() Client {
	return c.entry.client
}

// CreatedAt returns when the client was created. Reuse does not change it.
func (c *Conn) CreatedAt() time.Time {
	return c.entry.createdAt
}

// Release health-checks the client and returns it to the pool. Unhealthy
// clients are closed.
func (c *Conn) Release() {
	if c == nil {
		return
	}
	c.once.Do(func() {
		c.pool.release(c.entry, false)
	})
}

// Discard closes the client instead of returning it. Use it when the client
// is known to be broken.
func (c *Conn) Discard() {
	if c == nil {
		return
	}
	c.once.Do(func() {
		c.pool.release(c.entry, true)
	})
}

// Do acquires a client, runs fn with it and releases it on every exit path.
func (p *Pool) Do(ctx context.Context, fn func(Client) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return fn(conn.Client())
}
