package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	apperrors "github.com/satfetch/satfetch/lib/errors"
	"github.com/satfetch/satfetch/lib/metrics"
)

var (
	// ErrPoolClosed is returned when operating on a closed pool.
	ErrPoolClosed = apperrors.ErrPoolClosed
	// ErrPoolExhausted is returned under OverflowReject when the pool is full.
	ErrPoolExhausted = apperrors.ErrPoolExhausted
	// ErrTimeout is returned when waiting for a connection exceeds AcquireTimeout.
	ErrTimeout = apperrors.ErrPoolTimeout

	errNilClient = errors.New("factory returned a nil client")
)

// Defaults applied by New to zero-valued Config fields.
const (
	DefaultMaxConnections     = 10
	DefaultMaxAge             = 5 * time.Minute
	DefaultAcquireTimeout     = 30 * time.Second
	DefaultHealthCheckTimeout = 5 * time.Second
)

// Client is a live handle to the remote object store.
type Client interface {
	// Ping performs a cheap read-only round trip.
	Ping(ctx context.Context) error
	// Close releases the handle's resources.
	Close() error
}

// Factory mints new clients.
type Factory interface {
	Connect(ctx context.Context) (Client, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context) (Client, error)

// Connect calls f.
func (f FactoryFunc) Connect(ctx context.Context) (Client, error) {
	return f(ctx)
}

// OverflowPolicy selects what Acquire does when the pool is at capacity.
type OverflowPolicy int

const (
	// OverflowBlock queues the caller (first come, first served) until a
	// client is released, a slot frees up, or the acquire times out.
	OverflowBlock OverflowPolicy = iota
	// OverflowGrow logs a warning and creates a client past MaxConnections.
	OverflowGrow
	// OverflowReject fails immediately with ErrPoolExhausted.
	OverflowReject
)

func (o OverflowPolicy) String() string {
	switch o {
	case OverflowBlock:
		return "block"
	case OverflowGrow:
		return "grow"
	case OverflowReject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy parses "block", "grow" or "reject".
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block":
		return OverflowBlock, nil
	case "grow":
		return OverflowGrow, nil
	case "reject":
		return OverflowReject, nil
	default:
		return OverflowBlock, fmt.Errorf("pool: unknown overflow policy %q: %w", s, apperrors.ErrInvalidInput)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o OverflowPolicy) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *OverflowPolicy) UnmarshalText(b []byte) error {
	p, err := ParseOverflowPolicy(string(b))
	if err != nil {
		return err
	}
	*o = p
	return nil
}

// Config configures the connection pool.
type Config struct {
	// MaxConnections is the number of clients the pool keeps open at once.
	// Default: 10
	MaxConnections int
	// MaxAge is measured from a client's creation; clients this old are
	// closed instead of being reused. Returning a client does not reset it.
	// Default: 5 minutes
	MaxAge time.Duration
	// AcquireTimeout bounds how long OverflowBlock waits when the caller's
	// context has no deadline.
	// Default: 30 seconds
	AcquireTimeout time.Duration
	// HealthCheckTimeout bounds the health check run on release.
	// Default: 5 seconds
	HealthCheckTimeout time.Duration
	// Overflow selects the behavior when the pool is full.
	// Default: OverflowBlock
	Overflow OverflowPolicy
	// HealthCheck validates released clients. Default: PingChecker.
	HealthCheck HealthChecker
	// Logger receives warnings and the LogStats line. Default: package logger.
	Logger Logger
	// Now is the clock used for ages and wait times. Default: time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConnections:     DefaultMaxConnections,
		MaxAge:             DefaultMaxAge,
		AcquireTimeout:     DefaultAcquireTimeout,
		HealthCheckTimeout: DefaultHealthCheckTimeout,
		Overflow:           OverflowBlock,
	}
}

// entry pairs a client with its creation time. The pointer is the client's
// identity inside the pool.
type entry struct {
	client    Client
	createdAt time.Time
}

// grant is delivered to a blocked Acquire. A nil entry with a nil err means
// a creation slot has been reserved for the waiter.
type grant struct {
	entry *entry
	err   error
}

type waiter struct {
	ready chan grant
}

// Pool hands out object-store clients, one holder per client at a time.
//
// All queue and set membership changes happen under mu. Connecting, health
// checks and closing clients happen outside it; clients in those states are
// counted in pending so capacity stays accurate.
type Pool struct {
	factory Factory
	config  Config
	checker HealthChecker
	logger  Logger
	now     func() time.Time
	dials   *semaphore.Weighted

	mu        sync.Mutex
	available []*entry
	inUse     map[*entry]struct{}
	pending   int
	waiters   []*waiter
	closed    bool
	stats     collector
}

// New creates a connection pool. No clients are created until Acquire.
func New(factory Factory, cfg Config) *Pool {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}
	if cfg.HealthCheckTimeout <= 0 {
		cfg.HealthCheckTimeout = DefaultHealthCheckTimeout
	}
	if cfg.HealthCheck == nil {
		cfg.HealthCheck = PingChecker{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	p := &Pool{
		factory: factory,
		config:  cfg,
		checker: cfg.HealthCheck,
		logger:  cfg.Logger,
		now:     cfg.Now,
		dials:   semaphore.NewWeighted(int64(cfg.MaxConnections)),
		inUse:   make(map[*entry]struct{}, cfg.MaxConnections),
	}

	PoolConnectionsMax.Set(int64(cfg.MaxConnections))
	log.WithField("maxConnections", cfg.MaxConnections).
		WithField("maxAge", cfg.MaxAge).
		WithField("overflow", cfg.Overflow.String()).
		Debug("pool created")
	return p
}

// Config returns the effective configuration.
func (p *Pool) Config() Config {
	return p.config
}

// Acquire checks out a client. The returned Conn must be released exactly
// once, typically with defer conn.Release().
//
// A fresh idle client is reused first; idle clients at or past MaxAge are
// closed on the way. Otherwise a new client is created if capacity allows,
// and a full pool is handled according to Config.Overflow. Factory errors
// are returned wrapped so that errors.Is(err, errors.ErrConnection) holds.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	PoolAcquireTotal.Inc()
	timer := metrics.NewTimer(PoolAcquireLatency)
	defer timer.ObserveDuration()

	conn, err := p.acquire(ctx)
	if err != nil {
		PoolAcquireFailedTotal.Inc()
		return nil, err
	}
	return conn, nil
}

func (p *Pool) acquire(ctx context.Context) (*Conn, error) {
	start := p.now()

	p.mu.Lock()
	if p.closed {
		p.unlock()
		return nil, ErrPoolClosed
	}

	e, stale := p.takeFreshLocked(start)
	if e != nil {
		p.inUse[e] = struct{}{}
		p.stats.recordHit(p.now().Sub(start))
		p.unlock()
		p.dispose(stale)
		log.Debug("reused pooled client")
		return p.newConn(e), nil
	}

	if len(p.waiters) == 0 && p.sizeLocked() < p.config.MaxConnections {
		p.pending++
		p.unlock()
		p.dispose(stale)
		return p.create(ctx, start)
	}

	switch p.config.Overflow {
	case OverflowGrow:
		open := p.sizeLocked()
		p.pending++
		p.stats.overflowed++
		p.unlock()
		PoolOverflowTotal.Inc()
		p.logger.Warn(fmt.Sprintf("pool: at capacity (%d/%d), creating overflow connection", open, p.config.MaxConnections))
		p.dispose(stale)
		return p.create(ctx, start)

	case OverflowReject:
		p.stats.exhausted++
		p.unlock()
		p.dispose(stale)
		return nil, ErrPoolExhausted

	default:
		w := &waiter{ready: make(chan grant, 1)}
		p.waiters = append(p.waiters, w)
		// Closing stale clients freed capacity; earlier waiters get it first.
		p.grantSlotsLocked()
		waiting := len(p.waiters)
		p.unlock()
		p.dispose(stale)
		log.WithField("waiting", waiting).Debug("waiting for available client")
		return p.wait(ctx, w, start)
	}
}

// takeFreshLocked pops idle entries until one younger than MaxAge is found.
// Older entries are returned for closing and counted as closed.
func (p *Pool) takeFreshLocked(now time.Time) (*entry, []*entry) {
	var stale []*entry
	for len(p.available) > 0 {
		e := p.available[0]
		p.available[0] = nil
		p.available = p.available[1:]

		if now.Sub(e.createdAt) < p.config.MaxAge {
			return e, stale
		}
		p.stats.closed++
		stale = append(stale, e)
	}
	return nil, stale
}

// unlock publishes the occupancy gauges and releases mu.
func (p *Pool) unlock() {
	PoolConnectionsOpen.Set(int64(p.sizeLocked()))
	PoolConnectionsIdle.Set(int64(len(p.available)))
	PoolConnectionsInUse.Set(int64(len(p.inUse)))
	PoolWaiters.Set(int64(len(p.waiters)))
	p.mu.Unlock()
}

func (p *Pool) sizeLocked() int {
	return len(p.available) + len(p.inUse) + p.pending
}

// create runs the factory for a slot already counted in pending.
func (p *Pool) create(ctx context.Context, start time.Time) (*Conn, error) {
	if err := p.dials.Acquire(ctx, 1); err != nil {
		p.mu.Lock()
		p.pending--
		p.grantSlotsLocked()
		p.unlock()
		return nil, waitError(err)
	}
	client, err := p.factory.Connect(ctx)
	p.dials.Release(1)
	if err == nil && client == nil {
		err = errNilClient
	}

	p.mu.Lock()
	p.pending--
	if err != nil {
		p.stats.createFailures++
		p.grantSlotsLocked()
		p.unlock()
		log.WithError(err).Debug("failed to create client")
		return nil, apperrors.NewConnectionError(err)
	}
	if p.closed {
		p.stats.created++
		p.stats.closed++
		p.unlock()
		p.closeClient(client)
		return nil, ErrPoolClosed
	}

	e := &entry{client: client, createdAt: p.now()}
	p.inUse[e] = struct{}{}
	p.stats.recordMiss(p.now().Sub(start))
	p.unlock()

	log.Debug("created new client")
	return p.newConn(e), nil
}

// wait blocks a queued caller until it is granted a client or a slot.
func (p *Pool) wait(ctx context.Context, w *waiter, start time.Time) (*Conn, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.AcquireTimeout)
		defer cancel()
	}

	select {
	case g := <-w.ready:
		return p.accept(ctx, g, start)
	case <-ctx.Done():
	}

	p.mu.Lock()
	if p.removeWaiterLocked(w) {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			p.stats.exhausted++
		}
		p.unlock()
		return nil, waitError(ctx.Err())
	}
	p.unlock()

	// The grant raced the cancellation and is already queued; pass it on.
	g := <-w.ready
	if g.err != nil {
		return nil, g.err
	}

	var stale bool
	p.mu.Lock()
	p.pending--
	if g.entry != nil {
		stale = p.handOffLocked(g.entry)
	} else {
		p.grantSlotsLocked()
	}
	p.unlock()
	if stale {
		p.closeClient(g.entry.client)
	}
	return nil, waitError(ctx.Err())
}

// accept turns a grant into a checked-out Conn.
func (p *Pool) accept(ctx context.Context, g grant, start time.Time) (*Conn, error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.entry == nil {
		return p.create(ctx, start)
	}

	p.mu.Lock()
	p.pending--
	if p.closed {
		p.stats.closed++
		p.unlock()
		p.closeClient(g.entry.client)
		return nil, ErrPoolClosed
	}
	p.inUse[g.entry] = struct{}{}
	p.stats.recordHit(p.now().Sub(start))
	p.unlock()

	log.Debug("received released client")
	return p.newConn(g.entry), nil
}

func (p *Pool) removeWaiterLocked(w *waiter) bool {
	for i, candidate := range p.waiters {
		if candidate == w {
			copy(p.waiters[i:], p.waiters[i+1:])
			p.waiters[len(p.waiters)-1] = nil
			p.waiters = p.waiters[:len(p.waiters)-1]
			return true
		}
	}
	return false
}

func (p *Pool) popWaiterLocked() *waiter {
	w := p.waiters[0]
	p.waiters[0] = nil
	p.waiters = p.waiters[1:]
	return w
}

// handOffLocked gives a healthy client to the oldest waiter, or appends it
// to the idle queue with its original creation time. It reports true when
// the client was too old to hand to a waiter and must be closed by the caller.
func (p *Pool) handOffLocked(e *entry) bool {
	if len(p.waiters) == 0 {
		p.available = append(p.available, e)
		return false
	}
	if p.now().Sub(e.createdAt) >= p.config.MaxAge {
		p.stats.closed++
		p.grantSlotsLocked()
		return true
	}
	w := p.popWaiterLocked()
	p.pending++
	w.ready <- grant{entry: e}
	return false
}

// grantSlotsLocked reserves free capacity for waiters in arrival order.
func (p *Pool) grantSlotsLocked() {
	for len(p.waiters) > 0 && p.sizeLocked() < p.config.MaxConnections {
		w := p.popWaiterLocked()
		p.pending++
		w.ready <- grant{}
	}
}

// release returns e to the pool, or closes it when discard is set, the pool
// is closed, or the health check fails.
func (p *Pool) release(e *entry, discard bool) {
	PoolReleaseTotal.Inc()

	p.mu.Lock()
	if _, ok := p.inUse[e]; !ok {
		p.unlock()
		return
	}
	delete(p.inUse, e)
	if discard || p.closed {
		p.stats.closed++
		p.grantSlotsLocked()
		p.unlock()
		p.closeClient(e.client)
		return
	}
	p.pending++
	p.unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.config.HealthCheckTimeout)
	healthy := safeCheck(ctx, p.checker, e.client)
	cancel()

	p.mu.Lock()
	p.pending--
	if !healthy {
		p.stats.healthFails++
		PoolHealthCheckFailsTotal.Inc()
	}
	if !healthy || p.closed {
		p.stats.closed++
		p.grantSlotsLocked()
		p.unlock()
		p.closeClient(e.client)
		return
	}
	stale := p.handOffLocked(e)
	p.unlock()

	if stale {
		p.closeClient(e.client)
	}
}

// CloseAll closes every idle client. Checked-out clients stay with their
// holders; if any exist a single warning reports how many. Calling it on an
// empty pool does nothing. The pool remains usable afterwards.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	idle := p.available
	p.available = nil
	p.stats.closed += uint64(len(idle))
	inUse := len(p.inUse)
	p.grantSlotsLocked()
	p.unlock()

	if inUse > 0 {
		p.logger.Warn(fmt.Sprintf("pool: close all: %d connection(s) still in use, leaving them with their holders", inUse))
	}
	if len(idle) > 0 {
		log.WithField("closed", len(idle)).Debug("closed idle clients")
	}
	p.dispose(idle)
}

// Close shuts the pool down: blocked callers receive ErrPoolClosed, idle
// clients are closed, and clients released later are closed instead of
// being pooled. A second call returns ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.unlock()
		return ErrPoolClosed
	}
	p.closed = true
	waiters := p.waiters
	p.waiters = nil
	p.unlock()

	for _, w := range waiters {
		w.ready <- grant{err: ErrPoolClosed}
	}
	p.CloseAll()

	log.Debug("pool closed")
	return nil
}

// Stats returns a snapshot of the pool's counters and occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats.snapshot()
	s.MaxConnections = p.config.MaxConnections
	s.Available = len(p.available)
	s.InUse = len(p.inUse)
	s.Pending = p.pending
	s.Waiting = len(p.waiters)
	return s
}

// LogStats writes the current snapshot as one Info line.
func (p *Pool) LogStats() {
	p.logger.Info(p.Stats().String())
}

func (p *Pool) dispose(entries []*entry) {
	for _, e := range entries {
		p.closeClient(e.client)
	}
}

// closeClient closes c, absorbing errors and panics.
func (p *Pool) closeClient(c Client) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).Warn("closing client panicked")
		}
	}()
	if err := c.Close(); err != nil {
		log.WithError(err).Warn("error closing client")
	}
}

func waitError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}
