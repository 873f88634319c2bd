package pool

import (
	"fmt"
	"sync"

	apperrors "github.com/satfetch/satfetch/lib/errors"
)

// Accessor lazily builds a single Pool and hands out the same instance
// afterwards. It is owned by the program's composition root.
type Accessor struct {
	factory  Factory
	defaults Config

	mu   sync.Mutex
	pool *Pool
}

// NewAccessor returns an Accessor that builds pools from factory. defaults
// is used when Get is called with a nil Config.
func NewAccessor(factory Factory, defaults Config) *Accessor {
	return &Accessor{factory: factory, defaults: defaults}
}

// Get returns the shared pool, creating it from cfg on first use. cfg is
// ignored once the pool exists.
func (a *Accessor) Get(cfg *Config) (*Pool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pool != nil {
		if cfg != nil {
			log.Debug("pool already initialized, ignoring configuration")
		}
		return a.pool, nil
	}
	if a.factory == nil {
		return nil, fmt.Errorf("pool: accessor has no factory: %w", apperrors.ErrInvalidInput)
	}

	c := a.defaults
	if cfg != nil {
		c = *cfg
	}
	a.pool = New(a.factory, c)
	return a.pool, nil
}

// Reset closes the shared pool, if any, and forgets it. The next Get builds
// a fresh one.
func (a *Accessor) Reset() {
	a.mu.Lock()
	p := a.pool
	a.pool = nil
	a.mu.Unlock()

	if p != nil {
		_ = p.Close()
	}
}
