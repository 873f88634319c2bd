package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/satfetch/satfetch/lib/config"
	"github.com/satfetch/satfetch/lib/fetch"
	"github.com/satfetch/satfetch/lib/metrics"
	"github.com/satfetch/satfetch/lib/pool"
	"github.com/satfetch/satfetch/lib/ratelimit"
	"github.com/satfetch/satfetch/lib/storage"
)

// app is the composition root: it owns the configuration, the single pool
// accessor and the optional metrics server for one command invocation.
type app struct {
	configPath    string
	metricsListen string

	cfg      *config.Config
	factory  *storage.Factory
	accessor *pool.Accessor
	limiter  *ratelimit.Limiter
	metrics  *http.Server
}

// setup loads configuration and wires the storage factory into the accessor.
func (a *app) setup() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.metricsListen != "" {
		cfg.Metrics.Listen = a.metricsListen
	}
	a.cfg = cfg

	factory, err := storage.NewFactory(cfg.StorageOptions())
	if err != nil {
		return err
	}
	a.factory = factory
	a.accessor = pool.NewAccessor(factory, cfg.PoolOptions())
	a.limiter = cfg.Limiter()

	metrics.RecordStartTime()
	if cfg.Metrics.Listen != "" {
		if err := a.serveMetrics(cfg.Metrics.Listen); err != nil {
			return err
		}
	}

	log.WithField("config", a.configPath).
		WithField("bucket", cfg.Storage.Bucket).
		WithField("maxConnections", cfg.Pool.MaxConnections).
		Debug("satfetch configured")
	return nil
}

func (a *app) pool() (*pool.Pool, error) {
	return a.accessor.Get(nil)
}

// fetcher returns a Fetcher over p sharing the invocation's request limiter.
func (a *app) fetcher(p *pool.Pool, workers int) *fetch.Fetcher {
	return fetch.New(p, workers, fetch.WithLimiter(a.limiter))
}

func (a *app) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	a.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()
	log.WithField("addr", ln.Addr().String()).Info("serving metrics")
	return nil
}

// shutdown reports final pool statistics and releases every resource.
func (a *app) shutdown() {
	if a.accessor != nil {
		if p, err := a.accessor.Get(nil); err == nil {
			stats := p.Stats()
			pool.UpdateMetrics(stats)
			p.LogStats()
		}
		a.accessor.Reset()
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.metrics.Shutdown(ctx)
	}
}
