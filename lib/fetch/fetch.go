// Package fetch lists and downloads imagery objects using clients borrowed
// from the connection pool.
package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-i2p/logger"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/satfetch/satfetch/lib/errors"
	"github.com/satfetch/satfetch/lib/metrics"
	"github.com/satfetch/satfetch/lib/pool"
	"github.com/satfetch/satfetch/lib/ratelimit"
	"github.com/satfetch/satfetch/lib/storage"
	"github.com/satfetch/satfetch/lib/validation"
)

var log = logger.GetGoI2PLogger()

// DefaultWorkers is the download concurrency used when none is given.
const DefaultWorkers = 4

// Acquirer hands out pooled clients. *pool.Pool implements it.
type Acquirer interface {
	Acquire(ctx context.Context) (*pool.Conn, error)
}

// ObjectStore is the read API a pooled client must offer. *storage.Client
// implements it.
type ObjectStore interface {
	List(ctx context.Context, prefix string, limit int) ([]storage.Object, error)
	Stat(ctx context.Context, key string) (storage.Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, storage.Object, error)
}

// Result describes one completed download.
type Result struct {
	Key      string
	Path     string
	Bytes    int64
	Duration time.Duration
	// Skipped is set when a local file of the same size was already present.
	Skipped bool
}

// Fetcher runs listings and downloads, one pooled client per operation.
type Fetcher struct {
	pool    Acquirer
	workers int
	limiter *ratelimit.Limiter
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLimiter paces operations through l. A nil limiter disables pacing.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(f *Fetcher) {
		f.limiter = l
	}
}

// New returns a Fetcher drawing clients from p. workers bounds DownloadAll.
func New(p Acquirer, workers int, opts ...Option) *Fetcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	f := &Fetcher{pool: p, workers: workers}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// withStore borrows a client for fn and gives it back on every exit path.
// The client is discarded when fn panics or fails for any reason other than
// a missing object.
func (f *Fetcher) withStore(ctx context.Context, fn func(ObjectStore) error) (err error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}

	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return err
	}

	store, ok := conn.Client().(ObjectStore)
	if !ok {
		conn.Release()
		return fmt.Errorf("%w: %T", apperrors.ErrStorageUnsupportedClient, conn.Client())
	}

	defer func() {
		if r := recover(); r != nil {
			conn.Discard()
			panic(r)
		}
		if err != nil && !apperrors.IsNotFound(err) {
			conn.Discard()
			return
		}
		conn.Release()
	}()
	return fn(store)
}

// List returns up to limit objects under prefix.
func (f *Fetcher) List(ctx context.Context, prefix string, limit int) ([]storage.Object, error) {
	if err := validation.Prefix("prefix", prefix); err != nil {
		metrics.ListFailures.Inc()
		return nil, err
	}

	var objects []storage.Object
	err := f.withStore(ctx, func(s ObjectStore) error {
		var err error
		objects, err = s.List(ctx, prefix, limit)
		return err
	})
	if err != nil {
		metrics.ListFailures.Inc()
		return nil, err
	}

	metrics.ObjectsListed.Add(uint64(len(objects)))
	log.WithField("prefix", prefix).WithField("count", len(objects)).Debug("listed objects")
	return objects, nil
}

// Download copies the object at key to dir, keeping the key's directory
// structure. The file appears only once it is complete. A local file whose
// size matches the object is left alone and reported as skipped.
func (f *Fetcher) Download(ctx context.Context, key, dir string) (Result, error) {
	timer := metrics.NewTimer(metrics.DownloadLatency)

	if err := validation.ObjectKey("key", key); err != nil {
		metrics.DownloadFailures.Inc()
		return Result{}, err
	}
	dest, err := destination(dir, key)
	if err != nil {
		metrics.DownloadFailures.Inc()
		return Result{}, err
	}

	var written int64
	var skipped bool
	err = f.withStore(ctx, func(s ObjectStore) error {
		if fi, err := os.Stat(dest); err == nil && fi.Mode().IsRegular() {
			obj, err := s.Stat(ctx, key)
			if err != nil {
				return err
			}
			if obj.Size == fi.Size() {
				written, skipped = fi.Size(), true
				return nil
			}
		}

		body, obj, err := s.Open(ctx, key)
		if err != nil {
			return err
		}
		defer body.Close()

		written, err = writeFile(dest, body, obj.Size)
		return err
	})
	if err != nil {
		metrics.DownloadFailures.Inc()
		log.WithField("key", key).WithError(err).Warn("download failed")
		return Result{}, err
	}

	res := Result{Key: key, Path: dest, Bytes: written, Duration: timer.ObserveDuration(), Skipped: skipped}
	if skipped {
		log.WithField("key", key).Debug("object already present, skipping")
		return res, nil
	}
	metrics.DownloadsTotal.Inc()
	metrics.DownloadBytes.Add(uint64(written))
	log.WithField("key", key).WithField("bytes", written).Debug("downloaded object")
	return res, nil
}

// DownloadAll downloads keys concurrently. It stops at the first failure and
// returns that error; results holds the downloads that completed, in key
// order, with zero values for the rest.
func (f *Fetcher) DownloadAll(ctx context.Context, keys []string, dir string) ([]Result, error) {
	results := make([]Result, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for i, key := range keys {
		g.Go(func() error {
			res, err := f.Download(gctx, key, dir)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

// destination maps an object key to a path under dir, refusing keys that
// would escape it.
func destination(dir, key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimLeft(key, "/")))
	if key == "" || clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("fetch: unsafe key %q: %w", key, apperrors.ErrInvalidInput)
	}
	return filepath.Join(dir, clean), nil
}

// writeFile copies r into a temp file next to dest and renames it into place.
// When size is positive a copy of any other length is discarded.
func writeFile(dest string, r io.Reader, size int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".satfetch-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return n, fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("closing %s: %w", dest, err)
	}
	if size > 0 && n != size {
		return n, fmt.Errorf("writing %s: short read: got %d of %d bytes", dest, n, size)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return n, fmt.Errorf("renaming into %s: %w", dest, err)
	}
	return n, nil
}
