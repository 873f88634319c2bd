package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/satfetch/satfetch/lib/errors"
	"github.com/satfetch/satfetch/lib/metrics"
	"github.com/satfetch/satfetch/lib/pool"
	"github.com/satfetch/satfetch/lib/ratelimit"
	"github.com/satfetch/satfetch/lib/storage"
)

// memStore is an in-memory object store client.
type memStore struct {
	objects   map[string]string
	listErr   error
	listPanic bool
	short     bool
	opens     atomic.Int32

	mu     sync.Mutex
	closed bool
}

func (m *memStore) Ping(ctx context.Context) error { return nil }

func (m *memStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memStore) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *memStore) List(ctx context.Context, prefix string, limit int) ([]storage.Object, error) {
	if m.listPanic {
		panic("list exploded")
	}
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []storage.Object
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.Object{Key: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Stat(ctx context.Context, key string) (storage.Object, error) {
	v, ok := m.objects[key]
	if !ok {
		return storage.Object{}, fmt.Errorf("stat %s: %w", key, apperrors.ErrNotFound)
	}
	return storage.Object{Key: key, Size: int64(len(v))}, nil
}

func (m *memStore) Open(ctx context.Context, key string) (io.ReadCloser, storage.Object, error) {
	m.opens.Add(1)
	v, ok := m.objects[key]
	if !ok {
		return nil, storage.Object{}, fmt.Errorf("open %s: %w", key, apperrors.ErrNotFound)
	}
	size := int64(len(v))
	if m.short {
		size++
	}
	return io.NopCloser(strings.NewReader(v)), storage.Object{Key: key, Size: size}, nil
}

var tiles = map[string]string{
	"tiles/31/U/DQ/B02.tif": "blue",
	"tiles/31/U/DQ/B03.tif": "green",
	"tiles/31/U/DQ/B04.tif": "red",
	"tiles/31/U/DQ/B08.tif": "nir",
	"tiles/32/T/LR/B02.tif": "blue-2",
}

func newTestPool(t *testing.T, store func() pool.Client) (*pool.Pool, *int32) {
	t.Helper()
	var created int32
	cfg := pool.DefaultConfig()
	cfg.MaxConnections = 2
	p := pool.New(pool.FactoryFunc(func(ctx context.Context) (pool.Client, error) {
		atomic.AddInt32(&created, 1)
		return store(), nil
	}), cfg)
	t.Cleanup(func() { _ = p.Close() })
	return p, &created
}

func TestFetcherList(t *testing.T) {
	p, _ := newTestPool(t, func() pool.Client { return &memStore{objects: tiles} })
	f := New(p, 0)

	before := metrics.ObjectsListed.Value()
	objects, err := f.List(context.Background(), "tiles/31/", 3)
	require.NoError(t, err)
	require.Len(t, objects, 3)
	assert.Equal(t, "tiles/31/U/DQ/B02.tif", objects[0].Key)
	assert.Equal(t, before+3, metrics.ObjectsListed.Value())

	stats := p.Stats()
	assert.Equal(t, 1, stats.Available, "client should go back to the pool")
	assert.Zero(t, stats.InUse)
}

func TestFetcherListFailureDiscardsClient(t *testing.T) {
	var stores []*memStore
	var mu sync.Mutex
	p, created := newTestPool(t, func() pool.Client {
		s := &memStore{listErr: errors.New("connection reset by peer")}
		mu.Lock()
		stores = append(stores, s)
		mu.Unlock()
		return s
	})
	f := New(p, 1)

	_, err := f.List(context.Background(), "", 0)
	require.Error(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(created))
	assert.True(t, stores[0].isClosed(), "failed client should be discarded")
	assert.Zero(t, p.Stats().Available)
}

func TestFetcherDownload(t *testing.T) {
	p, _ := newTestPool(t, func() pool.Client { return &memStore{objects: tiles} })
	f := New(p, 2)
	dir := t.TempDir()

	res, err := f.Download(context.Background(), "tiles/31/U/DQ/B04.tif", dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "tiles", "31", "U", "DQ", "B04.tif"), res.Path)
	assert.Equal(t, int64(3), res.Bytes)
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "red", string(data))

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(res.Path), ".satfetch-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFetcherDownloadMissingKeepsClient(t *testing.T) {
	p, created := newTestPool(t, func() pool.Client { return &memStore{objects: tiles} })
	f := New(p, 2)

	_, err := f.Download(context.Background(), "tiles/99/X/XX/B02.tif", t.TempDir())
	assert.True(t, apperrors.IsNotFound(err), "expected not found, got %v", err)

	_, err = f.Download(context.Background(), "tiles/31/U/DQ/B02.tif", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(created), "missing object should not cost the client")
}

func TestFetcherDownloadShortRead(t *testing.T) {
	p, _ := newTestPool(t, func() pool.Client { return &memStore{objects: tiles, short: true} })
	f := New(p, 1)
	dir := t.TempDir()

	_, err := f.Download(context.Background(), "tiles/31/U/DQ/B03.tif", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "short read")
	assert.NoFileExists(t, filepath.Join(dir, "tiles", "31", "U", "DQ", "B03.tif"))
}

func TestFetcherDownloadRejectsUnsafeKeys(t *testing.T) {
	p, created := newTestPool(t, func() pool.Client { return &memStore{objects: tiles} })
	f := New(p, 1)

	for _, key := range []string{"", "..", "../etc/passwd", "tiles/../../escape"} {
		_, err := f.Download(context.Background(), key, t.TempDir())
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, "key %q", key)
	}
	assert.Zero(t, atomic.LoadInt32(created))
}

func TestFetcherDownloadAll(t *testing.T) {
	p, created := newTestPool(t, func() pool.Client { return &memStore{objects: tiles} })
	f := New(p, 4)
	dir := t.TempDir()

	keys := []string{
		"tiles/31/U/DQ/B02.tif",
		"tiles/31/U/DQ/B03.tif",
		"tiles/31/U/DQ/B04.tif",
		"tiles/31/U/DQ/B08.tif",
		"tiles/32/T/LR/B02.tif",
	}
	results, err := f.DownloadAll(context.Background(), keys, dir)
	require.NoError(t, err)
	require.Len(t, results, len(keys))

	for i, key := range keys {
		assert.Equal(t, key, results[i].Key)
		data, err := os.ReadFile(results[i].Path)
		require.NoError(t, err)
		assert.Equal(t, tiles[key], string(data))
	}
	assert.LessOrEqual(t, atomic.LoadInt32(created), int32(2), "pool capacity bounds clients")
}

func TestFetcherDownloadAllStopsOnError(t *testing.T) {
	p, _ := newTestPool(t, func() pool.Client { return &memStore{objects: tiles} })
	f := New(p, 1)

	_, err := f.DownloadAll(context.Background(), []string{"tiles/31/U/DQ/B02.tif", "missing.tif"}, t.TempDir())
	assert.True(t, apperrors.IsNotFound(err), "expected not found, got %v", err)
}

// plainClient only satisfies pool.Client.
type plainClient struct{}

func (plainClient) Ping(ctx context.Context) error { return nil }
func (plainClient) Close() error                   { return nil }

func TestFetcherUnsupportedClient(t *testing.T) {
	p, _ := newTestPool(t, func() pool.Client { return plainClient{} })
	f := New(p, 1)

	_, err := f.List(context.Background(), "", 0)
	assert.ErrorIs(t, err, apperrors.ErrStorageUnsupportedClient)
	assert.Equal(t, 1, p.Stats().Available)
}

func TestDestination(t *testing.T) {
	got, err := destination("/data", "/tiles/a/b.tif")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data", "tiles", "a", "b.tif"), got)

	got, err = destination("/data", "tiles/./a//b.tif")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data", "tiles", "a", "b.tif"), got)
}

func TestFetcherListRejectsInvalidPrefix(t *testing.T) {
	p, created := newTestPool(t, func() pool.Client { return &memStore{objects: tiles} })
	f := New(p, 1)

	_, err := f.List(context.Background(), "tiles/\x7f", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Zero(t, atomic.LoadInt32(created))
}

func TestFetcherWithLimiter(t *testing.T) {
	p, _ := newTestPool(t, func() pool.Client { return &memStore{objects: tiles} })
	// 40 requests/sec, burst 1: three listings take at least ~50ms
	f := New(p, 1, WithLimiter(ratelimit.New(40, 1)))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := f.List(context.Background(), "tiles/", 0)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestFetcherLimiterHonorsContext(t *testing.T) {
	p, created := newTestPool(t, func() pool.Client { return &memStore{objects: tiles} })
	limiter := ratelimit.New(0.5, 1)
	require.True(t, limiter.Allow())
	f := New(p, 1, WithLimiter(limiter))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.List(ctx, "tiles/", 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, atomic.LoadInt32(created), "no client should be borrowed while paced")
}

func TestFetcherListPanicDiscardsClient(t *testing.T) {
	var stores []*memStore
	var mu sync.Mutex
	cfg := pool.DefaultConfig()
	cfg.MaxConnections = 1
	cfg.Overflow = pool.OverflowReject
	p := pool.New(pool.FactoryFunc(func(ctx context.Context) (pool.Client, error) {
		s := &memStore{objects: tiles, listPanic: true}
		mu.Lock()
		stores = append(stores, s)
		mu.Unlock()
		return s, nil
	}), cfg)
	t.Cleanup(func() { _ = p.Close() })
	f := New(p, 1)

	assert.PanicsWithValue(t, "list exploded", func() {
		_, _ = f.List(context.Background(), "tiles/", 0)
	})

	stats := p.Stats()
	assert.Zero(t, stats.InUse, "panicking operation must give its client back")
	assert.Zero(t, stats.Available)
	require.Len(t, stores, 1)
	assert.True(t, stores[0].isClosed(), "client should be discarded after a panic")

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err, "capacity should be free again")
	conn.Release()
}

func TestFetcherDownloadSkipsCompleteFile(t *testing.T) {
	store := &memStore{objects: tiles}
	p, _ := newTestPool(t, func() pool.Client { return store })
	f := New(p, 1)
	dir := t.TempDir()
	key := "tiles/31/U/DQ/B08.tif"

	first, err := f.Download(context.Background(), key, dir)
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	second, err := f.Download(context.Background(), key, dir)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, int64(len(tiles[key])), second.Bytes)
	assert.Equal(t, int32(1), store.opens.Load(), "complete file should not be fetched again")

	// A truncated local copy is replaced.
	require.NoError(t, os.WriteFile(first.Path, []byte("n"), 0o644))
	third, err := f.Download(context.Background(), key, dir)
	require.NoError(t, err)
	assert.False(t, third.Skipped)
	data, err := os.ReadFile(third.Path)
	require.NoError(t, err)
	assert.Equal(t, "nir", string(data))
}

func TestWriteFileShortReadLeavesNoFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "scene", "B02.tif")

	n, err := writeFile(dest, strings.NewReader("blue"), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "short read")
	assert.Equal(t, int64(4), n)
	assert.NoFileExists(t, dest)

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(dest), ".satfetch-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}
