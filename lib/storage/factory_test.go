package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/satfetch/satfetch/lib/errors"
	"github.com/satfetch/satfetch/lib/pool"
	"github.com/satfetch/satfetch/lib/resilience"
)

func TestNewFactoryRejectsInvalidConfig(t *testing.T) {
	_, err := NewFactory(DefaultConfig())
	assert.ErrorIs(t, err, apperrors.ErrStorageBucketRequired)
}

func TestFactoryConnectVerifies(t *testing.T) {
	fake := newFakeS3(t, "imagery", sceneObjects)
	f, err := NewFactory(testConfig(fake, "imagery"))
	require.NoError(t, err)

	c, err := f.Connect(context.Background())
	require.NoError(t, err)
	defer c.Close()

	assert.IsType(t, &Client{}, c)
	assert.Equal(t, 1, fake.Lists(), "connect should ping the bucket once")
}

func TestFactoryConnectWrongBucket(t *testing.T) {
	fake := newFakeS3(t, "imagery", sceneObjects)
	f, err := NewFactory(testConfig(fake, "no-such-bucket"))
	require.NoError(t, err)

	c, err := f.Connect(context.Background())
	assert.Nil(t, c)
	assert.True(t, apperrors.IsNotFound(err), "expected not found, got %v", err)
}

func TestFactoryCircuitOpensAfterFailures(t *testing.T) {
	fake := newFakeS3(t, "imagery", sceneObjects)
	fake.SetFailing(true)

	cfg := testConfig(fake, "imagery")
	cfg.Breaker = resilience.CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Minute}
	f, err := NewFactory(cfg)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := f.Connect(context.Background())
		require.Error(t, err)
		assert.False(t, apperrors.IsCircuitOpen(err))
	}
	assert.Equal(t, resilience.CircuitOpen, f.Breaker().State())

	before := fake.Requests()
	_, err = f.Connect(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)
	assert.Equal(t, before, fake.Requests(), "open circuit should not reach the store")
}

func TestFactoryWithPool(t *testing.T) {
	fake := newFakeS3(t, "imagery", sceneObjects)
	f, err := NewFactory(testConfig(fake, "imagery"))
	require.NoError(t, err)

	cfg := pool.DefaultConfig()
	cfg.MaxConnections = 2
	p := pool.New(f, cfg)
	defer p.Close()

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	first := conn.Client()

	objects, err := conn.Client().(*Client).List(context.Background(), "landsat/", 0)
	require.NoError(t, err)
	assert.Len(t, objects, 1)
	conn.Release()

	conn, err = p.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Release()
	assert.Same(t, first, conn.Client())

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Created)
	assert.Equal(t, uint64(1), stats.Reused)
	// connect ping + list + release health check
	assert.Equal(t, 3, fake.Lists())
}

func TestFactoryFailureThroughPool(t *testing.T) {
	fake := newFakeS3(t, "imagery", sceneObjects)
	fake.SetFailing(true)
	f, err := NewFactory(testConfig(fake, "imagery"))
	require.NoError(t, err)

	p := pool.New(f, pool.DefaultConfig())
	defer p.Close()

	_, err = p.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsConnection(err), "expected connection error, got %v", err)

	stats := p.Stats()
	assert.Zero(t, stats.InUse)
	assert.Zero(t, stats.Available)
	assert.Equal(t, uint64(1), stats.CreateFailures)
}
