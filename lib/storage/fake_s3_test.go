package storage

import (
	"testing"
	"time"

	"github.com/satfetch/satfetch/lib/testutil"
)

func newFakeS3(t *testing.T, bucket string, objects map[string]string) *testutil.FakeS3 {
	t.Helper()
	fake := testutil.NewFakeS3(bucket, objects)
	t.Cleanup(fake.Close)
	return fake
}

// testConfig points a storage Config at fake with retries disabled.
func testConfig(fake *testutil.FakeS3, bucket string) Config {
	cfg := DefaultConfig()
	cfg.Bucket = bucket
	cfg.Endpoint = fake.URL()
	cfg.UsePathStyle = true
	cfg.MaxAttempts = 1
	cfg.ConnectTimeout = time.Second
	cfg.ReadTimeout = time.Second
	return cfg
}
