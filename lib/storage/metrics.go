package storage

import "github.com/satfetch/satfetch/lib/metrics"

// Client lifecycle metrics.
var (
	StorageConnectsTotal = metrics.NewCounter(
		"satfetch_storage_connects_total",
		"Total object-store clients created",
	)
	StorageConnectFailures = metrics.NewCounter(
		"satfetch_storage_connect_failures_total",
		"Total failed attempts to create an object-store client",
	)
	StoragePingFailures = metrics.NewCounter(
		"satfetch_storage_ping_failures_total",
		"Total failed bucket pings",
	)
	StorageConnectLatency = metrics.NewHistogram(
		"satfetch_storage_connect_duration_seconds",
		"Time spent creating and verifying an object-store client",
		metrics.DefaultLatencyBuckets,
	)
)
