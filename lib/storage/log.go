// Package storage creates anonymous clients for public S3-compatible object
// stores, such as the satellite-imagery buckets published on AWS Open Data.
//
// A Factory produces *Client values and is the pool.Factory used by the
// connection pool. Each client carries its own HTTP transport with connect
// and read timeouts and a bounded retry count, and is verified with a cheap
// listing before it is handed out.
package storage

import (
	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()
