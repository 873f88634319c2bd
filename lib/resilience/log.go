// Package resilience guards calls to the remote object store so that a
// failing endpoint is not hammered with new connection attempts.
package resilience

import (
	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()
