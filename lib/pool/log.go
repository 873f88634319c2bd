package pool

import (
	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// Logger receives the pool's operational messages as pre-formatted lines.
// The go-i2p logger and *logrus.Logger both satisfy it.
type Logger interface {
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
}
