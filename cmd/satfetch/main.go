// satfetch lists and downloads satellite imagery from public object stores
// through a bounded pool of anonymous clients.
//
// Usage:
//
//	satfetch list [prefix] [--limit N]
//	satfetch get <key>... [--out dir] [--workers N]
//	satfetch ping [--count N]
//	satfetch config init|show
//
// Global flags:
//
//	--config string
//	    Path to configuration file (default "$XDG_CONFIG_HOME/satfetch/config.toml")
//	--metrics-listen string
//	    Serve Prometheus metrics on this address while the command runs
//
// Exit status is 0 on success, 2 for invalid input or configuration, 3 when
// an object is not found, 4 when the store is unreachable, 5 when the pool
// is exhausted and 1 otherwise.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/go-i2p/logger"

	apperrors "github.com/satfetch/satfetch/lib/errors"
)

var log = logger.GetGoI2PLogger()

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(report(os.Stderr, err))
	}
}

// report prints err and returns the exit status for its category.
func report(w io.Writer, err error) int {
	e := apperrors.FromSentinel(err)
	fmt.Fprintf(w, "satfetch: %s\n", e.Message)
	log.WithField("code", e.Code).WithError(err).Debug("command failed")
	return e.ExitStatus()
}
