//go:build !windows

package shutdown

import (
	"os"
	"syscall"
)

// terminationSignals returns SIGINT and SIGTERM, the signals sent by
// terminals, process managers and container runtimes to request a stop.
func terminationSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}
