//go:build windows

package shutdown

import (
	"os"
	"syscall"
)

// terminationSignals returns os.Interrupt for Ctrl+C and Ctrl+Break, and
// SIGTERM, which the runtime delivers for console close, logoff and
// shutdown events.
func terminationSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}
