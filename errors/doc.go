// Package errors provides the error taxonomy shared by the broadcast, queue,
// bus and shutdown packages.
//
// # Error Categories
//
//   - Transient: the caller may log and continue (SEND_FAILED, LAGGED, PHASE_TIMEOUT)
//   - Permanent: retrying will not help (CLOSED, INVALID_CONFIG, CODEC)
//   - Internal: failures raised by user code (HOOK_FAILED, HOOK_PANIC)
//
// # Usage
//
// Compare against a package sentinel; matching is by code:
//
//	if errors.Is(err, queue.ErrClosed) {
//	    // producer side is stopped for good, drop the message
//	}
//
// Inspect a receiver lag:
//
//	if n, ok := errors.LaggedCount(err); ok {
//	    log.Warn().Uint64("skipped", n).Msg("subscriber lagged")
//	}
package errors
