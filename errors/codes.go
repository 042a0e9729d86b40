package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates conditions a caller may log and move past.
	// Examples: a send with no receivers, a receiver that lagged.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: sending to a stopped queue, invalid configuration.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryInternal indicates unexpected failures inside user code,
	// such as a shutdown hook that returned an error or panicked.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes used by the queue, bus and shutdown packages.
const (
	ErrCodeClosed        ErrorCode = "CLOSED"         // Producer side permanently stopped
	ErrCodeSendFailed    ErrorCode = "SEND_FAILED"    // Delivery failed, e.g. zero receivers
	ErrCodeLagged        ErrorCode = "LAGGED"         // Receiver skipped messages
	ErrCodeEmpty         ErrorCode = "EMPTY"          // Nothing ready to receive
	ErrCodeHookFailed    ErrorCode = "HOOK_FAILED"    // Shutdown hook returned an error
	ErrCodeHookPanic     ErrorCode = "HOOK_PANIC"     // Shutdown hook panicked
	ErrCodePhaseTimeout  ErrorCode = "PHASE_TIMEOUT"  // Hook still running at phase deadline
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG" // Configuration rejected
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"  // Caller-supplied request rejected
	ErrCodeCodec         ErrorCode = "CODEC"          // Message could not be encoded or decoded
	ErrCodeInternal      ErrorCode = "INTERNAL"       // Unexpected internal error
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeSendFailed, ErrCodeLagged, ErrCodeEmpty, ErrCodePhaseTimeout:
		return CategoryTransient
	case ErrCodeClosed, ErrCodeInvalidConfig, ErrCodeInvalidInput, ErrCodeCodec:
		return CategoryPermanent
	default:
		return CategoryInternal
	}
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[ErrorCode]string{
	ErrCodeClosed:        "queue service has been closed",
	ErrCodeSendFailed:    "send data error",
	ErrCodeLagged:        "receiver lagged behind",
	ErrCodeEmpty:         "no message ready",
	ErrCodeHookFailed:    "shutdown hook failed",
	ErrCodeHookPanic:     "shutdown hook panicked",
	ErrCodePhaseTimeout:  "shutdown phase deadline exceeded",
	ErrCodeInvalidConfig: "invalid configuration",
	ErrCodeInvalidInput:  "invalid request input",
	ErrCodeCodec:         "message codec error",
	ErrCodeInternal:      "internal error",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
