package errors

import (
	"fmt"
	"strconv"
)

// Error is the structured error used across drainkit.
// Two *Error values match under errors.Is when their codes are equal, so a
// sentinel such as queue.ErrClosed matches any CLOSED error in a chain.
type Error struct {
	code      ErrorCode
	category  ErrorCategory
	message   string
	cause     error
	metadata  map[string]string
	retryable *bool // nil means use default based on category
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Category returns the error category.
func (e *Error) Category() ErrorCategory {
	return e.category
}

// Retryable returns whether this error is retryable.
func (e *Error) Retryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	return e.category.IsRetryable()
}

// Metadata returns a copy of the error metadata.
func (e *Error) Metadata() map[string]string {
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithCategory overrides the default category.
func WithCategory(cat ErrorCategory) Option {
	return func(e *Error) {
		e.category = cat
	}
}

// WithRetryable explicitly sets whether the error is retryable.
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// WithMetadata adds a metadata key-value pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:     code,
		category: code.DefaultCategory(),
		message:  message,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// FromCode creates an error with the default description for the code.
func FromCode(code ErrorCode, opts ...Option) *Error {
	return New(code, code.Description(), opts...)
}

const skippedKey = "skipped"

// Lagged creates a lag error reporting that a receiver skipped n messages.
func Lagged(n uint64) *Error {
	return New(ErrCodeLagged,
		fmt.Sprintf("receiver lagged: %d messages skipped", n),
		WithMetadata(skippedKey, strconv.FormatUint(n, 10)))
}

// LaggedCount returns the number of skipped messages carried by a lag error.
func LaggedCount(err error) (uint64, bool) {
	e := AsError(err)
	if e == nil || e.code != ErrCodeLagged {
		return 0, false
	}
	n, perr := strconv.ParseUint(e.metadata[skippedKey], 10, 64)
	if perr != nil {
		return 0, false
	}
	return n, true
}

// HookFailed creates an error for a shutdown hook that returned err.
func HookFailed(name string, err error) *Error {
	return New(ErrCodeHookFailed, fmt.Sprintf("hook %q failed", name),
		WithCause(err), WithMetadata("hook", name))
}

// HookPanic creates an error for a shutdown hook that panicked with value v.
func HookPanic(name string, v any) *Error {
	return New(ErrCodeHookPanic, fmt.Sprintf("hook %q panicked: %v", name, v),
		WithMetadata("hook", name))
}

// PhaseTimeout creates an error for a hook still running when its phase deadline expired.
func PhaseTimeout(name, phase string) *Error {
	return New(ErrCodePhaseTimeout, fmt.Sprintf("hook %q did not finish before %s phase deadline", name, phase),
		WithMetadata("hook", name), WithMetadata("phase", phase))
}

// InvalidConfig creates a configuration error.
func InvalidConfig(message string, opts ...Option) *Error {
	return New(ErrCodeInvalidConfig, message, opts...)
}
