package errors

import "fmt"

// Error is a coded error carrying a category, optional metadata and an
// underlying cause.
type Error struct {
	code     ErrorCode
	category ErrorCategory
	message  string
	cause    error
	metadata map[string]string
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

// Retryable reports whether a new session may succeed.
func (e *Error) Retryable() bool {
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

// Option is a functional option for configuring an Error.
type Option func(*Error)

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
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Config creates a configuration error.
func Config(message string, opts ...Option) *Error {
	return New(ErrCodeConfig, message, opts...)
}

// Transport creates a transport error wrapping cause.
func Transport(message string, cause error, opts ...Option) *Error {
	return New(ErrCodeTransport, message, append(opts, WithCause(cause))...)
}

// Decode creates a decode error wrapping cause.
func Decode(message string, cause error, opts ...Option) *Error {
	return New(ErrCodeDecode, message, append(opts, WithCause(cause))...)
}
