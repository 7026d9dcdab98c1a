package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the chain.
// A coded error keeps its code; context errors map to CANCELED; anything
// else becomes INTERNAL. Wrap returns nil for a nil error.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var coded *Error
	if errors.As(err, &coded) {
		wrapped := &Error{
			code:     coded.code,
			category: coded.category,
			message:  message,
			cause:    err,
			metadata: coded.Metadata(),
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}
	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	return New(code, message, append(opts, WithCause(err))...)
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.code == code
	}
	return false
}

// IsRetryable checks if the error is retryable. Uncoded errors are not.
func IsRetryable(err error) bool {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Retryable()
	}
	return false
}

// Code extracts the error code from an error, or "" if it has none.
func Code(err error) ErrorCode {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.code
	}
	return ""
}

// RecoverPanic converts a recovered panic value into an Error.
func RecoverPanic(recovered interface{}) *Error {
	if recovered == nil {
		return nil
	}
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprintf("%v", v)
	}
	return New(ErrCodePanic, message, WithMetadata("panic_value", fmt.Sprintf("%T", recovered)))
}
