package errors

// ErrorCategory classifies errors by their retry semantics.
type ErrorCategory string

const (
	// CategoryTransient indicates failures where a new session may succeed.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryInternal indicates unexpected errors or recovered panics.
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

// ErrorCode identifies a specific failure.
type ErrorCode string

const (
	ErrCodeConfig    ErrorCode = "CONFIG"    // Startup configuration missing or invalid
	ErrCodeTransport ErrorCode = "TRANSPORT" // Connect, TLS, read, write or close failure
	ErrCodeDecode    ErrorCode = "DECODE"    // Malformed inbound payload
	ErrCodeCanceled  ErrorCode = "CANCELED"  // Context cancelled
	ErrCodeInternal  ErrorCode = "INTERNAL"  // Unexpected internal error
	ErrCodePanic     ErrorCode = "PANIC"     // Recovered from panic
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTransport, ErrCodeDecode:
		return CategoryTransient
	case ErrCodeConfig, ErrCodeCanceled:
		return CategoryPermanent
	default:
		return CategoryInternal
	}
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeConfig:    "invalid configuration",
	ErrCodeTransport: "transport failure",
	ErrCodeDecode:    "malformed message",
	ErrCodeCanceled:  "operation canceled",
	ErrCodeInternal:  "internal error",
	ErrCodePanic:     "recovered from panic",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
