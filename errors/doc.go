// Package errors provides the structured error taxonomy used across
// nodelink. Every failure that crosses a package boundary carries a code
// and a category so the supervisor can log it uniformly.
//
// # Error Categories
//
//   - Transient: the session failed but a fresh connection may succeed
//     (transport and decode failures).
//   - Permanent: retrying cannot help (missing account identifier).
//   - Internal: unexpected failures and recovered panics.
//
// # Error Codes
//
//   - CONFIG: startup configuration is missing or invalid
//   - TRANSPORT: dial, TLS, read, write or close failure
//   - DECODE: an inbound frame could not be decoded
//   - CANCELED: the surrounding context was cancelled
//   - INTERNAL: anything else
//
// # Usage
//
//	err := errors.New(errors.ErrCodeConfig, "user id is empty")
//
//	if errors.Is(err, errors.ErrCodeDecode) {
//	    // ...
//	}
//
// The supervisor never branches on the code: decode and transport errors
// both end the session and trigger a reconnect. Codes exist for logs,
// metrics labels and tests.
package errors
