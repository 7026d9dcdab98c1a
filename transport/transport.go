package transport

import (
	"context"

	"github.com/vinayprograms/nodelink/errors"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New(errors.ErrCodeTransport, "session closed")

// Session is one open connection to the remote service.
type Session interface {
	// Send writes one text frame. Safe for concurrent callers.
	Send(ctx context.Context, data []byte) error

	// Recv blocks until the next frame arrives, the session fails, or
	// ctx is cancelled.
	Recv(ctx context.Context) ([]byte, error)

	// Close releases the connection. Safe to call more than once.
	Close() error

	// Endpoint returns the address this session was opened to.
	Endpoint() string
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Session, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, endpoint string) (Session, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, endpoint string) (Session, error) {
	return f(ctx, endpoint)
}
