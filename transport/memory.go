package transport

import (
	"context"
	"sync"

	"github.com/vinayprograms/nodelink/errors"
)

// MemorySession is an in-process Session for tests. Frames pushed with
// Deliver are returned by Recv; frames passed to Send are recorded.
type MemorySession struct {
	endpoint string

	inbound chan []byte
	failed  chan error
	done    chan struct{}

	mu        sync.Mutex
	sent      [][]byte
	sendErr   error
	closed    bool
	sentCh    chan struct{}
	closeOnce sync.Once
}

// NewMemorySession creates an open in-memory session.
func NewMemorySession(endpoint string) *MemorySession {
	return &MemorySession{
		endpoint: endpoint,
		inbound:  make(chan []byte, 64),
		failed:   make(chan error, 1),
		done:     make(chan struct{}),
		sentCh:   make(chan struct{}, 1024),
	}
}

// Endpoint returns the endpoint name given at construction.
func (s *MemorySession) Endpoint() string { return s.endpoint }

// Deliver queues an inbound frame.
func (s *MemorySession) Deliver(data []byte) {
	s.inbound <- data
}

// FailRecv makes the next Recv (after queued frames) return err.
func (s *MemorySession) FailRecv(err error) {
	select {
	case s.failed <- err:
	default:
	}
}

// FailSends makes every subsequent Send return err.
func (s *MemorySession) FailSends(err error) {
	s.mu.Lock()
	s.sendErr = err
	s.mu.Unlock()
}

// Send records data.
func (s *MemorySession) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "send")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.sendErr != nil {
		return errors.Transport("write frame", s.sendErr)
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	s.sent = append(s.sent, frame)
	select {
	case s.sentCh <- struct{}{}:
	default:
	}
	return nil
}

// Recv returns the next delivered frame.
func (s *MemorySession) Recv(ctx context.Context) ([]byte, error) {
	select {
	case data := <-s.inbound:
		return data, nil
	default:
	}
	select {
	case data := <-s.inbound:
		return data, nil
	case err := <-s.failed:
		return nil, errors.Transport("read frame", err)
	case <-s.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "recv")
	}
}

// Close marks the session closed and unblocks Recv.
func (s *MemorySession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

// Closed reports whether Close has been called.
func (s *MemorySession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Done is closed when the session is closed.
func (s *MemorySession) Done() <-chan struct{} { return s.done }

// Sent returns a copy of every frame sent so far.
func (s *MemorySession) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

// WaitSent blocks until at least n frames have been sent or ctx ends.
func (s *MemorySession) WaitSent(ctx context.Context, n int) bool {
	for {
		s.mu.Lock()
		count := len(s.sent)
		s.mu.Unlock()
		if count >= n {
			return true
		}
		select {
		case <-s.sentCh:
		case <-ctx.Done():
			return false
		}
	}
}
