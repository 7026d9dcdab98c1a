package transport

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/vinayprograms/nodelink/errors"
)

func TestMemorySession_DeliverAndRecv(t *testing.T) {
	s := NewMemorySession("mem://a")
	s.Deliver([]byte("one"))
	s.Deliver([]byte("two"))

	ctx := context.Background()
	for _, want := range []string{"one", "two"} {
		got, err := s.Recv(ctx)
		if err != nil || string(got) != want {
			t.Errorf("Recv() = %q, %v; want %q", got, err, want)
		}
	}
}

func TestMemorySession_QueuedFramesBeforeFailure(t *testing.T) {
	s := NewMemorySession("mem://a")
	s.Deliver([]byte("one"))
	s.FailRecv(io.EOF)

	if got, err := s.Recv(context.Background()); err != nil || string(got) != "one" {
		t.Fatalf("Recv() = %q, %v", got, err)
	}
	if _, err := s.Recv(context.Background()); !errors.Is(err, errors.ErrCodeTransport) {
		t.Errorf("err = %v, want TRANSPORT", err)
	}
}

func TestMemorySession_SendRecording(t *testing.T) {
	s := NewMemorySession("mem://a")
	ctx := context.Background()
	s.Send(ctx, []byte("a"))
	s.Send(ctx, []byte("b"))

	sent := s.Sent()
	if len(sent) != 2 || string(sent[0]) != "a" || string(sent[1]) != "b" {
		t.Errorf("Sent() = %q", sent)
	}

	wctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if !s.WaitSent(wctx, 2) {
		t.Error("WaitSent should be satisfied")
	}
	if s.WaitSent(wctx, 3) {
		t.Error("WaitSent(3) should time out")
	}
}

func TestMemorySession_FailSends(t *testing.T) {
	s := NewMemorySession("mem://a")
	s.FailSends(io.ErrClosedPipe)
	if err := s.Send(context.Background(), []byte("x")); !errors.Is(err, errors.ErrCodeTransport) {
		t.Errorf("err = %v, want TRANSPORT", err)
	}
}

func TestMemorySession_CloseUnblocksRecv(t *testing.T) {
	s := NewMemorySession("mem://a")
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Recv(context.Background())
		errCh <- err
	}()

	s.Close()
	select {
	case err := <-errCh:
		if err != ErrClosed {
			t.Errorf("err = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock")
	}
	if !s.Closed() {
		t.Error("Closed() should be true")
	}
}
