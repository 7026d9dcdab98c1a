package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/nodelink/bus"
	"github.com/vinayprograms/nodelink/errors"
	"github.com/vinayprograms/nodelink/identity"
	"github.com/vinayprograms/nodelink/logging"
	"github.com/vinayprograms/nodelink/metrics"
	"github.com/vinayprograms/nodelink/transport"
)

// lockedBuffer serializes writes from the per-component loggers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeDialer hands out memory sessions and records them.
type fakeDialer struct {
	mu        sync.Mutex
	sessions  []*transport.MemorySession
	endpoints []string
	failFirst int
	dials     int
	script    func(*transport.MemorySession)
	dialed    chan struct{}
}

func newFakeDialer(script func(*transport.MemorySession)) *fakeDialer {
	return &fakeDialer{script: script, dialed: make(chan struct{}, 100)}
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (transport.Session, error) {
	d.mu.Lock()
	defer func() {
		d.mu.Unlock()
		d.dialed <- struct{}{}
	}()

	d.dials++
	d.endpoints = append(d.endpoints, endpoint)
	if d.dials <= d.failFirst {
		return nil, errors.Transport("dial "+endpoint, io.ErrUnexpectedEOF)
	}

	sess := transport.NewMemorySession(endpoint)
	d.sessions = append(d.sessions, sess)
	if d.script != nil {
		d.script(sess)
	}
	return sess, nil
}

func (d *fakeDialer) waitDials(t *testing.T, n int) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-d.dialed:
		case <-timeout:
			t.Fatalf("timed out after %d of %d dials", i, n)
		}
	}
}

func (d *fakeDialer) snapshot() ([]*transport.MemorySession, []string, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*transport.MemorySession(nil), d.sessions...), append([]string(nil), d.endpoints...), d.dials
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = time.Hour
	cfg.SettleDelay = 0
	cfg.ReconnectMin = time.Millisecond
	cfg.ReconnectMax = 3 * time.Millisecond
	return cfg
}

func testIdentity(t *testing.T) identity.Identity {
	t.Helper()
	id, err := identity.New("user-1")
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func runSupervisor(t *testing.T, sup *Supervisor) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	return func() {
		stop()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() = %v, want nil", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return after cancel")
		}
	}
}

// --- Unit Tests ---

func TestState_String(t *testing.T) {
	tests := map[State]string{
		SelectingEndpoint: "SelectingEndpoint",
		Connecting:        "Connecting",
		Active:            "Active",
		TearingDown:       "TearingDown",
		State(42):         "Unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"no endpoints", func(c *Config) { c.Endpoints = nil }, true},
		{"blank endpoint", func(c *Config) { c.Endpoints = []string{""} }, true},
		{"zero interval", func(c *Config) { c.HeartbeatInterval = 0 }, true},
		{"negative settle", func(c *Config) { c.SettleDelay = -1 }, true},
		{"inverted window", func(c *Config) { c.ReconnectMin, c.ReconnectMax = time.Second, time.Millisecond }, true},
		{"fixed delay", func(c *Config) { c.ReconnectMin, c.ReconnectMax = time.Second, time.Second }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrCodeConfig) {
				t.Errorf("code = %v, want CONFIG", errors.Code(err))
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if len(cfg.Endpoints) != 2 ||
		cfg.Endpoints[0] != "wss://proxy.wynd.network:4444/" ||
		cfg.Endpoints[1] != "wss://proxy.wynd.network:4650/" {
		t.Errorf("Endpoints = %v", cfg.Endpoints)
	}
	if cfg.ReconnectMin != 100*time.Millisecond || cfg.ReconnectMax != time.Second {
		t.Errorf("reconnect window = [%v, %v)", cfg.ReconnectMin, cfg.ReconnectMax)
	}
	if cfg.HeartbeatInterval != 5*time.Second || cfg.SettleDelay != time.Second {
		t.Errorf("interval=%v settle=%v", cfg.HeartbeatInterval, cfg.SettleDelay)
	}

	// Mutating the copy must not touch the package default.
	cfg.Endpoints[0] = "changed"
	if DefaultEndpoints[0] == "changed" {
		t.Error("DefaultConfig should copy DefaultEndpoints")
	}
}

func TestDrawDelay_Bounds(t *testing.T) {
	sup, err := New(DefaultConfig(), newFakeDialer(nil), testIdentity(t), "ua",
		WithRand(rand.New(rand.NewSource(1))))
	if err != nil {
		t.Fatal(err)
	}

	var lo, hi bool
	for i := 0; i < 2000; i++ {
		d := sup.drawDelay()
		if d < 100*time.Millisecond || d >= time.Second {
			t.Fatalf("delay %v outside [100ms, 1s)", d)
		}
		lo = lo || d < 300*time.Millisecond
		hi = hi || d > 800*time.Millisecond
	}
	if !lo || !hi {
		t.Error("delays do not cover the window")
	}
}

func TestPickEndpoint_UsesEveryEndpoint(t *testing.T) {
	sup, _ := New(DefaultConfig(), newFakeDialer(nil), testIdentity(t), "ua",
		WithRand(rand.New(rand.NewSource(7))))

	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		counts[sup.pickEndpoint()]++
	}
	if len(counts) != 2 {
		t.Fatalf("picked %v", counts)
	}
	for ep, n := range counts {
		if n < 350 {
			t.Errorf("%s picked %d/1000 times", ep, n)
		}
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(Config{}, newFakeDialer(nil), testIdentity(t), "ua"); err == nil {
		t.Error("expected config error")
	}
	if _, err := New(DefaultConfig(), nil, testIdentity(t), "ua"); err == nil {
		t.Error("expected error without dialer")
	}
}

// --- Integration Tests ---

func TestRun_ReconnectsAfterEveryFailure(t *testing.T) {
	// Each session answers one handshake, then the server drops it.
	dialer := newFakeDialer(func(s *transport.MemorySession) {
		s.Deliver([]byte(`{"id":"auth-1","action":"AUTH"}`))
		s.FailRecv(io.EOF)
	})

	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()
	sub, _ := b.Subscribe(bus.StateSubject("test"))

	m := metrics.New()
	sup, err := New(fastConfig(), dialer, testIdentity(t), "ua-test",
		WithBus(b, "test"),
		WithMetrics(m),
	)
	if err != nil {
		t.Fatal(err)
	}

	stop := runSupervisor(t, sup)
	dialer.waitDials(t, 4)
	stop()

	sessions, endpoints, _ := dialer.snapshot()
	if len(sessions) < 4 {
		t.Fatalf("sessions = %d, want >= 4", len(sessions))
	}
	for i, s := range sessions {
		if !s.Closed() {
			t.Errorf("session %d was not closed", i)
		}
	}
	for _, s := range sessions[:3] {
		var sawAuth bool
		for _, frame := range s.Sent() {
			var env map[string]interface{}
			json.Unmarshal(frame, &env)
			if env["origin_action"] == "AUTH" && env["id"] == "auth-1" {
				sawAuth = true
			}
		}
		if !sawAuth {
			t.Errorf("session %s: no handshake response in %q", s.Endpoint(), s.Sent())
		}
	}
	for _, ep := range endpoints {
		if ep != DefaultEndpoints[0] && ep != DefaultEndpoints[1] {
			t.Errorf("dialed unexpected endpoint %q", ep)
		}
	}

	// State events describe the cycle in order.
	var states []string
	for len(sub.Messages()) > 0 {
		msg := <-sub.Messages()
		ev, err := bus.DecodeStateEvent(msg.Data)
		if err != nil {
			t.Fatal(err)
		}
		states = append(states, ev.State)
		if ev.State == "SelectingEndpoint" {
			if ev.DelayMS < 1 || ev.DelayMS >= 3 {
				t.Errorf("delay_ms = %d, want in [1, 3)", ev.DelayMS)
			}
		}
	}
	joined := strings.Join(states, ",")
	cycle := "SelectingEndpoint,Connecting,Active,TearingDown"
	if strings.Count(joined, cycle) < 3 {
		t.Errorf("expected at least 3 full cycles, got %s", joined)
	}
	if sup.Attempts() < 4 {
		t.Errorf("Attempts() = %d, want >= 4", sup.Attempts())
	}
}

func TestRun_DialFailuresAreRetried(t *testing.T) {
	dialer := newFakeDialer(func(s *transport.MemorySession) {
		s.FailRecv(io.EOF)
	})
	dialer.failFirst = 2

	out := &lockedBuffer{}
	log := logging.New()
	log.SetOutput(out)
	log.SetFormat(logging.FormatJSON)

	sup, _ := New(fastConfig(), dialer, testIdentity(t), "ua", WithLogger(log))
	stop := runSupervisor(t, sup)
	dialer.waitDials(t, 3)
	stop()

	sessions, _, dials := dialer.snapshot()
	if dials < 3 {
		t.Errorf("dials = %d, want >= 3", dials)
	}
	if len(sessions) == 0 {
		t.Error("expected a session after the failed dials")
	}

	failures := 0
	for _, raw := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var line map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			t.Fatalf("log line is not JSON: %q", raw)
		}
		if line["message"] != "connect_failed" {
			continue
		}
		failures++
		if line["code"] != "TRANSPORT" || line["retryable"] != true {
			t.Errorf("connect_failed = %v, want TRANSPORT retryable", line)
		}
	}
	if failures != 2 {
		t.Errorf("connect_failed lines = %d, want 2", failures)
	}
}

func TestRun_DecodeErrorTriggersReconnect(t *testing.T) {
	dialer := newFakeDialer(func(s *transport.MemorySession) {
		s.Deliver([]byte(`{"action":"AUTH"}`))
	})

	sup, _ := New(fastConfig(), dialer, testIdentity(t), "ua")
	stop := runSupervisor(t, sup)
	dialer.waitDials(t, 2)
	stop()

	sessions, _, _ := dialer.snapshot()
	if !sessions[0].Closed() {
		t.Error("session with a malformed message should be torn down")
	}
}

func TestRun_HeartbeatFailureTearsDownDispatcher(t *testing.T) {
	// Sends fail but Recv would block forever; the failed heartbeat has
	// to cancel the dispatcher for the loop to continue.
	dialer := newFakeDialer(func(s *transport.MemorySession) {
		s.FailSends(io.ErrClosedPipe)
	})

	sup, _ := New(fastConfig(), dialer, testIdentity(t), "ua")
	stop := runSupervisor(t, sup)
	dialer.waitDials(t, 3)
	stop()
}

func TestRun_CancelWhileActive(t *testing.T) {
	dialer := newFakeDialer(nil)
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()
	sub, _ := b.Subscribe(bus.StateSubject(""))

	sup, _ := New(fastConfig(), dialer, testIdentity(t), "ua", WithBus(b, ""))
	stop := runSupervisor(t, sup)

	dialer.waitDials(t, 1)
	deadline := time.After(2 * time.Second)
	for sup.State() != Active {
		select {
		case <-deadline:
			t.Fatalf("state = %v, want Active", sup.State())
		case <-time.After(time.Millisecond):
		}
	}
	stop()

	sessions, _, dials := dialer.snapshot()
	if dials != 1 {
		t.Errorf("dials = %d, want 1", dials)
	}
	if !sessions[0].Closed() {
		t.Error("session should be closed on shutdown")
	}

	var last *bus.StateEvent
	for len(sub.Messages()) > 0 {
		last, _ = bus.DecodeStateEvent((<-sub.Messages()).Data)
	}
	if last == nil || last.State != "TearingDown" {
		t.Errorf("last event = %+v, want TearingDown", last)
	}
}

func TestRun_CancelDuringDelay(t *testing.T) {
	cfg := fastConfig()
	cfg.ReconnectMin = time.Hour
	cfg.ReconnectMax = 2 * time.Hour
	dialer := newFakeDialer(nil)

	sup, _ := New(cfg, dialer, testIdentity(t), "ua")
	stop := runSupervisor(t, sup)
	time.Sleep(10 * time.Millisecond)
	stop()

	if _, _, dials := dialer.snapshot(); dials != 0 {
		t.Errorf("dials = %d, want 0", dials)
	}
}

func TestGuard_RecoversPanic(t *testing.T) {
	err := guard(func() error { panic("boom") })()
	if !errors.Is(err, errors.ErrCodePanic) {
		t.Errorf("guard() = %v, want PANIC", err)
	}
}
