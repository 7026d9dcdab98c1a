// Package supervisor owns the connect, run, tear down and retry cycle.
//
// The supervisor is an explicit state machine driven by a loop:
//
//	SelectingEndpoint -> Connecting -> Active -> TearingDown -> SelectingEndpoint
//	                         |                        ^
//	                         +------ dial failed -----+
//
// Every iteration waits a uniform random delay, picks an endpoint at
// random, dials it and runs the heartbeat emitter and the dispatcher side
// by side. The first task to fail cancels the other, the transport is
// closed and the loop starts over. Every failure is handled the same way
// and there is no retry limit. Run only returns when its context is
// cancelled.
package supervisor

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vinayprograms/nodelink/bus"
	"github.com/vinayprograms/nodelink/clock"
	"github.com/vinayprograms/nodelink/dispatch"
	"github.com/vinayprograms/nodelink/errors"
	"github.com/vinayprograms/nodelink/heartbeat"
	"github.com/vinayprograms/nodelink/identity"
	"github.com/vinayprograms/nodelink/logging"
	"github.com/vinayprograms/nodelink/metrics"
	"github.com/vinayprograms/nodelink/telemetry"
	"github.com/vinayprograms/nodelink/transport"
)

// Option configures optional collaborators.
type Option func(*Supervisor)

// WithClock sets the clock used for delays and timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

// WithRand sets the random source for delays and endpoint choice.
func WithRand(r *rand.Rand) Option {
	return func(s *Supervisor) { s.rng = r }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Supervisor) { s.log = l }
}

// WithBus publishes state transitions on b under the given subject prefix.
func WithBus(b bus.MessageBus, prefix string) Option {
	return func(s *Supervisor) {
		s.bus = b
		s.busPrefix = prefix
	}
}

// WithMetrics records session metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Supervisor) { s.metrics = c }
}

// WithTracer records one span per connection attempt.
func WithTracer(t *telemetry.Tracer) Option {
	return func(s *Supervisor) { s.tracer = t }
}

// Supervisor runs sessions until cancelled.
type Supervisor struct {
	config    Config
	dialer    transport.Dialer
	identity  identity.Identity
	userAgent string

	clock     clock.Clock
	rng       *rand.Rand
	log       *logging.Logger
	bus       bus.MessageBus
	busPrefix string
	metrics   *metrics.Collector
	tracer    *telemetry.Tracer

	emitter    *heartbeat.Emitter
	dispatcher *dispatch.Dispatcher

	state    atomic.Int32
	attempts atomic.Int64
}

// New creates a Supervisor.
func New(cfg Config, dialer transport.Dialer, id identity.Identity, userAgent string, opts ...Option) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dialer == nil {
		return nil, errors.Config("no dialer")
	}

	s := &Supervisor{
		config:    cfg,
		dialer:    dialer,
		identity:  id,
		userAgent: userAgent,
		clock:     clock.Real(),
		log:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.tracer == nil {
		s.tracer = telemetry.GetTracer()
	}

	s.emitter = heartbeat.NewEmitter(heartbeat.Config{
		Interval: cfg.HeartbeatInterval,
		Clock:    s.clock,
		Logger:   s.log.WithComponent("heartbeat"),
		OnSent:   func(string) { s.metrics.HeartbeatSent() },
	})
	s.dispatcher = dispatch.New(dispatch.Config{
		Identity:   id,
		UserAgent:  userAgent,
		Clock:      s.clock,
		Logger:     s.log.WithComponent("dispatch"),
		OnReceived: s.metrics.MessageReceived,
		OnReplied:  s.metrics.ReplySent,
	})
	s.log = s.log.WithComponent("supervisor")

	return s, nil
}

// State returns the current state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Attempts returns the number of connection attempts started so far.
func (s *Supervisor) Attempts() int {
	return int(s.attempts.Load())
}

// Run loops through sessions until ctx is cancelled, then returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		attempt := int(s.attempts.Add(1))

		delay := s.drawDelay()
		endpoint := s.pickEndpoint()
		s.enter(SelectingEndpoint, &bus.StateEvent{
			Endpoint: endpoint,
			Attempt:  attempt,
			DelayMS:  delay.Milliseconds(),
		})
		if !s.sleep(ctx, delay) {
			return nil
		}

		err := s.runSession(ctx, endpoint, attempt)

		ev := &bus.StateEvent{Endpoint: endpoint, Attempt: attempt}
		if err != nil {
			ev.Error = err.Error()
		}
		s.enter(TearingDown, ev)

		if ctx.Err() != nil {
			s.log.Info("supervisor_stopped", map[string]interface{}{"attempts": attempt})
			return nil
		}
	}
}

// runSession dials endpoint and runs the session's tasks until one fails.
// The returned error is the one that ended the session.
func (s *Supervisor) runSession(ctx context.Context, endpoint string, attempt int) (err error) {
	ctx, span := s.tracer.StartSessionSpan(ctx, endpoint, attempt)
	var lifetime time.Duration
	defer func() {
		s.tracer.EndSessionSpan(span, telemetry.SessionSpanOptions{
			Duration: lifetime,
			Code:     string(errors.Code(err)),
		}, err)
	}()

	s.enter(Connecting, &bus.StateEvent{Endpoint: endpoint, Attempt: attempt})

	sess, err := s.dialer.Dial(ctx, endpoint)
	if err != nil {
		s.metrics.SessionAttempt(endpoint, metrics.OutcomeFailed)
		if ctx.Err() == nil {
			s.log.Error("connect_failed", map[string]interface{}{
				"endpoint":  endpoint,
				"attempt":   attempt,
				"code":      string(errors.Code(err)),
				"retryable": errors.IsRetryable(err),
				"error":     err.Error(),
			})
		}
		return err
	}
	defer sess.Close()
	s.metrics.SessionAttempt(endpoint, metrics.OutcomeConnected)

	if !s.sleep(ctx, s.config.SettleDelay) {
		return errors.Wrap(ctx.Err(), "settle")
	}

	s.enter(Active, &bus.StateEvent{Endpoint: endpoint, Attempt: attempt})
	s.log.SessionOpened(endpoint, attempt)
	telemetry.SessionEvent(ctx, "active")
	s.metrics.SessionStarted()
	start := s.clock.Now()

	g, gctx := errgroup.WithContext(ctx)
	// Closing the transport unblocks a Recv that does not watch ctx.
	stop := context.AfterFunc(gctx, func() { sess.Close() })
	defer stop()

	g.Go(guard(func() error { return s.emitter.Run(gctx, sess) }))
	g.Go(guard(func() error { return s.dispatcher.Run(gctx, sess) }))
	err = g.Wait()

	lifetime = s.clock.Now().Sub(start)
	code := string(errors.Code(err))
	s.metrics.SessionEnded(code, lifetime)
	if ctx.Err() != nil {
		s.log.Info("session_stopped", map[string]interface{}{
			"endpoint": endpoint,
			"duration": lifetime.String(),
		})
	} else {
		s.log.SessionClosed(endpoint, lifetime, code, errors.IsRetryable(err), err)
	}
	return err
}

// guard turns a panic in a session task into an error so it ends the
// session instead of the process.
func guard(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.RecoverPanic(r)
			}
		}()
		return fn()
	}
}

// enter records a transition, logs it and publishes it.
func (s *Supervisor) enter(state State, ev *bus.StateEvent) {
	s.state.Store(int32(state))
	s.log.StateChange(state.String(), ev.Endpoint, ev.Attempt)

	if s.bus == nil {
		return
	}
	ev.State = state.String()
	ev.At = s.clock.Now()
	if err := bus.PublishState(s.bus, s.busPrefix, ev); err != nil {
		s.log.Debug("publish_state_failed", map[string]interface{}{"error": err.Error()})
	}
}

// sleep waits d on the supervisor's clock. It reports false if ctx ended
// first.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return true
	}
}

// drawDelay returns a uniform random duration in [ReconnectMin, ReconnectMax).
func (s *Supervisor) drawDelay() time.Duration {
	span := s.config.ReconnectMax - s.config.ReconnectMin
	if span <= 0 {
		return s.config.ReconnectMin
	}
	return s.config.ReconnectMin + time.Duration(s.rng.Int63n(int64(span)))
}

// pickEndpoint returns one configured endpoint uniformly at random.
func (s *Supervisor) pickEndpoint() string {
	return s.config.Endpoints[s.rng.Intn(len(s.config.Endpoints))]
}
