package heartbeat

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/nodelink/clock"
	"github.com/vinayprograms/nodelink/errors"
	"github.com/vinayprograms/nodelink/logging"
	"github.com/vinayprograms/nodelink/protocol"
	"github.com/vinayprograms/nodelink/transport"
)

// DefaultInterval is the spacing between probes.
const DefaultInterval = 5 * time.Second

// Config configures an Emitter.
type Config struct {
	// Interval between probes.
	// Default: 5 seconds
	Interval time.Duration

	// Clock supplies timers.
	// Default: clock.Real()
	Clock clock.Clock

	// Logger receives a debug line per probe.
	// Default: logging.Nop()
	Logger *logging.Logger

	// NewID generates probe identifiers.
	// Default: uuid.NewString
	NewID func() string

	// OnSent is called after each successful send, if set.
	OnSent func(id string)
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: DefaultInterval,
		Clock:    clock.Real(),
		Logger:   logging.Nop(),
		NewID:    uuid.NewString,
	}
}

// Emitter sends PING probes on a session.
type Emitter struct {
	interval time.Duration
	clock    clock.Clock
	log      *logging.Logger
	newID    func() string
	onSent   func(id string)
}

// NewEmitter creates an emitter. Zero fields fall back to DefaultConfig.
func NewEmitter(cfg Config) *Emitter {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.NewID == nil {
		cfg.NewID = def.NewID
	}
	return &Emitter{
		interval: cfg.Interval,
		clock:    cfg.Clock,
		log:      cfg.Logger,
		newID:    cfg.NewID,
		onSent:   cfg.OnSent,
	}
}

// Interval returns the configured probe spacing.
func (e *Emitter) Interval() time.Duration {
	return e.interval
}

// Run sends a probe immediately and then every interval until a send
// fails or ctx is cancelled. It always returns a non-nil error.
func (e *Emitter) Run(ctx context.Context, sess transport.Session) error {
	for {
		if err := e.send(ctx, sess); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "heartbeat stopped")
		case <-e.clock.After(e.interval):
		}
	}
}

func (e *Emitter) send(ctx context.Context, sess transport.Session) error {
	id := e.newID()
	data, err := protocol.Encode(protocol.NewPing(id))
	if err != nil {
		return err
	}
	if err := sess.Send(ctx, data); err != nil {
		return errors.Wrap(err, "send heartbeat")
	}
	e.log.Frame("out", protocol.ActionPing, data)
	if e.onSent != nil {
		e.onSent(id)
	}
	return nil
}
