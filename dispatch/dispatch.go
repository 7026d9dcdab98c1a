// Package dispatch reads server messages from a session and writes the
// replies the protocol requires.
//
// AUTH messages are answered with the client's identity, PONG messages
// are acknowledged, and anything else is logged and dropped. Replies are
// written in the order the messages arrived. A malformed message ends the
// session the same way a transport failure does.
package dispatch

import (
	"context"

	"github.com/vinayprograms/nodelink/clock"
	"github.com/vinayprograms/nodelink/errors"
	"github.com/vinayprograms/nodelink/identity"
	"github.com/vinayprograms/nodelink/logging"
	"github.com/vinayprograms/nodelink/protocol"
	"github.com/vinayprograms/nodelink/transport"
)

// Config configures a Dispatcher.
type Config struct {
	// Identity is reported in handshake responses.
	Identity identity.Identity

	// UserAgent is reported in handshake responses.
	UserAgent string

	// Clock supplies handshake timestamps.
	Clock clock.Clock

	Logger *logging.Logger

	// OnReceived is called with the action tag of every decoded message.
	OnReceived func(action string)

	// OnReplied is called with the origin action of every reply sent.
	OnReplied func(action string)
}

// Dispatcher answers server messages.
type Dispatcher struct {
	identity   identity.Identity
	userAgent  string
	clock      clock.Clock
	log        *logging.Logger
	onReceived func(string)
	onReplied  func(string)
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return &Dispatcher{
		identity:   cfg.Identity,
		userAgent:  cfg.UserAgent,
		clock:      cfg.Clock,
		log:        cfg.Logger,
		onReceived: cfg.OnReceived,
		onReplied:  cfg.OnReplied,
	}
}

// Handle decodes one frame and returns the reply to send, or nil when the
// message needs none.
func (d *Dispatcher) Handle(data []byte) ([]byte, error) {
	msg, err := protocol.Decode(data)
	if err != nil {
		return nil, err
	}
	return d.Reply(msg)
}

// Reply builds the response to an already decoded message.
func (d *Dispatcher) Reply(msg protocol.Inbound) ([]byte, error) {
	switch m := msg.(type) {
	case *protocol.HandshakeRequest:
		return protocol.Encode(protocol.NewHandshakeResponse(
			m,
			d.identity.DeviceID(),
			d.identity.UserID(),
			d.userAgent,
			d.clock.Now().Unix(),
		))
	case *protocol.HeartbeatAck:
		return protocol.Encode(protocol.NewAckResponse(m))
	case *protocol.Unknown:
		d.log.Debug("dropped", map[string]interface{}{
			"action": m.Tag,
			"id":     m.ID,
		})
		return nil, nil
	default:
		return nil, errors.Newf(errors.ErrCodeInternal, "unhandled message %T", msg)
	}
}

// Run receives and answers messages until the session fails, a message
// cannot be decoded, or ctx is cancelled. It always returns a non-nil
// error.
func (d *Dispatcher) Run(ctx context.Context, sess transport.Session) error {
	for {
		data, err := sess.Recv(ctx)
		if err != nil {
			return errors.Wrap(err, "receive")
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			d.log.Frame("in", "", data)
			return err
		}
		d.log.Frame("in", msg.Action(), data)
		if d.onReceived != nil {
			d.onReceived(msg.Action())
		}

		reply, err := d.Reply(msg)
		if err != nil {
			return err
		}
		if reply == nil {
			continue
		}

		if err := sess.Send(ctx, reply); err != nil {
			return errors.Wrap(err, "send reply")
		}
		d.log.Frame("out", msg.Action(), reply)
		if d.onReplied != nil {
			d.onReplied(msg.Action())
		}
	}
}
