// Package bus publishes session lifecycle events to interested observers.
//
// # Overview
//
// The supervisor publishes one StateEvent per state transition. Anything
// that wants to watch the client (a local test, a dashboard listening on
// NATS) subscribes to the state subject:
//
//	b := bus.NewMemoryBus(bus.DefaultConfig())
//	sub, _ := b.Subscribe(bus.StateSubject("nodelink"))
//	for msg := range sub.Messages() {
//	    ev, _ := bus.DecodeStateEvent(msg.Data)
//	    fmt.Println(ev.State, ev.Endpoint)
//	}
//
// # Available Implementations
//
//   - MemoryBus: in-process delivery, the default
//   - NATSBus: publishes through a NATS server when events.nats_url is set
//
// # Delivery
//
// Publishing never blocks the publisher. When a subscriber's buffer is
// full the message is dropped for that subscriber only.
package bus
