// Package heartbeat keeps a session visibly alive by sending periodic
// PING probes.
//
// # Overview
//
// An Emitter runs for the lifetime of one session. It sends a probe as
// soon as it starts and then one every Interval:
//
//	em := heartbeat.NewEmitter(heartbeat.Config{
//	    Interval: 5 * time.Second,
//	    Logger:   log,
//	})
//	err := em.Run(ctx, sess) // returns on send failure or cancellation
//
// Each probe carries a fresh random identifier:
//
//	{"id":"<uuid-v4>","version":"1.0.0","action":"PING","data":{}}
//
// # Acknowledgements
//
// The emitter does not wait for or track acknowledgements. A silent server
// is only detected when the transport itself fails.
//
// # Timing
//
// Timers come from a clock.Clock so tests can advance time by hand. The
// emitter never holds a timer across a failed send; the first send error
// ends Run.
package heartbeat
