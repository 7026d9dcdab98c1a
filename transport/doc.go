// Package transport provides the bidirectional session the client talks
// to the remote service over.
//
// # Overview
//
// A Dialer opens one Session per connection attempt. A Session carries
// whole text frames in both directions:
//
//	d, _ := transport.NewWebSocketDialer(transport.DefaultDialerConfig())
//	sess, err := d.Dial(ctx, "wss://proxy.wynd.network:4444/")
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	go heartbeat(ctx, sess)   // Send only
//	for {
//	    frame, err := sess.Recv(ctx)
//	    ...
//	}
//
// # Thread Safety
//
// Send is safe for concurrent use; each call writes exactly one frame
// under the session's write lock, so frames from the heartbeat emitter
// and the dispatcher never interleave. Recv must have a single consumer.
// Close is idempotent and unblocks pending Recv and Send calls.
//
// # TLS
//
// Certificate and hostname verification are controlled by the explicit
// DialerConfig.InsecureSkipVerify flag. The default client configuration
// sets it, matching the remote service's deployment.
package transport
