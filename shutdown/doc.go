// Package shutdown runs the client's cleanup steps in ordered phases.
//
// When the process is asked to stop, the supervisor is cancelled first,
// then buffered telemetry and events are flushed, and finally listeners
// are released:
//
//	coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
//	coord.Register("supervisor", shutdown.PhaseStop, waitForSupervisor)
//	coord.Register("telemetry", shutdown.PhaseFlush, provider.Shutdown)
//	coord.Register("bus", shutdown.PhaseFlush, closeBus)
//	coord.Register("metrics", shutdown.PhaseRelease, stopMetrics)
//
//	res := coord.ShutdownWithTimeout(5 * time.Second)
//	if res.Failed() {
//	    log.Warn("shutdown incomplete", ...)
//	}
//
// Lower phases run first. Handlers in the same phase run concurrently,
// and every handler shares the one deadline.
package shutdown
