// Package clock abstracts the timers used by the heartbeat emitter and the
// supervisor so tests can drive them deterministically.
//
// Production code uses Real(). Tests use Fake() and move time forward with
// Advance, after WaitForTimers confirms the goroutine under test has
// registered its timer.
package clock

import "time"

// Clock is the subset of the time package nodelink depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed. If
	// d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
