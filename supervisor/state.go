package supervisor

// State is the supervisor's position in the connect loop.
type State int32

const (
	// SelectingEndpoint waits out the reconnect delay and picks an endpoint.
	SelectingEndpoint State = iota

	// Connecting dials the endpoint and waits for the settle delay.
	Connecting

	// Active runs the heartbeat emitter and the dispatcher.
	Active

	// TearingDown cancels the session's tasks and closes the transport.
	TearingDown
)

func (s State) String() string {
	switch s {
	case SelectingEndpoint:
		return "SelectingEndpoint"
	case Connecting:
		return "Connecting"
	case Active:
		return "Active"
	case TearingDown:
		return "TearingDown"
	default:
		return "Unknown"
	}
}
