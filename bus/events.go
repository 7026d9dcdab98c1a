package bus

import (
	"encoding/json"
	"time"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "nodelink"

// StateSubject returns the subject state events are published on.
func StateSubject(prefix string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + ".session.state"
}

// StateEvent describes one supervisor state transition.
type StateEvent struct {
	// State is the state being entered.
	State string `json:"state"`

	// Endpoint is the endpoint chosen for the current attempt, if any.
	Endpoint string `json:"endpoint,omitempty"`

	// Attempt counts connection attempts since start, from 1.
	Attempt int `json:"attempt"`

	// DelayMS is the pre-connect delay drawn on entering endpoint selection.
	DelayMS int64 `json:"delay_ms,omitempty"`

	// Error is the failure that caused a teardown.
	Error string `json:"error,omitempty"`

	// At is when the transition happened.
	At time.Time `json:"at"`
}

// Marshal serializes the event to JSON.
func (e *StateEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeStateEvent parses a published event.
func DecodeStateEvent(data []byte) (*StateEvent, error) {
	var e StateEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// PublishState serializes and publishes e on the state subject.
func PublishState(b MessageBus, prefix string, e *StateEvent) error {
	data, err := e.Marshal()
	if err != nil {
		return err
	}
	return b.Publish(StateSubject(prefix), data)
}
