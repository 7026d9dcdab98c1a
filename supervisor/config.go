package supervisor

import (
	"time"

	"github.com/vinayprograms/nodelink/errors"
	"github.com/vinayprograms/nodelink/heartbeat"
)

// DefaultEndpoints are the relay addresses the client chooses between.
var DefaultEndpoints = []string{
	"wss://proxy.wynd.network:4444/",
	"wss://proxy.wynd.network:4650/",
}

// Config holds supervisor timing and endpoints.
type Config struct {
	// Endpoints to choose from uniformly at random on every attempt.
	Endpoints []string

	// HeartbeatInterval between PING probes.
	// Default: 5 seconds
	HeartbeatInterval time.Duration

	// SettleDelay is the pause between a successful dial and starting
	// the session's tasks.
	// Default: 1 second
	SettleDelay time.Duration

	// ReconnectMin and ReconnectMax bound the uniform random delay taken
	// before every attempt, including the first.
	// Default: [100ms, 1s)
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// DefaultConfig returns the configuration the client ships with.
func DefaultConfig() Config {
	endpoints := make([]string, len(DefaultEndpoints))
	copy(endpoints, DefaultEndpoints)
	return Config{
		Endpoints:         endpoints,
		HeartbeatInterval: heartbeat.DefaultInterval,
		SettleDelay:       time.Second,
		ReconnectMin:      100 * time.Millisecond,
		ReconnectMax:      time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return errors.Config("no endpoints configured")
	}
	for _, ep := range c.Endpoints {
		if ep == "" {
			return errors.Config("empty endpoint")
		}
	}
	if c.HeartbeatInterval <= 0 {
		return errors.Config("heartbeat interval must be positive")
	}
	if c.SettleDelay < 0 {
		return errors.Config("settle delay must not be negative")
	}
	if c.ReconnectMin < 0 || c.ReconnectMax < c.ReconnectMin {
		return errors.Newf(errors.ErrCodeConfig,
			"invalid reconnect window [%s, %s)", c.ReconnectMin, c.ReconnectMax)
	}
	return nil
}
