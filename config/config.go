// Package config loads the client's TOML configuration.
//
// Every field has a default, so an empty or absent file yields a working
// client. Durations are written as Go duration strings ("5s", "250ms").
//
//	endpoints = ["wss://proxy.wynd.network:4444/"]
//	user_id_file = "/etc/nodelink/userid.txt"
//
//	[timing]
//	heartbeat_interval = "5s"
//	reconnect_min = "100ms"
//	reconnect_max = "1s"
//
//	[log]
//	level = "debug"
//	format = "json"
package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/nodelink/errors"
	"github.com/vinayprograms/nodelink/logging"
)

// Duration is a time.Duration that decodes from a TOML string.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete client configuration.
type Config struct {
	Endpoints          []string `toml:"endpoints"`
	Origin             string   `toml:"origin"`
	UserAgent          string   `toml:"user_agent"`
	InsecureSkipVerify bool     `toml:"insecure_skip_verify"`
	ProxyURL           string   `toml:"proxy_url"`
	UserID             string   `toml:"user_id"`
	UserIDFile         string   `toml:"user_id_file"`

	Timing    TimingConfig    `toml:"timing"`
	Log       LogConfig       `toml:"log"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Events    EventsConfig    `toml:"events"`
}

// TimingConfig holds session timing.
type TimingConfig struct {
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
	SettleDelay       Duration `toml:"settle_delay"`
	ReconnectMin      Duration `toml:"reconnect_min"`
	ReconnectMax      Duration `toml:"reconnect_max"`
	HandshakeTimeout  Duration `toml:"handshake_timeout"`
	WriteTimeout      Duration `toml:"write_timeout"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `toml:"endpoint"`
	Protocol    string `toml:"protocol"`
	Insecure    bool   `toml:"insecure"`
	ServiceName string `toml:"service_name"`
}

// EventsConfig selects where session state events are published.
type EventsConfig struct {
	NATSURL       string `toml:"nats_url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Endpoints: []string{
			"wss://proxy.wynd.network:4444/",
			"wss://proxy.wynd.network:4650/",
		},
		InsecureSkipVerify: true,
		Timing: TimingConfig{
			HeartbeatInterval: Duration{5 * time.Second},
			SettleDelay:       Duration{time.Second},
			ReconnectMin:      Duration{100 * time.Millisecond},
			ReconnectMax:      Duration{time.Second},
			HandshakeTimeout:  Duration{10 * time.Second},
			WriteTimeout:      Duration{10 * time.Second},
		},
		Log: LogConfig{
			Level:  "info",
			Format: string(logging.FormatConsole),
		},
		Telemetry: TelemetryConfig{
			Protocol: "grpc",
		},
		Events: EventsConfig{
			SubjectPrefix: "nodelink",
		},
	}
}

// Load reads path over Default and validates the result. An empty path
// returns the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.WrapWithCode(err, errors.ErrCodeConfig,
			"config load failed ("+path+")")
	}
	if err := Parse(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "config parse failed ("+path+")")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes TOML data into cfg, keeping any field the data omits.
func Parse(data []byte, cfg *Config) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeConfig, "decode toml")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.Newf(errors.ErrCodeConfig, "unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnv applies environment overrides.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(logging.EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate checks the configuration for values the client cannot run with.
func (c Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return errors.Config("config missing endpoints")
	}
	for i, ep := range c.Endpoints {
		ep = strings.TrimSpace(ep)
		if !strings.HasPrefix(ep, "ws://") && !strings.HasPrefix(ep, "wss://") {
			return errors.Newf(errors.ErrCodeConfig, "endpoints[%d] %q is not a ws:// or wss:// url", i, ep)
		}
	}

	t := c.Timing
	if t.HeartbeatInterval.Duration <= 0 {
		return errors.Config("timing.heartbeat_interval must be positive")
	}
	if t.SettleDelay.Duration < 0 {
		return errors.Config("timing.settle_delay must not be negative")
	}
	if t.ReconnectMin.Duration < 0 || t.ReconnectMax.Duration < t.ReconnectMin.Duration {
		return errors.Newf(errors.ErrCodeConfig, "timing reconnect window [%s, %s) is invalid",
			t.ReconnectMin.Duration, t.ReconnectMax.Duration)
	}

	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		return errors.Newf(errors.ErrCodeConfig, "log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch logging.Format(c.Log.Format) {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		return errors.Newf(errors.ErrCodeConfig, "log.format %q is not console or json", c.Log.Format)
	}

	switch c.Telemetry.Protocol {
	case "", "grpc", "http":
	default:
		return errors.Newf(errors.ErrCodeConfig, "telemetry.protocol %q is not grpc or http", c.Telemetry.Protocol)
	}
	return nil
}
