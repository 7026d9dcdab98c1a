// Package client assembles a running nodelink client from configuration:
// identity, transport, supervisor and the optional metrics, tracing and
// event publishing around them.
package client

import (
	"context"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/vinayprograms/nodelink/bus"
	"github.com/vinayprograms/nodelink/config"
	"github.com/vinayprograms/nodelink/credentials"
	"github.com/vinayprograms/nodelink/errors"
	"github.com/vinayprograms/nodelink/identity"
	"github.com/vinayprograms/nodelink/logging"
	"github.com/vinayprograms/nodelink/metrics"
	"github.com/vinayprograms/nodelink/protocol"
	"github.com/vinayprograms/nodelink/shutdown"
	"github.com/vinayprograms/nodelink/supervisor"
	"github.com/vinayprograms/nodelink/telemetry"
	"github.com/vinayprograms/nodelink/transport"
	"github.com/vinayprograms/nodelink/useragent"
)

// Options carries command-line overrides and test hooks. Empty fields
// leave the configuration file's values in place.
type Options struct {
	ConfigPath  string
	UserIDFile  string
	LogLevel    string
	MetricsAddr string
	Version     string

	// Output receives log lines. Default: os.Stdout
	Output io.Writer

	// Dialer replaces the WebSocket dialer.
	Dialer transport.Dialer

	// Rand seeds user agent, delay and endpoint choices.
	Rand *rand.Rand

	// ShutdownTimeout bounds cleanup after ctx is cancelled.
	// Default: 5 seconds
	ShutdownTimeout time.Duration
}

// Run starts the client and blocks until ctx is cancelled. A missing or
// empty account identifier is logged once and Run returns nil without
// connecting. Invalid configuration is returned as an error.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv()
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.UserIDFile != "" {
		cfg.UserIDFile = opts.UserIDFile
	}
	if opts.MetricsAddr != "" {
		cfg.Metrics.Addr = opts.MetricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := newLogger(cfg.Log, opts.Output)

	id, err := loadIdentity(cfg)
	if err != nil {
		log.Error("startup_failed", map[string]interface{}{
			"code":  string(errors.Code(err)),
			"error": err.Error(),
		})
		return nil
	}
	log.Info("starting", map[string]interface{}{
		"device_id": id.DeviceID(),
		"version":   opts.Version,
	})

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = useragent.Random(rng)
	}

	dialer := opts.Dialer
	if dialer == nil {
		origin := cfg.Origin
		if origin == "" {
			origin = protocol.Origin
		}
		dialer, err = transport.NewWebSocketDialer(transport.DialerConfig{
			Origin:             origin,
			UserAgent:          ua,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			ProxyURL:           cfg.ProxyURL,
			HandshakeTimeout:   cfg.Timing.HandshakeTimeout.Duration,
			WriteTimeout:       cfg.Timing.WriteTimeout.Duration,
		})
		if err != nil {
			return err
		}
	}

	coord := shutdown.NewCoordinator(shutdown.Config{Logger: log.WithComponent("shutdown")})
	collector := metrics.New()
	startMetrics(cfg.Metrics, collector, coord, log)
	startTelemetry(ctx, cfg.Telemetry, opts.Version, id.DeviceID(), coord, log)
	events := openBus(cfg.Events, coord, log)

	sup, err := supervisor.New(supervisor.Config{
		Endpoints:         cfg.Endpoints,
		HeartbeatInterval: cfg.Timing.HeartbeatInterval.Duration,
		SettleDelay:       cfg.Timing.SettleDelay.Duration,
		ReconnectMin:      cfg.Timing.ReconnectMin.Duration,
		ReconnectMax:      cfg.Timing.ReconnectMax.Duration,
	}, dialer, id, ua,
		supervisor.WithLogger(log),
		supervisor.WithRand(rng),
		supervisor.WithBus(events, cfg.Events.SubjectPrefix),
		supervisor.WithMetrics(collector),
		supervisor.WithTracer(telemetry.GetTracer()),
	)
	if err != nil {
		coord.ShutdownWithTimeout(time.Second)
		return err
	}

	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()
	coord.Register("supervisor", shutdown.PhaseStop, func(sctx context.Context) error {
		select {
		case <-supDone:
			return nil
		case <-sctx.Done():
			return sctx.Err()
		}
	})

	<-ctx.Done()
	log.Info("stopping", map[string]interface{}{"attempts": sup.Attempts()})

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if res := coord.ShutdownWithTimeout(timeout); res.Failed() {
		log.Warn("shutdown_incomplete", map[string]interface{}{
			"error":  res.Err.Error(),
			"failed": res.FailedHandlers(),
		})
	}
	return nil
}

func newLogger(cfg config.LogConfig, out io.Writer) *logging.Logger {
	log := logging.New()
	if out == nil {
		out = os.Stdout
	}
	log.SetOutput(out)
	log.SetFormat(logging.Format(cfg.Format))
	if level, ok := logging.ParseLevel(cfg.Level); ok {
		log.SetLevel(level)
	}
	return log
}

// loadIdentity resolves the account identifier. An inline user_id wins
// over the user id file.
func loadIdentity(cfg config.Config) (identity.Identity, error) {
	userID := cfg.UserID
	if userID == "" {
		var err error
		userID, _, err = credentials.LoadUserID(cfg.UserIDFile)
		if err != nil {
			return identity.Identity{}, err
		}
	}
	return identity.New(userID)
}

func startMetrics(cfg config.MetricsConfig, c *metrics.Collector, coord *shutdown.Coordinator, log *logging.Logger) {
	if cfg.Addr == "" {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Serve(ctx, cfg.Addr, log.WithComponent("metrics")); err != nil {
			log.Warn("metrics_server_failed", map[string]interface{}{
				"addr":  cfg.Addr,
				"error": err.Error(),
			})
		}
	}()
	coord.Register("metrics", shutdown.PhaseRelease, func(sctx context.Context) error {
		cancel()
		select {
		case <-done:
			return nil
		case <-sctx.Done():
			return sctx.Err()
		}
	})
}

func startTelemetry(ctx context.Context, cfg config.TelemetryConfig, version, deviceID string, coord *shutdown.Coordinator, log *logging.Logger) {
	if cfg.Endpoint == "" {
		return
	}
	provider, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		DeviceID:       deviceID,
		Endpoint:       cfg.Endpoint,
		Protocol:       cfg.Protocol,
		Insecure:       cfg.Insecure,
	})
	if err != nil {
		log.Warn("telemetry_disabled", map[string]interface{}{"error": err.Error()})
		return
	}
	coord.Register("telemetry", shutdown.PhaseFlush, provider.Shutdown)
}

// openBus connects to NATS when configured and falls back to an
// in-process bus otherwise.
func openBus(cfg config.EventsConfig, coord *shutdown.Coordinator, log *logging.Logger) bus.MessageBus {
	var b bus.MessageBus = bus.NewMemoryBus(bus.DefaultConfig())
	if cfg.NATSURL != "" {
		natsCfg := bus.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.Logger = log.WithComponent("events")
		nb, err := bus.NewNATSBus(natsCfg)
		if err != nil {
			log.Warn("events_nats_unavailable", map[string]interface{}{
				"url":   cfg.NATSURL,
				"error": err.Error(),
			})
		} else {
			b = nb
		}
	}
	coord.Register("bus", shutdown.PhaseFlush, func(context.Context) error {
		return b.Close()
	})
	return b
}
