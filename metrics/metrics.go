// Package metrics exposes Prometheus metrics for the session supervisor.
//
// A Collector owns its own registry so tests and embedding programs never
// collide on the default one. A nil *Collector is valid and records
// nothing.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vinayprograms/nodelink/logging"
)

const namespace = "nodelink"

// Outcomes recorded by SessionAttempt.
const (
	OutcomeConnected = "connected"
	OutcomeFailed    = "failed"
)

// Collector holds the client's metrics.
type Collector struct {
	registry *prometheus.Registry

	attempts       *prometheus.CounterVec
	failures       *prometheus.CounterVec
	heartbeats     prometheus.Counter
	received       *prometheus.CounterVec
	replies        *prometheus.CounterVec
	active         prometheus.Gauge
	sessionSeconds prometheus.Histogram
}

// New creates a Collector and registers its metrics, plus the Go runtime
// and process collectors, on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "attempts_total",
				Help:      "Connection attempts by outcome.",
			},
			[]string{"endpoint", "outcome"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "failures_total",
				Help:      "Sessions ended by a failure, by error code.",
			},
			[]string{"code"},
		),
		heartbeats: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "heartbeat",
				Name:      "sent_total",
				Help:      "Heartbeat probes sent.",
			},
		),
		received: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Server messages received by action.",
			},
			[]string{"action"},
		),
		replies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "replies_total",
				Help:      "Replies sent by origin action.",
			},
			[]string{"action"},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "active",
				Help:      "1 while a session is active.",
			},
		),
		sessionSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "duration_seconds",
				Help:      "Lifetime of active sessions in seconds.",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
	}

	c.registry.MustRegister(
		c.attempts,
		c.failures,
		c.heartbeats,
		c.received,
		c.replies,
		c.active,
		c.sessionSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// SessionAttempt records the outcome of a dial.
func (c *Collector) SessionAttempt(endpoint, outcome string) {
	if c == nil {
		return
	}
	c.attempts.WithLabelValues(endpoint, outcome).Inc()
}

// SessionStarted marks a session active.
func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.active.Set(1)
}

// SessionEnded marks the active session finished.
func (c *Collector) SessionEnded(code string, lifetime time.Duration) {
	if c == nil {
		return
	}
	c.active.Set(0)
	c.failures.WithLabelValues(code).Inc()
	c.sessionSeconds.Observe(lifetime.Seconds())
}

// HeartbeatSent counts one probe.
func (c *Collector) HeartbeatSent() {
	if c == nil {
		return
	}
	c.heartbeats.Inc()
}

// MessageReceived counts one decoded server message.
func (c *Collector) MessageReceived(action string) {
	if c == nil {
		return
	}
	if action == "" {
		action = "none"
	}
	c.received.WithLabelValues(action).Inc()
}

// ReplySent counts one reply.
func (c *Collector) ReplySent(action string) {
	if c == nil {
		return
	}
	c.replies.WithLabelValues(action).Inc()
}

// Handler returns an http.Handler serving the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string, log *logging.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return c.serve(ctx, ln, log)
}

func (c *Collector) serve(ctx context.Context, ln net.Listener, log *logging.Logger) error {
	if log == nil {
		log = logging.Nop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics_listening", map[string]interface{}{"addr": ln.Addr().String()})
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
