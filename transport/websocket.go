package transport

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vinayprograms/nodelink/errors"
	"github.com/vinayprograms/nodelink/protocol"
)

// DialerConfig holds WebSocket dialer configuration.
type DialerConfig struct {
	// Origin is sent as the Origin header.
	Origin string

	// UserAgent is sent as the User-Agent header.
	UserAgent string

	// InsecureSkipVerify disables certificate chain and hostname
	// verification for wss:// endpoints.
	InsecureSkipVerify bool

	// ProxyURL routes the connection through an http, https or socks5
	// proxy. Empty means direct.
	ProxyURL string

	// HandshakeTimeout bounds the TCP, TLS and upgrade handshake.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration

	// MaxMessageSize limits incoming frame size.
	MaxMessageSize int64
}

// DefaultDialerConfig returns the configuration the client runs with.
func DefaultDialerConfig() DialerConfig {
	return DialerConfig{
		Origin:             protocol.Origin,
		InsecureSkipVerify: true,
		HandshakeTimeout:   10 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxMessageSize:     1024 * 1024, // 1MB
	}
}

// WebSocketDialer opens WebSocket sessions.
type WebSocketDialer struct {
	config DialerConfig
	dialer *websocket.Dialer
}

// NewWebSocketDialer creates a dialer. It fails only on an unparsable
// proxy URL.
func NewWebSocketDialer(cfg DialerConfig) (*WebSocketDialer, error) {
	def := DefaultDialerConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}

	d := &websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		},
	}

	if raw := strings.TrimSpace(cfg.ProxyURL); raw != "" {
		proxy, err := url.Parse(raw)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrCodeConfig, "parse proxy url")
		}
		switch proxy.Scheme {
		case "http", "https", "socks5":
		default:
			return nil, errors.Newf(errors.ErrCodeConfig, "unsupported proxy scheme %q", proxy.Scheme)
		}
		d.Proxy = http.ProxyURL(proxy)
	}

	return &WebSocketDialer{config: cfg, dialer: d}, nil
}

// TLSConfig returns a copy of the TLS configuration used for wss:// dials.
func (d *WebSocketDialer) TLSConfig() *tls.Config {
	return d.dialer.TLSClientConfig.Clone()
}

// Header returns the handshake headers sent on every dial.
func (d *WebSocketDialer) Header() http.Header {
	h := http.Header{}
	if d.config.UserAgent != "" {
		h.Set("User-Agent", d.config.UserAgent)
	}
	if d.config.Origin != "" {
		h.Set("Origin", d.config.Origin)
	}
	return h
}

// Dial opens a session to endpoint.
func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (Session, error) {
	conn, resp, err := d.dialer.DialContext(ctx, endpoint, d.Header())
	if err != nil {
		opts := []errors.Option{errors.WithMetadata("endpoint", endpoint)}
		if resp != nil {
			opts = append(opts, errors.WithMetadata("status", resp.Status))
		}
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "dial "+endpoint)
		}
		return nil, errors.Transport("dial "+endpoint, err, opts...)
	}
	conn.SetReadLimit(d.config.MaxMessageSize)
	return NewWebSocketSession(conn, endpoint, d.config.WriteTimeout), nil
}

// WebSocketSession implements Session over a gorilla connection.
type WebSocketSession struct {
	conn         *websocket.Conn
	endpoint     string
	writeTimeout time.Duration

	writeMu   sync.Mutex
	mu        sync.Mutex
	closed    bool
	closeErr  error
	closeOnce sync.Once
}

// NewWebSocketSession wraps an established connection.
func NewWebSocketSession(conn *websocket.Conn, endpoint string, writeTimeout time.Duration) *WebSocketSession {
	return &WebSocketSession{
		conn:         conn,
		endpoint:     endpoint,
		writeTimeout: writeTimeout,
	}
}

// Endpoint returns the address this session was opened to.
func (s *WebSocketSession) Endpoint() string {
	return s.endpoint
}

func (s *WebSocketSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Send writes one text frame.
func (s *WebSocketSession) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "send")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}

	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "send")
		}
		return errors.Transport("write frame", err)
	}
	return nil
}

// Recv reads the next text or binary frame.
func (s *WebSocketSession) Recv(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "recv")
	}

	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "recv")
		}
		if s.isClosed() {
			return nil, ErrClosed
		}
		return nil, errors.Transport("read frame", err)
	}
	return data, nil
}

// Close sends a close frame and releases the connection.
func (s *WebSocketSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
