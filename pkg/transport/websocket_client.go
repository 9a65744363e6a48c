package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/jwichpas/backend-project-admin-sub000/internal/observability"
)

const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectBaseDelay   = time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
)

// Conn is the part of a websocket connection the client uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type gorillaDialer struct {
	dialer *websocket.Dialer
	header http.Header
}

func (g gorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := g.dialer.DialContext(ctx, url, g.header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options configures a WebSocketClient.
type Options struct {
	URL                  string
	Token                string
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	HandshakeTimeout     time.Duration
	ProtocolConstraint   string
}

// WebSocketClient keeps one websocket open to the tracking server and
// reconnects with a linear backoff when it drops.
type WebSocketClient struct {
	base

	opts   Options
	dialer Dialer
	after  func(d time.Duration, f func()) (stop func() bool)

	mu          sync.Mutex
	state       ConnectionState
	conn        Conn
	backoff     backoff.BackOff
	attempts    int
	stopTimer   func() bool
	manualClose bool

	writeMu sync.Mutex
	wg      conc.WaitGroup
}

var _ Client = (*WebSocketClient)(nil)

// NewWebSocketClient creates a client for opts.URL. Nothing is dialed until Connect.
func NewWebSocketClient(opts Options, logger zerolog.Logger) (*WebSocketClient, error) {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}
	return newWebSocketClient(opts, gorillaDialer{
		dialer: &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		header: header,
	}, logger)
}

func newWebSocketClient(opts Options, dialer Dialer, logger zerolog.Logger) (*WebSocketClient, error) {
	if opts.URL == "" {
		return nil, errors.New("transport url is required")
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if opts.ReconnectBaseDelay <= 0 {
		opts.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}

	c := &WebSocketClient{
		opts:    opts,
		dialer:  dialer,
		state:   StateClosed,
		backoff: newReconnectBackOff(opts.ReconnectBaseDelay, opts.MaxReconnectAttempts),
		after: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
	}
	if err := c.base.init(logger.With().Str("component", "transport").Logger(), opts.ProtocolConstraint, c.Send); err != nil {
		return nil, err
	}
	return c, nil
}

// State returns the current connection state.
func (c *WebSocketClient) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReconnectAttempts returns the attempts made since the last successful open.
func (c *WebSocketClient) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Connect dials the server. A failed dial is handled like a dropped
// connection: the error is returned and reconnection is scheduled.
func (c *WebSocketClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.manualClose = false
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		c.handleClose(nil, err)
		return fmt.Errorf("connect %s: %w", c.opts.URL, err)
	}
	return nil
}

func (c *WebSocketClient) dial(ctx context.Context) error {
	conn, err := c.dialer.Dial(ctx, c.opts.URL)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.manualClose {
		c.mu.Unlock()
		_ = conn.Close()
		return errors.New("client disconnected while dialing")
	}
	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	c.backoff.Reset()
	c.mu.Unlock()

	observability.TransportOpen.Set(1)
	c.logger.Info().Str("url", c.opts.URL).Msg("Transport connected")

	c.wg.Go(func() { c.readLoop(conn) })
	c.Emit(EventConnected, nil)
	c.resubscribe()
	return nil
}

func (c *WebSocketClient) readLoop(conn Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		c.dispatch(frame)
	}
}

// handleClose moves the client to closed and schedules a reconnect unless
// the close was requested. conn is nil for failed dials.
func (c *WebSocketClient) handleClose(conn Conn, cause error) {
	c.mu.Lock()
	if conn != nil && c.conn != conn {
		// superseded or already torn down by Disconnect
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateClosed
	manual := c.manualClose
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	observability.TransportOpen.Set(0)
	c.logger.Warn().Err(cause).Msg("Transport disconnected")
	c.Emit(EventDisconnected, cause)

	if !manual {
		c.scheduleReconnect()
	}
}

func (c *WebSocketClient) scheduleReconnect() {
	c.mu.Lock()
	if c.manualClose {
		c.mu.Unlock()
		return
	}
	delay := c.backoff.NextBackOff()
	if delay == backoff.Stop {
		attempts := c.attempts
		c.mu.Unlock()
		c.logger.Error().Int("attempts", attempts).Msg("Max reconnect attempts reached, giving up")
		c.Emit(EventMaxReconnectAttemptsReached, attempts)
		return
	}
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	observability.TransportReconnects.Inc()
	c.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Scheduling transport reconnect")

	stop := c.after(delay, c.reconnect)

	c.mu.Lock()
	c.stopTimer = stop
	c.mu.Unlock()
}

func (c *WebSocketClient) reconnect() {
	c.mu.Lock()
	if c.manualClose || c.state != StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.HandshakeTimeout)
	defer cancel()

	if err := c.dial(ctx); err != nil {
		c.handleClose(nil, err)
	}
}

// Disconnect closes the connection without reconnecting. It does not wait
// for the read loop, so listeners may call it.
func (c *WebSocketClient) Disconnect() error {
	c.mu.Lock()
	c.manualClose = true
	conn := c.conn
	c.conn = nil
	wasOpen := c.state == StateOpen
	c.state = StateClosed
	stop := c.stopTimer
	c.stopTimer = nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := conn.Close()

	observability.TransportOpen.Set(0)
	if wasOpen {
		c.Emit(EventDisconnected, nil)
	}
	c.logger.Info().Msg("Transport disconnected by client")
	return err
}

// Close disconnects and waits for the read loop to exit.
func (c *WebSocketClient) Close() error {
	err := c.Disconnect()
	c.wg.Wait()
	return err
}

// Send writes msg if the connection is open. Otherwise the message is
// dropped with a warning and ErrNotConnected is returned.
func (c *WebSocketClient) Send(msg Message) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open || conn == nil {
		c.logger.Warn().Str("type", msg.Type).Msg("Transport not open, dropping outbound message")
		return ErrNotConnected
	}

	frame, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}
