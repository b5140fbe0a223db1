package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"github.com/lxzan/gws"
	"github.com/rs/zerolog"
)

// ErrClosed is returned when using a client after Close.
var ErrClosed = errors.New("websocket client closed")

var errOnConnect = errors.New("on connect")

// ConnState is the lifecycle state of a Client.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

var stateNames = [...]string{"disconnected", "connecting", "connected", "reconnecting", "closed"}

func (s ConnState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

type connState struct {
	v atomic.Int32
}

func (s *connState) load() ConnState {
	return ConnState(s.v.Load())
}

func (s *connState) store(st ConnState) {
	s.v.Store(int32(st))
}

func (s *connState) swap(from, to ConnState) bool {
	return s.v.CompareAndSwap(int32(from), int32(to))
}

// Config holds configuration options for a websocket client.
type Config struct {
	// URL is the websocket server endpoint to connect to.
	URL string
	// ReconnectEnabled redials with exponential backoff after the connection drops.
	ReconnectEnabled bool
	// ReconnectBaseWait is the wait before the first reconnection attempt.
	ReconnectBaseWait time.Duration
	// ReconnectMaxWait caps the wait between reconnection attempts.
	ReconnectMaxWait time.Duration
	// HandshakeTimeout bounds the opening handshake.
	HandshakeTimeout time.Duration
	// ReadTimeout is how long the connection may stay silent, pings included.
	ReadTimeout time.Duration
	// BufferSize is the capacity of the message channel.
	BufferSize int
}

func (c *Config) setDefaults() {
	if c.ReconnectBaseWait == 0 {
		c.ReconnectBaseWait = time.Second
	}
	if c.ReconnectMaxWait == 0 {
		c.ReconnectMaxWait = 30 * time.Second
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Minute
	}
	if c.BufferSize == 0 {
		c.BufferSize = 100
	}
}

// Client is a read-mostly websocket connection that delivers every text
// frame on one channel and redials when the connection drops.
type Client struct {
	config  Config
	state   connState
	logger  zerolog.Logger
	handler *eventHandler

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	conn      *gws.Conn
	onConnect func(*Client) error

	messages chan []byte
	errs     chan error
	wg       sync.WaitGroup
	once     sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for connection events.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithOnConnect runs fn after every successful dial, including reconnects.
// Stream subscriptions that must be re-sent belong here.
func WithOnConnect(fn func(*Client) error) Option {
	return func(c *Client) {
		c.onConnect = fn
	}
}

type eventHandler struct {
	client *Client
}

// NewClient creates a websocket client. Default values are applied for any
// zero-valued configuration fields.
func NewClient(config Config, opts ...Option) *Client {
	config.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config:   config,
		logger:   zerolog.Nop(),
		ctx:      ctx,
		cancel:   cancel,
		messages: make(chan []byte, config.BufferSize),
		errs:     make(chan error, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state.store(StateDisconnected)
	c.handler = &eventHandler{client: c}
	return c
}

func (h *eventHandler) OnOpen(socket *gws.Conn) {
	_ = socket.SetDeadline(time.Now().Add(h.client.config.ReadTimeout))
}

func (h *eventHandler) OnClose(socket *gws.Conn, err error) {
	c := h.client
	if c.state.load() == StateClosed {
		return
	}
	c.state.store(StateDisconnected)
	c.logger.Warn().Err(err).Str("url", c.config.URL).Msg("websocket disconnected")

	if !c.config.ReconnectEnabled {
		c.report(fmt.Errorf("websocket disconnected: %w", err))
		return
	}
	c.wg.Go(c.reconnect)
}

func (h *eventHandler) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.SetDeadline(time.Now().Add(h.client.config.ReadTimeout))
	_ = socket.WritePong(payload)
}

func (h *eventHandler) OnPong(socket *gws.Conn, payload []byte) {
	_ = socket.SetDeadline(time.Now().Add(h.client.config.ReadTimeout))
}

func (h *eventHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	_ = socket.SetDeadline(time.Now().Add(h.client.config.ReadTimeout))

	// the frame buffer is recycled on Close
	data := append([]byte(nil), message.Bytes()...)
	if len(data) == 0 {
		return
	}

	select {
	case <-h.client.ctx.Done():
	case h.client.messages <- data:
	default:
		h.client.logger.Warn().Str("url", h.client.config.URL).Msg("message buffer full, dropping frame")
	}
}

// Connect dials the configured URL. It is a no-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.swap(StateDisconnected, StateConnecting) {
		current := c.state.load()
		switch current {
		case StateConnected:
			return nil
		case StateClosed:
			return ErrClosed
		}
		return fmt.Errorf("invalid state for connect: %s", current)
	}
	if err := c.dial(ctx); err != nil {
		c.state.swap(StateConnecting, StateDisconnected)
		return err
	}
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	socket, _, err := gws.NewClient(c.handler, &gws.ClientOption{
		Addr:             c.config.URL,
		HandshakeTimeout: c.config.HandshakeTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect websocket: %w", err)
	}

	c.mu.Lock()
	c.conn = socket
	c.mu.Unlock()

	if !c.state.swap(StateConnecting, StateConnected) &&
		!c.state.swap(StateReconnecting, StateConnected) {
		_ = socket.NetConn().Close()
		return ErrClosed
	}
	c.wg.Go(socket.ReadLoop)

	c.logger.Info().Str("url", c.config.URL).Msg("websocket connected")

	if c.onConnect != nil {
		if err := c.onConnect(c); err != nil {
			// closing hands recovery to OnClose
			_ = socket.NetConn().Close()
			return fmt.Errorf("%w: %w", errOnConnect, err)
		}
	}
	return nil
}

func (c *Client) reconnect() {
	if !c.state.swap(StateDisconnected, StateReconnecting) {
		return
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.config.ReconnectBaseWait
	policy.MaxInterval = c.config.ReconnectMaxWait
	policy.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := c.dial(c.ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || errors.Is(err, errOnConnect) || c.ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			c.logger.Error().Err(err).Int("attempt", attempt).Msg("reconnect failed")
		}
		return err
	}, backoff.WithContext(policy, c.ctx))
	if err != nil {
		if c.ctx.Err() == nil && !errors.Is(err, errOnConnect) {
			c.report(err)
		}
		return
	}
	c.logger.Info().Int("attempt", attempt).Msg("reconnected")
}

// report hands a terminal error to the reader without blocking.
func (c *Client) report(err error) {
	select {
	case c.errs <- err:
	default:
	}
}

// Messages delivers a copy of every text frame. It is closed by Close.
func (c *Client) Messages() <-chan []byte {
	return c.messages
}

// Errors delivers connection failures the client could not recover from.
func (c *Client) Errors() <-chan error {
	return c.errs
}

// SendJSON marshals v and writes it as a text frame.
func (c *Client) SendJSON(v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil || c.state.load() != StateConnected {
		return fmt.Errorf("websocket not connected")
	}
	return c.conn.WriteMessage(gws.OpcodeText, data)
}

// Close shuts down the connection and stops reconnecting. The message
// channel is closed once every reader goroutine has exited.
func (c *Client) Close() error {
	c.once.Do(func() {
		c.state.store(StateClosed)
		c.cancel()

		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.NetConn().Close()
		}
		c.mu.Unlock()

		c.wg.Wait()
		close(c.messages)
	})
	return nil
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	return c.state.load()
}
