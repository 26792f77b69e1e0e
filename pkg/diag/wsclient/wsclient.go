// Package wsclient is a reconnecting WebSocket reader that reports every
// successful reconnect to a diagnostics engine.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// Reporter receives reconnect notifications. *diag.Engine implements it.
type Reporter interface {
	RecordWsReconnect()
}

// Handler is called for every message read from the connection.
type Handler func(ctx context.Context, typ websocket.MessageType, data []byte)

// ErrNotConnected is returned by Write while no connection is open.
var ErrNotConnected = errors.New("wsclient: not connected")

// Option configures a Client.
type Option func(*Client)

// WithBackoff sets the initial and maximum reconnect delay. The delay
// doubles after each failed dial and resets after a successful one.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Client) {
		if initial > 0 {
			c.minDelay = initial
		}
		if max >= c.minDelay {
			c.maxDelay = max
		}
	}
}

// WithMaxFailures makes Run give up after n consecutive failed dials.
// Zero retries forever.
func WithMaxFailures(n int) Option {
	return func(c *Client) { c.maxFailures = n }
}

// WithHeader adds a header to every handshake.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Add(key, value) }
}

// WithLogger sets the logger for connection lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client keeps one WebSocket connection open to url.
type Client struct {
	url         string
	reporter    Reporter
	handler     Handler
	header      http.Header
	minDelay    time.Duration
	maxDelay    time.Duration
	maxFailures int
	logger      *slog.Logger

	mu         sync.RWMutex
	conn       *websocket.Conn
	connected  atomic.Bool
	reconnects atomic.Int64
}

// New returns a client for url. reporter may be nil.
func New(url string, reporter Reporter, handler Handler, opts ...Option) *Client {
	c := &Client{
		url:      url,
		reporter: reporter,
		handler:  handler,
		header:   http.Header{},
		minDelay: 500 * time.Millisecond,
		maxDelay: 30 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool { return c.connected.Load() }

// Reconnects returns the number of successful reconnects so far. The first
// connection does not count.
func (c *Client) Reconnects() int64 { return c.reconnects.Load() }

// Run dials, reads until the connection drops, and redials until ctx is
// done. It returns ctx.Err() on cancellation, or the last dial error once
// the failure limit is reached.
func (c *Client) Run(ctx context.Context) error {
	delay := c.minDelay
	failures := 0
	established := false

	for {
		conn, err := c.dial(ctx)
		dialFailed := err != nil
		if !dialFailed {
			if established {
				c.reconnects.Add(1)
				if c.reporter != nil {
					c.reporter.RecordWsReconnect()
				}
				c.logger.Info("diag: websocket reconnected", slog.String("url", c.url))
			}
			established = true
			failures = 0
			delay = c.minDelay

			err = c.read(ctx, conn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("diag: websocket disconnected", slog.String("url", c.url), slog.String("error", err.Error()))
		} else {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if c.maxFailures > 0 && failures >= c.maxFailures {
				return fmt.Errorf("wsclient: giving up after %d failed dials: %w", failures, err)
			}
			c.logger.Debug("diag: websocket dial failed", slog.String("url", c.url), slog.Duration("retry_in", delay), slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if dialFailed {
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{HTTPHeader: c.header})
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	return conn, nil
}

func (c *Client) read(ctx context.Context, conn *websocket.Conn) error {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)

	defer func() {
		c.connected.Store(false)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.StatusGoingAway
			if ctx.Err() != nil {
				status = websocket.StatusNormalClosure
			}
			_ = conn.Close(status, "")
			return err
		}
		if c.handler != nil {
			c.handler(ctx, typ, data)
		}
	}
}

// Write sends one message on the open connection.
func (c *Client) Write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Write(ctx, typ, data)
}
