package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Client consumes relay events over WebSocket. Received envelopes are
// delivered on a buffered channel; when the consumer falls behind,
// envelopes are dropped rather than blocking the read loop, mirroring
// the broker's best-effort contract.
type Client struct {
	conn   net.Conn
	events chan *Event
	logger *slog.Logger
	buffer int
	closed atomic.Bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets a custom logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithClientBuffer sets the local event buffer size.
func WithClientBuffer(n int) ClientOption {
	return func(c *Client) { c.buffer = n }
}

// Dial connects to a relay at the given ws:// URL and subscribes to the
// listed topics.
func Dial(ctx context.Context, url string, topics []string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		logger: slog.Default(),
		buffer: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.events = make(chan *Event, c.buffer)

	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("stream: dial %s: %w", url, err)
	}
	c.conn = conn

	if len(topics) > 0 {
		if err := c.Subscribe(topics...); err != nil {
			conn.Close()
			return nil, err
		}
	}

	go c.readLoop()
	return c, nil
}

// C returns the channel relayed events arrive on. It is closed when the
// connection ends.
func (c *Client) C() <-chan *Event { return c.events }

// Subscribe adds topics to the connection's subscription set.
func (c *Client) Subscribe(topics ...string) error {
	return c.send(controlFrame{Op: "subscribe", Topics: topics})
}

// Unsubscribe removes topics from the connection's subscription set.
func (c *Client) Unsubscribe(topics ...string) error {
	return c.send(controlFrame{Op: "unsubscribe", Topics: topics})
}

// Credit grants the relay n more deliveries for this connection.
func (c *Client) Credit(n int64) error {
	return c.send(controlFrame{Op: "credit", N: n})
}

// Close tears down the connection. The event channel is closed by the
// read loop on its way out.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) send(frame controlFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("stream: encode control frame: %w", err)
	}
	if err := wsutil.WriteClientText(c.conn, data); err != nil {
		return fmt.Errorf("stream: write control frame: %w", err)
	}
	return nil
}

// readLoop reads envelopes until the connection ends.
func (c *Client) readLoop() {
	defer close(c.events)

	for {
		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			if !c.closed.Load() {
				c.logger.Warn("stream client read error", slog.String("error", err.Error()))
			}
			return
		}

		var env Event
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("stream client: bad envelope", slog.String("error", err.Error()))
			continue
		}
		if env.Kind == "" {
			// Relay error responses are not envelopes; surface and move on.
			c.logger.Warn("stream client: relay error", slog.String("payload", string(data)))
			continue
		}

		select {
		case c.events <- &env:
		default:
			// Consumer is behind; drop rather than stall the socket.
		}
	}
}
