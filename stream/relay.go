package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Relay serves the broker over WebSocket. Clients send small JSON
// control frames and receive event envelopes:
//
//	→ {"op":"subscribe","topics":["firehose"]}
//	→ {"op":"unsubscribe","topics":["steps"]}
//	→ {"op":"credit","n":500}
//	← {"kind":"step.completed","workflow_id":"wf_...","ts":"...","data":{...}}
//
// A connection starts with no subscriptions; the first frame is
// expected to be a subscribe.
type Relay struct {
	broker *Broker
	logger *slog.Logger

	nextConn atomic.Int64
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithRelayLogger sets a custom logger.
func WithRelayLogger(l *slog.Logger) RelayOption {
	return func(r *Relay) { r.logger = l }
}

// NewRelay creates a WebSocket relay over the given broker.
func NewRelay(broker *Broker, opts ...RelayOption) *Relay {
	r := &Relay{
		broker: broker,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// controlFrame is a client-to-relay instruction.
type controlFrame struct {
	Op     string   `json:"op"`
	Topics []string `json:"topics,omitempty"`
	N      int64    `json:"n,omitempty"`
}

// ServeHTTP implements http.Handler: it upgrades the request to a
// WebSocket and relays broker events until the client disconnects.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(req, w)
	if err != nil {
		r.logger.Warn("relay: upgrade failed", slog.String("error", err.Error()))
		return
	}

	connID := fmt.Sprintf("relay-%d", r.nextConn.Add(1))
	sub := r.broker.Subscribe(connID)
	r.logger.Info("relay client connected", slog.String("conn_id", connID))

	defer func() {
		r.broker.Drop(connID)
		conn.Close()
		r.logger.Info("relay client disconnected", slog.String("conn_id", connID))
	}()

	// Writer: pump subscribed events to the client.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for env := range sub.C() {
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			if err := wsutil.WriteServerText(conn, data); err != nil {
				return
			}
		}
	}()

	// Reader: process control frames until the client goes away.
	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			break
		}

		var frame controlFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			r.writeError(conn, "invalid control frame")
			continue
		}
		if err := r.handleControl(connID, sub, frame); err != nil {
			r.writeError(conn, err.Error())
		}
	}

	// Drop closes the subscriber channel, which stops the writer.
	r.broker.Drop(connID)
	<-done
}

func (r *Relay) handleControl(connID string, sub *Subscriber, frame controlFrame) error {
	switch frame.Op {
	case "subscribe":
		for _, topic := range frame.Topics {
			if err := ValidateTopic(topic); err != nil {
				return err
			}
		}
		r.broker.SubscribeTo(connID, frame.Topics...)
		return nil

	case "unsubscribe":
		r.broker.Unsubscribe(connID, frame.Topics...)
		return nil

	case "credit":
		if frame.N <= 0 {
			return fmt.Errorf("stream: credit grant must be positive, got %d", frame.N)
		}
		sub.AddCredits(frame.N)
		return nil

	default:
		return fmt.Errorf("stream: unknown op %q", frame.Op)
	}
}

func (r *Relay) writeError(conn io.Writer, msg string) {
	data, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return
	}
	//nolint:errcheck // best-effort error response before moving on
	wsutil.WriteServerText(conn, data)
}
