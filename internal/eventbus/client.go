package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Handler processes one decoded Event.
type Handler func(Event)

// Client wraps a NATS connection for publishing and subscribing to
// orchestrator events.
type Client struct {
	conn *nats.Conn
	log  *zap.Logger
}

// Dial connects to the embedded (or external) NATS server at url.
func Dial(url string, log *zap.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("orchestratord"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil && log != nil {
				log.Warn("eventbus disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			if log != nil {
				log.Info("eventbus reconnected", zap.String("url", nc.ConnectedUrl()))
			}
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to eventbus: %w", err)
	}
	return &Client{conn: conn, log: log}, nil
}

// Publish marshals and publishes ev to its subject.
func (c *Client) Publish(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := c.conn.Publish(ev.Subject(), data); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

// Subscribe registers handler for every event of the given kind.
func (c *Client) Subscribe(kind Kind, handler Handler) (*nats.Subscription, error) {
	subject := "orchestrator." + string(kind)
	return c.conn.Subscribe(subject, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			if c.log != nil {
				c.log.Error("failed to decode eventbus message", zap.String("subject", subject), zap.Error(err))
			}
			return
		}
		handler(ev)
	})
}

// SubscribeAll registers handler for every orchestrator event regardless
// of kind, using NATS wildcard subject matching.
func (c *Client) SubscribeAll(handler Handler) (*nats.Subscription, error) {
	return c.conn.Subscribe("orchestrator.>", func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			if c.log != nil {
				c.log.Error("failed to decode eventbus message", zap.Error(err))
			}
			return
		}
		handler(ev)
	})
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}
