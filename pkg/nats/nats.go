// Package nats provides a small client over the NATS event bus.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Client wraps a NATS connection used for fire-and-forget event publishing.
type Client struct {
	conn *nats.Conn
}

// Connect dials the NATS server. Returns an error when the server is
// unreachable; callers may treat the bus as optional.
func Connect(url, serviceName string) (*Client, error) {
	conn, err := nats.Connect(url,
		nats.Name(serviceName),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

// Publish sends data on a subject, honoring context cancellation.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.conn.Publish(subject, data)
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if c.conn != nil {
		_ = c.conn.Drain()
	}
}
