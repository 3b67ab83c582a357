package nats

import (
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Client wraps the NATS connection
type Client struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// NewClient creates a new NATS client.
// maxReconnects: use -1 for unlimited reconnects.
func NewClient(url string, maxReconnects int, reconnectWait time.Duration) (*Client, error) {
	logger := logrus.WithField("component", "nats")

	if maxReconnects == 0 {
		maxReconnects = -1
	}

	opts := []nats.Option{
		nats.Name("gate-service"),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.Timeout(10 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("Disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("Reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("Connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.WithError(err).Error("Async error")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	logger.WithField("url", url).Info("Connected to NATS")

	return &Client{
		conn:   conn,
		logger: logger,
	}, nil
}

// Connection returns the underlying NATS connection
func (c *Client) Connection() *nats.Conn {
	return c.conn
}

// Close drains and closes the NATS connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Drain()
	}
}

// IsConnected checks if the client is connected
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}
