package transport

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/go-i2p/connpool/lib/pool"
)

// NATSConn is a pooled NATS client connection. Reconnects are disabled; a
// dropped connection fails its next probe and the pool replaces it.
type NATSConn struct {
	*nats.Conn
}

// Close closes the client connection.
func (c *NATSConn) Close() error {
	c.Conn.Close()
	return nil
}

// Probe measures a server round trip.
func (c *NATSConn) Probe(ctx context.Context) (time.Duration, error) {
	if c.IsClosed() {
		return 0, nats.ErrConnectionClosed
	}
	if err := c.FlushWithContext(ctx); err != nil {
		return 0, err
	}
	return c.RTT()
}

func (d *Dialer) dialNATS(ctx context.Context, url string) (pool.Connection, error) {
	timeout := d.config.DialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	nc, err := nats.Connect(url,
		nats.Name(d.config.ClientName),
		nats.Timeout(timeout),
		nats.NoReconnect(),
	)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		nc.Close()
		return nil, ctx.Err()
	}
	return &NATSConn{Conn: nc}, nil
}
