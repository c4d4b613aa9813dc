package transport

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/go-i2p/connpool/lib/pool"
)

// KafkaConn is a pooled connection to one Kafka broker.
type KafkaConn struct {
	*kafka.Conn
}

// Probe asks the broker for cluster metadata.
func (c *KafkaConn) Probe(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = start.Add(DefaultDialTimeout)
	}
	if err := c.SetDeadline(deadline); err != nil {
		return 0, err
	}
	defer c.SetDeadline(time.Time{})

	if _, err := c.Brokers(); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func (d *Dialer) dialKafka(ctx context.Context, addr string) (pool.Connection, error) {
	dialer := &kafka.Dialer{
		ClientID:  d.config.ClientName,
		Timeout:   d.config.DialTimeout,
		KeepAlive: d.config.KeepAlive,
	}
	c, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &KafkaConn{Conn: c}, nil
}
