package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/go-i2p/connpool/lib/pool"
)

// RedisConn is a pooled Redis client bound to a single connection.
type RedisConn struct {
	*redis.Client
}

// Probe sends PING.
func (c *RedisConn) Probe(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := c.Ping(ctx).Err(); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func (d *Dialer) dialRedis(ctx context.Context, url string) (pool.Connection, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}
	// The outer pool does the pooling.
	opt.PoolSize = 1
	opt.MinIdleConns = 0
	opt.MaxRetries = -1
	opt.DialTimeout = d.config.DialTimeout
	opt.ClientName = d.config.ClientName

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisConn{Client: client}, nil
}
