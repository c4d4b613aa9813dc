package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/go-i2p/connpool/lib/pool"
)

// probeWindow is how long a probe waits for the peer to show it has gone away.
const probeWindow = 5 * time.Millisecond

// Conn is a stream connection with a liveness probe. Reads go through a
// buffer so a probe can look for a pending close without consuming data.
type Conn struct {
	net.Conn
	r *bufio.Reader
}

func newConn(c net.Conn) *Conn {
	return &Conn{Conn: c, r: bufio.NewReader(c)}
}

// Read reads from the buffered stream.
func (c *Conn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// Probe reports whether the peer is still there. A peer that closed or
// reset the stream fails the probe. A quiet peer or one with unread data
// passes.
func (c *Conn) Probe(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := c.SetReadDeadline(start.Add(probeWindow)); err != nil {
		return 0, err
	}
	_, err := c.r.Peek(1)
	if resetErr := c.SetReadDeadline(time.Time{}); resetErr != nil && err == nil {
		err = resetErr
	}
	if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
		return 0, err
	}
	return time.Since(start), nil
}

func (d *Dialer) netDialer() *net.Dialer {
	return &net.Dialer{KeepAlive: d.config.KeepAlive}
}

func (d *Dialer) dialTCP(ctx context.Context, addr string) (pool.Connection, error) {
	c, err := d.netDialer().DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return newConn(c), nil
}

func (d *Dialer) dialUnix(ctx context.Context, path string) (pool.Connection, error) {
	c, err := d.netDialer().DialContext(ctx, "unix", path)
	if err != nil {
		return nil, err
	}
	return newConn(c), nil
}
