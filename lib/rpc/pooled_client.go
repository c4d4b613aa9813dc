package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"

	apperrors "github.com/go-i2p/connpool/lib/errors"
	"github.com/go-i2p/connpool/lib/pool"
	"github.com/go-i2p/connpool/lib/ring"
	"github.com/go-i2p/connpool/lib/transport"
)

// ErrNoEndpoints is returned when a call has no endpoint to go to.
var ErrNoEndpoints = apperrors.ErrRPCNoEndpoints

// DefaultCallTimeout bounds a call whose context has no deadline.
const DefaultCallTimeout = 30 * time.Second

// PooledClientConfig configures a PooledClient.
type PooledClientConfig struct {
	// Endpoints are the servers calls are spread over, in any form the
	// transport dialer accepts.
	Endpoints []string
	// Pool configures the underlying connection pool.
	Pool pool.Config
	// Timeout bounds a call whose context has no deadline.
	// Default: 30 seconds
	Timeout time.Duration
	// AuthToken is the hex auth token sent on every new connection.
	AuthToken string
	// AuthFile is read for the token when AuthToken is empty.
	AuthFile string
	// Dialer opens connections. Default: a dialer with transport.DefaultConfig.
	Dialer *transport.Dialer
	// Wrap, if set, decorates the connection factory, for example with a
	// circuit breaker or a rate limiter.
	Wrap func(pool.Factory) pool.Factory
}

// DefaultPooledClientConfig returns a PooledClientConfig with sensible defaults.
func DefaultPooledClientConfig() PooledClientConfig {
	return PooledClientConfig{
		Pool:    pool.DefaultConfig(),
		Timeout: DefaultCallTimeout,
	}
}

// PooledClient is a JSON-RPC client that borrows a pooled connection for
// each call.
type PooledClient struct {
	pool       *pool.Manager
	ring       *ring.Ring
	dialer     *transport.Dialer
	ownsDialer bool
	timeout    time.Duration
	authToken  []byte
	requestID  atomic.Uint64
	next       atomic.Uint64
}

// NewPooledClient creates a pooled client. Connections are opened lazily on
// the first call to each endpoint.
func NewPooledClient(cfg PooledClientConfig, opts ...pool.Option) (*PooledClient, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCallTimeout
	}

	c := &PooledClient{
		ring:    ring.New(cfg.Endpoints...),
		dialer:  cfg.Dialer,
		timeout: cfg.Timeout,
	}
	if c.dialer == nil {
		c.dialer = transport.NewDialer(transport.DefaultConfig())
		c.ownsDialer = true
	}

	token, err := clientToken(cfg.AuthToken, cfg.AuthFile)
	if err != nil {
		return nil, err
	}
	c.authToken = token

	factory := pool.Factory(c.dial)
	if cfg.Wrap != nil {
		factory = cfg.Wrap(factory)
	}
	opts = append([]pool.Option{pool.WithName("rpc")}, opts...)
	c.pool, err = pool.New(factory, cfg.Pool, opts...)
	if err != nil {
		return nil, err
	}

	log.WithField("endpoints", len(cfg.Endpoints)).Debug("pooled RPC client created")
	return c, nil
}

// rpcConn is one client connection held by the pool.
type rpcConn struct {
	conn   net.Conn
	reader *bufio.Reader
	client *PooledClient
}

func (rc *rpcConn) Close() error {
	return rc.conn.Close()
}

// Probe sends a ping and reports its round trip.
func (rc *rpcConn) Probe(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	resp, err := rc.roundTrip(ctx, rc.client.newRequest("ping", nil))
	if err != nil {
		return 0, err
	}
	if resp.Error != nil {
		return 0, resp.Error
	}
	return time.Since(start), nil
}

// roundTrip writes req and reads its response. Any returned error leaves
// the connection in an unknown state.
func (rc *rpcConn) roundTrip(ctx context.Context, req *Request) (*Response, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(rc.client.timeout)
	}
	if err := rc.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	// Cancellation forces any blocked read or write to fail now.
	stop := context.AfterFunc(ctx, func() { rc.conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')
	if _, err := rc.conn.Write(data); err != nil {
		return nil, ctxOr(ctx, fmt.Errorf("write request: %w", err))
	}

	line, err := readLine(rc.reader)
	if err != nil {
		return nil, ctxOr(ctx, fmt.Errorf("read response: %w", err))
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if !bytes.Equal(resp.ID, req.ID) {
		return nil, fmt.Errorf("response id %s does not match request id %s", resp.ID, req.ID)
	}
	return &resp, nil
}

// ctxOr prefers the context's error when it ended the I/O.
func ctxOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}

func (c *PooledClient) dial(ctx context.Context, endpoint string) (pool.Connection, error) {
	conn, err := c.dialer.Dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	nc, ok := conn.(net.Conn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("%w: %s is not a stream transport", transport.ErrUnsupportedScheme, endpoint)
	}

	rc := &rpcConn{
		conn:   nc,
		reader: bufio.NewReaderSize(nc, 64*1024),
		client: c,
	}
	if c.authToken != nil {
		if err := c.authenticate(ctx, rc); err != nil {
			rc.Close()
			return nil, fmt.Errorf("authentication failed: %w", err)
		}
	}
	return rc, nil
}

func (c *PooledClient) authenticate(ctx context.Context, rc *rpcConn) error {
	req := c.newRequest("auth", nil)
	req.Params, _ = json.Marshal(map[string]string{"token": hex.EncodeToString(c.authToken)})

	resp, err := rc.roundTrip(ctx, req)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	return nil
}

func (c *PooledClient) newRequest(method string, params json.RawMessage) *Request {
	id := c.requestID.Add(1)
	return &Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      json.RawMessage(strconv.FormatUint(id, 10)),
	}
}

// Call invokes method on the next endpoint in round-robin order and
// decodes the result into result, which may be nil.
func (c *PooledClient) Call(ctx context.Context, method string, params, result any) error {
	endpoints := c.ring.Endpoints()
	if len(endpoints) == 0 {
		return ErrNoEndpoints
	}
	endpoint := endpoints[(c.next.Add(1)-1)%uint64(len(endpoints))]
	return c.CallEndpoint(ctx, endpoint, method, params, result)
}

// CallKey invokes method on the endpoint that owns key, so calls for the
// same key reuse the same server's connections.
func (c *PooledClient) CallKey(ctx context.Context, key, method string, params, result any) error {
	endpoint := c.ring.Get(key)
	if endpoint == "" {
		return ErrNoEndpoints
	}
	return c.CallEndpoint(ctx, endpoint, method, params, result)
}

// CallEndpoint invokes method on a specific endpoint. The endpoint does not
// have to be one of the configured ones.
func (c *PooledClient) CallEndpoint(ctx context.Context, endpoint, method string, params, result any) error {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		raw = data
	}

	conn, err := c.pool.Acquire(ctx, endpoint)
	if err != nil {
		log.WithError(err).WithField("endpoint", endpoint).WithField("method", method).
			Debug("failed to acquire connection")
		return fmt.Errorf("acquire connection: %w", err)
	}
	rc := conn.(*rpcConn)

	resp, err := rc.roundTrip(ctx, c.newRequest(method, raw))
	if err != nil {
		if derr := c.pool.Discard(conn); derr != nil {
			log.WithError(derr).WithField("endpoint", endpoint).Debug("failed to discard connection")
		}
		return err
	}
	// The connection is still usable after an RPC-level error.
	if rerr := c.pool.Release(conn); rerr != nil {
		log.WithError(rerr).WithField("endpoint", endpoint).Debug("failed to release connection")
	}

	if resp.Error != nil {
		return resp.Error
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

// AddEndpoint adds an endpoint to the rotation.
func (c *PooledClient) AddEndpoint(endpoint string) bool {
	return c.ring.Add(endpoint)
}

// RemoveEndpoint takes an endpoint out of the rotation. Its pooled
// connections are left for the reaper.
func (c *PooledClient) RemoveEndpoint(endpoint string) bool {
	return c.ring.Remove(endpoint)
}

// Endpoints returns the endpoints in rotation.
func (c *PooledClient) Endpoints() []string {
	return c.ring.Endpoints()
}

// Ping calls "ping" on every endpoint and reports every failure.
func (c *PooledClient) Ping(ctx context.Context) error {
	var result *multierror.Error
	for _, endpoint := range c.ring.Endpoints() {
		var pong string
		if err := c.CallEndpoint(ctx, endpoint, "ping", nil, &pong); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", endpoint, err))
		}
	}
	return result.ErrorOrNil()
}

// Status calls "status" on endpoint.
func (c *PooledClient) Status(ctx context.Context, endpoint string) (*StatusResult, error) {
	var result StatusResult
	if err := c.CallEndpoint(ctx, endpoint, "status", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Stats returns pool statistics.
func (c *PooledClient) Stats() pool.Stats {
	return c.pool.Stats()
}

// PoolInfo describes the pool for endpoint, or every pool if endpoint is "".
func (c *PooledClient) PoolInfo(endpoint string) []pool.EndpointInfo {
	return c.pool.PoolInfo(endpoint)
}

// Close drains the pool and releases the dialer if the client created it.
func (c *PooledClient) Close() error {
	log.Debug("closing pooled RPC client")
	err := c.pool.Close()
	if c.ownsDialer {
		if derr := c.dialer.Close(); derr != nil && err == nil {
			err = derr
		}
	}
	return err
}
