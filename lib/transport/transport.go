// Package transport turns endpoint strings into live connections for the
// pool. The scheme of an endpoint selects the protocol:
//
//	host:port, tcp://host:port   plain TCP
//	unix:///path/to/socket       Unix domain socket
//	i2p://<destination>          I2P streaming over a SAM session
//	nats://host:port             NATS client connection
//	kafka://host:port            Kafka broker connection
//	redis://[user:pass@]host:port[/db]  Redis client
//
// Every connection returned implements pool.Prober so the pool's validator
// can check it while idle.
package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-i2p/connpool/lib/metrics"
	"github.com/go-i2p/connpool/lib/pool"
	"github.com/go-i2p/connpool/lib/validation"

	apperrors "github.com/go-i2p/connpool/lib/errors"
)

// Errors returned by the dialer.
var (
	ErrUnsupportedScheme = apperrors.ErrTransportUnsupportedScheme
	ErrInvalidEndpoint   = apperrors.ErrTransportInvalidEndpoint
)

// Default configuration values
const (
	DefaultDialTimeout = 10 * time.Second
	DefaultKeepAlive   = 30 * time.Second
	DefaultSAMAddress  = "127.0.0.1:7656"
	DefaultTunnelName  = "connpool"
	DefaultClientName  = "connpool"
)

// Config configures a Dialer.
type Config struct {
	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration
	// KeepAlive is the TCP keep-alive period. Negative disables it.
	KeepAlive time.Duration
	// SAMAddress is the I2P SAM bridge used for i2p:// endpoints.
	SAMAddress string
	// TunnelName names the I2P session.
	TunnelName string
	// SAMOptions are SAM tunnel options; empty uses the onramp defaults.
	SAMOptions []string
	// ClientName identifies this process to NATS servers.
	ClientName string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DialTimeout: DefaultDialTimeout,
		KeepAlive:   DefaultKeepAlive,
		SAMAddress:  DefaultSAMAddress,
		TunnelName:  DefaultTunnelName,
		ClientName:  DefaultClientName,
	}
}

// DialFunc opens a connection to addr, the endpoint with its scheme removed.
type DialFunc func(ctx context.Context, addr string) (pool.Connection, error)

// Dial latency and failures, by scheme.
var (
	DialLatency = metrics.NewHistogram(
		"connpool_transport_dial_seconds",
		"Time taken to open a transport connection",
		metrics.DefaultLatencyBuckets,
	)
	DialErrors = metrics.NewCounterVec(
		"connpool_transport_dial_errors_total",
		"Total failed transport dials",
		"scheme",
	)
)

// Dialer dials endpoints by scheme. Its Dial method is a pool.Factory.
type Dialer struct {
	config Config

	mu      sync.Mutex
	schemes map[string]DialFunc
	i2p     *i2pSession
}

// NewDialer creates a Dialer with every built-in scheme registered.
func NewDialer(cfg Config) *Dialer {
	def := DefaultConfig()
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.SAMAddress == "" {
		cfg.SAMAddress = def.SAMAddress
	}
	if cfg.TunnelName == "" {
		cfg.TunnelName = def.TunnelName
	}
	if cfg.ClientName == "" {
		cfg.ClientName = def.ClientName
	}

	d := &Dialer{
		config: cfg,
		i2p:    newI2PSession(cfg),
	}
	d.schemes = map[string]DialFunc{
		"tcp":   d.dialTCP,
		"unix":  d.dialUnix,
		"i2p":   d.i2p.dial,
		"nats":  d.dialNATS,
		"kafka": d.dialKafka,
		"redis": d.dialRedis,
	}
	return d
}

// Handle registers fn for scheme, replacing any built-in handler.
func (d *Dialer) Handle(scheme string, fn DialFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.schemes[strings.ToLower(scheme)] = fn
}

// Dial opens a connection to endpoint.
func (d *Dialer) Dial(ctx context.Context, endpoint string) (pool.Connection, error) {
	scheme, addr, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	fn, ok := d.schemes[scheme]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.DialTimeout)
	defer cancel()

	timer := metrics.NewTimer(DialLatency)
	conn, err := fn(ctx, addr)
	if err != nil {
		DialErrors.With(scheme).Inc()
		log.WithField("endpoint", endpoint).WithError(err).Debug("dial failed")
		return nil, err
	}
	log.WithField("endpoint", endpoint).WithField("took", timer.ObserveDuration()).Debug("dialed")
	return conn, nil
}

// Close tears down shared sessions, such as the I2P tunnel. Connections
// already handed out stay open.
func (d *Dialer) Close() error {
	return d.i2p.close()
}

// ParseEndpoint splits endpoint into its scheme and the address
// the scheme's dialer receives. A bare host:port is TCP. For nats and redis
// the address is the full URL, which their clients parse themselves.
func ParseEndpoint(endpoint string) (scheme, addr string, err error) {
	if err := validation.Endpoint("endpoint", endpoint); err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}

	scheme, rest, found := strings.Cut(endpoint, "://")
	if !found {
		return "tcp", endpoint, nil
	}
	switch scheme {
	case "tcp", "kafka":
		if err := validation.HostPort("endpoint", rest); err != nil {
			return "", "", fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
		}
		return scheme, rest, nil
	case "nats", "redis":
		return scheme, scheme + "://" + rest, nil
	default:
		return scheme, rest, nil
	}
}
