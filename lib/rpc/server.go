package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-i2p/connpool/lib/metrics"
)

const (
	// MaxRequestSize caps one request line.
	MaxRequestSize = 1 << 20
	// HandlerTimeout bounds a single handler call.
	HandlerTimeout = 30 * time.Second
	// IdleTimeout is how long a client connection may sit between
	// requests. Pooled clients hold connections open, so it is long.
	IdleTimeout = 5 * time.Minute
	// WriteTimeout bounds writing one response.
	WriteTimeout = 10 * time.Second
)

// ErrRequestTooLarge ends a session whose request line exceeds MaxRequestSize.
var ErrRequestTooLarge = errors.New("request too large")

var (
	serverRequests = metrics.NewCounterVec("connpool_rpc_server_requests_total",
		"RPC requests handled, by method and outcome", "method", "outcome")
	serverLatency = metrics.NewHistogram("connpool_rpc_server_request_seconds",
		"Time spent in RPC handlers", metrics.DefaultLatencyBuckets)
)

// Handler serves one method. A returned *Error is sent as is; any other
// error goes through FromError.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// ServerConfig configures a Server. NewServer reads AuthFile and
// MaxConnections; Start reads the listener addresses.
type ServerConfig struct {
	UnixSocketPath string
	TCPAddress     string
	// AuthFile holds the hex token TCP clients must present. Empty
	// disables auth.
	AuthFile       string
	MaxConnections int
}

// Server answers JSON-RPC requests on a unix socket, a TCP address, or both.
type Server struct {
	mu        sync.RWMutex
	handlers  map[string]Handler
	listeners map[string]net.Listener
	running   bool
	started   time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	token   []byte
	limiter *ConnectionLimiter
}

// NewServer returns a stopped server with ping, echo and status registered.
func NewServer(cfg ServerConfig) (*Server, error) {
	s := &Server{
		handlers:  make(map[string]Handler),
		listeners: make(map[string]net.Listener),
		limiter:   NewConnectionLimiter(cfg.MaxConnections),
	}
	s.limiter.SetOnReject(func(addr net.Addr) {
		log.WithError(ErrTooManyConnections).
			WithField("remote", addr.String()).
			WithField("max", s.limiter.MaxConnections()).
			Warn("connection rejected")
	})

	if cfg.AuthFile != "" {
		token, err := loadOrCreateAuthToken(cfg.AuthFile)
		if err != nil {
			return nil, fmt.Errorf("auth token: %w", err)
		}
		s.token = token
	}

	s.registerBuiltins()
	return s, nil
}

// RegisterHandler adds or replaces the handler for method.
func (s *Server) RegisterHandler(method string, h Handler) {
	s.mu.Lock()
	s.handlers[method] = h
	s.mu.Unlock()
}

// Start opens the listeners named in cfg and serves until ctx ends or
// Stop is called. If any listener fails, the others are closed again.
func (s *Server) Start(ctx context.Context, cfg ServerConfig) error {
	type endpoint struct{ network, address string }
	var eps []endpoint
	if cfg.UnixSocketPath != "" {
		eps = append(eps, endpoint{"unix", cfg.UnixSocketPath})
	}
	if cfg.TCPAddress != "" {
		eps = append(eps, endpoint{"tcp", cfg.TCPAddress})
	}
	if len(eps) == 0 {
		return errors.New("rpc: no listeners configured")
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("rpc: server already running")
	}
	s.running = true
	s.started = time.Now()
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	for _, ep := range eps {
		if err := s.listen(ctx, ep.network, ep.address); err != nil {
			s.Stop()
			return err
		}
	}
	return nil
}

func (s *Server) listen(ctx context.Context, network, address string) error {
	if network == "unix" {
		// A socket file left by a previous run would make Listen fail.
		_ = os.Remove(address)
		if err := os.MkdirAll(filepath.Dir(address), 0o700); err != nil {
			return fmt.Errorf("creating socket dir: %w", err)
		}
	}

	ln, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", network, err)
	}
	if network == "unix" {
		if err := os.Chmod(address, 0o600); err != nil {
			ln.Close()
			return fmt.Errorf("chmod socket: %w", err)
		}
	}

	s.mu.Lock()
	s.listeners[network] = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.accept(ctx, ln, network)
	log.WithField("network", network).WithField("address", ln.Addr().String()).Info("RPC server listening")
	return nil
}

func (s *Server) accept(ctx context.Context, ln net.Listener, network string) {
	defer s.wg.Done()
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				log.WithError(err).WithField("network", network).Error("accept failed")
			}
			return
		}
		if conn = s.limiter.TryAccept(conn); conn == nil {
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.newSession(conn, network).serve(ctx)
		}()
	}
}

// dispatch runs the handler for an authenticated request.
func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	s.mu.RLock()
	h, ok := s.handlers[req.Method]
	s.mu.RUnlock()
	if !ok {
		serverRequests.With("unknown", "error").Inc()
		return NewErrorResponse(req.ID, ErrMethodNotFound(req.Method))
	}

	ctx, cancel := context.WithTimeout(ctx, HandlerTimeout)
	defer cancel()

	timer := metrics.NewTimer(serverLatency)
	result, err := h(ctx, req.Params)
	timer.ObserveDuration()
	if err != nil {
		serverRequests.With(req.Method, "error").Inc()
		log.WithError(err).WithField("method", req.Method).Debug("handler failed")
		return NewErrorResponse(req.ID, FromError(err))
	}

	resp, err := NewSuccessResponse(req.ID, result)
	if err != nil {
		serverRequests.With(req.Method, "error").Inc()
		log.WithError(err).WithField("method", req.Method).Error("encoding result")
		return NewErrorResponse(req.ID, ErrInternal(""))
	}
	serverRequests.With(req.Method, "ok").Inc()
	return resp
}

// Stop closes every listener and client connection and waits for in-flight
// handlers. Stopping a stopped server is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	clear(s.listeners)
	s.mu.Unlock()
	log.Info("RPC server stopped")
	return nil
}

func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// AuthToken returns the hex token TCP clients must send, or "" when auth
// is off.
func (s *Server) AuthToken() string {
	if s.token == nil {
		return ""
	}
	return hex.EncodeToString(s.token)
}

func (s *Server) address(network string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ln, ok := s.listeners[network]; ok {
		return ln.Addr().String()
	}
	return ""
}

// UnixSocketPath returns the socket path while listening on one.
func (s *Server) UnixSocketPath() string { return s.address("unix") }

// TCPAddress returns the bound TCP address, useful after listening on port 0.
func (s *Server) TCPAddress() string { return s.address("tcp") }

func (s *Server) ActiveConnections() int { return s.limiter.ActiveConnections() }

func (s *Server) MaxConnections() int { return s.limiter.MaxConnections() }
