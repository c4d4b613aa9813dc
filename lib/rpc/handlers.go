package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-i2p/connpool/version"
)

func (s *Server) registerBuiltins() {
	s.handlers["ping"] = s.Ping
	s.handlers["echo"] = s.Echo
	s.handlers["status"] = s.Status
}

// Ping answers "pong". Pooled clients use it as their liveness probe.
func (s *Server) Ping(ctx context.Context, params json.RawMessage) (any, error) {
	return "pong", nil
}

// Echo returns its params unchanged.
func (s *Server) Echo(ctx context.Context, params json.RawMessage) (any, error) {
	if len(params) == 0 {
		return nil, nil
	}
	return params, nil
}

// Status reports the server version, uptime and connection usage.
func (s *Server) Status(ctx context.Context, params json.RawMessage) (any, error) {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	return &StatusResult{
		Version:           version.Full(),
		Protocol:          ProtocolVersion,
		Uptime:            formatUptime(time.Since(started)),
		ActiveConnections: s.ActiveConnections(),
		MaxConnections:    s.MaxConnections(),
	}, nil
}

// formatUptime rounds to a precision that suits the magnitude.
func formatUptime(d time.Duration) string {
	switch {
	case d < time.Minute:
		return d.Round(time.Second).String()
	case d < 24*time.Hour:
		return d.Round(time.Minute).String()
	default:
		return d.Round(time.Hour).String()
	}
}
