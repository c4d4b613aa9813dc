package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/go-i2p/i2pkeys"
	"github.com/go-i2p/onramp"

	"github.com/go-i2p/connpool/lib/pool"
)

// i2pSession owns the SAM session shared by every i2p:// connection. It is
// opened on first dial.
type i2pSession struct {
	mu      sync.Mutex
	name    string
	samAddr string
	options []string
	garlic  *onramp.Garlic
}

func newI2PSession(cfg Config) *i2pSession {
	return &i2pSession{
		name:    cfg.TunnelName,
		samAddr: cfg.SAMAddress,
		options: cfg.SAMOptions,
	}
}

// ParseDestination accepts a .i2p hostname (including .b32.i2p) or a full
// base64 destination and returns the address to dial.
func ParseDestination(dest string) (string, error) {
	if strings.HasSuffix(dest, ".i2p") {
		return dest, nil
	}
	addr, err := i2pkeys.NewI2PAddrFromString(dest)
	if err != nil {
		return "", fmt.Errorf("%w: i2p destination: %w", ErrInvalidEndpoint, err)
	}
	return addr.Base32(), nil
}

func (s *i2pSession) open() (*onramp.Garlic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.garlic != nil {
		return s.garlic, nil
	}

	options := s.options
	if len(options) == 0 {
		options = onramp.OPT_DEFAULTS
	}
	log.WithField("name", s.name).WithField("sam", s.samAddr).Debug("opening I2P session")
	garlic, err := onramp.NewGarlic(s.name, s.samAddr, options)
	if err != nil {
		return nil, fmt.Errorf("opening I2P session: %w", err)
	}
	s.garlic = garlic
	return garlic, nil
}

func (s *i2pSession) dial(ctx context.Context, dest string) (pool.Connection, error) {
	addr, err := ParseDestination(dest)
	if err != nil {
		return nil, err
	}
	garlic, err := s.open()
	if err != nil {
		return nil, err
	}

	type result struct {
		c   net.Conn
		err error
	}
	done := make(chan result, 1)
	go func() {
		c, err := garlic.Dial("tcp", addr)
		done <- result{c, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return newConn(r.c), nil
	case <-ctx.Done():
		// The streaming dial cannot be interrupted; close it when it lands.
		go func() {
			if r := <-done; r.c != nil {
				_ = r.c.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (s *i2pSession) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.garlic == nil {
		return nil
	}
	err := s.garlic.Close()
	s.garlic = nil
	return err
}
