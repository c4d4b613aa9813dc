package pool

import (
	"fmt"
	"math/rand/v2"

	"github.com/go-i2p/connpool/lib/validation"
)

// Strategy chooses which idle connection of an endpoint an acquisition gets.
type Strategy int

const (
	// RoundRobin rotates a per-endpoint cursor over the idle connections.
	RoundRobin Strategy = iota
	// LeastConnections picks the idle connection with the smallest use count.
	LeastConnections
	// Random picks uniformly.
	Random
	// LeastLatency picks the most recently used idle connection, as a cheap
	// stand-in for the one most recently proven responsive. No latency is measured.
	LeastLatency
)

var strategyNames = map[Strategy]string{
	RoundRobin:       "round-robin",
	LeastConnections: "least-connections",
	Random:           "random",
	LeastLatency:     "least-latency",
}

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

func (s Strategy) valid() bool {
	_, ok := strategyNames[s]
	return ok
}

// ParseStrategy parses a configuration name such as "least-connections".
func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return 0, validation.Invalidf("strategy", validation.ErrInvalidFormat,
		"unknown strategy %q (want round-robin, least-connections, random or least-latency)", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("pool: cannot marshal %s", s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// pick returns one of idle according to the strategy. idle must be non-empty.
// The round-robin cursor lives on the endpoint pool.
func (s Strategy) pick(ep *endpointPool, idle []*pooledConn) *pooledConn {
	switch s {
	case LeastConnections:
		best := idle[0]
		for _, pc := range idle[1:] {
			if pc.useCount < best.useCount {
				best = pc
			}
		}
		return best
	case Random:
		return idle[rand.IntN(len(idle))]
	case LeastLatency:
		best := idle[0]
		for _, pc := range idle[1:] {
			if pc.lastUsed.After(best.lastUsed) {
				best = pc
			}
		}
		return best
	default:
		pc := idle[ep.next%len(idle)]
		ep.next++
		return pc
	}
}
