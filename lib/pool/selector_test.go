package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-i2p/connpool/lib/validation"
)

func idleRecords() []*pooledConn {
	base := time.Unix(1000, 0)
	return []*pooledConn{
		{id: "a", useCount: 5, lastUsed: base.Add(1 * time.Second)},
		{id: "b", useCount: 1, lastUsed: base.Add(3 * time.Second)},
		{id: "c", useCount: 3, lastUsed: base.Add(2 * time.Second)},
	}
}

func TestPickRoundRobin(t *testing.T) {
	ep := &endpointPool{}
	idle := idleRecords()

	var got []string
	for i := 0; i < 4; i++ {
		got = append(got, RoundRobin.pick(ep, idle).id)
	}
	assert.Equal(t, []string{"a", "b", "c", "a"}, got)
}

func TestPickLeastConnections(t *testing.T) {
	assert.Equal(t, "b", LeastConnections.pick(&endpointPool{}, idleRecords()).id)
}

func TestPickLeastLatency(t *testing.T) {
	assert.Equal(t, "b", LeastLatency.pick(&endpointPool{}, idleRecords()).id)
}

func TestPickRandom(t *testing.T) {
	idle := idleRecords()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		seen[Random.pick(&endpointPool{}, idle).id] = true
	}
	assert.Len(t, seen, 3)
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []Strategy{RoundRobin, LeastConnections, Random, LeastLatency} {
		parsed, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := ParseStrategy("fastest")
	assert.ErrorIs(t, err, validation.ErrInvalidFormat)
	assert.Equal(t, "Strategy(9)", Strategy(9).String())
}

func TestStrategyText(t *testing.T) {
	var s Strategy
	require.NoError(t, s.UnmarshalText([]byte("least-latency")))
	assert.Equal(t, LeastLatency, s)

	text, err := LeastConnections.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "least-connections", string(text))

	_, err = Strategy(-1).MarshalText()
	assert.Error(t, err)
	assert.Error(t, s.UnmarshalText([]byte("")))
}

func TestStrategyAppliedOnAcquire(t *testing.T) {
	m, _ := newTestManager(t, newMockFactory(), func(c *Config) { c.Strategy = LeastConnections })

	busy := idleConn(t, m, ep)
	for i := 0; i < 3; i++ {
		conn, err := m.Acquire(t.Context(), ep)
		require.NoError(t, err)
		require.Same(t, busy, conn)
		require.NoError(t, m.Release(conn))
	}

	// Hold the worn connection so a second one gets created, then return both.
	a, err := m.Acquire(t.Context(), ep)
	require.NoError(t, err)
	fresh, err := m.Acquire(t.Context(), ep)
	require.NoError(t, err)
	require.NotSame(t, a, fresh)
	require.NoError(t, m.Release(a))
	require.NoError(t, m.Release(fresh))

	conn, err := m.Acquire(t.Context(), ep)
	require.NoError(t, err)
	assert.Same(t, fresh, conn, "least used connection is preferred")
}
