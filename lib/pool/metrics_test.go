package pool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaugesArePerManager(t *testing.T) {
	const shared = "10.0.0.9:7000"
	primary, _ := newTestManager(t, newMockFactory(), nil, WithName("primary"))
	secondary, _ := newTestManager(t, newMockFactory(), nil, WithName("secondary"))

	_, err := primary.Acquire(context.Background(), shared)
	require.NoError(t, err)
	idleConn(t, secondary, shared)

	assert.EqualValues(t, 1, PoolConnections.With("primary", shared, "in_use").Value())
	assert.EqualValues(t, 0, PoolConnections.With("primary", shared, "idle").Value())
	assert.EqualValues(t, 1, PoolConnections.With("secondary", shared, "idle").Value())

	secondary.Clear()
	assert.False(t, PoolConnections.Delete("secondary", shared, "idle"), "cleared manager drops its gauges")
	assert.EqualValues(t, 1, PoolConnections.With("primary", shared, "in_use").Value())
	assert.True(t, PoolPending.Delete("primary", shared), "other manager's gauges survive")
}

func TestDefaultName(t *testing.T) {
	m, _ := newTestManager(t, newMockFactory(), nil)
	assert.Equal(t, DefaultName, m.name)
}
