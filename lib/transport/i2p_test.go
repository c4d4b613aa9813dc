package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-i2p/connpool/lib/pool"
	"github.com/go-i2p/connpool/lib/testutil"
)

func TestI2PSessionLazy(t *testing.T) {
	d := NewDialer(Config{SAMAddress: "127.0.0.1:1"})
	assert.Nil(t, d.i2p.garlic, "no session before the first i2p dial")
	assert.NoError(t, d.Close())
}

func TestDialI2PInvalidDestination(t *testing.T) {
	d := NewDialer(DefaultConfig())
	defer d.Close()

	_, err := d.Dial(context.Background(), "i2p://!!!not-base64!!!")
	assert.ErrorIs(t, err, ErrInvalidEndpoint)
	assert.Nil(t, d.i2p.garlic, "a bad destination must not open a session")
}

func TestDialI2P(t *testing.T) {
	sam := testutil.RequireSAM(t)

	cfg := DefaultConfig()
	cfg.SAMAddress = sam
	cfg.TunnelName = "connpool-test"
	d := NewDialer(cfg)
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	conn, err := d.Dial(ctx, "i2p://i2p-projekt.i2p")
	if err != nil {
		t.Skipf("destination unreachable over I2P: %v", err)
	}
	defer conn.Close()

	_, ok := conn.(pool.Prober)
	assert.True(t, ok)
	require.NotNil(t, d.i2p.garlic)
}
