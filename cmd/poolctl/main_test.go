package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-i2p/connpool/lib/config"
	"github.com/go-i2p/connpool/lib/rpc"
)

func runApp(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"poolctl"}, args...))
	require.NoError(t, err, out.String())
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	out := runApp(t, "version")
	assert.Contains(t, out, "poolctl version")
}

func TestConfigCommand(t *testing.T) {
	dir := t.TempDir()
	saved := filepath.Join(dir, "saved.toml")

	out := runApp(t, "--config", filepath.Join(dir, "missing.toml"), "config", "--write", saved)

	var decoded config.Config
	require.NoError(t, toml.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, config.DefaultConfig().Pool, decoded.Pool)

	loaded, err := config.LoadConfig(saved)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Pool, loaded.Pool)
}

func TestBenchCommand(t *testing.T) {
	dir := t.TempDir()
	socket := filepath.Join(dir, "rpc.sock")

	srvCfg := rpc.ServerConfig{UnixSocketPath: socket}
	srv, err := rpc.NewServer(srvCfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background(), srvCfg))
	t.Cleanup(func() { srv.Stop() })

	out := runApp(t,
		"--config", filepath.Join(dir, "missing.toml"),
		"bench", "--endpoint", "unix://"+socket, "-n", "20", "--concurrency", "4",
	)

	assert.Contains(t, out, "calls:      20 (0 failed)")
	assert.Contains(t, out, "unix://"+socket)
	assert.True(t, strings.Contains(out, "latency:"), out)
}

func TestPercentile(t *testing.T) {
	lat := make([]time.Duration, 10)
	for i := range lat {
		lat[i] = time.Duration(i+1) * time.Millisecond
	}
	assert.Equal(t, 5*time.Millisecond, percentile(lat, 50))
	assert.Equal(t, 9*time.Millisecond, percentile(lat, 90))
	assert.Equal(t, 10*time.Millisecond, percentile(lat, 99))
	assert.Equal(t, time.Millisecond, percentile(lat[:1], 50))
}
