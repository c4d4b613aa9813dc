package main

import (
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/go-i2p/connpool/lib/rpc"
	"github.com/go-i2p/connpool/lib/transport"
)

var (
	benchEndpoints   cli.StringSlice
	benchRequests    int
	benchConcurrency int
	benchMethod      string
	benchByKey       bool
)

func benchCommand() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "call a JSON-RPC method through the pool and report latency",
		Description: `bench spreads calls over the given endpoints with a PooledClient
configured from the [pool], [transport], [resilience] and [ratelimit]
sections, then prints call latency and pool statistics.`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:        "endpoint",
				Aliases:     []string{"e"},
				Usage:       "server endpoint, repeatable (tcp://, unix://, i2p://, or host:port)",
				Required:    true,
				Destination: &benchEndpoints,
			},
			&cli.IntFlag{
				Name:        "requests",
				Aliases:     []string{"n"},
				Usage:       "total number of calls",
				Value:       1000,
				Destination: &benchRequests,
			},
			&cli.IntFlag{
				Name:        "concurrency",
				Usage:       "calls in flight at once",
				Value:       16,
				Destination: &benchConcurrency,
			},
			&cli.StringFlag{
				Name:        "method",
				Usage:       "method to call",
				Value:       "ping",
				Destination: &benchMethod,
			},
			&cli.BoolFlag{
				Name:        "by-key",
				Usage:       "route each call by key instead of round-robin",
				Destination: &benchByKey,
			},
		},
		Action: runBench,
	}
}

func runBench(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopMetrics := startMetrics(ctx, cfg.Metrics)
	defer stopMetrics()

	dialer := transport.NewDialer(cfg.TransportConfig())
	defer dialer.Close()

	client, err := rpc.NewPooledClient(rpc.PooledClientConfig{
		Endpoints: benchEndpoints.Value(),
		Pool:      cfg.PoolConfig(),
		AuthFile:  cfg.RPC.AuthFile,
		Dialer:    dialer,
		Wrap:      cfg.Decorate,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	var (
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, benchRequests)
		failures  int
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(benchConcurrency)
	for i := 0; i < benchRequests && gctx.Err() == nil; i++ {
		key := strconv.Itoa(i)
		g.Go(func() error {
			callStart := time.Now()
			var err error
			if benchByKey {
				err = client.CallKey(gctx, key, benchMethod, nil, nil)
			} else {
				err = client.Call(gctx, benchMethod, nil, nil)
			}
			elapsed := time.Since(callStart)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				log.WithError(err).Debug("call failed")
				return nil
			}
			latencies = append(latencies, elapsed)
			return nil
		})
	}
	_ = g.Wait()

	report(c.App.Writer, time.Since(start), latencies, failures, client)
	return nil
}

func report(w io.Writer, elapsed time.Duration, latencies []time.Duration, failures int, client *rpc.PooledClient) {
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	total := len(latencies) + failures

	fmt.Fprintf(w, "calls:      %d (%d failed)\n", total, failures)
	fmt.Fprintf(w, "elapsed:    %s\n", elapsed.Round(time.Millisecond))
	if elapsed > 0 {
		fmt.Fprintf(w, "throughput: %.1f calls/s\n", float64(total)/elapsed.Seconds())
	}
	if len(latencies) > 0 {
		fmt.Fprintf(w, "latency:    p50=%s p90=%s p99=%s max=%s\n",
			percentile(latencies, 50), percentile(latencies, 90),
			percentile(latencies, 99), latencies[len(latencies)-1])
	}

	stats := client.Stats()
	fmt.Fprintf(w, "pool:       created=%d destroyed=%d idle=%d acquire-timeouts=%d\n",
		stats.ConnectionsCreated, stats.ConnectionsDestroyed,
		stats.IdleConnections, stats.AcquisitionTimeouts)
	for _, info := range client.PoolInfo("") {
		fmt.Fprintf(w, "  %-40s total=%d idle=%d\n", info.Endpoint, info.Total, info.Idle)
	}
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p int) time.Duration {
	idx := (len(sorted)*p + 99) / 100
	if idx > 0 {
		idx--
	}
	return sorted[idx]
}
