// poolctl runs and exercises the connection pool.
//
// Usage:
//
//	poolctl [global flags] serve            Run a JSON-RPC server
//	poolctl [global flags] bench            Drive load through a pooled client
//	poolctl [global flags] config           Print the effective configuration
//	poolctl version                         Print version and exit
//
// Configuration is read from a TOML file (see lib/config) and CONNPOOL_*
// environment variables. Logging verbosity follows DEBUG_I2P.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/go-i2p/connpool/lib/config"
	"github.com/go-i2p/connpool/lib/metrics"
	"github.com/go-i2p/connpool/version"
)

var (
	configPath    string
	metricsListen string
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "poolctl: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "poolctl",
		Usage:   "run and exercise a per-endpoint connection pool",
		Version: version.Full(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to configuration file",
				EnvVars:     []string{"CONNPOOL_CONFIG"},
				Value:       defaultConfigPath(),
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:        "metrics-listen",
				Usage:       "serve Prometheus metrics on this address (overrides config)",
				EnvVars:     []string{"CONNPOOL_METRICS_LISTEN"},
				Destination: &metricsListen,
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			benchCommand(),
			configCommand(),
			versionCommand(),
		},
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "connpool", "config.toml")
}

// loadConfig reads the configuration and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if metricsListen != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = metricsListen
	}
	return cfg, nil
}

// startMetrics serves /metrics until ctx is done. It returns a stop
// function that is safe to call when metrics are disabled.
func startMetrics(ctx context.Context, cfg config.MetricsSection) func() {
	if !cfg.Enabled {
		return func() {}
	}
	metrics.RecordStartTime()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithField("listen", cfg.Listen).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "print version and exit",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "poolctl version %s\n", version.Full())
			return nil
		},
	}
}
