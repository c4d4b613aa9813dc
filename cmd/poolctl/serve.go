package main

import (
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/go-i2p/connpool/lib/rpc"
)

var (
	serveSocket string
	serveTCP    string
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run a JSON-RPC server with the ping, echo and status methods",
		Description: `serve listens on the configured Unix socket and/or TCP address until
interrupted. It is the counterpart of bench and of any PooledClient.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "socket",
				Usage:       "Unix socket path (overrides rpc.socket)",
				Destination: &serveSocket,
			},
			&cli.StringFlag{
				Name:        "tcp",
				Usage:       "TCP listen address (overrides rpc.tcp_address)",
				Destination: &serveTCP,
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveSocket != "" {
		cfg.RPC.Socket = serveSocket
	}
	if serveTCP != "" {
		cfg.RPC.TCPAddress = serveTCP
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopMetrics := startMetrics(ctx, cfg.Metrics)
	defer stopMetrics()

	serverCfg := rpc.ServerConfig{
		UnixSocketPath: cfg.RPC.Socket,
		TCPAddress:     cfg.RPC.TCPAddress,
		AuthFile:       cfg.RPC.AuthFile,
		MaxConnections: cfg.RPC.MaxConnections,
	}
	srv, err := rpc.NewServer(serverCfg)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx, serverCfg); err != nil {
		return err
	}

	log.WithField("socket", srv.UnixSocketPath()).
		WithField("tcp", srv.TCPAddress()).
		Info("poolctl serving")

	<-ctx.Done()
	log.Info("shutting down")
	return srv.Stop()
}
