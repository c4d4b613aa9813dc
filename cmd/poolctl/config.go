package main

import (
	"github.com/urfave/cli/v2"

	"github.com/go-i2p/connpool/lib/config"
)

var (
	configDefaults bool
	configWrite    string
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "print the effective configuration as TOML",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "defaults",
				Usage:       "print the built-in defaults instead of the loaded file",
				Destination: &configDefaults,
			},
			&cli.StringFlag{
				Name:        "write",
				Usage:       "also save the configuration to this path",
				Destination: &configWrite,
			},
		},
		Action: runConfig,
	}
}

func runConfig(c *cli.Context) error {
	cfg := config.DefaultConfig()
	if !configDefaults {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	if _, err := c.App.Writer.Write(data); err != nil {
		return err
	}

	if configWrite != "" {
		if err := config.SaveConfig(cfg, configWrite); err != nil {
			return err
		}
		log.WithField("path", configWrite).Info("configuration saved")
	}
	return nil
}
