package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "fleet-agent",
		Usage: "Tracks this device and keeps the fleet stores in step with the ERP backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "configs/config.yaml",
				Usage:   "path to the YAML configuration",
				EnvVars: []string{"FLEET_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			locateCommand(),
			distanceCommand(),
			invoiceCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		logger.Fatal().Err(err).Send()
	}
}
