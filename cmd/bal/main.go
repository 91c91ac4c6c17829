package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "bal",
		Usage: "Bitcoin transaction monitoring service CLI",
		Description: `A command-line tool for managing and debugging the transaction
monitoring service.

Use this CLI to submit transactions, wait for confirmations, manage
incoming-transfer watches, and stream transaction events.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			{
				Name:  "tx",
				Usage: "Transaction submission and monitoring commands",
				Subcommands: []*cli.Command{
					submitCommand(),
					stateCommand(),
					orphanedCommand(),
					getTransactionCommand(),
					listTransactionsCommand(),
				},
			},
			{
				Name:  "watch",
				Usage: "Incoming-transfer watch commands",
				Subcommands: []*cli.Command{
					createWatchCommand(),
					listWatchesCommand(),
					getWatchCommand(),
					deleteWatchCommand(),
				},
			},
			{
				Name:  "nats",
				Usage: "NATS transaction streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					awaitCommand(),
					inspectStreamCommand(),
				},
			},
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "HTTP server URL",
				EnvVars: []string{"BAL_SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
