package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dabberpk/BlockchainAccessLayer/client"
)

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server and node health",
		Description: `Probe the server's health endpoint, which in turn probes the Bitcoin
node connection.

Example:
  bal server health`,
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			cl := client.NewClient(c.String("server-url"), nil, cliLogger())
			health, err := cl.Health(ctx)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(health, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Status:       %s\n", health.Status)
			if health.NodeVersion != "" {
				fmt.Printf("Node:         %s\n", health.NodeVersion)
			}
			if health.Error != "" {
				fmt.Printf("Error:        %s\n", health.Error)
			}

			if health.Status != "ok" {
				return fmt.Errorf("server is unhealthy")
			}
			return nil
		},
	}
}
