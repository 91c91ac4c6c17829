package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dabberpk/BlockchainAccessLayer/client"
)

func createWatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Register a watch for incoming transfers",
		Description: `Register a watch on the server. The server streams every incoming
transfer to the wallet, optionally only those from a specific sender,
records them, and publishes them to NATS as they reach the requested
confidence.

Example:
  bal watch create --from 1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa --confidence 0.99`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "from",
				Usage: "Only report transfers from this sender address",
			},
			&cli.Float64Flag{
				Name:    "confidence",
				Aliases: []string{"c"},
				Usage:   "Required confidence in [0, 1); zero uses the server default",
			},
		},
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server-url"), nil, cliLogger())
			watch, err := cl.CreateWatch(context.Background(), c.String("from"), c.Float64("confidence"))
			if err != nil {
				return fmt.Errorf("failed to create watch: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(watch, "", "  ")
				fmt.Println(string(data))
			} else {
				printWatch(watch)
			}
			return nil
		},
	}
}

func listWatchesCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List registered watches",
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server-url"), nil, cliLogger())
			watches, err := cl.ListWatches(context.Background())
			if err != nil {
				return err
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(watches, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			if len(watches) == 0 {
				fmt.Println("No watches registered.")
				return nil
			}

			for _, watch := range watches {
				printWatch(watch)
				fmt.Println()
			}
			return nil
		},
	}
}

func getWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show a registered watch",
		ArgsUsage: "WATCH_ID",
		Action: func(c *cli.Context) error {
			id, err := parseWatchID(c)
			if err != nil {
				return err
			}

			cl := client.NewClient(c.String("server-url"), nil, cliLogger())
			watch, err := cl.GetWatch(context.Background(), id)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(watch, "", "  ")
				fmt.Println(string(data))
			} else {
				printWatch(watch)
			}
			return nil
		},
	}
}

func deleteWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Stop and remove a watch",
		ArgsUsage: "WATCH_ID",
		Action: func(c *cli.Context) error {
			id, err := parseWatchID(c)
			if err != nil {
				return err
			}

			cl := client.NewClient(c.String("server-url"), nil, cliLogger())
			if err := cl.DeleteWatch(context.Background(), id); err != nil {
				return err
			}

			if !c.Bool("json") {
				fmt.Printf("Watch %d deleted.\n", id)
			}
			return nil
		},
	}
}

func parseWatchID(c *cli.Context) (int64, error) {
	if c.NArg() != 1 {
		return 0, fmt.Errorf("watch id is required")
	}
	id, err := strconv.ParseInt(c.Args().Get(0), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid watch id %q: must be an integer", c.Args().Get(0))
	}
	return id, nil
}

func printWatch(watch *client.Watch) {
	fmt.Printf("ID:           %d\n", watch.ID)
	fmt.Printf("Status:       %s\n", watch.Status)
	if watch.SenderFilter != "" {
		fmt.Printf("From:         %s\n", watch.SenderFilter)
	}
	fmt.Printf("Confidence:   %g\n", watch.RequiredConfidence)
	fmt.Printf("Created:      %s\n", watch.CreatedAt.Format(time.RFC3339))
}
