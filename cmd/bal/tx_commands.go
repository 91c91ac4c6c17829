package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dabberpk/BlockchainAccessLayer/client"
)

// cliLogger creates a logger that only reports errors to stderr, keeping
// stdout clean for command output.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func submitCommand() *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Send funds and block until the transaction confirms",
		ArgsUsage: "TO_ADDRESS AMOUNT_SATOSHIS",
		Description: `Submit a transaction through the server's wallet and block until it
reaches the requested confidence. The command prints the final state,
which is CONFIRMED unless the transaction was dropped along the way.

Example:
  bal tx submit bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh 50000 --confidence 0.99`,
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:    "confidence",
				Aliases: []string{"c"},
				Usage:   "Required confidence in [0, 1); zero uses the server default",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "How long to wait for confirmation (0 waits forever)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("to-address and amount are required")
			}

			toAddress := c.Args().Get(0)
			var amount int64
			if _, err := fmt.Sscanf(c.Args().Get(1), "%d", &amount); err != nil {
				return fmt.Errorf("invalid amount %q: must be an integer number of satoshis", c.Args().Get(1))
			}

			ctx := context.Background()
			if timeout := c.Duration("timeout"); timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			cl := client.NewClient(c.String("server-url"), nil, cliLogger())

			if !c.Bool("json") {
				fmt.Fprintf(os.Stderr, "Submitting %d satoshis to %s...\n", amount, toAddress)
			}

			tx, err := cl.Submit(ctx, toAddress, amount, c.Float64("confidence"))
			if err != nil {
				return fmt.Errorf("submit failed: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(tx, "", "  ")
				fmt.Println(string(data))
			} else {
				printTransaction(tx)
			}
			return nil
		},
	}
}

func stateCommand() *cli.Command {
	return &cli.Command{
		Name:      "state",
		Usage:     "Block until a transaction reaches a confidence threshold",
		ArgsUsage: "TXID",
		Description: `Wait for the transaction to reach the requested confidence and print
the observed state. NOT_FOUND means the transaction vanished before it
confirmed, usually because it was orphaned or double-spent.

Example:
  bal tx state 4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b`,
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:    "confidence",
				Aliases: []string{"c"},
				Usage:   "Required confidence in [0, 1); zero uses the server default",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   5 * time.Minute,
				Usage:   "How long to wait",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("txid is required")
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			cl := client.NewClient(c.String("server-url"), nil, cliLogger())
			result, err := cl.EnsureState(ctx, c.Args().Get(0), c.Float64("confidence"))
			if err != nil {
				return fmt.Errorf("state check failed: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(result, "", "  ")
				fmt.Println(string(data))
			} else {
				fmt.Printf("%s\n", result.State)
			}
			return nil
		},
	}
}

func orphanedCommand() *cli.Command {
	return &cli.Command{
		Name:      "orphaned",
		Usage:     "Block until a transaction is orphaned or vanishes",
		ArgsUsage: "TXID",
		Description: `Wait until the transaction is seen back in the mempool (PENDING,
meaning its containing block was orphaned) or disappears entirely
(NOT_FOUND). This never returns while the transaction sits in a block.

Example:
  bal tx orphaned 4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b --timeout 1h`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   time.Hour,
				Usage:   "How long to watch for orphaning",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("txid is required")
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			cl := client.NewClient(c.String("server-url"), nil, cliLogger())
			result, err := cl.DetectOrphaned(ctx, c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("orphan detection failed: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(result, "", "  ")
				fmt.Println(string(data))
			} else {
				fmt.Printf("%s\n", result.State)
			}
			return nil
		},
	}
}

func getTransactionCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show a stored transaction result",
		ArgsUsage: "TXID",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("txid is required")
			}

			cl := client.NewClient(c.String("server-url"), nil, cliLogger())
			record, err := cl.GetTransaction(context.Background(), c.Args().Get(0))
			if err != nil {
				return err
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(record, "", "  ")
				fmt.Println(string(data))
			} else {
				printTransactionRecord(record)
			}
			return nil
		},
	}
}

func listTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List stored transaction results",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "state",
				Usage: "Filter by state (NOT_FOUND, PENDING, CONFIRMED)",
			},
			&cli.StringFlag{
				Name:  "address",
				Usage: "Filter by sender or recipient address",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of results",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of results to skip",
			},
		},
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server-url"), nil, cliLogger())
			records, err := cl.ListTransactions(context.Background(), client.ListTransactionsParams{
				State:   c.String("state"),
				Address: c.String("address"),
				Limit:   c.Int("limit"),
				Offset:  c.Int("offset"),
			})
			if err != nil {
				return err
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(records, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			if len(records) == 0 {
				fmt.Println("No transactions found.")
				return nil
			}

			for _, record := range records {
				printTransactionRecord(record)
				fmt.Println()
			}
			fmt.Printf("%d transaction(s)\n", len(records))
			return nil
		},
	}
}

func printTransaction(tx *client.Transaction) {
	fmt.Printf("TxID:         %s\n", tx.TxID)
	fmt.Printf("State:        %s\n", tx.State)
	if tx.FromAddress != "" {
		fmt.Printf("From:         %s\n", tx.FromAddress)
	}
	if tx.ToAddress != "" {
		fmt.Printf("To:           %s\n", tx.ToAddress)
	}
	fmt.Printf("Amount:       %d satoshis\n", tx.Amount)
	if tx.BlockHash != "" {
		fmt.Printf("Block:        %s (height %d)\n", tx.BlockHash, tx.BlockHeight)
	}
}

func printTransactionRecord(record *client.TransactionRecord) {
	fmt.Printf("TxID:         %s\n", record.TxID)
	fmt.Printf("State:        %s\n", record.State)
	if record.FromAddress != nil {
		fmt.Printf("From:         %s\n", *record.FromAddress)
	}
	if record.ToAddress != nil {
		fmt.Printf("To:           %s\n", *record.ToAddress)
	}
	fmt.Printf("Amount:       %d satoshis\n", record.Amount)
	if record.BlockHash != nil && record.BlockHeight != nil {
		fmt.Printf("Block:        %s (height %d)\n", *record.BlockHash, *record.BlockHeight)
	}
	fmt.Printf("Confidence:   %g\n", record.RequiredConfidence)
	fmt.Printf("Updated:      %s\n", record.UpdatedAt.Format(time.RFC3339))
}
