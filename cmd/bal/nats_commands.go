package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"

	natspkg "github.com/dabberpk/BlockchainAccessLayer/service/nats"
)

// subscribeCommand streams transaction events from JetStream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Stream transaction events",
		ArgsUsage: "[txid]",
		Description: `Subscribe to transaction events published to NATS JetStream.

Events are published to the subject txns.{txid}. With no argument this
streams every event; with a txid it streams only that transaction.

Example:
  bal nats subscribe --json
  bal nats subscribe 4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "bal-cli",
			},
		},
		Action: func(c *cli.Context) error {
			subject := natspkg.StreamSubjects
			if c.NArg() > 0 {
				subject = fmt.Sprintf("txns.%s", c.Args().Get(0))
			}

			return streamEvents(subject, c.String("nats-url"), c.Bool("durable"), c.String("consumer-name"), c.Bool("json"))
		},
	}
}

// awaitCommand blocks until an event matching all the given filters
// arrives.
func awaitCommand() *cli.Command {
	return &cli.Command{
		Name:  "await",
		Usage: "Block until a transaction event matching criteria arrives",
		Description: `Wait for a transaction event that satisfies every given filter, print
it, and exit. At least one filter is required.

The --must-jq filters run against the full event JSON, so any field of
the event can be matched.

Example:
  bal nats await --from 1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa --amount-equal 50000
  bal nats await --must-jq '.state == "CONFIRMED"' --must-jq '.amount > 100000'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "txid",
				Usage: "Filter by exact transaction id",
			},
			&cli.StringFlag{
				Name:  "from",
				Usage: "Filter by sender address",
			},
			&cli.Int64Flag{
				Name:  "amount-equal",
				Usage: "Filter by exact amount in satoshis",
			},
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Aliases: []string{"jq"},
				Usage:   "jq filter that must evaluate to true (repeatable, all must match)",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   5 * time.Minute,
				Usage:   "How long to wait for a matching event",
			},
		},
		Action: func(c *cli.Context) error {
			txid := c.String("txid")
			from := c.String("from")
			amount := c.Int64("amount-equal")
			jqFilters := c.StringSlice("must-jq")
			jsonOutput := c.Bool("json")

			if txid == "" && from == "" && amount == 0 && len(jqFilters) == 0 {
				return fmt.Errorf("must specify at least one filter: --txid, --from, --amount-equal, or --must-jq")
			}

			compiledJQFilters := make([]*gojq.Code, len(jqFilters))
			for i, filter := range jqFilters {
				query, err := gojq.Parse(filter)
				if err != nil {
					return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
				}
				compiledJQFilters[i], err = gojq.Compile(query)
				if err != nil {
					return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
				}
			}

			matcher := func(event *natspkg.TransactionEvent, raw []byte) bool {
				if txid != "" && event.TxID != txid {
					return false
				}
				if from != "" && event.FromAddress != from {
					return false
				}
				if amount != 0 && event.Amount != amount {
					return false
				}
				return matchesJQFilters(compiledJQFilters, raw)
			}

			subject := natspkg.StreamSubjects
			if txid != "" {
				subject = fmt.Sprintf("txns.%s", txid)
			}

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Waiting for a matching transaction event...\n")
				if txid != "" {
					fmt.Fprintf(os.Stderr, "  TxID: %s\n", txid)
				}
				if from != "" {
					fmt.Fprintf(os.Stderr, "  From: %s\n", from)
				}
				if amount != 0 {
					fmt.Fprintf(os.Stderr, "  Amount: %d satoshis\n", amount)
				}
				for _, filter := range jqFilters {
					fmt.Fprintf(os.Stderr, "  jq Filter: %s\n", filter)
				}
				fmt.Fprintf(os.Stderr, "  Timeout: %v\n\n", c.Duration("timeout"))
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			event, err := awaitEvent(ctx, c.String("nats-url"), subject, matcher)
			if err != nil {
				return fmt.Errorf("failed to await transaction event: %w", err)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(event, "", "  ")
				fmt.Println(string(data))
			} else {
				printEvent(event, 1)
			}
			return nil
		},
	}
}

// awaitEvent consumes the stream until one event satisfies the matcher.
func awaitEvent(ctx context.Context, natsURL, subject string, matcher func(*natspkg.TransactionEvent, []byte) bool) (*natspkg.TransactionEvent, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	msgChan := make(chan jetstream.Msg, 10)
	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return nil, fmt.Errorf("failed to consume: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case msg := <-msgChan:
			var event natspkg.TransactionEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				msg.Ack()
				continue
			}
			matched := matcher(&event, msg.Data())
			msg.Ack()
			if matched {
				return &event, nil
			}

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// matchesJQFilters reports whether every compiled filter evaluates to a
// truthy value against the event JSON.
func matchesJQFilters(filters []*gojq.Code, raw []byte) bool {
	if len(filters) == 0 {
		return true
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false
	}

	for _, code := range filters {
		iter := code.Run(doc)
		v, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}
	return true
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

// streamEvents connects to NATS and prints transaction events until
// interrupted.
func streamEvents(subject, natsURL string, durable bool, consumerName string, jsonOutput bool) error {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if !jsonOutput {
		fmt.Printf("Subscribing to: %s\n", subject)
		fmt.Printf("   NATS: %s\n", natsURL)
		if durable {
			fmt.Printf("   Consumer: %s (durable)\n", consumerName)
		}
		fmt.Printf("\nWaiting for transaction events... (Ctrl-C to exit)\n\n")
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if durable {
		consumerConfig.Durable = consumerName
		consumerConfig.Name = consumerName
	}

	cons, err := js.CreateOrUpdateConsumer(context.Background(), natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	msgChan := make(chan jetstream.Msg, 10)
	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}
	defer consumeCtx.Stop()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var event natspkg.TransactionEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				if !jsonOutput {
					fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				}
				msg.Ack()
				continue
			}

			count++

			if jsonOutput {
				data, _ := json.Marshal(event)
				fmt.Println(string(data))
			} else {
				printEvent(&event, count)
			}

			msg.Ack()

		case <-sigChan:
			if !jsonOutput {
				fmt.Printf("\nReceived %d event(s)\n", count)
			}
			return nil
		}
	}
}

func printEvent(event *natspkg.TransactionEvent, count int) {
	fmt.Printf("─────────────────────────────────────────────────────\n")
	fmt.Printf("Event #%d\n", count)
	fmt.Printf("─────────────────────────────────────────────────────\n")
	fmt.Printf("TxID:         %s\n", event.TxID)
	fmt.Printf("State:        %s\n", event.State)
	if event.FromAddress != "" {
		fmt.Printf("From:         %s\n", event.FromAddress)
	}
	if event.ToAddress != "" {
		fmt.Printf("To:           %s\n", event.ToAddress)
	}
	fmt.Printf("Amount:       %d satoshis\n", event.Amount)
	if event.BlockHash != "" {
		fmt.Printf("Block:        %s (height %d)\n", event.BlockHash, event.BlockHeight)
	}
	if event.WatchID != 0 {
		fmt.Printf("Watch:        %d\n", event.WatchID)
	}
	if event.Error != "" {
		fmt.Printf("Error:        %s\n", event.Error)
	}
	fmt.Printf("Published:    %s\n", event.PublishedAt.Format(time.RFC3339))
	fmt.Printf("\n")
}

// inspectStreamCommand shows information about the JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the TRANSACTIONS JetStream stream",
		Description: `Show information about the JetStream stream including message count,
consumers, storage usage and stream configuration.

Example:
  bal nats inspect-stream`,
		Action: func(c *cli.Context) error {
			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(context.Background(), natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(info, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Stream: %s\n", info.Config.Name)
			fmt.Printf("─────────────────────────────────────────────────────\n")
			fmt.Printf("Description:  %s\n", info.Config.Description)
			fmt.Printf("Subjects:     %v\n", info.Config.Subjects)
			fmt.Printf("Messages:     %d\n", info.State.Msgs)
			fmt.Printf("Bytes:        %d\n", info.State.Bytes)
			fmt.Printf("First Seq:    %d\n", info.State.FirstSeq)
			fmt.Printf("Last Seq:     %d\n", info.State.LastSeq)
			fmt.Printf("Consumers:    %d\n", info.State.Consumers)
			fmt.Printf("Max Age:      %s\n", info.Config.MaxAge)
			fmt.Printf("Storage:      %s\n", info.Config.Storage)
			return nil
		},
	}
}
