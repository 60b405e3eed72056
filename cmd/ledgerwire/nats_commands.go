package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	natspkg "github.com/brojonat/ledgerwire/service/nats"
	"github.com/brojonat/ledgerwire/service/wallet"
	"github.com/brojonat/ledgerwire/service/wire"
	"github.com/urfave/cli/v2"
)

// subscribeCommand subscribes to wallet events.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to wallet events",
		ArgsUsage: "[account_index]",
		Description: `Subscribe to wallet events published to NATS JetStream.

Events are published to the subject wallet.events.{account_index}. Without an
account index, events of every account are shown.

Example:
  ledgerwire nats subscribe 0 --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "durable",
				Usage: "Durable consumer name (survives restarts)",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Replay every retained event instead of only new ones",
			},
		},
		Action: func(c *cli.Context) error {
			jsonOutput := c.Bool("json")
			opts := natspkg.ConsumeOptions{
				Account:    c.Args().First(),
				Durable:    c.String("durable"),
				DeliverAll: c.Bool("all"),
			}
			filter, err := natspkg.FilterSubject(opts.Account)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			sub, err := natspkg.NewSubscriber(c.String("nats-url"), wire.Default, cliLogger())
			if err != nil {
				return err
			}
			defer sub.Close()

			deliveries, err := sub.Consume(ctx, opts)
			if err != nil {
				return err
			}

			if !jsonOutput {
				fmt.Fprintf(c.App.Writer, "📡 Subscribing to: %s\n", filter)
				fmt.Fprintf(c.App.Writer, "   NATS: %s\n", c.String("nats-url"))
				if opts.Durable != "" {
					fmt.Fprintf(c.App.Writer, "   Consumer: %s (durable)\n", opts.Durable)
				}
				fmt.Fprintf(c.App.Writer, "\nWaiting for events... (Ctrl-C to exit)\n\n")
			}

			count := 0
			for {
				select {
				case d := <-deliveries:
					if d.Err != nil {
						fmt.Fprintf(c.App.ErrWriter, "Error decoding event on %s: %v\n", d.Subject, d.Err)
						continue
					}
					count++
					if err := printEvent(c.App.Writer, count, d.Event, jsonOutput); err != nil {
						return err
					}

				case <-ctx.Done():
					if !jsonOutput {
						fmt.Fprintf(c.App.Writer, "\n\n✅ Received %d events\n", count)
					}
					return nil
				}
			}
		},
	}
}

// publishCommand publishes wallet events read from a file.
func publishCommand() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "Publish wallet events from a file (JSON lines)",
		ArgsUsage: "[FILE|-]",
		Description: `Decode every Event document in the input and publish it to
wallet.events.{accountIndex}. Documents that fail to decode are reported and skipped.

Example:
  ledgerwire nats publish events.jsonl`,
		Action: func(c *cli.Context) error {
			in, closeIn, err := openInput(c.Args().First())
			if err != nil {
				return err
			}
			defer closeIn()

			events, failed, err := readEvents(in, wire.Default, c.App.ErrWriter)
			if err != nil {
				return err
			}

			pub, err := natspkg.NewPublisher(c.String("nats-url"), wire.Default, nil, cliLogger())
			if err != nil {
				return err
			}
			defer pub.Close()

			published := 0
			for _, e := range events {
				if err := pub.PublishEvent(c.Context, e); err != nil {
					fmt.Fprintf(c.App.ErrWriter, "account %d: %v\n", e.AccountIndex, err)
					failed++
					continue
				}
				published++
			}

			if c.Bool("json") {
				if err := json.NewEncoder(c.App.Writer).Encode(map[string]int{
					"published": published,
					"failed":    failed,
				}); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(c.App.Writer, "✅ Published %d events (%d failed)\n", published, failed)
			}
			if failed > 0 {
				return fmt.Errorf("%d events were not published", failed)
			}
			return nil
		},
	}
}

// readEvents decodes every Event in r, reporting failures on errOut.
func readEvents(r io.Reader, codec *wire.Codec, errOut io.Writer) ([]wallet.Event, int, error) {
	reader := wire.NewEnvelopeReader(r)
	var (
		events []wallet.Event
		failed int
	)
	for n := 1; ; n++ {
		env, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return events, failed, nil
		}
		if err == nil {
			var e wallet.Event
			e, err = wallet.DecodeEvent(codec, env)
			if err == nil {
				events = append(events, e)
				continue
			}
		} else if wire.ErrorKind(err) == wire.ErrKindMalformed {
			return nil, 0, fmt.Errorf("document %d: %w", n, err)
		}
		failed++
		fmt.Fprintf(errOut, "document %d: %v\n", n, err)
	}
}

// printEvent prints an event as JSON or in human-friendly form.
func printEvent(w io.Writer, n int, e wallet.Event, jsonOutput bool) error {
	if jsonOutput {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Event #%d\n", n)
	fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Account:      %d\n", e.AccountIndex)
	fmt.Fprintf(w, "Type:         %s\n", wire.VariantName(e.Event))
	switch ev := e.Event.(type) {
	case wallet.TransactionProgressEvent:
		fmt.Fprintf(w, "Stage:        %s (%d)\n", wire.VariantName(ev.Progress), wallet.Stage(ev.Progress))
	case wallet.TransactionInclusion:
		fmt.Fprintf(w, "Transaction:  %s\n", ev.TransactionID)
		fmt.Fprintf(w, "State:        %s\n", ev.InclusionState)
	case wallet.LedgerAddressGeneration:
		fmt.Fprintf(w, "Address:      %s\n", ev.Address)
	}
	fmt.Fprintf(w, "\n")
	return nil
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the WALLET_EVENTS JetStream stream",
		Description: `Show information about the JetStream stream including:
- Message count
- Consumers
- Storage usage
- Stream configuration

Example:
  ledgerwire nats inspect-stream`,
		Action: func(c *cli.Context) error {
			sub, err := natspkg.NewSubscriber(c.String("nats-url"), wire.Default, cliLogger())
			if err != nil {
				return err
			}
			defer sub.Close()

			info, err := sub.StreamInfo(context.Background())
			if err != nil {
				return err
			}

			w := c.App.Writer
			if c.Bool("json") {
				data, _ := json.MarshalIndent(info, "", "  ")
				fmt.Fprintln(w, string(data))
				return nil
			}

			fmt.Fprintf(w, "Stream: %s\n", info.Config.Name)
			fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
			fmt.Fprintf(w, "Description:  %s\n", info.Config.Description)
			fmt.Fprintf(w, "Subjects:     %v\n", info.Config.Subjects)
			fmt.Fprintf(w, "Messages:     %d\n", info.State.Msgs)
			fmt.Fprintf(w, "Bytes:        %d\n", info.State.Bytes)
			fmt.Fprintf(w, "First Seq:    %d\n", info.State.FirstSeq)
			fmt.Fprintf(w, "Last Seq:     %d\n", info.State.LastSeq)
			fmt.Fprintf(w, "Consumers:    %d\n", info.State.Consumers)
			fmt.Fprintf(w, "Max Age:      %s\n", info.Config.MaxAge)
			fmt.Fprintf(w, "Storage:      %s\n", info.Config.Storage)
			fmt.Fprintf(w, "\n")
			return nil
		},
	}
}
