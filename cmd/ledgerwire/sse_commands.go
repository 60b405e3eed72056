package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/brojonat/ledgerwire/client"
	"github.com/brojonat/ledgerwire/service/server"
	"github.com/brojonat/ledgerwire/service/wallet"
	"github.com/urfave/cli/v2"
)

func sseCommands() *cli.Command {
	return &cli.Command{
		Name:  "sse",
		Usage: "Server-Sent Events (SSE) streaming commands",
		Subcommands: []*cli.Command{
			streamCommand(),
		},
	}
}

func streamCommand() *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Usage:     "Stream wallet events via SSE (HTTP)",
		ArgsUsage: "[account_index]",
		Action: func(c *cli.Context) error {
			account := c.Args().First()
			jsonOutput := c.Bool("json")

			// Create context that cancels on interrupt
			ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cl := client.NewClient(c.String("server-url"), nil, cliLogger())

			if !jsonOutput {
				if account != "" {
					fmt.Fprintf(c.App.ErrWriter, "Connecting to SSE stream for account: %s\n", account)
				} else {
					fmt.Fprintf(c.App.ErrWriter, "Connecting to SSE stream for all accounts\n")
				}
				fmt.Fprintf(c.App.ErrWriter, "Streaming events... (Ctrl+C to stop)\n\n")
			}

			err := cl.StreamEvents(ctx, account, func(m client.StreamMessage) error {
				return handleSSEMessage(c.App.Writer, c.App.ErrWriter, m, jsonOutput)
			})
			if err != nil && ctx.Err() == nil {
				return err
			}
			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "\nDisconnected\n")
			}
			return nil
		},
	}
}

func handleSSEMessage(out, errOut io.Writer, m client.StreamMessage, jsonOutput bool) error {
	switch m.Event {
	case "connected":
		if !jsonOutput {
			var info map[string]interface{}
			if err := json.Unmarshal([]byte(m.Data), &info); err != nil {
				return err
			}
			fmt.Fprintf(errOut, "✓ Subscribed to account: %v\n\n", info["account"])
		}
		return nil

	case "wallet_event":
		if jsonOutput {
			fmt.Fprintln(out, m.Data)
			return nil
		}

		var ev server.StreamEvent
		if err := json.Unmarshal([]byte(m.Data), &ev); err != nil {
			return err
		}
		var e wallet.Event
		if err := json.Unmarshal(ev.Event, &e); err != nil {
			return fmt.Errorf("failed to decode streamed event: %w", err)
		}
		fmt.Fprintf(out, "%s  account=%d  %s", ev.Subject, e.AccountIndex, ev.EventType)
		if ev.Progress != nil {
			fmt.Fprintf(out, "  %s -> %s (%s)", orDash(ev.Progress.Previous), ev.Progress.Current, ev.Progress.Result)
		}
		fmt.Fprintln(out)
		return nil

	default:
		// Unknown event type, ignore
		return nil
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
