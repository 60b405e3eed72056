package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/brojonat/ledgerwire/client"
	natspkg "github.com/brojonat/ledgerwire/service/nats"
	"github.com/urfave/cli/v2"
)

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 5 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			serverURL := c.String("server-url")
			if serverURL == "" {
				return fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
			}

			cl := client.NewClient(serverURL, &http.Client{Timeout: c.Duration("timeout")}, cliLogger())
			if err := cl.Health(c.Context); err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "✓ Server is healthy\n")
			fmt.Fprintf(c.App.Writer, "  URL: %s\n", serverURL)
			return nil
		},
	}
}

func progressCommand() *cli.Command {
	return &cli.Command{
		Name:      "progress",
		Usage:     "Show the last tracked transaction progress stage of an account",
		ArgsUsage: "ACCOUNT",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 5 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one account index")
			}
			account, err := natspkg.ParseAccount(c.Args().First())
			if err != nil {
				return err
			}
			serverURL := c.String("server-url")
			if serverURL == "" {
				return fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
			}

			cl := client.NewClient(serverURL, &http.Client{Timeout: c.Duration("timeout")}, cliLogger())
			state, err := cl.Progress(c.Context, account)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				data, err := json.Marshal(state)
				if err != nil {
					return fmt.Errorf("failed to marshal state: %w", err)
				}
				fmt.Fprintln(c.App.Writer, string(data))
				return nil
			}

			fmt.Fprintf(c.App.Writer, "Account:   %d\n", account)
			fmt.Fprintf(c.App.Writer, "Stage:     %s (%d)\n", state.Variant, state.Stage)
			fmt.Fprintf(c.App.Writer, "Updated:   %s\n", state.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "ledgerwire CLI\n")
			fmt.Fprintf(c.App.Writer, "  Version: %s\n", version)
			fmt.Fprintf(c.App.Writer, "  Commit:  %s\n", commit)
			fmt.Fprintf(c.App.Writer, "  Built:   %s\n", date)
			return nil
		},
	}
}
