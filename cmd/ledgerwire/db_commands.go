package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/brojonat/ledgerwire/service/db"
	natspkg "github.com/brojonat/ledgerwire/service/nats"
	"github.com/brojonat/ledgerwire/service/wire"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func dbCommands() *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Wallet event archive commands",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Postgres connection string",
				EnvVars: []string{"DATABASE_URL"},
			},
		},
		Subcommands: []*cli.Command{
			listEventsCommand(),
			countEventsCommand(),
			pruneEventsCommand(),
			migrateCommand(),
		},
	}
}

func listEventsCommand() *cli.Command {
	return &cli.Command{
		Name:      "events",
		Usage:     "List archived wallet events, newest first",
		ArgsUsage: "[ACCOUNT]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Usage:   "Filter by event type (e.g. TransactionProgress)",
			},
			&cli.StringFlag{
				Name:  "since",
				Usage: "Show events received since this time (RFC3339 format)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of events",
				Value:   50,
			},
		},
		Action: func(c *cli.Context) error {
			params, err := listParams(c.Args().First(), c.String("type"), c.String("since"), c.Int("limit"))
			if err != nil {
				return err
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			events, err := store.ListEvents(context.Background(), params)
			if err != nil {
				return fmt.Errorf("failed to list events: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, events)
			}

			printArchivedEvents(c.App.Writer, events)
			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d events\n", len(events))
			return nil
		},
	}
}

func countEventsCommand() *cli.Command {
	return &cli.Command{
		Name:      "counts",
		Usage:     "Count archived events of an account per event type",
		ArgsUsage: "<ACCOUNT>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: account index")
			}
			account, err := natspkg.ParseAccount(c.Args().First())
			if err != nil {
				return err
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			counts, err := store.CountEventsByType(context.Background(), account)
			if err != nil {
				return fmt.Errorf("failed to count events: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, counts)
			}

			printCounts(c.App.Writer, counts)
			return nil
		},
	}
}

func pruneEventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete archived events received before a cutoff",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:     "older-than",
				Usage:    "Delete events older than this duration (e.g. 720h)",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			olderThan := c.Duration("older-than")
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			cutoff := time.Now().Add(-olderThan)
			n, err := store.DeleteEventsBefore(context.Background(), cutoff)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]any{
					"deleted": n,
					"before":  cutoff.UTC().Format(time.RFC3339),
				})
			}
			fmt.Fprintf(c.App.Writer, "✓ Deleted %d events received before %s\n", n, cutoff.UTC().Format(time.RFC3339))
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the archive table if it does not exist",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(context.Background()); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "✓ Archive schema is up to date")
			return nil
		},
	}
}

// listParams builds the ListEvents filter from command line values.
func listParams(account, eventType, since string, limit int) (db.ListEventsParams, error) {
	params := db.ListEventsParams{
		EventType: eventType,
		Limit:     int32(limit),
	}
	if account != "" {
		a, err := natspkg.ParseAccount(account)
		if err != nil {
			return db.ListEventsParams{}, err
		}
		params.AccountIndex = &a
	}
	if since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return db.ListEventsParams{}, fmt.Errorf("invalid time format (use RFC3339): %w", err)
		}
		params.Since = &t
	}
	return params, nil
}

func printArchivedEvents(w io.Writer, events []*db.ArchivedEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECEIVED\tACCOUNT\tTYPE\tDETAIL\tMESSAGE ID")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			e.ReceivedAt.Format(time.RFC3339),
			e.AccountIndex,
			e.EventType,
			eventDetail(e),
			e.MessageID,
		)
	}
	tw.Flush()
}

func printCounts(w io.Writer, counts map[string]int64) {
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tCOUNT")
	for _, t := range types {
		fmt.Fprintf(tw, "%s\t%d\n", t, counts[t])
	}
	tw.Flush()
}

// eventDetail names the progress step of a progress event and is "-" otherwise.
func eventDetail(a *db.ArchivedEvent) string {
	e, err := a.Decode(wire.Default)
	if err != nil {
		return "(undecodable)"
	}
	if p, ok := e.Progress(); ok {
		return wire.VariantName(p)
	}
	return "-"
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db.NewStore(pool), pool.Close, nil
}

// Helper function to output JSON
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
