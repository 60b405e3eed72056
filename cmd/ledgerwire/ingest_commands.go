package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/brojonat/ledgerwire/service/config"
	"github.com/brojonat/ledgerwire/service/temporal"
	"github.com/urfave/cli/v2"
)

// ingestCommand hands a file of Event documents to the ingest worker.
func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Ingest wallet events through the Temporal worker",
		ArgsUsage: "[FILE|-]",
		Description: `Start an ingest workflow for every Event document in the input. The worker
decodes the documents, archives them in Postgres and publishes them to NATS.
Documents are only checked for JSON syntax here; decode failures are reported
in the workflow result.

Examples:
  ledgerwire ingest events.jsonl
  ledgerwire ingest --wait --no-publish events.jsonl`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server host:port",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "task-queue",
				Usage:   "Temporal task queue",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   config.DefaultTaskQueue,
			},
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "Wait for the workflow to finish and print its result",
			},
			&cli.BoolFlag{
				Name:  "no-archive",
				Usage: "Do not archive the events in Postgres",
			},
			&cli.BoolFlag{
				Name:  "no-publish",
				Usage: "Do not publish the events to NATS",
			},
		},
		Action: func(c *cli.Context) error {
			in, closeIn, err := openInput(c.Args().First())
			if err != nil {
				return err
			}
			defer closeIn()

			docs, err := readDocuments(in)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				return fmt.Errorf("no documents in input")
			}

			input := temporal.IngestEventsInput{
				Documents: docs,
				Archive:   !c.Bool("no-archive"),
				Publish:   !c.Bool("no-publish"),
			}
			if !input.Archive && !input.Publish {
				return fmt.Errorf("--no-archive and --no-publish leave nothing to do")
			}

			tc, err := temporal.NewClient(
				c.String("temporal-host"),
				c.String("temporal-namespace"),
				c.String("task-queue"),
				cliLogger(),
			)
			if err != nil {
				return err
			}
			defer tc.Close()

			if !c.Bool("wait") {
				id, runID, err := tc.StartIngest(c.Context, input)
				if err != nil {
					return err
				}
				if c.Bool("json") {
					return outputJSON(c.App.Writer, map[string]any{
						"workflow_id": id,
						"run_id":      runID,
						"documents":   len(docs),
					})
				}
				fmt.Fprintf(c.App.Writer, "✓ Started ingest of %d documents\n", len(docs))
				fmt.Fprintf(c.App.Writer, "  Workflow: %s\n", id)
				fmt.Fprintf(c.App.Writer, "  Run:      %s\n", runID)
				return nil
			}

			result, err := tc.Ingest(c.Context, input)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				if err := outputJSON(c.App.Writer, result); err != nil {
					return err
				}
			} else {
				printIngestResult(c.App.Writer, result)
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d of %d documents failed to decode", result.Failed, result.Received)
			}
			return nil
		},
	}
}

// readDocuments splits r into JSON documents. Each document must be valid JSON;
// whether it decodes as an Event is left to the worker.
func readDocuments(r io.Reader) ([]json.RawMessage, error) {
	dec := json.NewDecoder(r)
	var docs []json.RawMessage
	for n := 1; ; n++ {
		var doc json.RawMessage
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: failed to parse envelope: %w", n, err)
		}
		docs = append(docs, doc)
	}
}

func printIngestResult(w io.Writer, r *temporal.IngestEventsResult) {
	fmt.Fprintf(w, "Received:   %d\n", r.Received)
	fmt.Fprintf(w, "Decoded:    %d\n", r.Decoded)
	fmt.Fprintf(w, "Failed:     %d\n", r.Failed)
	fmt.Fprintf(w, "Archived:   %d (%d duplicates)\n", r.Archived, r.Duplicates)
	fmt.Fprintf(w, "Published:  %d\n", r.Published)
	for _, f := range r.Failures {
		if f.Field != "" {
			fmt.Fprintf(w, "  document %d: %s (%s at %q): %s\n", f.Index+1, f.Kind, f.Field, f.Path, f.Error)
		} else {
			fmt.Fprintf(w, "  document %d: %s: %s\n", f.Index+1, f.Kind, f.Error)
		}
	}
}
