package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/brojonat/ledgerwire/service/schema"
	"github.com/brojonat/ledgerwire/service/wire"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// decodeOptions controls runDecode.
type decodeOptions struct {
	entry      schema.Entry
	codec      *wire.Codec
	filters    []*gojq.Code
	jsonOutput bool
}

// decodeStats summarizes a decode run.
type decodeStats struct {
	Read     int
	Matched  int
	Filtered int
	Failed   int
}

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode JSON documents against a schema",
		ArgsUsage: "[FILE|-]",
		Description: `Decode one JSON document, or a stream of them (JSON lines), against a schema
and print the canonical envelope of every document that decodes.

Schemas: input, payload, essence, wallet-event, transaction-progress, block, event

Documents that fail to decode are reported on stderr; the command fails if any did.
--must-jq filters run against the canonical envelope; only documents for which every
filter is truthy are printed.

Example:
  ledgerwire decode --schema event --must-jq '.event.type == 5' events.jsonl --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "schema",
				Aliases:  []string{"s"},
				Usage:    "Schema to decode against",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Reject fields that are not part of the variant",
			},
			&cli.IntFlag{
				Name:  "max-depth",
				Usage: "Maximum variant nesting depth",
				Value: wire.DefaultMaxDepth,
			},
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Usage:   "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
				Aliases: []string{"jq"},
			},
		},
		Action: func(c *cli.Context) error {
			entry, err := schema.Lookup(c.String("schema"))
			if err != nil {
				return err
			}

			filters, err := compileFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			in, closeIn, err := openInput(c.Args().First())
			if err != nil {
				return err
			}
			defer closeIn()

			opts := decodeOptions{
				entry: entry,
				codec: wire.NewCodec(wire.Options{
					Strict:   c.Bool("strict"),
					MaxDepth: c.Int("max-depth"),
				}),
				filters:    filters,
				jsonOutput: c.Bool("json"),
			}

			stats, err := runDecode(in, c.App.Writer, c.App.ErrWriter, opts)
			if err != nil {
				return err
			}

			if !opts.jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "\n%d read, %d printed, %d filtered out, %d failed\n",
					stats.Read, stats.Matched, stats.Filtered, stats.Failed)
			}
			if stats.Failed > 0 {
				return fmt.Errorf("%d of %d documents failed to decode", stats.Failed, stats.Read)
			}
			return nil
		},
	}
}

// runDecode decodes every document in r. Decoded documents that pass the filters are
// written to out; decode failures are reported on errOut and counted.
func runDecode(r io.Reader, out, errOut io.Writer, opts decodeOptions) (decodeStats, error) {
	var stats decodeStats
	reader := wire.NewEnvelopeReader(r)

	for {
		env, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		stats.Read++
		if err != nil {
			var mismatch *wire.TypeMismatchError
			if !errors.As(err, &mismatch) {
				// The stream itself is broken; nothing after this can be read.
				return stats, fmt.Errorf("document %d: %w", stats.Read, err)
			}
			stats.Failed++
			fmt.Fprintf(errOut, "document %d: %v\n", stats.Read, err)
			continue
		}

		decoded, err := opts.entry.Decode(opts.codec, env)
		if err != nil {
			stats.Failed++
			fmt.Fprintf(errOut, "document %d: %s: %v\n", stats.Read, wire.ErrorKind(err), err)
			continue
		}

		canonical, err := json.Marshal(decoded.Envelope)
		if err != nil {
			return stats, fmt.Errorf("document %d: failed to encode: %w", stats.Read, err)
		}

		ok, err := matchesAll(opts.filters, canonical)
		if err != nil {
			return stats, fmt.Errorf("document %d: %w", stats.Read, err)
		}
		if !ok {
			stats.Filtered++
			continue
		}
		stats.Matched++

		if opts.jsonOutput {
			fmt.Fprintln(out, string(canonical))
			continue
		}
		if decoded.Tag != nil {
			fmt.Fprintf(out, "#%d  %s  %s (tag %d)\n", stats.Read, decoded.Schema, decoded.Variant, *decoded.Tag)
		} else {
			fmt.Fprintf(out, "#%d  %s  %s\n", stats.Read, decoded.Schema, decoded.Variant)
		}
		fmt.Fprintf(out, "    %s\n", canonical)
	}
}

func compileFilters(filters []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return compiled, nil
}

// matchesAll runs every filter against the JSON document. A filter that yields no
// value or an error does not match.
func matchesAll(filters []*gojq.Code, doc []byte) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}

	var v interface{}
	if err := json.Unmarshal(doc, &v); err != nil {
		return false, fmt.Errorf("failed to prepare document for jq: %w", err)
	}

	for _, code := range filters {
		iter := code.Run(v)
		result, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if _, isErr := result.(error); isErr {
			return false, nil
		}
		if !isTruthy(result) {
			return false, nil
		}
	}
	return true, nil
}

// isTruthy checks if a jq result value is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { f.Close() }, nil
}
