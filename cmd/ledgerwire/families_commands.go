package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/brojonat/ledgerwire/service/schema"
	"github.com/urfave/cli/v2"
)

func familiesCommand() *cli.Command {
	return &cli.Command{
		Name:      "families",
		Usage:     "Show the tag tables of the variant families",
		ArgsUsage: "[SCHEMA]",
		Description: `List every decodable schema with its variants, tags and fields.

Example:
  ledgerwire families payload`,
		Action: func(c *cli.Context) error {
			var infos []schema.Info
			if name := c.Args().First(); name != "" {
				entry, err := schema.Lookup(name)
				if err != nil {
					return err
				}
				infos = []schema.Info{entry.Describe()}
			} else {
				infos = schema.DescribeAll()
			}

			if c.Bool("json") {
				data, err := json.MarshalIndent(infos, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal families: %w", err)
				}
				fmt.Fprintln(c.App.Writer, string(data))
				return nil
			}

			printFamilies(c.App.Writer, infos)
			return nil
		},
	}
}

func printFamilies(w io.Writer, infos []schema.Info) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	for _, info := range infos {
		if info.Family != "" {
			fmt.Fprintf(tw, "%s (%s family)\n", info.Name, info.Family)
			for _, v := range info.Variants {
				fmt.Fprintf(tw, "  %d\t%s\t%s\n", v.Tag, v.Name, formatFields(v.Fields))
			}
		} else {
			fmt.Fprintf(tw, "%s (record)\n", info.Name)
			fmt.Fprintf(tw, "  -\t\t%s\n", formatFields(info.Fields))
		}
		fmt.Fprintln(tw)
	}
}

func formatFields(fields []schema.FieldInfo) string {
	if len(fields) == 0 {
		return "(no fields)"
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		opt := ""
		if f.Optional {
			opt = "?"
		}
		parts[i] = fmt.Sprintf("%s%s: %s", f.Name, opt, f.Type)
	}
	return strings.Join(parts, ", ")
}
