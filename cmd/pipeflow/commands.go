package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/pipeflow/internal/pipeline"
	"github.com/ajitpratap0/pipeflow/pkg/config"
	"github.com/ajitpratap0/pipeflow/pkg/connector/registry"
	"github.com/ajitpratap0/pipeflow/pkg/logger"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <pipeline.yaml>",
		Short: "Check a pipeline configuration without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			// building the runner compiles expressions and the extractor
			runner, err := pipeline.New(cfg, pipeline.WithLogger(logger.Get()))
			if err != nil {
				return err
			}
			c := runner.Config()
			printSummary(cmd.OutOrStdout(), &c)
			return nil
		},
	}
}

func printSummary(w io.Writer, c *config.PipelineConfig) {
	fmt.Fprintf(w, "Config %q is valid\n", c.Name)

	source := c.Extract.Path
	if c.Extract.Type == config.ExtractAPI {
		source = c.Extract.URL
	}
	fmt.Fprintf(w, "  Extract:    %s (%s)\n", c.Extract.Type, source)

	names := make([]string, len(c.Transforms))
	for i, t := range c.Transforms {
		names[i] = t.Type
	}
	if len(names) == 0 {
		fmt.Fprintln(w, "  Transforms: none")
	} else {
		fmt.Fprintf(w, "  Transforms: %d (%s)\n", len(names), strings.Join(names, ", "))
	}

	if v := c.Validate; v != nil {
		fmt.Fprintf(w, "  Validate:   %s, %d fields, %s\n", v.Model, len(v.Fields), v.Mode)
	} else {
		fmt.Fprintln(w, "  Validate:   no")
	}

	l := c.Load
	switch l.Type {
	case config.LoadCSV:
		fmt.Fprintf(w, "  Load:       csv (%s)", l.Path)
	default:
		fmt.Fprintf(w, "  Load:       %s table %s, %s", l.Type, l.Table, l.Mode)
		if l.Mode == config.ModeUpsert {
			fmt.Fprintf(w, " on %s", strings.Join(l.ConflictKey, ", "))
		}
	}
	fmt.Fprintf(w, ", batch_size %d\n", l.BatchSize)
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available extractors and loaders",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			var kind string
			for _, info := range registry.List() {
				if string(info.Type) != kind {
					if kind != "" {
						fmt.Fprintln(out)
					}
					kind = string(info.Type)
					fmt.Fprintf(out, "Available %s connectors:\n", kind)
				}
				fmt.Fprintf(out, "  - %-9s %s\n", info.Name, info.Description)
			}
		},
	}
}
