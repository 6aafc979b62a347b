package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/pipeflow/pkg/compression"
	"github.com/ajitpratap0/pipeflow/pkg/config"
	"github.com/ajitpratap0/pipeflow/pkg/connector/core"
	"github.com/ajitpratap0/pipeflow/pkg/connector/registry"
	"github.com/ajitpratap0/pipeflow/pkg/json"
	"github.com/ajitpratap0/pipeflow/pkg/logger"
	"github.com/ajitpratap0/pipeflow/pkg/models"
	"github.com/ajitpratap0/pipeflow/pkg/schema"
)

// maxInferenceSamples bounds the records kept for type inference.
const maxInferenceSamples = 1000

func newInspectCommand() *cobra.Command {
	var rows int
	var delimiter, encoding, compare string

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show the inferred schema, record count and sample records of a data file",
		Long: `Inspect a CSV, JSON or JSONL file (optionally .gz or .zst compressed): print the
fields with their inferred types, the number of records and the first records.
With --compare, also list the schema changes from another file to this one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rows < 0 {
				return fmt.Errorf("rows cannot be negative")
			}
			opts := inspectOptions{rows: rows, delimiter: delimiter, encoding: encoding, compare: compare}
			return inspectFile(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&rows, "rows", "n", 5, "Number of sample records to show")
	cmd.Flags().StringVar(&delimiter, "delimiter", config.DefaultDelimiter, "CSV field delimiter")
	cmd.Flags().StringVar(&encoding, "encoding", config.DefaultEncoding, "Source text encoding")
	cmd.Flags().StringVar(&compare, "compare", "", "Baseline file to diff the inferred schema against")
	return cmd
}

func formatOf(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(compression.Trim(path)))
	switch ext {
	case ".csv", ".tsv":
		return config.ExtractCSV, nil
	case ".json":
		return config.ExtractJSON, nil
	case ".jsonl", ".ndjson":
		return config.ExtractJSONL, nil
	}
	return "", fmt.Errorf("unsupported file type %q", ext)
}

type inspectOptions struct {
	rows      int
	delimiter string
	encoding  string
	compare   string
}

// profile holds what one pass over a data file learned about it.
type profile struct {
	format  string
	total   int
	skipped int
	samples []models.Record
	schema  models.Schema
	fields  []schema.InferredType
}

func profileFile(cmd *cobra.Command, path string, opts inspectOptions) (*profile, error) {
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}

	ext, err := registry.NewExtractor(config.ExtractConfig{
		Type:      format,
		Path:      path,
		Delimiter: opts.delimiter,
		Encoding:  opts.encoding,
	}, logger.Get())
	if err != nil {
		return nil, err
	}

	p := &profile{format: format}
	for rec, err := range ext.Extract(cmd.Context()) {
		if err != nil {
			if core.IsRecoverable(err) {
				p.skipped++
				continue
			}
			return nil, err
		}
		p.total++
		if len(p.samples) < maxInferenceSamples {
			p.samples = append(p.samples, rec)
		}
	}

	engine := schema.NewTypeInferenceEngine()
	engine.DetectStringFormats = true
	p.schema, p.fields = engine.InferSchema(filepath.Base(path), p.samples)
	return p, nil
}

func inspectFile(cmd *cobra.Command, path string, opts inspectOptions) error {
	p, err := profileFile(cmd, path, opts)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if err := printInspection(w, path, p.format, p.fields, p.total, p.skipped, p.samples[:min(opts.rows, len(p.samples))]); err != nil {
		return err
	}
	if opts.compare == "" {
		return nil
	}

	base, err := profileFile(cmd, opts.compare, opts)
	if err != nil {
		return fmt.Errorf("compare %s: %w", opts.compare, err)
	}
	printChanges(w, opts.compare, schema.DetectChanges(base.schema, p.schema))
	return nil
}

func printChanges(w io.Writer, baseline string, changes []schema.SchemaChange) {
	if len(changes) == 0 {
		fmt.Fprintf(w, "\nNo schema changes from %s\n", baseline)
		return
	}
	fmt.Fprintf(w, "\nSchema changes from %s (%d):\n", baseline, len(changes))
	for _, c := range changes {
		switch c.Type {
		case schema.ChangeTypeAddField:
			fmt.Fprintf(w, "  + %-20s %s\n", c.Field, c.NewField.Type)
		case schema.ChangeTypeRemoveField:
			fmt.Fprintf(w, "  - %-20s %s\n", c.Field, c.OldField.Type)
		default:
			fmt.Fprintf(w, "  ~ %-20s %s -> %s\n", c.Field, c.OldField.Type, c.NewField.Type)
		}
	}
}

func printInspection(w io.Writer, path, format string, fields []schema.InferredType, total, skipped int, sample []models.Record) error {
	fmt.Fprintf(w, "File: %s\n", path)
	fmt.Fprintf(w, "Format: %s\n", strings.ToUpper(format))
	fmt.Fprintf(w, "Total records: %d\n", total)
	if skipped > 0 {
		fmt.Fprintf(w, "Skipped (malformed): %d\n", skipped)
	}

	fmt.Fprintf(w, "\nFields (%d):\n", len(fields))
	for _, f := range fields {
		line := fmt.Sprintf("  %-20s %s", f.Name, f.Type)
		if f.Format != "" {
			line += " (" + f.Format + ")"
		}
		if f.Nullable {
			line += ", nullable"
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "\nSample (%d records):\n", len(sample))
	for _, rec := range sample {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s\n", data)
	}
	return nil
}
