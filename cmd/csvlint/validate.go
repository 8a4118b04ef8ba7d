package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvlint/internal/core"
	"github.com/JonMunkholm/csvlint/internal/csvw"
	"github.com/JonMunkholm/csvlint/internal/schema"
)

var (
	schemaPath   string
	strict       bool
	structural   bool
	outputFormat string
	parallelism  int
)

var validateCmd = &cobra.Command{
	Use:   "validate --schema FILE [CSV...]",
	Short: "Validate CSV files",
	Long: `Validate CSV files against a CSVW metadata document or a JSON Table Schema.

The kind of document is detected from its top-level keys. A table schema
validates exactly one CSV file. A metadata document validates the files given
on the command line, matched to its tables by URL or file name, or every
table it describes that points at a local file when none are given.`,
	Example: `  csvlint validate --schema tables-metadata.json
  csvlint validate --schema schema.yaml --strict data.csv
  csvlint validate --schema tables-metadata.json --format json a.csv b.csv`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "metadata or table schema document (JSON or YAML)")
	validateCmd.Flags().BoolVar(&strict, "strict", false, "require headers to match declared titles exactly")
	validateCmd.Flags().BoolVar(&structural, "structural", false, "check only structure, skip primary and foreign keys")
	validateCmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "output format: text, json")
	validateCmd.Flags().IntVar(&parallelism, "parallel", 1, "tables to read concurrently")
	_ = validateCmd.MarkFlagRequired("schema")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	if outputFormat != "text" && outputFormat != "json" {
		return fmt.Errorf("unknown format %q (want text or json)", outputFormat)
	}
	if parallelism < 1 {
		return fmt.Errorf("--parallel must be at least 1, got %d", parallelism)
	}

	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", schemaPath, err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	service := core.NewService(core.WithParallelism(parallelism))
	opts := core.Options{Strict: strict, Structural: structural}

	var report *core.Report
	switch core.DetectDocument(data) {
	case core.DocumentTableSchema:
		report, err = validateWithSchema(ctx, service, data, args)
	case core.DocumentMetadata:
		report, err = validateWithMetadata(ctx, service, data, args, opts)
	default:
		return &csvw.MetadataError{Message: fmt.Sprintf("%s is neither CSVW metadata nor a table schema", schemaPath)}
	}
	if err != nil {
		return err
	}

	if err := writeReport(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if !report.Valid {
		return errInvalid
	}
	return nil
}

func validateWithSchema(ctx context.Context, service *core.Service, data []byte, args []string) (*core.Report, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("a table schema validates exactly one CSV file, got %d", len(args))
	}
	uri, err := csvw.FileURL(schemaPath)
	if err != nil {
		return nil, err
	}
	sch, err := schema.Parse(uri, data, schema.IsYAMLPath(schemaPath))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()

	return service.ValidateSchema(ctx, sch, core.Source{Name: args[0], Reader: f})
}

func validateWithMetadata(ctx context.Context, service *core.Service, data []byte, args []string, opts core.Options) (*core.Report, error) {
	base, err := csvw.FileURL(schemaPath)
	if err != nil {
		return nil, err
	}
	group, err := csvw.ParseMetadata(base, data, schema.IsYAMLPath(schemaPath))
	if err != nil {
		return nil, err
	}

	sources, closeAll, err := core.OpenTableFiles(group, args)
	if err != nil {
		return nil, err
	}
	defer closeAll()

	return service.ValidateTables(ctx, group, sources, opts)
}

func writeReport(w io.Writer, report *core.Report) error {
	if outputFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return report.WriteText(w)
}
