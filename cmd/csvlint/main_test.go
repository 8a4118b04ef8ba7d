package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metadata = `{
  "@context": "http://www.w3.org/ns/csvw",
  "tables": [
    {
      "url": "countries.csv",
      "tableSchema": {
        "columns": [{"name": "code", "required": true}, {"name": "name"}],
        "primaryKey": "code"
      }
    },
    {
      "url": "people.csv",
      "tableSchema": {
        "columns": [{"name": "name"}, {"name": "country"}],
        "foreignKeys": [{
          "columnReference": "country",
          "reference": {"resource": "countries.csv", "columnReference": "code"}
        }]
      }
    }
  ]
}`

// execute runs the CLI with fresh flag values and returns the exit code and
// stdout.
func execute(t *testing.T, args ...string) (int, string) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	code := run(args)
	return code, out.String() + errOut.String()
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestValidate_MetadataValid(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"tables-metadata.json": metadata,
		"countries.csv":        "code,name\nGB,Britain\nFR,France\n",
		"people.csv":           "name,country\nAda,GB\n",
	})

	code, out := execute(t, "validate", "--schema", filepath.Join(dir, "tables-metadata.json"))
	assert.Equal(t, 0, code, out)
	assert.Contains(t, out, "VALID run")
	assert.Contains(t, out, "countries.csv: 2 rows")
}

func TestValidate_MetadataInvalid(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"tables-metadata.json": metadata,
		"countries.csv":        "code,name\nGB,Britain\n",
		"people.csv":           "name,country\nAda,GB\nJean,FR\n",
	})

	code, out := execute(t, "validate", "--format", "json", "--schema", filepath.Join(dir, "tables-metadata.json"))
	assert.Equal(t, 1, code, out)

	var report struct {
		Valid  bool `json:"valid"`
		Errors []struct {
			Kind string `json:"kind"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.Valid)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "unmatched_foreign_key_reference", report.Errors[0].Kind)
}

func TestValidate_StructuralSkipsKeys(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"tables-metadata.json": metadata,
		"countries.csv":        "code,name\nGB,Britain\n",
		"people.csv":           "name,country\nJean,FR\n",
	})

	code, out := execute(t, "validate", "--structural", "--schema", filepath.Join(dir, "tables-metadata.json"))
	assert.Equal(t, 0, code, out)
}

func TestValidate_TableSchema(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"schema.yaml": "fields:\n  - name: id\n    constraints:\n      required: true\n      type: http://www.w3.org/2001/XMLSchema#integer\n",
		"good.csv":    "id\n1\n2\n",
		"bad.csv":     "id\n1\nx\n",
	})
	schemaFile := filepath.Join(dir, "schema.yaml")

	code, out := execute(t, "validate", "--schema", schemaFile, filepath.Join(dir, "good.csv"))
	assert.Equal(t, 0, code, out)

	code, out = execute(t, "validate", "--schema", schemaFile, filepath.Join(dir, "bad.csv"))
	assert.Equal(t, 1, code, out)
	assert.Contains(t, out, "INVALID")
}

func TestValidate_OperationalErrors(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"tables-metadata.json": metadata,
		"schema.json":          `{"fields": [{"name": "id"}]}`,
		"other.json":           `{"name": "x"}`,
		"a.csv":                "id\n",
	})

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing schema flag", []string{"validate"}, `required flag(s) "schema" not set`},
		{"unreadable schema", []string{"validate", "--schema", filepath.Join(dir, "nope.json")}, "read "},
		{"unknown document", []string{"validate", "--schema", filepath.Join(dir, "other.json")}, "neither CSVW metadata nor a table schema"},
		{"bad format", []string{"validate", "--format", "xml", "--schema", filepath.Join(dir, "schema.json")}, "unknown format"},
		{"bad parallel", []string{"validate", "--parallel", "0", "--schema", filepath.Join(dir, "schema.json")}, "--parallel must be at least 1"},
		{"schema needs one file", []string{"validate", "--schema", filepath.Join(dir, "schema.json")}, "exactly one CSV file"},
		{"tables missing on disk", []string{"validate", "--schema", filepath.Join(dir, "tables-metadata.json")}, "open "},
		{"unmatched file", []string{"validate", "--schema", filepath.Join(dir, "tables-metadata.json"), filepath.Join(dir, "a.csv")}, "no table described"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := execute(t, tt.args...)
			assert.Equal(t, 2, code)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestRunsReset_RequiresConfirmation(t *testing.T) {
	code, out := execute(t, "runs", "reset")
	assert.Equal(t, 2, code)
	assert.Contains(t, out, "pass --yes")
}

func TestVersion(t *testing.T) {
	code, out := execute(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "csvlint "+Version)
	assert.Contains(t, out, "Go Version:")
}
