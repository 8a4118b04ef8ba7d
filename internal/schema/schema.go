// Package schema validates single CSV files against a JSON Table Schema
// style description: an ordered list of fields, each with constraints.
//
// Header checks compare the found header against the declared field names;
// row checks delegate each cell to a field.Validator and flag missing or
// surplus trailing columns.
package schema

import (
	"bytes"
	"encoding/csv"
	"strings"

	"github.com/JonMunkholm/csvlint/internal/field"
)

// Schema is an ordered set of fields loaded from a schema document.
type Schema struct {
	URI         string
	Fields      []*field.Field
	Title       string
	Description string
}

// New creates a schema from already constructed fields.
func New(uri string, fields ...*field.Field) *Schema {
	return &Schema{URI: uri, Fields: fields}
}

// FieldNames returns the declared names in order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// ExpectedHeader is the canonical CSV serialisation of the field names.
func (s *Schema) ExpectedHeader() string {
	return serializeHeader(s.FieldNames())
}

// serializeHeader writes cells as a single CSV line without a terminator.
// Quoting follows encoding/csv: cells holding a comma, quote or line break
// are quoted, and so are cells with leading whitespace. Empty cells are not.
func serializeHeader(cells []string) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	// Writing to a bytes.Buffer cannot fail.
	_ = w.Write(cells)
	w.Flush()
	return strings.TrimRight(buf.String(), "\r\n")
}
