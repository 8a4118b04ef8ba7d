package schema

import (
	"github.com/JonMunkholm/csvlint/internal/diagnostic"
	"github.com/JonMunkholm/csvlint/internal/field"
)

// Validator holds the run state for validating one file against a Schema.
// Diagnostics of the most recent ValidateHeader or ValidateRow call are
// available through the embedded Collector; ErrorCounts tallies the errors
// raised since the last Reset.
type Validator struct {
	diagnostic.Collector

	schema        *Schema
	fields        []*field.Validator
	missingValues []string
	errorCounts   diagnostic.Tally
}

// NewValidator creates fresh run state for s.
func NewValidator(s *Schema) *Validator {
	v := &Validator{
		schema:        s,
		fields:        make([]*field.Validator, len(s.Fields)),
		missingValues: field.DefaultMissingValues,
		errorCounts:   diagnostic.Tally{},
	}
	for i, f := range s.Fields {
		v.fields[i] = field.NewValidator(f)
	}
	return v
}

// SetMissingValues replaces the markers that count as an absent value.
func (v *Validator) SetMissingValues(markers []string) {
	v.missingValues = markers
}

// Schema returns the schema being validated against.
func (v *Validator) Schema() *Schema {
	return v.schema
}

// Reset discards all run state so the same schema can validate another file.
func (v *Validator) Reset() {
	v.Collector.Reset()
	v.errorCounts = diagnostic.Tally{}
	for _, fv := range v.fields {
		fv.ResetRun()
	}
}

// ErrorCounts returns the errors raised since the last Reset, by kind.
func (v *Validator) ErrorCounts() diagnostic.Tally {
	return v.errorCounts
}

// ValidateHeader checks the header line (row 1).
func (v *Validator) ValidateHeader(header []string) bool {
	v.Collector.Reset()

	position := make(map[string]int, len(v.schema.Fields))
	for i, f := range v.schema.Fields {
		position[f.Name] = i
	}

	found := make(map[string]struct{}, len(header))
	for i, name := range header {
		found[name] = struct{}{}
		expected, known := position[name]
		switch {
		case !known:
			v.AddError(diagnostic.UnknownHeader, diagnostic.CategorySchema, 1, i+1, name, nil)
		case expected != i:
			v.AddError(diagnostic.KnownHeaderWrongColumn, diagnostic.CategorySchema, 1, i+1, name, nil)
		}
	}

	for _, f := range v.schema.Fields {
		if _, ok := found[f.Name]; !ok {
			v.AddError(diagnostic.MissingHeader, diagnostic.CategorySchema, 1, 0, f.Name, nil)
		}
	}

	foundHeader := serializeHeader(header)
	expectedHeader := v.schema.ExpectedHeader()
	if foundHeader != expectedHeader {
		v.AddWarning(diagnostic.MalformedHeader, diagnostic.CategorySchema, 1, 0, foundHeader,
			map[string]any{"expectedHeader": expectedHeader})
	}

	v.errorCounts.Add(v.Errors())
	return v.Valid()
}

// ValidateRow checks one data row; row is the 1-based line number.
func (v *Validator) ValidateRow(values []string, row int) bool {
	v.Collector.Reset()

	nFields := len(v.fields)
	for i := len(values); i < nFields; i++ {
		v.AddWarning(diagnostic.MissingColumn, diagnostic.CategorySchema, row, i+1, "", nil)
	}
	for i := nFields; i < len(values); i++ {
		v.AddWarning(diagnostic.ExtraColumn, diagnostic.CategorySchema, row, i+1, "", nil)
	}

	for i, fv := range v.fields {
		value := ""
		if i < len(values) {
			value = values[i]
		}
		// Earlier rows never reach prior: the field validator remembers an
		// invalid pattern itself, so per-row work stays bounded.
		fv.ValidateColumn(&value, row, i+1, v.missingValues, v.Errors())
		v.Merge(&fv.Collector)
	}

	v.errorCounts.Add(v.Errors())
	return v.Valid()
}
