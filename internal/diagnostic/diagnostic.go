// Package diagnostic defines the error and warning records produced by every
// validator, and the Collector that accumulates them.
//
// Validators never stop at the first problem. Each one embeds a Collector,
// records what it finds, and parents merge child collectors by concatenation
// so a single run reports every violation.
package diagnostic

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies what went wrong. The set is closed.
type Kind int

const (
	// Field-level kinds.
	MissingValue Kind = iota + 1
	MinLength
	MaxLength
	Pattern
	InvalidRegex
	Unique
	InvalidType
	BelowMinimum
	AboveMaximum

	// Structural and referential kinds.
	KnownHeaderWrongColumn
	UnknownHeader
	MissingHeader
	MalformedHeader
	InvalidHeader
	TooManyValues
	MissingColumn
	ExtraColumn
	DuplicateKey
	UnmatchedForeignKeyReference
	MultipleMatchedRows

	// Metadata kinds, reported while resolving a schema.
	InvalidColumnReference
)

var kindNames = map[Kind]string{
	MissingValue:                 "missing_value",
	MinLength:                    "min_length",
	MaxLength:                    "max_length",
	Pattern:                      "pattern",
	InvalidRegex:                 "invalid_regex",
	Unique:                       "unique",
	InvalidType:                  "invalid_type",
	BelowMinimum:                 "below_minimum",
	AboveMaximum:                 "above_maximum",
	KnownHeaderWrongColumn:       "known_header_wrong_column",
	UnknownHeader:                "unknown_header",
	MissingHeader:                "missing_header",
	MalformedHeader:              "malformed_header",
	InvalidHeader:                "invalid_header",
	TooManyValues:                "too_many_values",
	MissingColumn:                "missing_column",
	ExtraColumn:                  "extra_column",
	DuplicateKey:                 "duplicate_key",
	UnmatchedForeignKeyReference: "unmatched_foreign_key_reference",
	MultipleMatchedRows:          "multiple_matched_rows",
	InvalidColumnReference:       "invalid_column_reference",
}

// String returns the snake_case symbol used in reports.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Kinds returns every defined kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindNames))
	for k := MissingValue; k <= InvalidColumnReference; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseKind(s)
	if !ok {
		return fmt.Errorf("unknown diagnostic kind %q", s)
	}
	*k = parsed
	return nil
}

// Category separates data problems from problems in the schema itself.
type Category string

const (
	CategorySchema   Category = "schema"
	CategoryMetadata Category = "metadata"
)

// Severity is the list a record was filed under.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Record is a single error or warning.
//
// Row and Column are 1-based; zero means the location does not apply
// (for example an invalid pattern is reported against a column, not a row).
type Record struct {
	Kind     Kind           `json:"kind"`
	Category Category       `json:"category"`
	Row      int            `json:"row,omitempty"`
	Column   int            `json:"column,omitempty"`
	Content  string         `json:"content,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// String renders the record on one line, e.g. "row 3 col 2: pattern (abc)".
func (r Record) String() string {
	var b strings.Builder
	if r.Row > 0 {
		fmt.Fprintf(&b, "row %d ", r.Row)
	}
	if r.Column > 0 {
		fmt.Fprintf(&b, "col %d ", r.Column)
	}
	loc := strings.TrimSpace(b.String())
	msg := r.Kind.String()
	if r.Content != "" {
		msg += " (" + r.Content + ")"
	}
	if loc == "" {
		return msg
	}
	return loc + ": " + msg
}
