// Package field validates a single column value against its declared type
// and constraints.
//
// A Field is the immutable description taken from a schema. All state that
// accumulates while a file is validated (values already seen for unique
// fields, whether an invalid pattern was reported) lives in a Validator, of
// which there is one per field per validation run.
package field

import "regexp"

// Constraints are the rules a value must satisfy.
//
// Optional numeric bounds are pointers; Minimum and Maximum are kept in
// their textual form and converted under Type when a value is checked.
// A bound that does not convert is ignored.
type Constraints struct {
	Required    bool
	Unique      bool
	MinLength   *int
	MaxLength   *int
	Pattern     string
	Type        Datatype
	DatePattern string
	Minimum     string
	Maximum     string
}

// Field is one named, constrained column of a schema.
type Field struct {
	Name        string
	Title       string
	Description string
	Constraints Constraints

	pattern    *regexp.Regexp
	patternErr error
}

// New creates a Field and compiles its pattern constraint, if any.
// A malformed pattern is not an error here: it is reported once per run as
// an invalid_regex diagnostic.
func New(name string, c Constraints) *Field {
	f := &Field{Name: name, Constraints: c}
	if c.Pattern != "" {
		f.pattern, f.patternErr = regexp.Compile(c.Pattern)
	}
	return f
}

// PatternError returns the compile error of the pattern constraint.
func (f *Field) PatternError() error {
	return f.patternErr
}

// IntPtr is a helper for building Constraints literals.
func IntPtr(n int) *int {
	return &n
}
