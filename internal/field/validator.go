package field

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/JonMunkholm/csvlint/internal/diagnostic"
)

// DefaultMissingValues is used when a caller passes no missing-value markers.
var DefaultMissingValues = []string{""}

// Validator checks values for one Field during one validation run.
//
// Errors and warnings of the most recent ValidateColumn call are available
// through the embedded Collector.
type Validator struct {
	diagnostic.Collector

	field         *Field
	uniques       map[string]struct{}
	seenNull      bool
	regexReported bool
}

// NewValidator creates run state for f.
func NewValidator(f *Field) *Validator {
	return &Validator{
		field:   f,
		uniques: make(map[string]struct{}),
	}
}

// Field returns the field being validated.
func (v *Validator) Field() *Field {
	return v.field
}

// ResetRun forgets everything seen so far so the validator can be reused
// for a fresh file.
func (v *Validator) ResetRun() {
	v.Reset()
	v.uniques = make(map[string]struct{})
	v.seenNull = false
	v.regexReported = false
}

// ValidateColumn checks a single value. A nil value is absent.
//
// prior holds errors the caller already raised, normally those of the
// current row; an invalid_regex among them for the same column suppresses
// the pattern check. The validator remembers its own invalid_regex, so
// callers need not pass earlier rows.
func (v *Validator) ValidateColumn(value *string, row, column int, missingValues []string, prior []diagnostic.Record) bool {
	v.Reset()
	if missingValues == nil {
		missingValues = DefaultMissingValues
	}

	if !diagnostic.HasKind(prior, diagnostic.InvalidRegex, column) {
		v.validateRegex(value, row, column)
	}
	v.validateLength(value, row, column, missingValues)
	v.validateValues(value, row, column)
	if parsed, ok := v.validateType(value, row, column, missingValues); ok {
		v.validateRange(parsed, value, row, column)
	}
	return v.Valid()
}

func (v *Validator) validateRegex(value *string, row, column int) {
	c := v.field.Constraints
	if c.Pattern == "" {
		return
	}
	if v.field.patternErr != nil {
		if v.regexReported {
			return
		}
		v.AddError(diagnostic.InvalidRegex, diagnostic.CategorySchema, 0, column,
			fmt.Sprintf("%s: Constraints: Pattern: %s", v.field.Name, c.Pattern),
			map[string]any{"pattern": c.Pattern})
		v.regexReported = true
		return
	}
	if value != nil && !v.field.pattern.MatchString(*value) {
		v.AddError(diagnostic.Pattern, diagnostic.CategorySchema, row, column, *value,
			map[string]any{"pattern": c.Pattern})
	}
}

func (v *Validator) validateLength(value *string, row, column int, missingValues []string) {
	c := v.field.Constraints
	if c.Required && (value == nil || slices.Contains(missingValues, *value)) {
		v.AddError(diagnostic.MissingValue, diagnostic.CategorySchema, row, column, text(value),
			map[string]any{"required": true})
	}
	if c.MinLength != nil {
		if value == nil || utf8.RuneCountInString(*value) < *c.MinLength {
			v.AddError(diagnostic.MinLength, diagnostic.CategorySchema, row, column, text(value),
				map[string]any{"minLength": *c.MinLength})
		}
	}
	if c.MaxLength != nil {
		if value != nil && utf8.RuneCountInString(*value) > *c.MaxLength {
			v.AddError(diagnostic.MaxLength, diagnostic.CategorySchema, row, column, *value,
				map[string]any{"maxLength": *c.MaxLength})
		}
	}
}

func (v *Validator) validateValues(value *string, row, column int) {
	if !v.field.Constraints.Unique {
		return
	}
	if v.seen(value) {
		v.AddError(diagnostic.Unique, diagnostic.CategorySchema, row, column, text(value),
			map[string]any{"unique": true})
		return
	}
	v.remember(value)
}

func (v *Validator) seen(value *string) bool {
	if value == nil {
		return v.seenNull
	}
	_, ok := v.uniques[*value]
	return ok
}

func (v *Validator) remember(value *string) {
	if value == nil {
		v.seenNull = true
		return
	}
	v.uniques[*value] = struct{}{}
}

// validateType converts value under the declared type. ok is false when no
// conversion happened or it failed; range checks only run on success.
func (v *Validator) validateType(value *string, row, column int, missingValues []string) (parsed any, ok bool) {
	c := v.field.Constraints
	if c.Type == TypeNone || value == nil || slices.Contains(missingValues, *value) {
		return nil, false
	}
	parsed, err := c.Type.Parse(*value, c.DatePattern)
	if err != nil {
		failed := map[string]any{"type": c.Type.String()}
		if c.DatePattern != "" {
			failed["datePattern"] = c.DatePattern
		}
		v.AddError(diagnostic.InvalidType, diagnostic.CategorySchema, row, column, *value, failed)
		return nil, false
	}
	return parsed, true
}

// validateRange compares parsed against the bounds. Bounds that do not
// convert under the field's type are a schema problem and are skipped.
func (v *Validator) validateRange(parsed any, value *string, row, column int) {
	c := v.field.Constraints
	if c.Minimum != "" {
		if minimum, err := c.Type.Parse(c.Minimum, c.DatePattern); err == nil {
			if cmp, ok := c.Type.Compare(parsed, minimum); ok && cmp < 0 {
				v.AddError(diagnostic.BelowMinimum, diagnostic.CategorySchema, row, column, text(value),
					map[string]any{"minimum": c.Minimum})
			}
		}
	}
	if c.Maximum != "" {
		if maximum, err := c.Type.Parse(c.Maximum, c.DatePattern); err == nil {
			if cmp, ok := c.Type.Compare(parsed, maximum); ok && cmp > 0 {
				v.AddError(diagnostic.AboveMaximum, diagnostic.CategorySchema, row, column, text(value),
					map[string]any{"maximum": c.Maximum})
			}
		}
	}
}

func text(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// Ptr returns a pointer to s, for passing present values to ValidateColumn.
func Ptr(s string) *string {
	return &s
}
