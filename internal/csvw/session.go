package csvw

import (
	"slices"
	"strings"

	"github.com/JonMunkholm/csvlint/internal/diagnostic"
	"github.com/JonMunkholm/csvlint/internal/field"
)

// Session owns the run state for validating a set of tables together.
type Session struct {
	order      []*TableValidator
	validators map[*Table]*TableValidator
}

// NewSession creates run state for tables. Tables reachable through foreign
// keys are added too, so reconciliation always has both sides.
func NewSession(tables ...*Table) *Session {
	s := &Session{validators: make(map[*Table]*TableValidator)}
	for _, t := range tables {
		s.add(t)
	}
	return s
}

func (s *Session) add(t *Table) {
	if t == nil {
		return
	}
	if _, ok := s.validators[t]; ok {
		return
	}
	v := newTableValidator(s, t)
	s.validators[t] = v
	s.order = append(s.order, v)
	for _, fk := range t.ForeignKeys {
		s.add(fk.Referenced)
	}
	for _, fk := range t.ForeignKeyReferences {
		s.add(fk.Referencing)
	}
}

// Table returns the validator for t, or nil if t is not part of the session.
func (s *Session) Table(t *Table) *TableValidator {
	return s.validators[t]
}

// Validators returns every table validator in the order tables were added.
func (s *Session) Validators() []*TableValidator {
	return s.order
}

// Reset discards all run state so the session can validate fresh data.
func (s *Session) Reset() {
	for _, v := range s.order {
		v.ResetRun()
	}
}

// ValidateForeignKeys runs phase 2 for every table. Call it once all rows of
// all tables have been validated. Each table's diagnostics are left on its
// TableValidator.
func (s *Session) ValidateForeignKeys() bool {
	valid := true
	for _, v := range s.order {
		if !v.ValidateForeignKeys() {
			valid = false
		}
	}
	return valid
}

// TableValidator is the run state for one table. Diagnostics of the most
// recent call are available through the embedded Collector.
type TableValidator struct {
	diagnostic.Collector

	session  *Session
	table    *Table
	columns  []*columnValidator
	physical int

	errorCounts               diagnostic.Tally
	primaryKeyValues          map[string]int
	foreignKeyValues          map[*ForeignKey]*KeyIndex
	foreignKeyReferenceValues map[*ForeignKey]*KeyIndex
}

func newTableValidator(s *Session, t *Table) *TableValidator {
	v := &TableValidator{
		session:  s,
		table:    t,
		columns:  make([]*columnValidator, len(t.Columns)),
		physical: t.PhysicalColumns(),
	}
	for i, c := range t.Columns {
		v.columns[i] = &columnValidator{column: c, field: field.NewValidator(c.Field)}
	}
	v.ResetRun()
	return v
}

// Table returns the table being validated.
func (v *TableValidator) Table() *Table {
	return v.table
}

// ResetRun discards indices and per-column state.
func (v *TableValidator) ResetRun() {
	v.Collector.Reset()
	v.errorCounts = diagnostic.Tally{}
	v.primaryKeyValues = make(map[string]int)
	v.foreignKeyValues = make(map[*ForeignKey]*KeyIndex, len(v.table.ForeignKeys))
	v.foreignKeyReferenceValues = make(map[*ForeignKey]*KeyIndex, len(v.table.ForeignKeyReferences))
	for _, fk := range v.table.ForeignKeys {
		v.foreignKeyValues[fk] = NewKeyIndex()
	}
	for _, fk := range v.table.ForeignKeyReferences {
		v.foreignKeyReferenceValues[fk] = NewKeyIndex()
	}
	for _, cv := range v.columns {
		cv.field.ResetRun()
	}
}

// ErrorCounts tallies the errors raised by header and row validation since
// the last reset.
func (v *TableValidator) ErrorCounts() diagnostic.Tally {
	return v.errorCounts
}

// ForeignKeyValues returns the values recorded for one of this table's
// foreign keys.
func (v *TableValidator) ForeignKeyValues(fk *ForeignKey) *KeyIndex {
	return v.foreignKeyValues[fk]
}

// ForeignKeyReferenceValues returns the values this table offers to an
// incoming foreign key.
func (v *TableValidator) ForeignKeyReferenceValues(fk *ForeignKey) *KeyIndex {
	return v.foreignKeyReferenceValues[fk]
}

// ValidateHeader checks the header cells against column titles. Surplus
// header cells are malformed_header, an error only in strict mode.
func (v *TableValidator) ValidateHeader(headers []string, strict bool) bool {
	v.Collector.Reset()
	for i, h := range headers {
		if i < v.physical {
			v.columns[i].validateHeader(h, strict)
			v.Merge(&v.columns[i].Collector)
			continue
		}
		if strict {
			v.AddError(diagnostic.MalformedHeader, diagnostic.CategorySchema, 1, 0, h, nil)
		} else {
			v.AddWarning(diagnostic.MalformedHeader, diagnostic.CategorySchema, 1, 0, h, nil)
		}
	}
	v.errorCounts.Add(v.Errors())
	return v.Valid()
}

// ValidateRow checks the cells of one data row. When full is set it also
// records primary and foreign key values for the reconciliation phase.
func (v *TableValidator) ValidateRow(values []string, row int, full bool) bool {
	v.Collector.Reset()
	if len(v.columns) == 0 {
		return true
	}

	cells := make([]Cell, len(v.columns))
	for i := range cells {
		cells[i] = Cell{Null: true}
	}
	for i, raw := range values {
		if i >= v.physical {
			v.AddError(diagnostic.TooManyValues, diagnostic.CategorySchema, row, 0, raw, nil)
			continue
		}
		// prior is this row only; invalid_regex is remembered per field.
		cells[i] = v.columns[i].validate(raw, row, v.Errors())
		v.Merge(&v.columns[i].Collector)
	}

	if full {
		v.indexPrimaryKey(cells, row)
		for _, fk := range v.table.ForeignKeyReferences {
			index(v.foreignKeyReferenceValues[fk], pick(cells, fk.ReferencedColumns), row)
		}
		for _, fk := range v.table.ForeignKeys {
			index(v.foreignKeyValues[fk], pick(cells, fk.ReferencingColumns), row)
		}
	}

	v.errorCounts.Add(v.Errors())
	return v.Valid()
}

func (v *TableValidator) indexPrimaryKey(cells []Cell, row int) {
	pk := v.table.PrimaryKey
	if len(pk) == 0 {
		return
	}
	key := scalarKey(pick(cells, pk), pk)
	id := key.encode()
	if first, ok := v.primaryKeyValues[id]; ok {
		column := 0
		if len(pk) == 1 {
			column = pk[0].Number
		}
		v.AddError(diagnostic.DuplicateKey, diagnostic.CategorySchema, row, column, key.String(),
			map[string]any{"row": first})
		return
	}
	v.primaryKeyValues[id] = row
}

func pick(cells []Cell, columns []*Column) []Cell {
	out := make([]Cell, len(columns))
	for i, c := range columns {
		out[i] = cells[c.Number-1]
	}
	return out
}

func index(ix *KeyIndex, cells []Cell, row int) {
	for _, k := range expandKeys(cells) {
		ix.Add(k, row)
	}
}

// ValidateForeignKeys reconciles each of this table's foreign keys with the
// values recorded by the referenced table.
func (v *TableValidator) ValidateForeignKeys() bool {
	v.Collector.Reset()
	for _, fk := range v.table.ForeignKeys {
		remote := v.session.Table(fk.Referenced)
		if remote == nil {
			continue
		}
		found := remote.ValidateForeignKeyReferences(fk, v.table.URL, v.foreignKeyValues[fk])
		v.Merge(found)
	}
	return v.Valid()
}

// ValidateForeignKeyReferences checks the values recorded by the
// referencing table (local, from the table at remoteURL) against the values
// this table recorded for fk. The diagnostics are returned, not recorded
// on v.
func (v *TableValidator) ValidateForeignKeyReferences(fk *ForeignKey, remoteURL string, local *KeyIndex) *diagnostic.Collector {
	found := &diagnostic.Collector{}
	known := v.foreignKeyReferenceValues[fk]

	column := 0
	if len(fk.ReferencingColumns) == 1 {
		column = fk.ReferencingColumns[0].Number
	}
	context := map[string]any{
		"from": map[string]any{"url": urlBase(remoteURL), "columns": fk.ColumnReference},
		"to":   map[string]any{"url": urlBase(v.table.URL), "columns": fk.ReferencedColumnReference},
	}

	for _, e := range local.Entries() {
		target := known.Lookup(e.Key)
		switch {
		case target == nil:
			for _, row := range e.Rows {
				found.AddError(diagnostic.UnmatchedForeignKeyReference, diagnostic.CategorySchema,
					row, column, e.Key.String(), context)
			}
		case len(target.Rows) > 1:
			for _, row := range e.Rows {
				found.AddError(diagnostic.MultipleMatchedRows, diagnostic.CategorySchema,
					row, column, e.Key.String(), context)
			}
		}
	}
	return found
}

// columnValidator is the per-run state of one column.
type columnValidator struct {
	diagnostic.Collector

	column *Column
	field  *field.Validator
}

func (cv *columnValidator) validateHeader(header string, strict bool) {
	cv.Reset()
	c := cv.column
	if !strict && len(c.Titles) == 0 {
		return
	}
	accepted := c.Titles
	if len(accepted) == 0 {
		accepted = []string{c.Name}
	}
	if slices.Contains(accepted, header) {
		return
	}
	context := map[string]any{"titles": accepted}
	if strict {
		cv.AddError(diagnostic.InvalidHeader, diagnostic.CategorySchema, 1, c.Number, header, context)
	} else {
		cv.AddWarning(diagnostic.InvalidHeader, diagnostic.CategorySchema, 1, c.Number, header, context)
	}
}

func (cv *columnValidator) validate(raw string, row int, prior []diagnostic.Record) Cell {
	cv.Reset()
	c := cv.column

	if slices.Contains(c.Null, raw) {
		if c.Field.Constraints.Required {
			cv.AddError(diagnostic.MissingValue, diagnostic.CategorySchema, row, c.Number, raw,
				map[string]any{"required": true})
		}
		return Cell{Null: true}
	}

	cell := Cell{Values: []string{raw}}
	if c.Separator != "" {
		cell = Cell{List: true, Values: strings.Split(raw, c.Separator)}
	}
	for _, value := range cell.Values {
		value := value
		cv.field.ValidateColumn(&value, row, c.Number, c.Null, slices.Concat(prior, cv.Errors()))
		cv.Merge(&cv.field.Collector)
	}
	return cell
}
