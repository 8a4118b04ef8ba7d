package csvw

import (
	"fmt"
	"path"
	"strings"

	"github.com/JonMunkholm/csvlint/internal/diagnostic"
	"github.com/JonMunkholm/csvlint/internal/field"
)

// Column is one column of a table. Number is 1-based.
type Column struct {
	Number    int
	Name      string
	Titles    []string
	Field     *field.Field
	Null      []string // markers meaning "no value"; defaults to [""]
	Separator string   // non-empty for list-valued cells
	Virtual   bool
}

// NewColumn creates a column with default null markers. A nil field means
// the column is unconstrained.
func NewColumn(number int, name string, f *field.Field) *Column {
	if f == nil {
		f = field.New(name, field.Constraints{})
	}
	return &Column{
		Number: number,
		Name:   name,
		Field:  f,
		Null:   []string{""},
	}
}

// Table is a resolved table description.
type Table struct {
	URL     string
	Columns []*Column

	// PrimaryKey is nil when the table declares none.
	PrimaryKey []*Column

	// ForeignKeys are declared by this table.
	ForeignKeys []*ForeignKey

	// ForeignKeyReferences are declared by other tables (or this one)
	// and point at this table.
	ForeignKeyReferences []*ForeignKey

	// Warnings are metadata problems found while the table was resolved.
	Warnings []diagnostic.Record
}

// ForeignKey links columns of one table to columns of another.
type ForeignKey struct {
	Referencing        *Table
	ReferencingColumns []*Column
	Referenced         *Table
	ReferencedColumns  []*Column

	// ColumnReference and ReferencedColumnReference are the declared column
	// names, kept for diagnostics.
	ColumnReference           []string
	ReferencedColumnReference []string
}

// NewTable creates a table from columns numbered in order.
func NewTable(url string, columns ...*Column) *Table {
	return &Table{URL: url, Columns: columns}
}

// Name returns the last path segment of the table URL, which is how tables
// are identified in diagnostics.
func (t *Table) Name() string {
	return urlBase(t.URL)
}

func urlBase(u string) string {
	u = strings.TrimRight(u, "/")
	if u == "" {
		return ""
	}
	return path.Base(u)
}

// Column finds a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// PhysicalColumns returns the number of columns that appear in the CSV
// file. Virtual columns always follow the physical ones.
func (t *Table) PhysicalColumns() int {
	n := 0
	for _, c := range t.Columns {
		if !c.Virtual {
			n++
		}
	}
	return n
}

func (t *Table) columns(names []string) ([]*Column, error) {
	cols := make([]*Column, 0, len(names))
	for _, name := range names {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("table %s has no column %q", t.Name(), name)
		}
		cols = append(cols, c)
	}
	return cols, nil
}

// SetPrimaryKey resolves the named columns as the table's primary key.
func (t *Table) SetPrimaryKey(names ...string) error {
	cols, err := t.columns(names)
	if err != nil {
		return &MetadataError{Path: "primaryKey", Message: err.Error()}
	}
	if len(cols) == 0 {
		t.PrimaryKey = nil
		return nil
	}
	t.PrimaryKey = cols
	return nil
}

// AddForeignKey declares that columns of t reference referencedColumns of
// referenced. When referencedColumns is empty the referenced table's primary
// key is used; if that is empty too the key cannot be resolved.
//
// The key is registered on both tables.
func (t *Table) AddForeignKey(columns []string, referenced *Table, referencedColumns []string) (*ForeignKey, error) {
	if referenced == nil {
		return nil, &MetadataError{Path: "foreignKeys.reference", Message: "referenced table is not defined"}
	}
	local, err := t.columns(columns)
	if err != nil {
		return nil, &MetadataError{Path: "foreignKeys.columnReference", Message: err.Error()}
	}
	if len(local) == 0 {
		return nil, &MetadataError{Path: "foreignKeys.columnReference", Message: "foreign key has no columns"}
	}

	var remote []*Column
	if len(referencedColumns) == 0 {
		if len(referenced.PrimaryKey) == 0 {
			return nil, &MetadataError{
				Path:    "foreignKeys.reference.columnReference",
				Message: fmt.Sprintf("no columnReference and table %s declares no primary key", referenced.Name()),
			}
		}
		remote = referenced.PrimaryKey
		for _, c := range remote {
			referencedColumns = append(referencedColumns, c.Name)
		}
	} else {
		remote, err = referenced.columns(referencedColumns)
		if err != nil {
			return nil, &MetadataError{Path: "foreignKeys.reference.columnReference", Message: err.Error()}
		}
	}
	if len(remote) != len(local) {
		return nil, &MetadataError{
			Path:    "foreignKeys.reference.columnReference",
			Message: fmt.Sprintf("foreign key has %d columns but references %d", len(local), len(remote)),
		}
	}

	fk := &ForeignKey{
		Referencing:               t,
		ReferencingColumns:        local,
		Referenced:                referenced,
		ReferencedColumns:         remote,
		ColumnReference:           columns,
		ReferencedColumnReference: referencedColumns,
	}
	t.ForeignKeys = append(t.ForeignKeys, fk)
	referenced.ForeignKeyReferences = append(referenced.ForeignKeyReferences, fk)
	return fk, nil
}

// Group is a set of tables described by one metadata document.
type Group struct {
	URL    string
	Tables []*Table
}

// Table finds a table by URL, falling back to a match on the last path
// segment so callers can pass plain file names.
func (g *Group) Table(url string) (*Table, bool) {
	for _, t := range g.Tables {
		if t.URL == url {
			return t, true
		}
	}
	base := urlBase(url)
	for _, t := range g.Tables {
		if t.Name() == base {
			return t, true
		}
	}
	return nil, false
}
