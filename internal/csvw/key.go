package csvw

import (
	"strconv"
	"strings"
)

// Cell is the parsed value of one table cell.
type Cell struct {
	Null   bool
	List   bool
	Values []string // one element for scalars, none when Null
}

// Raw joins the cell back into a single string.
func (c Cell) Raw(separator string) string {
	if c.Null {
		return ""
	}
	return strings.Join(c.Values, separator)
}

// KeyPart is one component of a key tuple.
type KeyPart struct {
	Value string
	Null  bool
}

// Key is an ordered tuple of key parts.
type Key []KeyPart

// String renders the key for diagnostics. Null parts render empty.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, p := range k {
		if !p.Null {
			parts[i] = p.Value
		}
	}
	return strings.Join(parts, ",")
}

// encode returns an unambiguous map key for k.
func (k Key) encode() string {
	var b strings.Builder
	for _, p := range k {
		if p.Null {
			b.WriteString("n;")
			continue
		}
		b.WriteByte('s')
		b.WriteString(strconv.Itoa(len(p.Value)))
		b.WriteByte(':')
		b.WriteString(p.Value)
		b.WriteByte(';')
	}
	return b.String()
}

// scalarKey builds the single tuple for cells, one part per cell. List cells
// contribute their joined raw text.
func scalarKey(cells []Cell, columns []*Column) Key {
	k := make(Key, len(cells))
	for i, c := range cells {
		if c.Null {
			k[i] = KeyPart{Null: true}
			continue
		}
		k[i] = KeyPart{Value: c.Raw(columns[i].Separator)}
	}
	return k
}

// expandKeys folds the cells into the cartesian product of their values:
// a null cell contributes one null part, a scalar its value, and a list each
// of its elements. Without list cells the result is the single plain tuple.
func expandKeys(cells []Cell) []Key {
	keys := []Key{{}}
	for _, c := range cells {
		var options []KeyPart
		switch {
		case c.Null:
			options = []KeyPart{{Null: true}}
		default:
			options = make([]KeyPart, len(c.Values))
			for i, v := range c.Values {
				options[i] = KeyPart{Value: v}
			}
		}

		next := make([]Key, 0, len(keys)*len(options))
		for _, k := range keys {
			for _, o := range options {
				nk := make(Key, len(k), len(k)+1)
				copy(nk, k)
				next = append(next, append(nk, o))
			}
		}
		keys = next
	}
	return keys
}

// KeyIndex maps key tuples to the rows holding them. Iteration follows
// first insertion so diagnostics come out in a stable order.
type KeyIndex struct {
	order   []string
	entries map[string]*IndexEntry
}

// IndexEntry is a key and the rows it appeared on, in order.
type IndexEntry struct {
	Key  Key
	Rows []int
}

// NewKeyIndex creates an empty index.
func NewKeyIndex() *KeyIndex {
	return &KeyIndex{entries: make(map[string]*IndexEntry)}
}

// Add records that key occurs on row.
func (ix *KeyIndex) Add(key Key, row int) {
	id := key.encode()
	e, ok := ix.entries[id]
	if !ok {
		e = &IndexEntry{Key: key}
		ix.entries[id] = e
		ix.order = append(ix.order, id)
	}
	e.Rows = append(e.Rows, row)
}

// Lookup returns the entry for key, or nil.
func (ix *KeyIndex) Lookup(key Key) *IndexEntry {
	if ix == nil {
		return nil
	}
	return ix.entries[key.encode()]
}

// Len returns the number of distinct keys.
func (ix *KeyIndex) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.order)
}

// Entries returns the entries in first-insertion order.
func (ix *KeyIndex) Entries() []*IndexEntry {
	if ix == nil {
		return nil
	}
	out := make([]*IndexEntry, len(ix.order))
	for i, id := range ix.order {
		out[i] = ix.entries[id]
	}
	return out
}
