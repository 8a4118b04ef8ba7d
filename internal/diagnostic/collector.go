package diagnostic

// Collector accumulates errors and warnings for one unit of validation.
//
// The zero value is ready to use. Components embed a Collector and call
// Reset at the start of each header check, row check or foreign-key pass.
type Collector struct {
	errors   []Record
	warnings []Record
}

// Reset clears both lists.
func (c *Collector) Reset() {
	c.errors = nil
	c.warnings = nil
}

// AddError appends an error record.
func (c *Collector) AddError(kind Kind, category Category, row, column int, content string, context map[string]any) {
	c.errors = append(c.errors, Record{
		Kind:     kind,
		Category: category,
		Row:      row,
		Column:   column,
		Content:  content,
		Context:  context,
	})
}

// AddWarning appends a warning record. Warnings never affect Valid.
func (c *Collector) AddWarning(kind Kind, category Category, row, column int, content string, context map[string]any) {
	c.warnings = append(c.warnings, Record{
		Kind:     kind,
		Category: category,
		Row:      row,
		Column:   column,
		Content:  content,
		Context:  context,
	})
}

// Merge appends the errors and warnings of other.
func (c *Collector) Merge(other *Collector) {
	if other == nil || other == c {
		return
	}
	c.errors = append(c.errors, other.errors...)
	c.warnings = append(c.warnings, other.warnings...)
}

// Valid reports whether no errors have been recorded.
func (c *Collector) Valid() bool {
	return len(c.errors) == 0
}

// Errors returns the recorded errors. The slice must not be modified.
func (c *Collector) Errors() []Record {
	return c.errors
}

// Warnings returns the recorded warnings. The slice must not be modified.
func (c *Collector) Warnings() []Record {
	return c.warnings
}

// HasKind reports whether an error of kind was recorded against column.
// A column of zero matches any column.
func HasKind(records []Record, kind Kind, column int) bool {
	for _, r := range records {
		if r.Kind == kind && (column == 0 || r.Column == column) {
			return true
		}
	}
	return false
}

// Count returns the number of records of kind.
func Count(records []Record, kind Kind) int {
	n := 0
	for _, r := range records {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// Tally counts records by kind. Its size is bounded by the number of kinds,
// so validators keep one for a whole run instead of the records themselves.
type Tally map[Kind]int

// Add counts each of records.
func (t Tally) Add(records []Record) {
	for _, r := range records {
		t[r.Kind]++
	}
}

// Count returns how many records of kind were added.
func (t Tally) Count(kind Kind) int {
	return t[kind]
}

// Total returns how many records were added.
func (t Tally) Total() int {
	n := 0
	for _, c := range t {
		n += c
	}
	return n
}
