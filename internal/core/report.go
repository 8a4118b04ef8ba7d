package core

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/JonMunkholm/csvlint/internal/diagnostic"
)

// Diagnostic is a record as reported to users: the raw record plus its
// severity, the table it belongs to, and the mapped user message.
type Diagnostic struct {
	diagnostic.Record
	Severity diagnostic.Severity `json:"severity"`
	Table    string              `json:"table,omitempty"`
	Message  string              `json:"message,omitempty"`
	Code     string              `json:"code,omitempty"`
}

func newDiagnostic(r diagnostic.Record, severity diagnostic.Severity, table string) Diagnostic {
	msg := MapKind(r.Kind)
	return Diagnostic{
		Record:   r,
		Severity: severity,
		Table:    table,
		Message:  msg.Message,
		Code:     msg.Code,
	}
}

// TableReport summarises one table of a run.
type TableReport struct {
	URL      string       `json:"url"`
	Rows     int          `json:"rows"`
	Bytes    int64        `json:"bytes"`
	Valid    bool         `json:"valid"`
	Errors   []Diagnostic `json:"errors"`
	Warnings []Diagnostic `json:"warnings"`
}

func (t *TableReport) add(records []diagnostic.Record, severity diagnostic.Severity) {
	for _, r := range records {
		d := newDiagnostic(r, severity, t.URL)
		if severity == diagnostic.SeverityError {
			t.Errors = append(t.Errors, d)
		} else {
			t.Warnings = append(t.Warnings, d)
		}
	}
}

// Report is the outcome of one validation run.
type Report struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Client    Client        `json:"client"`
	Duration  time.Duration `json:"duration_ns"`
	Valid     bool          `json:"valid"`
	Tables    []TableReport `json:"tables"`
	Errors    []Diagnostic  `json:"errors"`
	Warnings  []Diagnostic  `json:"warnings"`
}

// Rows returns the number of data rows validated across all tables.
func (r *Report) Rows() int {
	n := 0
	for _, t := range r.Tables {
		n += t.Rows
	}
	return n
}

// finish fills the run-wide lists and validity from the table reports.
func (r *Report) finish(started time.Time) {
	r.Duration = time.Since(started)
	r.Valid = true
	r.Errors = r.Errors[:0]
	r.Warnings = r.Warnings[:0]
	for i := range r.Tables {
		t := &r.Tables[i]
		t.Valid = len(t.Errors) == 0
		if !t.Valid {
			r.Valid = false
		}
		r.Errors = append(r.Errors, t.Errors...)
		r.Warnings = append(r.Warnings, t.Warnings...)
	}
}

// Result is the label used for metrics and run history.
func (r *Report) Result() string {
	if r.Valid {
		return "valid"
	}
	return "invalid"
}

// WriteText renders the report for terminals, one line per diagnostic.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	status := "VALID"
	if !r.Valid {
		status = "INVALID"
	}
	fmt.Fprintf(&b, "%s run %s (%d rows, %d errors, %d warnings, %s)\n",
		status, r.RunID, r.Rows(), len(r.Errors), len(r.Warnings), r.Duration.Round(time.Millisecond))

	for _, t := range r.Tables {
		fmt.Fprintf(&b, "\n%s: %d rows\n", t.URL, t.Rows)
		for _, d := range t.Errors {
			writeLine(&b, d)
		}
		for _, d := range t.Warnings {
			writeLine(&b, d)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeLine(b *strings.Builder, d Diagnostic) {
	fmt.Fprintf(b, "  %-7s %s", d.Severity, d.Record.String())
	if d.Code != "" {
		fmt.Fprintf(b, " [%s] %s", d.Code, d.Message)
	}
	b.WriteByte('\n')
}
