// Package rowio reads and writes ordered tables of string rows as CSV or XLSX.
package rowio

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrMissingColumns    = errors.New("missing required columns")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// MissingColumnsError names the required columns a table lacks.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required column(s): %s", strings.Join(e.Missing, ", "))
}

func (e *MissingColumnsError) Is(target error) bool { return target == ErrMissingColumns }

// Row maps field name to value. Fields absent from the source read as "".
type Row map[string]string

// Table is an ordered header plus rows. Fields fixes the column order on
// output; rows keep their input order.
type Table struct {
	Fields []string
	Rows   []Row
}

func (t *Table) HasField(name string) bool {
	return slices.Contains(t.Fields, name)
}

// Require returns a *MissingColumnsError listing every absent field, in the
// order they were asked for.
func (t *Table) Require(fields ...string) error {
	var missing []string
	for _, f := range fields {
		if !t.HasField(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Missing: missing}
	}
	return nil
}

// EnsureField appends name to the header if it is not already there.
func (t *Table) EnsureField(name string) {
	if !t.HasField(name) {
		t.Fields = append(t.Fields, name)
	}
}

// Column returns the value of field for every row.
func (t *Table) Column(field string) []string {
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[field]
	}
	return out
}

// Records renders the table as a header record followed by one record per row.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, append([]string(nil), t.Fields...))
	for _, r := range t.Rows {
		rec := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			rec[i] = r[f]
		}
		out = append(out, rec)
	}
	return out
}

// FromRecords builds a table whose header is the first record. Short records
// read missing fields as ""; cells beyond the header are dropped. Empty
// records, which the XLSX reader yields for blank sheet rows, are skipped.
func FromRecords(records [][]string) *Table {
	t := &Table{}
	if len(records) == 0 {
		return t
	}
	t.Fields = append([]string(nil), records[0]...)
	for _, rec := range records[1:] {
		if len(rec) == 0 {
			continue
		}
		row := make(Row, len(t.Fields))
		for i, f := range t.Fields {
			if i < len(rec) {
				row[f] = rec[i]
			} else {
				row[f] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
