package report

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ColumnChange is one row whose value differs between two column snapshots.
// Row is 1-based.
type ColumnChange struct {
	Row    int
	Before string
	After  string
}

// ColumnDiff compares two positional snapshots of a column. Rows beyond the
// shorter snapshot compare against "".
func ColumnDiff(before, after []string) []ColumnChange {
	n := max(len(before), len(after))
	left := numbered(before, n)
	right := numbered(after, n)

	dmp := diffmatchpatch.New()
	c1, c2, lines := dmp.DiffLinesToChars(left, right)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(c1, c2, false), lines)

	changes := map[int]*ColumnChange{}
	var order []int
	record := func(text string, isBefore bool) {
		for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
			idx, value, ok := strings.Cut(line, "\t")
			if !ok {
				continue
			}
			row, err := strconv.Atoi(idx)
			if err != nil {
				continue
			}
			c, seen := changes[row]
			if !seen {
				c = &ColumnChange{Row: row}
				changes[row] = c
				order = append(order, row)
			}
			if isBefore {
				c.Before = value
			} else {
				c.After = value
			}
		}
	}
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			record(d.Text, true)
		case diffmatchpatch.DiffInsert:
			record(d.Text, false)
		}
	}

	out := make([]ColumnChange, 0, len(order))
	for _, row := range order {
		out = append(out, *changes[row])
	}
	// deletes and inserts interleave by row
	slices.SortFunc(out, func(a, b ColumnChange) int { return cmp.Compare(a.Row, b.Row) })
	return out
}

func numbered(values []string, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		// cell values may span lines
		fmt.Fprintf(&b, "%d\t%s\n", i+1, strings.ReplaceAll(v, "\n", `\n`))
	}
	return b.String()
}

// WriteColumnDiff prints changes as -/+ line pairs under a header naming the
// column. It reports how many rows changed.
func WriteColumnDiff(w io.Writer, field string, before, after []string) int {
	changes := ColumnDiff(before, after)
	fmt.Fprintf(w, "--- %s (input)\n+++ %s (output)\n", field, field)
	for _, c := range changes {
		fmt.Fprintf(w, "- row %d: %s\n+ row %d: %s\n", c.Row, display(c.Before), c.Row, display(c.After))
	}
	fmt.Fprintf(w, "%d row(s) changed\n", len(changes))
	return len(changes)
}

func display(v string) string {
	if v == "" {
		return "<empty>"
	}
	return v
}
