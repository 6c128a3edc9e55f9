// Package report renders check results for a terminal.
package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/rodaine/table"

	"github.com/raysh454/stagecheck/internal/checker"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)

// WriteSummary prints a classification count table. styled enables
// terminal styling of the header.
func WriteSummary(w io.Writer, field string, s checker.Summary, styled bool) {
	tbl := table.New(field, "Rows").WithWriter(w)
	if styled {
		tbl.WithHeaderFormatter(func(format string, vals ...interface{}) string {
			return headerStyle.Render(fmt.Sprintf(format, vals...))
		})
	}
	tbl.AddRow("Yes", s.Yes)
	tbl.AddRow("404", s.NotFound)
	tbl.AddRow("No", s.No)
	tbl.AddRow("Total", s.Rows)
	tbl.Print()
	fmt.Fprintf(w, "Summary: %s\n", s)
}
