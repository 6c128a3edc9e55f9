package report

import (
	"io"
	"strconv"
	"time"

	"github.com/rodaine/table"

	"github.com/raysh454/stagecheck/internal/ledger"
)

// WriteRuns prints recorded runs, newest first as given.
func WriteRuns(w io.Writer, runs []ledger.Run) {
	tbl := table.New("ID", "Mode", "Input", "Started", "Rows", "Yes", "404", "No").WithWriter(w)
	for _, r := range runs {
		tbl.AddRow(r.ID, r.Mode, r.Input, r.StartedAt.Local().Format(time.DateTime),
			r.Summary.Rows, r.Summary.Yes, r.Summary.NotFound, r.Summary.No)
	}
	tbl.Print()
}

// WriteResults prints one run's per-row outcomes.
func WriteResults(w io.Writer, results []ledger.Result) {
	tbl := table.New("Row", "URL", "Outcome", "Page Exists?").WithWriter(w)
	for _, r := range results {
		tbl.AddRow(r.RowIndex+1, display(r.URL), outcome(r), r.Classification)
	}
	tbl.Print()
}

func outcome(r ledger.Result) string {
	switch {
	case r.StatusCode != 0:
		return strconv.Itoa(r.StatusCode)
	case r.Reason != "":
		return "error: " + r.Reason
	default:
		return "-"
	}
}
