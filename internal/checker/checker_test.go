package checker_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/raysh454/stagecheck/internal/checker"
	"github.com/raysh454/stagecheck/internal/probe"
	"github.com/raysh454/stagecheck/internal/rowio"
	"github.com/raysh454/stagecheck/internal/scheduler"
	"github.com/raysh454/stagecheck/internal/testutil"
)

const sheet = "Live Link,Theoretical Staging Link,Page Exists?,Scope,Status,URL Matches\n" +
	"https://www.example.com/a,https://staging.example.com/a,,,,\n" + // A
	"https://www.example.com/b,,,Not in Scope,,\n" + // B
	"https://www.example.com/c,https://staging.example.com/c,,,Needed for Launch,\n" + // C
	"https://www.example.com/d,https://staging.example.com/d,,,Needed for Launch,Yes\n" + // D
	"https://www.example.com/e,https://staging.example.com/e,old,In Scope,,\n" // E

func newChecker(t *testing.T, dc *testutil.DummyChecker, logger *testutil.DummyLogger) *checker.Checker {
	t.Helper()
	s, err := scheduler.New(scheduler.Config{Concurrency: 4}, dc, logger)
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	c, err := checker.New(checker.DefaultConfig(), s, logger)
	if err != nil {
		t.Fatalf("checker.New: %v", err)
	}
	return c
}

func TestCheck_Scenarios(t *testing.T) {
	t.Parallel()
	dc := &testutil.DummyChecker{Outcomes: map[string]probe.Outcome{
		"https://staging.example.com/a": probe.ResolvedWith(200),
		"https://staging.example.com/c": probe.ResolvedWith(404),
		"https://staging.example.com/d": probe.ResolvedWith(404),
		"https://staging.example.com/e": probe.UnresolvedWith("timeout"),
	}}
	logger := &testutil.DummyLogger{}
	c := newChecker(t, dc, logger)

	tbl, err := rowio.ReadCSV(strings.NewReader(sheet))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	fieldsBefore := append([]string(nil), tbl.Fields...)

	res, err := c.Check(context.Background(), tbl, nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	want := []string{"Yes", "No", "404", "No", "404"}
	if got := tbl.Column("Page Exists?"); !reflect.DeepEqual(got, want) {
		t.Errorf("Page Exists? = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(res.Values, want) {
		t.Errorf("Values = %v", res.Values)
	}
	if !reflect.DeepEqual(res.Previous, []string{"", "", "", "", "old"}) {
		t.Errorf("Previous = %v", res.Previous)
	}
	if !reflect.DeepEqual(tbl.Fields, fieldsBefore) {
		t.Errorf("field order changed: %v", tbl.Fields)
	}
	if tbl.Rows[0]["Live Link"] != "https://www.example.com/a" {
		t.Errorf("unrelated field mutated")
	}

	wantSummary := checker.Summary{Rows: 5, Probed: 4, Yes: 1, NotFound: 2, No: 2}
	if res.Summary != wantSummary {
		t.Errorf("Summary = %+v, want %+v", res.Summary, wantSummary)
	}
	if res.Summary.String() != "Yes=1, 404=2, No=2 across 5 rows" {
		t.Errorf("Summary.String() = %q", res.Summary.String())
	}
	if dc.CallCount() != 4 {
		t.Errorf("expected 4 probes, got %d", dc.CallCount())
	}
	if _, ok := res.Outcomes[1]; ok {
		t.Errorf("empty target row must not have an outcome")
	}
	if logger.DebugCount() < 5 {
		t.Errorf("expected per-row debug logs, got %d", logger.DebugCount())
	}
}

func TestCheck_MissingColumnsFailsBeforeProbing(t *testing.T) {
	t.Parallel()
	dc := &testutil.DummyChecker{}
	c := newChecker(t, dc, &testutil.DummyLogger{})

	tbl, err := rowio.ReadCSV(strings.NewReader("Theoretical Staging Link,Scope\nhttps://staging.example.com/a,In Scope\n"))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	_, err = c.Check(context.Background(), tbl, nil)
	if !errors.Is(err, rowio.ErrMissingColumns) {
		t.Fatalf("expected ErrMissingColumns, got %v", err)
	}
	var mce *rowio.MissingColumnsError
	if !errors.As(err, &mce) || !reflect.DeepEqual(mce.Missing, []string{"Page Exists?", "Status"}) {
		t.Errorf("missing = %v", err)
	}
	if dc.CallCount() != 0 {
		t.Errorf("no probes expected, got %d", dc.CallCount())
	}
	if tbl.Rows[0]["Page Exists?"] != "" {
		t.Errorf("table must not be mutated")
	}
}

func TestCheck_WithoutURLMatchesColumn(t *testing.T) {
	t.Parallel()
	dc := &testutil.DummyChecker{Outcomes: map[string]probe.Outcome{
		"https://staging.example.com/x": probe.ResolvedWith(404),
	}}
	c := newChecker(t, dc, &testutil.DummyLogger{})

	tbl, err := rowio.ReadCSV(strings.NewReader("Theoretical Staging Link,Page Exists?,Scope,Status\nhttps://staging.example.com/x,,In Scope,\n"))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if _, err := c.Check(context.Background(), tbl, nil); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got := tbl.Rows[0]["Page Exists?"]; got != "404" {
		t.Errorf("Page Exists? = %q, want 404", got)
	}
	if tbl.HasField("URL Matches") {
		t.Errorf("check must not add columns")
	}
	if _, ok := tbl.Rows[0]["URL Matches"]; ok {
		t.Errorf("check must not add fields to rows")
	}
}

func TestCheck_CustomColumns(t *testing.T) {
	t.Parallel()
	s, err := scheduler.New(scheduler.DefaultConfig(), &testutil.DummyChecker{}, nil)
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	c, err := checker.New(checker.Config{TargetField: "URL", ClassificationField: "Exists"}, s, nil)
	if err != nil {
		t.Fatalf("checker.New: %v", err)
	}
	tbl, err := rowio.ReadCSV(strings.NewReader("URL,Exists,Scope,Status\nhttps://s.example.com/,,,\n"))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if _, err := c.Check(context.Background(), tbl, nil); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if tbl.Rows[0]["Exists"] != "Yes" {
		t.Errorf("Exists = %q", tbl.Rows[0]["Exists"])
	}
}
