package scheduler_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raysh454/stagecheck/internal/probe"
	"github.com/raysh454/stagecheck/internal/rowio"
	"github.com/raysh454/stagecheck/internal/scheduler"
	"github.com/raysh454/stagecheck/internal/testutil"
)

const target = "Theoretical Staging Link"

func rowsFor(urls ...string) []rowio.Row {
	rows := make([]rowio.Row, len(urls))
	for i, u := range urls {
		rows[i] = rowio.Row{target: u}
	}
	return rows
}

func newScheduler(t *testing.T, cfg scheduler.Config, checker probe.Checker) *scheduler.Scheduler {
	t.Helper()
	s, err := scheduler.New(cfg, checker, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	return s
}

func TestRunAll_SkipsEmptyTargets(t *testing.T) {
	t.Parallel()
	checker := &testutil.DummyChecker{}
	s := newScheduler(t, scheduler.DefaultConfig(), checker)

	rows := rowsFor("https://s.example.com/a", "", "   ", "https://s.example.com/b", "\t")
	got := s.RunAll(context.Background(), rows, target, nil)

	if len(got) != 2 {
		t.Fatalf("expected 2 outcomes, got %d: %v", len(got), got)
	}
	for _, idx := range []int{0, 3} {
		if _, ok := got[idx]; !ok {
			t.Errorf("missing outcome for index %d", idx)
		}
	}
	if checker.CallCount() != 2 {
		t.Errorf("expected 2 probes, got %d", checker.CallCount())
	}
}

func TestRunAll_KeysByIndexNotURL(t *testing.T) {
	t.Parallel()
	checker := &testutil.DummyChecker{Outcomes: map[string]probe.Outcome{
		"https://s.example.com/gone": probe.ResolvedWith(404),
	}}
	s := newScheduler(t, scheduler.DefaultConfig(), checker)

	rows := rowsFor("https://s.example.com/gone", "https://s.example.com/ok", " https://s.example.com/gone ")
	got := s.RunAll(context.Background(), rows, target, nil)

	want := map[int]probe.Outcome{
		0: probe.ResolvedWith(404),
		1: probe.ResolvedWith(200),
		2: probe.ResolvedWith(404),
	}
	for idx, w := range want {
		if got[idx] != w {
			t.Errorf("index %d = %+v, want %+v", idx, got[idx], w)
		}
	}
	if checker.CallCount() != 3 {
		t.Errorf("duplicate URLs must each be probed, got %d calls", checker.CallCount())
	}
}

func TestRunAll_PanicBecomesUnresolved(t *testing.T) {
	t.Parallel()
	checker := &testutil.DummyChecker{Panics: map[string]bool{"https://s.example.com/boom": true}}
	s := newScheduler(t, scheduler.Config{Concurrency: 2}, checker)

	rows := rowsFor("https://s.example.com/a", "https://s.example.com/boom", "https://s.example.com/c")
	got := s.RunAll(context.Background(), rows, target, nil)

	if len(got) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(got))
	}
	if got[1].IsResolved() || !strings.HasPrefix(got[1].Reason, probe.ReasonFault) {
		t.Errorf("panicking row = %+v, want Unresolved fault", got[1])
	}
	if !got[0].IsResolved() || !got[2].IsResolved() {
		t.Errorf("other rows should resolve: %+v %+v", got[0], got[2])
	}
}

func TestRunAll_BoundedConcurrency(t *testing.T) {
	t.Parallel()
	wc := testutil.NewDummyWebClient()
	wc.ResponseDelay = 20 * time.Millisecond
	p, err := probe.New(wc, nil)
	if err != nil {
		t.Fatalf("probe.New: %v", err)
	}
	s := newScheduler(t, scheduler.Config{Concurrency: 3, Timeout: time.Second}, p)

	urls := make([]string, 12)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://s.example.com/%d", i)
	}
	got := s.RunAll(context.Background(), rowsFor(urls...), target, nil)

	if len(got) != len(urls) {
		t.Fatalf("expected %d outcomes, got %d", len(urls), len(got))
	}
	if peak := wc.PeakInFlight(); peak > 3 {
		t.Errorf("peak in-flight = %d, want <= 3", peak)
	}
}

func TestRunAll_ConcurrencyClampedToOne(t *testing.T) {
	t.Parallel()
	wc := testutil.NewDummyWebClient()
	wc.ResponseDelay = 5 * time.Millisecond
	p, err := probe.New(wc, nil)
	if err != nil {
		t.Fatalf("probe.New: %v", err)
	}
	s := newScheduler(t, scheduler.Config{Concurrency: 0, Timeout: time.Second}, p)

	got := s.RunAll(context.Background(), rowsFor("https://a.example.com/", "https://b.example.com/", "https://c.example.com/"), target, nil)
	if len(got) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(got))
	}
	if peak := wc.PeakInFlight(); peak != 1 {
		t.Errorf("peak in-flight = %d, want 1", peak)
	}
}

func TestRunAll_Progress(t *testing.T) {
	t.Parallel()
	s := newScheduler(t, scheduler.Config{Concurrency: 4}, &testutil.DummyChecker{})

	var (
		mu   sync.Mutex
		seen []int
		idx  []int
	)
	rows := rowsFor("https://s.example.com/1", "", "https://s.example.com/2", "https://s.example.com/3")
	s.RunAll(context.Background(), rows, target, func(p scheduler.Progress) {
		mu.Lock()
		defer mu.Unlock()
		if p.Total != 3 {
			t.Errorf("Total = %d, want 3", p.Total)
		}
		seen = append(seen, p.Completed)
		idx = append(idx, p.Index)
	})

	if len(seen) != 3 {
		t.Fatalf("expected 3 progress events, got %d", len(seen))
	}
	for i, c := range seen {
		if c != i+1 {
			t.Errorf("progress %d reported Completed=%d", i, c)
		}
	}
	sort.Ints(idx)
	if fmt.Sprint(idx) != "[0 2 3]" {
		t.Errorf("progress indices = %v", idx)
	}
}

func TestRunAll_NoTargets(t *testing.T) {
	t.Parallel()
	checker := &testutil.DummyChecker{}
	s := newScheduler(t, scheduler.DefaultConfig(), checker)

	got := s.RunAll(context.Background(), rowsFor("", " "), target, nil)
	if len(got) != 0 {
		t.Errorf("expected no outcomes, got %v", got)
	}
	if checker.CallCount() != 0 {
		t.Errorf("expected no probes")
	}
}

func TestRunAll_RateLimited(t *testing.T) {
	t.Parallel()
	s := newScheduler(t, scheduler.Config{Concurrency: 10, RatePerSecond: 50}, &testutil.DummyChecker{})

	urls := make([]string, 60)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://s.example.com/%d", i)
	}
	start := time.Now()
	got := s.RunAll(context.Background(), rowsFor(urls...), target, nil)
	if len(got) != 60 {
		t.Fatalf("expected 60 outcomes, got %d", len(got))
	}
	// burst of 50 then 10 more at 50/s
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("rate limit not applied, finished in %s", elapsed)
	}
}

func TestNew_NilChecker(t *testing.T) {
	t.Parallel()
	if _, err := scheduler.New(scheduler.DefaultConfig(), nil, nil); err == nil {
		t.Fatal("expected error for nil checker")
	}
}
