package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/raysh454/stagecheck/internal/logging"
	"github.com/raysh454/stagecheck/internal/probe"
	"github.com/raysh454/stagecheck/internal/rowio"
)

// Progress is reported once per finished probe. Completed counts up to Total.
type Progress struct {
	Completed int
	Total     int
	Index     int
	URL       string
	Outcome   probe.Outcome
}

type ProgressFunc func(Progress)

// Scheduler runs a probe.Checker over many rows with bounded concurrency.
type Scheduler struct {
	cfg     Config
	checker probe.Checker
	limiter *rate.Limiter
	logger  logging.Logger
}

// New clamps the configured concurrency to at least 1.
func New(cfg Config, checker probe.Checker, logger logging.Logger) (*Scheduler, error) {
	if checker == nil {
		return nil, fmt.Errorf("scheduler: nil checker")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Scheduler{
		cfg:     cfg,
		checker: checker,
		limiter: limiter,
		logger:  logger.With(logging.Field{Key: "component", Value: "scheduler"}),
	}, nil
}

type task struct {
	index int
	url   string
}

// Targets returns the indices of rows whose trimmed target field is non-empty,
// paired with the trimmed URL.
func Targets(rows []rowio.Row, targetField string) (indices []int, urls []string) {
	for i, r := range rows {
		u := strings.TrimSpace(r[targetField])
		if u == "" {
			continue
		}
		indices = append(indices, i)
		urls = append(urls, u)
	}
	return indices, urls
}

// RunAll probes every row with a non-empty target and returns outcomes keyed by
// row index. Every dispatched index has exactly one outcome on return; rows
// with an empty target have none. A panicking probe yields Unresolved.
func (s *Scheduler) RunAll(ctx context.Context, rows []rowio.Row, targetField string, progress ProgressFunc) map[int]probe.Outcome {
	indices, urls := Targets(rows, targetField)
	tasks := make([]task, len(indices))
	for i := range indices {
		tasks[i] = task{index: indices[i], url: urls[i]}
	}

	// one slot per task, written only by that task's goroutine
	results := make([]probe.Outcome, len(tasks))

	s.logger.Info("probing urls",
		logging.Field{Key: "count", Value: len(tasks)},
		logging.Field{Key: "concurrency", Value: s.cfg.Concurrency},
		logging.Field{Key: "timeout", Value: s.cfg.Timeout.String()})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)
	sem := make(chan struct{}, s.cfg.Concurrency)

	for i, tk := range tasks {
		wg.Add(1)
		go func(slot int, tk task) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[slot] = s.probeOne(ctx, tk.url)

			mu.Lock()
			completed++
			p := Progress{Completed: completed, Total: len(tasks), Index: tk.index, URL: tk.url, Outcome: results[slot]}
			if progress != nil {
				progress(p)
			}
			mu.Unlock()

			s.logger.Debug(fmt.Sprintf("[%d/%d] %s -> %s", p.Completed, p.Total, tk.url, statusRepr(p.Outcome)))
		}(i, tk)
	}
	wg.Wait()

	out := make(map[int]probe.Outcome, len(tasks))
	for i, tk := range tasks {
		out[tk.index] = results[i]
	}
	return out
}

func (s *Scheduler) probeOne(ctx context.Context, url string) (outcome probe.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("probe panicked",
				logging.Field{Key: "url", Value: url},
				logging.Field{Key: "panic", Value: fmt.Sprint(r)})
			outcome = probe.UnresolvedWith(fmt.Sprintf("%s: %v", probe.ReasonFault, r))
		}
	}()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return probe.UnresolvedWith("rate limit: " + err.Error())
		}
	}
	return s.checker.Probe(ctx, url, s.cfg.Timeout, s.cfg.UserAgent)
}

func statusRepr(o probe.Outcome) string {
	if o.IsResolved() {
		return fmt.Sprint(o.StatusCode)
	}
	return "error: " + o.Reason
}
