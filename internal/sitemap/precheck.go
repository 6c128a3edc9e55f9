package sitemap

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/raysh454/stagecheck/internal/logging"
	"github.com/raysh454/stagecheck/internal/probe"
)

// Pair is a live page and its derived staging URL.
type Pair struct {
	Live    string
	Staging string
}

// PairResult holds both probe outcomes for a Pair.
type PairResult struct {
	Live    probe.Outcome
	Staging probe.Outcome
}

// PageExists is "Yes" when the staging page resolved 2xx or 3xx.
func (pr PairResult) PageExists() string {
	if pr.Staging.Exists() {
		return "Yes"
	}
	return "No"
}

// URLMatches is "Yes" when both pages resolved 2xx or 3xx.
func (pr PairResult) URLMatches() string {
	if pr.Live.Exists() && pr.Staging.Exists() {
		return "Yes"
	}
	return "Page Does Not Exist"
}

// ProgressFunc reports finished probes out of total.
type ProgressFunc func(completed, total int)

// Prechecker probes live and staging URLs on its own bounded pool.
type Prechecker struct {
	checker     probe.Checker
	cfg         Config
	concurrency int
	limiter     *rate.Limiter
	group       singleflight.Group
	logger      logging.Logger
}

func NewPrechecker(cfg Config, checker probe.Checker, logger logging.Logger) *Prechecker {
	if logger == nil {
		logger = logging.Nop()
	}
	n := cfg.PrecheckConcurrency
	if n < 1 {
		n = 1
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(1, int(cfg.RatePerSecond)))
	}
	return &Prechecker{
		checker:     checker,
		cfg:         cfg,
		concurrency: n,
		limiter:     limiter,
		logger:      logger.With(logging.Field{Key: "component", Value: "precheck"}),
	}
}

// Run probes every live and staging URL once per in-flight request and
// returns one result per pair, in order.
func (p *Prechecker) Run(ctx context.Context, pairs []Pair, progress ProgressFunc) []PairResult {
	results := make([]PairResult, len(pairs))
	total := len(pairs) * 2

	var (
		mu   sync.Mutex
		done int
	)
	tick := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if progress != nil {
			progress(done, total)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, pair := range pairs {
		g.Go(func() error {
			results[i].Live = p.probe(gctx, pair.Live)
			tick()
			return nil
		})
		g.Go(func() error {
			results[i].Staging = p.probe(gctx, pair.Staging)
			tick()
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("precheck finished", logging.Field{Key: "pairs", Value: len(pairs)})
	return results
}

func (p *Prechecker) probe(ctx context.Context, target string) (out probe.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = probe.UnresolvedWith(fmt.Sprintf("%s: %v", probe.ReasonFault, r))
		}
	}()

	v, _, shared := p.group.Do(target, func() (any, error) {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return probe.UnresolvedWith("rate limit: " + err.Error()), nil
			}
		}
		return p.checker.Probe(ctx, target, p.cfg.Timeout, p.cfg.UserAgent), nil
	})
	if shared {
		p.logger.Debug("shared in-flight probe", logging.Field{Key: "url", Value: target})
	}
	return v.(probe.Outcome)
}
