package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raysh454/stagecheck/internal/checker"
	"github.com/raysh454/stagecheck/internal/ledger"
	"github.com/raysh454/stagecheck/internal/logging"
	"github.com/raysh454/stagecheck/internal/probe"
	"github.com/raysh454/stagecheck/internal/rowio"
	"github.com/raysh454/stagecheck/internal/scheduler"
	"github.com/raysh454/stagecheck/internal/sitemap"
	"github.com/raysh454/stagecheck/internal/webclient"
)

// Components is the wired set of services one process uses.
type Components struct {
	// WebClient carries probes and may be a browser backend. SitemapClient
	// always speaks plain HTTP since sitemaps are XML documents.
	WebClient     webclient.WebClient
	SitemapClient webclient.WebClient

	Prober    probe.Checker
	Scheduler *scheduler.Scheduler
	Checker   *checker.Checker
	Generator *sitemap.Generator

	// Ledger is nil unless a history path is configured.
	Ledger *ledger.Ledger
}

// NewComponents builds every component from cfg.
func NewComponents(cfg *Config, logger logging.Logger) (*Components, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	cfg.propagate()

	wc, err := webclient.NewWebClient(cfg.WebClient, logger)
	if err != nil {
		return nil, fmt.Errorf("new webclient: %w", err)
	}

	var smc webclient.WebClient = wc
	if _, ok := wc.(*webclient.NetHTTPClient); !ok {
		httpCfg := cfg.WebClient
		httpCfg.Client = webclient.ClientNetHTTP
		if smc, err = webclient.NewWebClient(httpCfg, logger); err != nil {
			_ = wc.Close()
			return nil, fmt.Errorf("new sitemap webclient: %w", err)
		}
	}

	comps, err := assemble(cfg, wc, smc, logger)
	if err != nil {
		_ = wc.Close()
		if smc != wc {
			_ = smc.Close()
		}
		return nil, err
	}
	return comps, nil
}

// NewComponentsWithClient wires components over an existing client, which is
// used for both probes and sitemaps.
func NewComponentsWithClient(cfg *Config, wc webclient.WebClient, logger logging.Logger) (*Components, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	cfg.propagate()
	return assemble(cfg, wc, wc, logger)
}

func assemble(cfg *Config, wc, smc webclient.WebClient, logger logging.Logger) (*Components, error) {
	p, err := probe.New(wc, logger)
	if err != nil {
		return nil, fmt.Errorf("new prober: %w", err)
	}
	s, err := scheduler.New(cfg.Scheduler, p, logger)
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}
	c, err := checker.New(cfg.Columns, s, logger)
	if err != nil {
		return nil, fmt.Errorf("new checker: %w", err)
	}
	g, err := sitemap.NewGenerator(cfg.Sitemap, smc, p, logger)
	if err != nil {
		return nil, fmt.Errorf("new generator: %w", err)
	}

	comps := &Components{
		WebClient:     wc,
		SitemapClient: smc,
		Prober:        p,
		Scheduler:     s,
		Checker:       c,
		Generator:     g,
	}
	if cfg.HistoryPath != "" {
		l, err := ledger.Open(cfg.HistoryPath, logger)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		comps.Ledger = l
	}
	return comps, nil
}

// Close releases clients and the ledger.
func (c *Components) Close() error {
	var firstErr error
	if c.WebClient != nil {
		if err := c.WebClient.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close webclient: %w", err)
		}
	}
	if c.SitemapClient != nil && c.SitemapClient != c.WebClient {
		if err := c.SitemapClient.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close sitemap webclient: %w", err)
		}
	}
	if c.Ledger != nil {
		if err := c.Ledger.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close ledger: %w", err)
		}
	}
	return firstErr
}

// RunInfo describes a finished run for the ledger.
type RunInfo struct {
	Mode      string
	Input     string
	Output    string
	StartedAt time.Time
}

// RecordCheck stores a check run in the ledger. It is a no-op without one.
func (c *Components) RecordCheck(ctx context.Context, info RunInfo, t *rowio.Table, res *checker.Result) (string, error) {
	if c.Ledger == nil || res == nil {
		return "", nil
	}
	target := c.Checker.Config().TargetField
	results := make([]ledger.Result, len(t.Rows))
	for i, row := range t.Rows {
		r := ledger.Result{
			RowIndex:       i,
			URL:            strings.TrimSpace(row[target]),
			Classification: res.Values[i],
		}
		if o, ok := res.Outcomes[i]; ok {
			if o.IsResolved() {
				r.StatusCode = o.StatusCode
			} else {
				r.Reason = o.Reason
			}
		}
		results[i] = r
	}
	return c.Ledger.SaveRun(ctx, ledger.Run{
		Mode:       info.Mode,
		Input:      info.Input,
		Output:     info.Output,
		StartedAt:  info.StartedAt,
		FinishedAt: time.Now(),
		Summary:    res.Summary,
	}, results)
}

// RecordGenerate stores a generation run, one result per generated row.
func (c *Components) RecordGenerate(ctx context.Context, info RunInfo, t *rowio.Table) (string, error) {
	if c.Ledger == nil {
		return "", nil
	}
	var sum checker.Summary
	results := make([]ledger.Result, len(t.Rows))
	for i, row := range t.Rows {
		v := row[sitemap.ColumnPageExists]
		switch v {
		case "Yes":
			sum.Yes++
		case "No":
			sum.No++
		}
		results[i] = ledger.Result{RowIndex: i, URL: row[sitemap.ColumnStaging], Classification: v}
	}
	sum.Rows = len(t.Rows)
	return c.Ledger.SaveRun(ctx, ledger.Run{
		Mode:       info.Mode,
		Input:      info.Input,
		Output:     info.Output,
		StartedAt:  info.StartedAt,
		FinishedAt: time.Now(),
		Summary:    sum,
	}, results)
}
