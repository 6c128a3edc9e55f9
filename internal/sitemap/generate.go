package sitemap

import (
	"context"
	"errors"
	"fmt"

	"github.com/raysh454/stagecheck/internal/logging"
	"github.com/raysh454/stagecheck/internal/probe"
	"github.com/raysh454/stagecheck/internal/rowio"
	"github.com/raysh454/stagecheck/internal/webclient"
)

// ErrNothingToGenerate is returned when the sitemap yields no usable URLs.
var ErrNothingToGenerate = errors.New("nothing to generate")

// Columns of a generated sheet, in output order.
const (
	ColumnLive       = "Live Link"
	ColumnStaging    = "Theoretical Staging Link"
	ColumnPageExists = "Page Exists?"
	ColumnURLMatches = "URL Matches"
	ColumnRedirectTo = "Redirect To"
	ColumnScope      = "Scope"
	ColumnStatus     = "Status"
)

var generatedFields = []string{
	ColumnLive, ColumnStaging, ColumnPageExists, ColumnURLMatches,
	ColumnRedirectTo, ColumnScope, ColumnStatus,
}

// Generator builds a check sheet from a live site's sitemap.
type Generator struct {
	cfg        Config
	resolver   *Resolver
	prechecker *Prechecker
	logger     logging.Logger
}

// NewGenerator wires a Resolver over wc and, when cfg.Precheck is set, a
// Prechecker over checker.
func NewGenerator(cfg Config, wc webclient.WebClient, checker probe.Checker, logger logging.Logger) (*Generator, error) {
	if wc == nil {
		return nil, errors.New("sitemap: nil webclient")
	}
	if cfg.Precheck && checker == nil {
		return nil, errors.New("sitemap: precheck enabled without a checker")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	g := &Generator{
		cfg:      cfg,
		resolver: NewResolver(cfg, wc, logger),
		logger:   logger.With(logging.Field{Key: "component", Value: "generate"}),
	}
	if cfg.Precheck {
		g.prechecker = NewPrechecker(cfg, checker, logger)
	}
	return g, nil
}

// Generate resolves site into page URLs and returns one row per URL with
// the staging URL derived for stagingHost. With precheck on, "Page Exists?"
// and "URL Matches" are filled from live probes; otherwise they are empty.
func (g *Generator) Generate(ctx context.Context, site, stagingHost string, progress ProgressFunc) (*rowio.Table, error) {
	if _, err := NormalizeHost(stagingHost); err != nil {
		return nil, err
	}

	urls, err := g.resolver.Resolve(ctx, site)
	if err != nil {
		return nil, err
	}

	pairs := make([]Pair, 0, len(urls))
	for _, live := range urls {
		staging, err := DeriveStaging(live, stagingHost)
		if err != nil {
			g.logger.Warn("skipping url", logging.Field{Key: "url", Value: live}, logging.Field{Key: "error", Value: err})
			continue
		}
		pairs = append(pairs, Pair{Live: live, Staging: staging})
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: no urls found for %s", ErrNothingToGenerate, site)
	}
	g.logger.Info("resolved sitemap", logging.Field{Key: "site", Value: site}, logging.Field{Key: "urls", Value: len(pairs)})

	var checks []PairResult
	if g.prechecker != nil {
		checks = g.prechecker.Run(ctx, pairs, progress)
	}

	t := &rowio.Table{Fields: append([]string(nil), generatedFields...)}
	for i, p := range pairs {
		row := rowio.Row{
			ColumnLive:       p.Live,
			ColumnStaging:    p.Staging,
			ColumnPageExists: "",
			ColumnURLMatches: "",
			ColumnRedirectTo: "",
			ColumnScope:      "",
			ColumnStatus:     "",
		}
		if checks != nil {
			row[ColumnPageExists] = checks[i].PageExists()
			row[ColumnURLMatches] = checks[i].URLMatches()
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
