// Package checker runs check mode: validate the sheet, probe every target,
// classify each row and tally the results.
package checker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raysh454/stagecheck/internal/classify"
	"github.com/raysh454/stagecheck/internal/logging"
	"github.com/raysh454/stagecheck/internal/probe"
	"github.com/raysh454/stagecheck/internal/rowio"
	"github.com/raysh454/stagecheck/internal/scheduler"
)

// Config names the columns check mode reads and writes.
type Config struct {
	TargetField         string `yaml:"target_field"`
	ClassificationField string `yaml:"classification_field"`
	ScopeField          string `yaml:"scope_field"`
	StatusField         string `yaml:"status_field"`
	URLMatchesField     string `yaml:"url_matches_field"`
}

func DefaultConfig() Config {
	return Config{
		TargetField:         "Theoretical Staging Link",
		ClassificationField: "Page Exists?",
		ScopeField:          "Scope",
		StatusField:         "Status",
		URLMatchesField:     "URL Matches",
	}
}

// Required lists the columns a sheet must have.
func (c Config) Required() []string {
	return []string{c.TargetField, c.ClassificationField, c.ScopeField, c.StatusField}
}

// Summary counts classifications across all rows.
type Summary struct {
	Rows     int `json:"rows"`
	Probed   int `json:"probed"`
	Yes      int `json:"yes"`
	NotFound int `json:"not_found"`
	No       int `json:"no"`
}

func (s Summary) String() string {
	return fmt.Sprintf("Yes=%d, 404=%d, No=%d across %d rows", s.Yes, s.NotFound, s.No, s.Rows)
}

// Result is what a check run produced beyond the mutated table.
type Result struct {
	Summary Summary
	// Outcomes holds one probe outcome per row index that had a target.
	Outcomes map[int]probe.Outcome
	// Previous and Values are the classification column before and after.
	Previous []string
	Values   []string
}

type Checker struct {
	cfg    Config
	sched  *scheduler.Scheduler
	logger logging.Logger
}

func New(cfg Config, sched *scheduler.Scheduler, logger logging.Logger) (*Checker, error) {
	if sched == nil {
		return nil, errors.New("checker: nil scheduler")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	def := DefaultConfig()
	if cfg.TargetField == "" {
		cfg.TargetField = def.TargetField
	}
	if cfg.ClassificationField == "" {
		cfg.ClassificationField = def.ClassificationField
	}
	if cfg.ScopeField == "" {
		cfg.ScopeField = def.ScopeField
	}
	if cfg.StatusField == "" {
		cfg.StatusField = def.StatusField
	}
	if cfg.URLMatchesField == "" {
		cfg.URLMatchesField = def.URLMatchesField
	}
	return &Checker{
		cfg:    cfg,
		sched:  sched,
		logger: logger.With(logging.Field{Key: "component", Value: "checker"}),
	}, nil
}

func (c *Checker) Config() Config { return c.cfg }

// Check classifies every row of t in place. It fails before any probe is
// issued if a required column is missing.
func (c *Checker) Check(ctx context.Context, t *rowio.Table, progress scheduler.ProgressFunc) (*Result, error) {
	if t == nil {
		return nil, errors.New("checker: nil table")
	}
	if err := t.Require(c.cfg.Required()...); err != nil {
		return nil, err
	}

	res := &Result{
		Previous: t.Column(c.cfg.ClassificationField),
		Values:   make([]string, len(t.Rows)),
	}
	res.Outcomes = c.sched.RunAll(ctx, t.Rows, c.cfg.TargetField, progress)
	res.Summary.Rows = len(t.Rows)
	res.Summary.Probed = len(res.Outcomes)

	for i, row := range t.Rows {
		in := classify.Input{
			Scope:      row[c.cfg.ScopeField],
			Status:     row[c.cfg.StatusField],
			URLMatches: row[c.cfg.URLMatchesField],
		}
		if o, ok := res.Outcomes[i]; ok {
			in.Outcome = &o
		}
		value := classify.Classify(in)
		row[c.cfg.ClassificationField] = string(value)
		res.Values[i] = string(value)

		switch value {
		case classify.Exists:
			res.Summary.Yes++
		case classify.MissingButExpected:
			res.Summary.NotFound++
		default:
			res.Summary.No++
		}

		target := strings.TrimSpace(row[c.cfg.TargetField])
		if target == "" {
			target = "<empty>"
		}
		c.logger.Debug(fmt.Sprintf("Classified: %s -> %s=%s", target, c.cfg.ClassificationField, value))
	}

	c.logger.Info("check finished",
		logging.Field{Key: "rows", Value: res.Summary.Rows},
		logging.Field{Key: "probed", Value: res.Summary.Probed},
		logging.Field{Key: "yes", Value: res.Summary.Yes},
		logging.Field{Key: "not_found", Value: res.Summary.NotFound},
		logging.Field{Key: "no", Value: res.Summary.No})
	return res, nil
}
