package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/raysh454/stagecheck/internal/logging"
	"github.com/raysh454/stagecheck/internal/report"
	"github.com/raysh454/stagecheck/internal/rowio"
	"github.com/raysh454/stagecheck/internal/scheduler"
	"github.com/raysh454/stagecheck/internal/tui"
)

// Error classes a command run can fail with. The CLI maps them to exit codes.
var (
	ErrUsage = errors.New("usage error")
	ErrInput = errors.New("input error")
	ErrSink  = errors.New("output error")
)

// CheckOptions drives one check-mode run.
type CheckOptions struct {
	Input  string
	Output string

	Pasteable     bool
	PasteablePath string

	Verbose bool
	Diff    bool
	TUI     bool
}

// CheckReport describes a finished check run.
type CheckReport struct {
	OutputPath    string
	PasteablePath string
	RunID         string
	Summary       string
}

// GenerateOptions drives one sitemap generation run.
type GenerateOptions struct {
	Site        string
	StagingHost string
	Output      string
	TUI         bool
}

// Application runs the one-shot commands over a set of Components.
type Application struct {
	Config *Config
	Logger logging.Logger

	Stdout io.Writer
	Stderr io.Writer

	// Now is used for default output names.
	Now func() time.Time

	comps *Components
}

// NewApplication constructs an Application from the provided parts.
func NewApplication(cfg *Config, comps *Components, logger logging.Logger, stdout, stderr io.Writer) *Application {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return &Application{
		Config: cfg,
		Logger: logger,
		Stdout: stdout,
		Stderr: stderr,
		Now:    time.Now,
		comps:  comps,
	}
}

// RunCheck reads opts.Input, classifies every row and writes the output file.
// Nothing is written unless every row was processed.
func (a *Application) RunCheck(ctx context.Context, opts CheckOptions) (*CheckReport, error) {
	if opts.Input == "" {
		return nil, fmt.Errorf("%w: input path is required", ErrUsage)
	}
	startedAt := a.Now()

	a.Logger.Debug("reading input", logging.Field{Key: "path", Value: opts.Input})
	table, err := rowio.ReadFile(opts.Input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInput, err)
	}

	outputPath := opts.Output
	if outputPath == "" {
		outputPath = rowio.DefaultOutputPath(opts.Input, startedAt)
	}
	if _, err := rowio.FormatFor(outputPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}

	var (
		bar      *tui.Progress
		progress scheduler.ProgressFunc
	)
	if opts.TUI {
		bar = tui.Start(a.Stderr, "Checking "+filepath.Base(opts.Input))
		progress = func(p scheduler.Progress) { bar.Update(p.Completed, p.Total) }
	}
	res, err := a.comps.Checker.Check(ctx, table, progress)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInput, err)
	}

	if err := rowio.WriteFile(outputPath, table); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSink, err)
	}

	field := a.comps.Checker.Config().ClassificationField
	if opts.Verbose {
		report.WriteSummary(a.Stdout, field, res.Summary, opts.TUI)
	}
	fmt.Fprintf(a.Stdout, "Wrote: %s\n", outputPath)

	rep := &CheckReport{OutputPath: outputPath, Summary: res.Summary.String()}

	if opts.Pasteable {
		path := opts.PasteablePath
		if path == "" {
			path = rowio.DefaultPasteablePath(outputPath)
		}
		if err := rowio.WritePasteable(path, res.Values); err != nil {
			return rep, fmt.Errorf("%w: %w", ErrSink, err)
		}
		fmt.Fprintf(a.Stdout, "Pasteable column written to: %s\n", path)
		rep.PasteablePath = path
	}

	if opts.Diff {
		report.WriteColumnDiff(a.Stdout, field, res.Previous, res.Values)
	}

	runID, err := a.comps.RecordCheck(ctx, RunInfo{
		Mode: string(JobCheck), Input: opts.Input, Output: outputPath, StartedAt: startedAt,
	}, table, res)
	if err != nil {
		a.Logger.Warn("failed to record run", logging.Field{Key: "error", Value: err})
	} else if runID != "" {
		a.Logger.Info("recorded run", logging.Field{Key: "run_id", Value: runID})
		rep.RunID = runID
	}
	return rep, nil
}

// RunGenerate builds a check sheet from opts.Site and writes it to opts.Output,
// or to a file named after the site host when Output is empty.
func (a *Application) RunGenerate(ctx context.Context, opts GenerateOptions) (string, error) {
	if opts.Site == "" || opts.StagingHost == "" {
		return "", fmt.Errorf("%w: site and staging host are required", ErrUsage)
	}
	startedAt := a.Now()

	outputPath := opts.Output
	if outputPath == "" {
		outputPath = generatedName(opts.Site)
	}
	if _, err := rowio.FormatFor(outputPath); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUsage, err)
	}

	var bar *tui.Progress
	var progress func(done, total int)
	if opts.TUI {
		bar = tui.Start(a.Stderr, "Prechecking "+opts.Site)
		progress = bar.Update
	}
	table, err := a.comps.Generator.Generate(ctx, opts.Site, opts.StagingHost, progress)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInput, err)
	}

	if err := rowio.WriteFile(outputPath, table); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSink, err)
	}
	fmt.Fprintf(a.Stdout, "Wrote: %s (%d rows)\n", outputPath, len(table.Rows))

	if _, err := a.comps.RecordGenerate(ctx, RunInfo{
		Mode: string(JobGenerate), Input: opts.Site, Output: outputPath, StartedAt: startedAt,
	}, table); err != nil {
		a.Logger.Warn("failed to record run", logging.Field{Key: "error", Value: err})
	}
	return outputPath, nil
}

// RunHistory lists recorded runs, or one run's results when runID is set.
func (a *Application) RunHistory(ctx context.Context, runID string, limit int) error {
	if a.comps.Ledger == nil {
		return fmt.Errorf("%w: no history database configured", ErrUsage)
	}
	if runID == "" {
		runs, err := a.comps.Ledger.ListRuns(ctx, limit)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInput, err)
		}
		report.WriteRuns(a.Stdout, runs)
		return nil
	}
	results, err := a.comps.Ledger.ListResults(ctx, runID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInput, err)
	}
	report.WriteResults(a.Stdout, results)
	return nil
}
