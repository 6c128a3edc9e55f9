package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/raysh454/stagecheck/internal/app"
	"github.com/raysh454/stagecheck/internal/webclient"
)

type Command string

const (
	CommandCheck    Command = "check"
	CommandGenerate Command = "generate"
	CommandServe    Command = "serve"
	CommandHistory  Command = "history"
)

// CLIArgs are the command-line arguments for a single invocation. Zero values
// mean "use the configured default"; Apply copies only flags that were set.
type CLIArgs struct {
	Command Command

	ConfigPath string
	Verbose    bool
	Backend    string
	History    string
	TUI        bool

	// check
	Input         string
	Output        string
	Concurrency   int
	Timeout       time.Duration
	UserAgent     string
	Rate          float64
	Pasteable     bool
	PasteableFile string
	Diff          bool

	// generate
	Site                string
	StagingHost         string
	Precheck            bool
	PrecheckConcurrency int
	MaxDepth            int

	// serve
	Addr string

	// history
	RunID string
	Limit int

	// RawArgs is the original args slice (useful for debugging/tests).
	RawArgs []string

	set map[string]bool
}

// Usage is printed when no or an unknown command is given.
const Usage = `usage: stagecheck <command> [flags]

commands:
  check      probe each row's staging link and write the Page Exists? column
  generate   build a check sheet from a live site's sitemap
  serve      run the HTTP API
  history    list recorded runs

Running stagecheck with flags only (stagecheck -i plan.csv) is the same as check.
Use "stagecheck <command> -h" for the flags of a command.
`

// ParseArgs parses a slice of args and returns CLIArgs. Use in tests by passing
// arbitrary slices. The function is deterministic and does not read os.Args.
// Flag output (including -h) goes to out; pass nil to discard it.
func ParseArgs(args []string, out io.Writer) (*CLIArgs, error) {
	if out == nil {
		out = io.Discard
	}
	if len(args) == 0 {
		return nil, errors.New("missing command")
	}

	a := &CLIArgs{RawArgs: args, Precheck: true, set: map[string]bool{}}
	rest := args
	switch {
	case strings.HasPrefix(args[0], "-"):
		a.Command = CommandCheck
	default:
		a.Command = Command(args[0])
		rest = args[1:]
	}

	fs := flag.NewFlagSet("stagecheck "+string(a.Command), flag.ContinueOnError)
	fs.SetOutput(out)

	fs.StringVar(&a.ConfigPath, "config", "", "YAML config file")
	fs.StringVar(&a.Backend, "backend", "", "Probe backend: "+strings.Join(webclient.ListBackends(), "|")+" (default nethttp)")
	fs.BoolVar(&a.Verbose, "v", false, "Print progress and per-URL results")
	fs.BoolVar(&a.Verbose, "verbose", false, "Print progress and per-URL results")

	var timeoutSecs float64
	switch a.Command {
	case CommandCheck:
		fs.StringVar(&a.Input, "i", "", "Path to input CSV or XLSX (required)")
		fs.StringVar(&a.Input, "input", "", "Path to input CSV or XLSX (required)")
		fs.StringVar(&a.Output, "o", "", "Output path (default <input>-checked-<timestamp><ext>)")
		fs.StringVar(&a.Output, "output", "", "Output path (default <input>-checked-<timestamp><ext>)")
		fs.IntVar(&a.Concurrency, "j", 0, "Number of concurrent HTTP checks (default 20)")
		fs.IntVar(&a.Concurrency, "concurrency", 0, "Number of concurrent HTTP checks (default 20)")
		fs.Float64Var(&timeoutSecs, "t", 0, "Per-request timeout in seconds (default 10)")
		fs.Float64Var(&timeoutSecs, "timeout", 0, "Per-request timeout in seconds (default 10)")
		fs.StringVar(&a.UserAgent, "A", "", "User-Agent header to send (default a Safari-like UA)")
		fs.StringVar(&a.UserAgent, "user-agent", "", "User-Agent header to send (default a Safari-like UA)")
		fs.Float64Var(&a.Rate, "rate", 0, "Maximum requests per second (0 = unlimited)")
		fs.BoolVar(&a.Pasteable, "pasteable", false, "Also write the Page Exists? column, one value per line")
		fs.StringVar(&a.PasteableFile, "pasteable-file", "", "Path for the pasteable column (default beside the output)")
		fs.BoolVar(&a.Diff, "diff", false, "Print the rows whose Page Exists? value changed")
		fs.StringVar(&a.History, "history", "", "Record the run in this SQLite database")
		fs.BoolVar(&a.TUI, "tui", false, "Show a progress bar")
	case CommandGenerate:
		fs.StringVar(&a.Site, "site", "", "Live site or sitemap URL (required)")
		fs.StringVar(&a.StagingHost, "staging-host", "", "Staging host to substitute (required)")
		fs.StringVar(&a.Output, "o", "", "Output path (default <host>-staging-check.csv)")
		fs.StringVar(&a.Output, "output", "", "Output path (default <host>-staging-check.csv)")
		fs.BoolVar(&a.Precheck, "precheck", true, "Probe live and staging URLs to seed Page Exists? and URL Matches")
		fs.IntVar(&a.PrecheckConcurrency, "precheck-concurrency", 0, "Concurrent precheck probes (default 20)")
		fs.IntVar(&a.MaxDepth, "max-depth", 0, "Maximum sitemap index nesting (default 5)")
		fs.Float64Var(&timeoutSecs, "t", 0, "Per-request timeout in seconds (default 10)")
		fs.Float64Var(&timeoutSecs, "timeout", 0, "Per-request timeout in seconds (default 10)")
		fs.StringVar(&a.UserAgent, "A", "", "User-Agent header to send")
		fs.StringVar(&a.UserAgent, "user-agent", "", "User-Agent header to send")
		fs.Float64Var(&a.Rate, "rate", 0, "Maximum precheck requests per second (0 = unlimited)")
		fs.StringVar(&a.History, "history", "", "Record the run in this SQLite database")
		fs.BoolVar(&a.TUI, "tui", false, "Show a progress bar")
	case CommandServe:
		fs.StringVar(&a.Addr, "addr", "", "Listen address (default localhost:8080)")
		fs.StringVar(&a.History, "history", "", "Record runs in this SQLite database")
	case CommandHistory:
		fs.StringVar(&a.History, "db", "", "SQLite history database (required)")
		fs.StringVar(&a.RunID, "run", "", "Show the results of one run")
		fs.IntVar(&a.Limit, "limit", 20, "Number of runs to list")
	default:
		return nil, fmt.Errorf("unknown command %q", a.Command)
	}

	if err := fs.Parse(rest); err != nil {
		// Flag parsing errors are useful to return to caller
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { a.set[canonical(f.Name)] = true })

	// generate also accepts "<site> <staging-host>" positionally
	if a.Command == CommandGenerate {
		pos := fs.Args()
		if a.Site == "" && len(pos) > 0 {
			a.Site, pos = pos[0], pos[1:]
		}
		if a.StagingHost == "" && len(pos) > 0 {
			a.StagingHost, pos = pos[0], pos[1:]
		}
		if len(pos) > 0 {
			return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(pos, " "))
		}
	} else if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if timeoutSecs < 0 || math.IsNaN(timeoutSecs) || math.IsInf(timeoutSecs, 0) {
		return nil, fmt.Errorf("invalid timeout %v", timeoutSecs)
	}
	a.Timeout = time.Duration(timeoutSecs * float64(time.Second))

	switch a.Command {
	case CommandCheck:
		if strings.TrimSpace(a.Input) == "" {
			return nil, errors.New("missing required -i/--input argument")
		}
	case CommandGenerate:
		if strings.TrimSpace(a.Site) == "" || strings.TrimSpace(a.StagingHost) == "" {
			return nil, errors.New("generate needs a site and a staging host")
		}
	case CommandHistory:
		if strings.TrimSpace(a.History) == "" {
			return nil, errors.New("missing required -db argument")
		}
	}
	if a.Rate < 0 {
		return nil, fmt.Errorf("invalid rate %v", a.Rate)
	}
	return a, nil
}

var aliases = map[string]string{
	"i": "input", "o": "output", "j": "concurrency", "t": "timeout",
	"A": "user-agent", "v": "verbose", "db": "history",
}

func canonical(name string) string {
	if long, ok := aliases[name]; ok {
		return long
	}
	return name
}

// IsSet reports whether the named flag was given. Short names are accepted.
func (a *CLIArgs) IsSet(name string) bool {
	return a.set[canonical(name)]
}

// Apply overlays the flags that were given onto cfg.
func (a *CLIArgs) Apply(cfg *app.Config) {
	if a.IsSet("backend") {
		cfg.WebClient.Client = webclient.Client(a.Backend)
	}
	if a.Verbose {
		cfg.LogLevel = "debug"
	}
	if a.IsSet("history") {
		cfg.HistoryPath = a.History
	}
	if a.IsSet("concurrency") {
		cfg.Scheduler.Concurrency = a.Concurrency
	}
	if a.IsSet("timeout") {
		cfg.Probe.Timeout = a.Timeout
	}
	if a.IsSet("user-agent") {
		cfg.Probe.UserAgent = a.UserAgent
	}
	if a.IsSet("rate") {
		switch a.Command {
		case CommandGenerate:
			cfg.Sitemap.RatePerSecond = a.Rate
		default:
			cfg.Scheduler.RatePerSecond = a.Rate
		}
	}
	if a.IsSet("precheck") {
		cfg.Sitemap.Precheck = a.Precheck
	}
	if a.IsSet("precheck-concurrency") {
		cfg.Sitemap.PrecheckConcurrency = a.PrecheckConcurrency
	}
	if a.IsSet("max-depth") {
		cfg.Sitemap.MaxDepth = a.MaxDepth
	}
	if a.IsSet("addr") {
		cfg.ServerAddr = a.Addr
	}
}
