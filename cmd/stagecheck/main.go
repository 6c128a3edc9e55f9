// Command stagecheck checks whether planned staging pages exist.
//
//	stagecheck check -i plan.csv [-o out.csv] [-j 20] [-t 10] [-v] [--pasteable]
//	stagecheck generate <site> <staging-host> [-o sheet.csv]
//	stagecheck serve [-addr localhost:8080]
//	stagecheck history -db runs.db [-run <id>]
//
// Exit status is 1 for usage and configuration errors, 2 for unreadable or
// malformed input and 3 when the output cannot be written.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raysh454/stagecheck/internal/app"
	"github.com/raysh454/stagecheck/internal/cli"
	"github.com/raysh454/stagecheck/internal/logging"
	"github.com/raysh454/stagecheck/internal/server"
)

const (
	exitOK     = 0
	exitUsage  = 1
	exitInput  = 2
	exitOutput = 3
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	args, err := cli.ParseArgs(argv, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "stagecheck: %v\n\n%s", err, cli.Usage)
		return exitUsage
	}

	cfg := app.DefaultConfig()
	if args.ConfigPath != "" {
		if err := app.LoadConfigFile(args.ConfigPath, cfg); err != nil {
			fmt.Fprintf(stderr, "stagecheck: %v\n", err)
			return exitUsage
		}
	}
	args.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "stagecheck: %v\n", err)
		return exitUsage
	}

	logger := logging.NewWriterLogger(stderr, "stagecheck", logging.ParseLevel(cfg.LogLevel))

	if args.Command == cli.CommandServe {
		return serve(ctx, cfg, logger, stdout, stderr)
	}

	comps, err := app.NewComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "stagecheck: %v\n", err)
		return exitUsage
	}
	defer comps.Close()

	application := app.NewApplication(cfg, comps, logger, stdout, stderr)

	switch args.Command {
	case cli.CommandCheck:
		_, err = application.RunCheck(ctx, app.CheckOptions{
			Input:         args.Input,
			Output:        args.Output,
			Pasteable:     args.Pasteable,
			PasteablePath: args.PasteableFile,
			Verbose:       args.Verbose,
			Diff:          args.Diff,
			TUI:           args.TUI,
		})
	case cli.CommandGenerate:
		_, err = application.RunGenerate(ctx, app.GenerateOptions{
			Site:        args.Site,
			StagingHost: args.StagingHost,
			Output:      args.Output,
			TUI:         args.TUI,
		})
	case cli.CommandHistory:
		err = application.RunHistory(ctx, args.RunID, args.Limit)
	}
	if err != nil {
		fmt.Fprintf(stderr, "stagecheck: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, app.ErrSink):
		return exitOutput
	case errors.Is(err, app.ErrInput):
		return exitInput
	default:
		return exitUsage
	}
}

func serve(ctx context.Context, cfg *app.Config, logger logging.Logger, stdout, stderr io.Writer) int {
	s, err := server.NewServer(server.Config{
		ListenAddr: cfg.ServerAddr,
		AppConfig:  cfg,
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintf(stderr, "stagecheck: %v\n", err)
		return exitUsage
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := s.HTTPServer()
	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()
	fmt.Fprintf(stdout, "Listening on http://%s (docs at /swagger/index.html)\n", cfg.ServerAddr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(stderr, "stagecheck: %v\n", err)
			return exitUsage
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", logging.Field{Key: "error", Value: err})
		}
	}
	return exitOK
}
