package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/use-agent/newswalk/config"
	"github.com/use-agent/newswalk/engine"
	"github.com/use-agent/newswalk/jobs"
	"github.com/use-agent/newswalk/models"
	"github.com/use-agent/newswalk/report"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()
	if len(os.Args) > 1 {
		cfg.Jobs.InputFile = os.Args[1]
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("newswalk worker starting",
		"input", cfg.Jobs.InputFile,
		"engine", cfg.Browser.Engine,
		"output", cfg.Report.OutputDir,
	)

	// ── 3. Load work items ──────────────────────────────────────────
	src, err := jobs.LoadFile(cfg.Jobs.InputFile)
	if err != nil {
		slog.Error("failed to load work items", "error", err)
		os.Exit(1)
	}
	slog.Info("work items loaded", "count", src.Len())

	// ── 4. Initialise navigation engine (launches browser) ──────────
	eng, err := engine.New(cfg.Browser)
	if err != nil {
		slog.Error("failed to initialise engine", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	sink := report.NewExcelSink(cfg.Report, engine.NewHTTPEngine(cfg.Browser))
	runner := jobs.NewRunner(eng, sink, cfg)

	// ── 5. Process items until the file is exhausted ────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runner.Serve(ctx, src); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("runner stopped", "error", err)
	}

	// ── 6. Write outcomes ───────────────────────────────────────────
	results := src.Results()
	if err := src.WriteResults(cfg.Jobs.ResultsFile); err != nil {
		slog.Error("failed to write results", "error", err)
		os.Exit(1)
	}

	failed := 0
	for _, r := range results {
		if r.Status == models.JobFailed {
			failed++
		}
	}
	slog.Info("newswalk worker finished",
		"processed", runner.Processed(),
		"failed", failed,
		"results", cfg.Jobs.ResultsFile,
	)
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
