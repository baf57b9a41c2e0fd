package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/newswalk/api"
	"github.com/use-agent/newswalk/cache"
	"github.com/use-agent/newswalk/config"
	"github.com/use-agent/newswalk/engine"
	"github.com/use-agent/newswalk/jobs"
	"github.com/use-agent/newswalk/report"
)

// queueCapacity bounds the number of search jobs waiting for the runner.
const queueCapacity = 100

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("newswalk server starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"engine", cfg.Browser.Engine,
	)

	// ── 3. Initialise navigation engine (launches browser) ──────────
	eng, err := engine.New(cfg.Browser)
	if err != nil {
		slog.Error("failed to initialise engine", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	// ── 4. Initialise report sink ───────────────────────────────────
	// Images are fetched over plain HTTP even when listings use the browser.
	sink := report.NewExcelSink(cfg.Report, engine.NewHTTPEngine(cfg.Browser))

	// ── 5. Initialise cache, queue and runner ───────────────────────
	cc := cache.New(cfg.Cache.MaxEntries)
	q := jobs.NewQueue(queueCapacity, cc, cfg.Webhook)
	runner := jobs.NewRunner(eng, sink, cfg)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		if err := runner.Serve(ctx, q); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("runner stopped", "error", err)
		}
	}()

	// ── 6. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(q, runner, eng.Name(), cfg, startTime)

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// A walk in flight ends Failed with its partial records.
	stop()
	select {
	case <-runnerDone:
	case <-shutdownCtx.Done():
		slog.Warn("runner did not stop in time")
	}

	slog.Info("newswalk server stopped", "processed", runner.Processed())
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
