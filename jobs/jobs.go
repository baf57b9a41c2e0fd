// Package jobs feeds work items through the walk and the report sink and
// reports a terminal status for each of them.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/use-agent/newswalk/config"
	"github.com/use-agent/newswalk/engine"
	"github.com/use-agent/newswalk/models"
	"github.com/use-agent/newswalk/paginator"
	"github.com/use-agent/newswalk/report"
)

// Item is one unit of work handed out by a Source.
type Item interface {
	ID() string
	Payload() map[string]any

	// Done marks the item successful.
	Done(out *models.SearchOutcome) error

	// Fail marks the item failed. out is nil when no walk ran.
	Fail(f models.Failure, out *models.SearchOutcome) error
}

// Source yields work items. Next returns io.EOF once no item will follow.
type Source interface {
	Next(ctx context.Context) (Item, error)
}

// Runner processes items one at a time on a shared engine.
type Runner struct {
	engine  engine.Engine
	sink    report.Sink
	walk    config.WalkConfig
	base    string
	now     func() time.Time
	pagOpts []paginator.Option

	running   atomic.Bool
	processed atomic.Int64
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithClock replaces the wall clock used for cutoffs and report names.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// WithPaginatorOptions appends options to every walk's controller.
func WithPaginatorOptions(opts ...paginator.Option) RunnerOption {
	return func(r *Runner) { r.pagOpts = append(r.pagOpts, opts...) }
}

// NewRunner creates a Runner.
func NewRunner(eng engine.Engine, sink report.Sink, cfg *config.Config, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine: eng,
		sink:   sink,
		walk:   cfg.Walk,
		base:   cfg.Search.BaseURL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Running reports whether an item is being processed right now.
func (r *Runner) Running() bool { return r.running.Load() }

// Processed returns the number of items that reached a terminal status.
func (r *Runner) Processed() int64 { return r.processed.Load() }

// Serve processes items from src until it is exhausted or ctx is done.
func (r *Runner) Serve(ctx context.Context, src Source) error {
	for {
		item, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		r.Process(ctx, item)
	}
}

// Process runs one item to a terminal status. Payload problems fail the
// item before any navigation happens.
func (r *Runner) Process(ctx context.Context, item Item) {
	r.running.Store(true)
	defer r.running.Store(false)
	defer r.processed.Add(1)

	log := slog.With("item", item.ID())

	req, err := ParsePayload(item.Payload())
	if err != nil {
		r.fail(log, item, err, nil)
		return
	}
	log.Info("received work item",
		"phrase", req.Phrase,
		"section", req.Section,
		"lookbackMonths", req.LookbackMonths,
	)

	out, err := r.Execute(ctx, req)
	if err != nil {
		r.fail(log, item, err, out)
		return
	}
	if err := item.Done(out); err != nil {
		log.Error("failed to mark item done", "error", err)
		return
	}
	log.Info("work item done",
		"records", len(out.Records()),
		"walk", out.Walk.State.String(),
		"report", out.ReportPath,
	)
}

func (r *Runner) fail(log *slog.Logger, item Item, err error, out *models.SearchOutcome) {
	f := failureFor(err)
	log.Error("work item failed", "code", f.Code, "error", err)
	if ferr := item.Fail(f, out); ferr != nil {
		log.Error("failed to mark item failed", "error", ferr)
	}
}

// Execute opens a session, walks the listing, and exports the result. The
// session is closed on every path. A failed walk is not an error; only
// session and export failures are.
func (r *Runner) Execute(ctx context.Context, req models.SearchRequest) (out *models.SearchOutcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("unexpected fault: %v", p)
		}
	}()

	sess, err := r.engine.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			slog.Warn("session close failed", "error", cerr)
		}
	}()

	started := r.now()
	opts := append([]paginator.Option{
		paginator.WithBaseURL(r.base),
		paginator.WithClock(r.now),
	}, r.pagOpts...)
	walk := paginator.New(sess, r.walk, opts...).Run(ctx, req)

	out = &models.SearchOutcome{Request: req, Walk: walk}
	path, err := r.sink.Export(ctx, req.Key(started), walk.Records)
	if err != nil {
		return out, err
	}
	out.ReportPath = path
	return out, nil
}
