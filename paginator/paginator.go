// Package paginator walks a search listing page by page, parses every
// result, and stops on the first record older than the recency cutoff.
package paginator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/newswalk/config"
	"github.com/use-agent/newswalk/engine"
	"github.com/use-agent/newswalk/models"
	"github.com/use-agent/newswalk/parser"
)

// Sleeper pauses between pages. It returns early with ctx.Err() when ctx
// is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Controller drives one walk at a time over a Navigator it does not own.
type Controller struct {
	nav    engine.Navigator
	cfg    config.WalkConfig
	base   string
	layout Layout
	now    func() time.Time
	sleep  Sleeper
}

// Option configures a Controller.
type Option func(*Controller)

// WithBaseURL sets the listing endpoint.
func WithBaseURL(base string) Option {
	return func(c *Controller) {
		if base != "" {
			c.base = base
		}
	}
}

// WithLayout overrides listing locators. Empty fields keep their defaults.
func WithLayout(l Layout) Option {
	return func(c *Controller) { c.layout = l.withDefaults() }
}

// WithClock replaces the wall clock used for the recency cutoff.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithSleeper replaces the inter-page pause.
func WithSleeper(s Sleeper) Option {
	return func(c *Controller) { c.sleep = s }
}

// New creates a Controller over nav.
func New(nav engine.Navigator, cfg config.WalkConfig, opts ...Option) *Controller {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	c := &Controller{
		nav:    nav,
		cfg:    cfg,
		base:   DefaultBaseURL,
		layout: DefaultLayout,
		now:    time.Now,
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run walks the listing for req until a stop condition holds. It never
// returns an error: a page-level failure ends the walk in StateFailed and
// the result still carries every record accumulated before it.
func (c *Controller) Run(ctx context.Context, req models.SearchRequest) *models.WalkResult {
	w := &walk{
		c:      c,
		req:    req,
		parser: parser.New(req.Phrase, parser.WithBaseURL(c.base)),
		cutoff: req.Cutoff(c.now()),
		res: &models.WalkResult{
			Records:       []models.Record{},
			TotalReported: -1,
		},
	}

	slog.Info("walk started",
		"phrase", req.Phrase,
		"section", req.Section,
		"lookbackMonths", req.LookbackMonths,
		"cutoff", w.cutoff.Format(time.RFC3339),
	)

	state := models.StateFetching
	for state != models.StateDone && state != models.StateFailed {
		var err error
		switch state {
		case models.StateFetching:
			state, err = w.fetch(ctx)
		case models.StateExtracting:
			state, err = w.extract(ctx)
		case models.StateEvaluating:
			state = w.evaluate()
		case models.StateAdvancing:
			state, err = w.advance(ctx)
		}
		if err != nil {
			slog.Error("walk page failed",
				"offset", w.offset,
				"state", state.String(),
				"error", err,
			)
			w.res.Reason = models.StopPageFailure
			w.res.Err = err
			state = models.StateFailed
		}
	}
	w.res.State = state

	slog.Info("walk finished",
		"state", state.String(),
		"reason", w.res.Reason,
		"pages", w.res.Pages,
		"seen", w.res.Seen,
		"records", len(w.res.Records),
		"total", w.res.TotalReported,
	)
	return w.res
}

// walk is the mutable state of one Run.
type walk struct {
	c      *Controller
	req    models.SearchRequest
	parser *parser.Parser
	cutoff time.Time

	offset int
	items  []engine.Element
	res    *models.WalkResult
}

func (w *walk) fetch(ctx context.Context) (models.WalkState, error) {
	if err := ctx.Err(); err != nil {
		return models.StateFetching, models.NewScrapeError(models.ErrCodeTimeout, "walk canceled", err)
	}

	target := BuildListingURL(w.c.base, w.req, w.offset)
	slog.Info("loading listing page", "url", target, "offset", w.offset)
	if err := w.c.nav.LoadURL(ctx, target); err != nil {
		return models.StateFetching, err
	}
	w.res.Pages++

	main, err := w.c.nav.WaitVisible(ctx, w.c.layout.MainContent, w.c.cfg.VisibleTimeout)
	if err != nil {
		return models.StateFetching, err
	}
	text, err := main.Text()
	if err != nil {
		return models.StateFetching, err
	}
	if strings.Contains(text, w.c.layout.NoResultsText) {
		slog.Info("no search results", "offset", w.offset)
		w.res.Reason = models.StopNoResults
		return models.StateDone, nil
	}

	if _, err := w.c.nav.WaitPresent(ctx, w.c.layout.ResultsList, w.c.cfg.PresentTimeout); err != nil {
		return models.StateFetching, err
	}

	if w.offset == 0 {
		w.readTotal(ctx)
	}
	return models.StateExtracting, nil
}

// readTotal captures the reported result count. The count only bounds the
// walk, so a missing or unreadable summary leaves it unknown.
func (w *walk) readTotal(ctx context.Context) {
	el, err := w.c.nav.WaitPresent(ctx, w.c.layout.Summary, w.c.cfg.PresentTimeout)
	if err != nil {
		slog.Warn("result count unavailable", "error", err)
		return
	}
	text, err := el.Text()
	if err != nil {
		slog.Warn("result count unreadable", "error", err)
		return
	}
	w.res.TotalReported = ParseTotal(text)
	slog.Info("total results reported", "total", w.res.TotalReported, "raw", text)
}

func (w *walk) extract(ctx context.Context) (models.WalkState, error) {
	items, err := w.c.nav.FindAll(ctx, w.c.layout.Item)
	if err != nil {
		return models.StateExtracting, err
	}
	slog.Info("found result items", "offset", w.offset, "count", len(items))
	if len(items) == 0 {
		w.res.Reason = models.StopExhausted
		return models.StateDone, nil
	}
	w.items = items
	return models.StateEvaluating, nil
}

func (w *walk) evaluate() models.WalkState {
	items := w.items
	w.items = nil
	w.res.Seen += len(items)

	for _, item := range items {
		rec := w.parser.Parse(item)
		if !rec.WithinCutoff(w.cutoff) {
			slog.Info("record older than cutoff, stopping",
				"title", rec.TitleOrEmpty(),
				"timestamp", rec.Timestamp.Format(time.RFC3339),
			)
			w.res.Reason = models.StopStale
			return models.StateDone
		}
		w.res.Records = append(w.res.Records, rec)
	}
	return models.StateAdvancing
}

func (w *walk) advance(ctx context.Context) (models.WalkState, error) {
	if total := w.res.TotalReported; total >= 0 && w.res.Seen >= total {
		slog.Info("reported total reached", "seen", w.res.Seen, "total", total)
		w.res.Reason = models.StopTotalReach
		return models.StateDone, nil
	}
	if limit := w.c.cfg.MaxPages; limit > 0 && w.res.Pages >= limit {
		slog.Warn("page cap reached", "pages", w.res.Pages)
		w.res.Reason = models.StopMaxPages
		return models.StateDone, nil
	}

	w.offset += w.c.cfg.PageSize
	if err := w.c.sleep(ctx, w.c.cfg.PageDelay); err != nil {
		return models.StateAdvancing, models.NewScrapeError(models.ErrCodeTimeout, "walk canceled", err)
	}
	return models.StateFetching, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
