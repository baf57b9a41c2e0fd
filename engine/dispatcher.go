package engine

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"
)

// Launcher starts the browser engine. The dispatcher calls it at most once
// successfully, on the first listing that needs a browser.
type Launcher func() (Engine, error)

// Dispatcher is the "auto" engine. Each session starts on the static HTTP
// engine and escalates to the browser when a listing fails to load or looks
// script-rendered. Once escalated a session stays on the browser so every
// page of a walk is read the same way. Hosts that needed the browser are
// remembered and skip the HTTP attempt until the memory expires.
type Dispatcher struct {
	fast   *HTTPEngine
	launch Launcher
	memory *DomainMemory

	mu      sync.Mutex
	browser Engine
}

// NewDispatcher creates a Dispatcher over the static engine and a lazily
// launched browser.
func NewDispatcher(fast *HTTPEngine, launch Launcher, memory *DomainMemory) *Dispatcher {
	return &Dispatcher{
		fast:   fast,
		launch: launch,
		memory: memory,
	}
}

func (d *Dispatcher) Name() string { return "auto" }

// Open returns a session positioned on the static engine.
func (d *Dispatcher) Open(ctx context.Context) (Session, error) {
	return &dispatchSession{
		d:    d,
		http: &HTTPSession{engine: d.fast},
	}, nil
}

// Close stops the memory and releases both engines.
func (d *Dispatcher) Close() error {
	d.memory.Stop()
	_ = d.fast.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser != nil {
		return d.browser.Close()
	}
	return nil
}

// browserEngine launches the browser on first use. A failed launch is not
// cached so a later walk can retry.
func (d *Dispatcher) browserEngine() (Engine, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser != nil {
		return d.browser, nil
	}
	start := time.Now()
	eng, err := d.launch()
	if err != nil {
		return nil, err
	}
	slog.Info("browser engine launched on demand", "elapsed", time.Since(start))
	d.browser = eng
	return eng, nil
}

// dispatchSession routes lookups to whichever session loaded the last page.
type dispatchSession struct {
	d         *Dispatcher
	http      *HTTPSession
	active    Session
	escalated bool
	via       string
}

func (s *dispatchSession) LoadURL(ctx context.Context, target string) error {
	if s.escalated {
		return s.active.LoadURL(ctx, target)
	}

	host := extractDomain(target)
	if remembered := s.d.memory.Get(host); remembered != s.d.fast.Name() && remembered != "" {
		slog.Debug("domain memory hit", "host", host, "engine", remembered)
		if err := s.escalate(ctx); err != nil {
			return err
		}
		if err := s.active.LoadURL(ctx, target); err != nil {
			s.d.memory.Delete(host)
			return err
		}
		return nil
	}

	rendered, err := s.http.load(ctx, target)
	if err == nil && !rendered {
		s.active = s.http
		s.d.memory.Set(host, s.d.fast.Name())
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	slog.Info("escalating listing to browser",
		"host", host,
		"scriptRendered", rendered,
		"error", err,
	)

	if err := s.escalate(ctx); err != nil {
		return err
	}
	if err := s.active.LoadURL(ctx, target); err != nil {
		return err
	}
	s.d.memory.Set(host, s.via)
	return nil
}

// escalate switches the session to a fresh browser session.
func (s *dispatchSession) escalate(ctx context.Context) error {
	eng, err := s.d.browserEngine()
	if err != nil {
		return err
	}
	sess, err := eng.Open(ctx)
	if err != nil {
		return err
	}
	_ = s.http.Close()
	s.active = sess
	s.escalated = true
	s.via = eng.Name()
	return nil
}

func (s *dispatchSession) current() Navigator {
	if s.active == nil {
		return s.http
	}
	return s.active
}

func (s *dispatchSession) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	return s.current().WaitVisible(ctx, loc, timeout)
}

func (s *dispatchSession) WaitPresent(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	return s.current().WaitPresent(ctx, loc, timeout)
}

func (s *dispatchSession) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	return s.current().FindAll(ctx, loc)
}

func (s *dispatchSession) Close() error {
	_ = s.http.Close()
	if s.escalated {
		return s.active.Close()
	}
	return nil
}

// extractDomain parses the hostname from a URL string.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
