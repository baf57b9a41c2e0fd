package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/newswalk/config"
	"github.com/use-agent/newswalk/models"
	"github.com/ysmood/gson"
)

// RodEngine owns one Chromium process. Sessions are tabs in it.
type RodEngine struct {
	browser *rod.Browser
	cfg     config.BrowserConfig
}

// NewRodEngine launches the browser with the anti-automation flags the
// search site expects from a regular desktop Chrome.
func NewRodEngine(cfg config.BrowserConfig) (*RodEngine, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.VirtualDisplay {
		l = l.XVFB("--server-args=" + fmt.Sprintf("-screen 0 %dx%dx24", cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL, "headless", cfg.Headless)

	browser := rod.New().ControlURL(controlURL)
	if err := connectOrKill(browser.Connect, l.Kill); err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	return &RodEngine{browser: browser, cfg: cfg}, nil
}

// connectOrKill connects to a launched browser. The process is killed
// when the connection fails so it does not outlive the engine.
func connectOrKill(connect func() error, kill func()) error {
	if err := connect(); err != nil {
		kill()
		return err
	}
	return nil
}

// setExtraHeaders sends the listing headers with every request on c.
func setExtraHeaders(c proto.Client) {
	err := proto.NetworkSetExtraHTTPHeaders{
		Headers: proto.NetworkHeaders{
			"Accept-Language": gson.New("en-US,en;q=0.9"),
		},
	}.Call(c)
	if err != nil {
		slog.Warn("failed to set extra headers", "error", err)
	}
}

func (e *RodEngine) Name() string { return "rod" }

// Open creates a new tab prepared for the walk: stealth script, viewport,
// user agent, extra headers and resource blocking are all installed before
// the first navigation.
func (e *RodEngine) Open(ctx context.Context) (Session, error) {
	page, err := e.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to create page",
			err,
		)
	}

	if e.cfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             e.cfg.WindowWidth,
		Height:            e.cfg.WindowHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		slog.Warn("failed to set viewport", "error", err)
	}

	if e.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent: e.cfg.UserAgent,
		}); err != nil {
			slog.Warn("failed to override user agent", "error", err)
		}
	}

	setExtraHeaders(page)

	router := setupHijack(page, e.cfg.BlockedResourceTypes)

	return &RodSession{
		page:       page,
		router:     router,
		navTimeout: e.cfg.NavigationTimeout,
	}, nil
}

// Close kills the browser process.
func (e *RodEngine) Close() error {
	slog.Info("closing browser")
	return e.browser.Close()
}

// RodSession is a Navigator backed by one browser tab.
type RodSession struct {
	page       *rod.Page
	router     *rod.HijackRouter
	navTimeout time.Duration
}

func (s *RodSession) LoadURL(ctx context.Context, url string) error {
	if s.navTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.navTimeout)
		defer cancel()
	}
	p := s.page.Context(ctx)

	if err := p.Navigate(url); err != nil {
		return categorizeError(err, "navigation to listing URL failed")
	}
	if err := p.WaitLoad(); err != nil {
		return categorizeError(err, "listing page did not finish loading")
	}
	return nil
}

func (s *RodSession) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	el, err := s.page.Context(waitCtx).Element(string(loc))
	if err != nil {
		return nil, s.waitError(waitCtx, loc, timeout, err)
	}
	if err := el.WaitVisible(); err != nil {
		return nil, s.waitError(waitCtx, loc, timeout, err)
	}
	// Detach from the wait deadline so the element stays usable.
	return &rodElement{el: el.Context(ctx)}, nil
}

func (s *RodSession) WaitPresent(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	el, err := s.page.Context(waitCtx).Element(string(loc))
	if err != nil {
		return nil, s.waitError(waitCtx, loc, timeout, err)
	}
	return &rodElement{el: el.Context(ctx)}, nil
}

func (s *RodSession) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	els, err := s.page.Context(ctx).Elements(string(loc))
	if err != nil {
		return nil, categorizeError(err, fmt.Sprintf("lookup of %s failed", loc))
	}
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el}
	}
	return out, nil
}

// Close stops resource interception and closes the tab.
func (s *RodSession) Close() error {
	if s.router != nil {
		_ = s.router.Stop()
	}
	return s.page.Close()
}

func (s *RodSession) waitError(waitCtx context.Context, loc Locator, timeout time.Duration, err error) error {
	if waitCtx.Err() == context.DeadlineExceeded {
		return timeoutError(loc, timeout, err)
	}
	return categorizeError(err, fmt.Sprintf("waiting for %s", loc))
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Text() (string, error) {
	return e.el.Text()
}

func (e *rodElement) Attribute(name string) (string, bool, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) OuterHTML() (string, error) {
	return e.el.HTML()
}
