package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/use-agent/newswalk/config"
	"github.com/use-agent/newswalk/models"
)

// ErrTimeout marks a bounded wait that expired before its condition held.
var ErrTimeout = errors.New("engine: wait timed out")

// ErrNoPage is returned by lookups made before any page was loaded.
var ErrNoPage = errors.New("engine: no page loaded")

// Locator is a CSS selector identifying elements on the current page.
type Locator string

// Element is one node on the current page.
type Element interface {
	// Text returns the element's text content.
	Text() (string, error)

	// Attribute returns the named attribute and whether it is present.
	Attribute(name string) (string, bool, error)

	// OuterHTML returns the element's serialized markup.
	OuterHTML() (string, error)
}

// Navigator is the page-navigation capability the walk consumes. A
// Navigator is stateful: lookups always refer to the last loaded page.
type Navigator interface {
	// LoadURL navigates to url and waits for the document to load.
	LoadURL(ctx context.Context, url string) error

	// WaitVisible blocks until an element matching loc is visible, or
	// returns an error wrapping ErrTimeout once timeout elapses.
	WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) (Element, error)

	// WaitPresent blocks until an element matching loc is attached to the
	// document, or returns an error wrapping ErrTimeout once timeout elapses.
	WaitPresent(ctx context.Context, loc Locator, timeout time.Duration) (Element, error)

	// FindAll returns every element matching loc in document order,
	// without waiting.
	FindAll(ctx context.Context, loc Locator) ([]Element, error)
}

// Session is a Navigator that holds resources until Close.
type Session interface {
	Navigator
	Close() error
}

// Engine opens navigation sessions. One engine serves a whole process;
// each walk gets its own session.
type Engine interface {
	// Name returns the engine identifier ("rod", "http" or "auto").
	Name() string

	// Open acquires a fresh session. The caller must Close it.
	Open(ctx context.Context) (Session, error)

	// Close releases the engine (kills the browser for "rod").
	Close() error
}

// New builds the engine selected by cfg.Engine.
func New(cfg config.BrowserConfig) (Engine, error) {
	switch cfg.Engine {
	case "http":
		return NewHTTPEngine(cfg), nil
	case "auto":
		launch := func() (Engine, error) { return NewRodEngine(cfg) }
		return NewDispatcher(NewHTTPEngine(cfg), launch, NewDomainMemory(cfg.EngineMemoryTTL)), nil
	case "rod", "":
		return NewRodEngine(cfg)
	default:
		return nil, models.NewScrapeError(
			models.ErrCodeInvalidInput,
			fmt.Sprintf("unknown engine %q", cfg.Engine),
			nil,
		)
	}
}

// IsTimeout reports whether err came from an expired bounded wait.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// timeoutError wraps an expired wait for loc.
func timeoutError(loc Locator, timeout time.Duration, cause error) *models.ScrapeError {
	err := fmt.Errorf("%w after %s", ErrTimeout, timeout)
	if cause != nil {
		err = fmt.Errorf("%w after %s: %v", ErrTimeout, timeout, cause)
	}
	return models.NewScrapeError(
		models.ErrCodeTimeout,
		fmt.Sprintf("waiting for %s", loc),
		err,
	)
}

// categorizeError wraps raw errors into typed ScrapeErrors so callers can
// tell timeouts from navigation failures.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, fmt.Errorf("%w: %v", ErrTimeout, err))
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
