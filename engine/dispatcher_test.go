package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/newswalk/config"
	"github.com/use-agent/newswalk/models"
)

var staticListing = `<!DOCTYPE html><html><body><main id="main-content">
<p>` + strings.Repeat("Oil prices rose on Tuesday as traders weighed supply. ", 6) + `</p>
<ul><li class="item">Static</li></ul>
</main></body></html>`

const scriptShell = `<!DOCTYPE html><html><body><div id="root"></div><script src="/app.js"></script></body></html>`

type stubElement struct{ text string }

func (e stubElement) Text() (string, error)                  { return e.text, nil }
func (e stubElement) Attribute(string) (string, bool, error) { return "", false, nil }
func (e stubElement) OuterHTML() (string, error)             { return "<li>" + e.text + "</li>", nil }

// stubEngine stands in for the browser.
type stubEngine struct {
	opens   atomic.Int32
	closed  atomic.Int32
	loads   []string
	loadErr error
}

func (e *stubEngine) Name() string { return "rod" }

func (e *stubEngine) Open(ctx context.Context) (Session, error) {
	e.opens.Add(1)
	return &stubSession{e: e}, nil
}

func (e *stubEngine) Close() error { return nil }

type stubSession struct {
	e *stubEngine
}

func (s *stubSession) LoadURL(ctx context.Context, target string) error {
	s.e.loads = append(s.e.loads, target)
	if s.e.loadErr != nil {
		return s.e.loadErr
	}
	return nil
}

func (s *stubSession) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	return stubElement{text: "rendered"}, nil
}

func (s *stubSession) WaitPresent(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	return stubElement{text: "rendered"}, nil
}

func (s *stubSession) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	return []Element{stubElement{text: "rendered"}}, nil
}

func (s *stubSession) Close() error {
	s.e.closed.Add(1)
	return nil
}

type dispatchFixture struct {
	url      string
	hits     *atomic.Int32
	browser  *stubEngine
	launches *atomic.Int32
	memory   *DomainMemory
	d        *Dispatcher
}

func newDispatchFixture(t *testing.T, body string, status int) *dispatchFixture {
	t.Helper()
	hits := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	f := &dispatchFixture{
		url:      srv.URL + "/site-search/?query=oil&offset=0",
		hits:     hits,
		browser:  &stubEngine{},
		launches: &atomic.Int32{},
		memory:   newDomainMemory(time.Hour, time.Now),
	}
	launch := func() (Engine, error) {
		f.launches.Add(1)
		return f.browser, nil
	}
	f.d = NewDispatcher(NewHTTPEngine(config.BrowserConfig{NavigationTimeout: 5 * time.Second}), launch, f.memory)
	t.Cleanup(func() { _ = f.d.Close() })
	return f
}

func TestDispatcher_StaticListingStaysOnHTTP(t *testing.T) {
	f := newDispatchFixture(t, staticListing, http.StatusOK)
	ctx := context.Background()

	sess, err := f.d.Open(ctx)
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.LoadURL(ctx, f.url))
	items, err := sess.FindAll(ctx, "li.item")
	require.NoError(t, err)
	require.Len(t, items, 1)
	text, _ := items[0].Text()
	assert.Equal(t, "Static", text)

	assert.Equal(t, int32(0), f.launches.Load())
	assert.Equal(t, "http", f.memory.Get("127.0.0.1"))
	assert.Equal(t, "auto", f.d.Name())
}

func TestDispatcher_ScriptShellEscalates(t *testing.T) {
	f := newDispatchFixture(t, scriptShell, http.StatusOK)
	ctx := context.Background()

	sess, err := f.d.Open(ctx)
	require.NoError(t, err)

	require.NoError(t, sess.LoadURL(ctx, f.url))
	el, err := sess.WaitVisible(ctx, "#main-content", time.Second)
	require.NoError(t, err)
	text, _ := el.Text()
	assert.Equal(t, "rendered", text)
	assert.Equal(t, "rod", f.memory.Get("127.0.0.1"))

	// Later pages of the same walk go straight to the browser.
	require.NoError(t, sess.LoadURL(ctx, f.url+"&page=2"))
	assert.Equal(t, int32(1), f.hits.Load())
	assert.Len(t, f.browser.loads, 2)

	require.NoError(t, sess.Close())
	assert.Equal(t, int32(1), f.browser.closed.Load())
}

func TestDispatcher_ErrorStatusEscalates(t *testing.T) {
	f := newDispatchFixture(t, "blocked", http.StatusForbidden)
	ctx := context.Background()

	sess, err := f.d.Open(ctx)
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.LoadURL(ctx, f.url))
	assert.Equal(t, int32(1), f.launches.Load())
	assert.Equal(t, []string{f.url}, f.browser.loads)
}

func TestDispatcher_MemorySkipsHTTP(t *testing.T) {
	f := newDispatchFixture(t, scriptShell, http.StatusOK)
	ctx := context.Background()

	first, err := f.d.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, first.LoadURL(ctx, f.url))
	require.NoError(t, first.Close())

	second, err := f.d.Open(ctx)
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.LoadURL(ctx, f.url))

	assert.Equal(t, int32(1), f.hits.Load(), "remembered host must skip the static fetch")
	assert.Equal(t, int32(1), f.launches.Load(), "browser launches once")
	assert.Equal(t, int32(2), f.browser.opens.Load())
}

func TestDispatcher_RememberedBrowserFailureForgetsHost(t *testing.T) {
	f := newDispatchFixture(t, scriptShell, http.StatusOK)
	ctx := context.Background()
	f.memory.Set("127.0.0.1", "rod")
	f.browser.loadErr = models.NewScrapeError(models.ErrCodeNavigation, "boom", nil)

	sess, err := f.d.Open(ctx)
	require.NoError(t, err)
	defer sess.Close()

	err = sess.LoadURL(ctx, f.url)
	require.Error(t, err)
	assert.Equal(t, "", f.memory.Get("127.0.0.1"))
}

func TestDispatcher_LaunchFailure(t *testing.T) {
	f := newDispatchFixture(t, scriptShell, http.StatusOK)
	launchErr := models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", errors.New("no chrome"))
	f.d.launch = func() (Engine, error) { return nil, launchErr }
	ctx := context.Background()

	sess, err := f.d.Open(ctx)
	require.NoError(t, err)
	defer sess.Close()

	err = sess.LoadURL(ctx, f.url)
	var se *models.ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.ErrCodeBrowserCrash, se.Code)
}

func TestDispatcher_CanceledContextDoesNotEscalate(t *testing.T) {
	f := newDispatchFixture(t, scriptShell, http.StatusOK)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sess, err := f.d.Open(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	require.Error(t, sess.LoadURL(ctx, f.url))
	assert.Equal(t, int32(0), f.launches.Load())
}

func TestDomainMemory_Expiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	dm := newDomainMemory(time.Hour, func() time.Time { return now })

	dm.Set("www.example.com", "rod")
	assert.Equal(t, "rod", dm.Get("www.example.com"))

	now = now.Add(2 * time.Hour)
	assert.Equal(t, "", dm.Get("www.example.com"))

	dm.Set("a", "rod")
	now = now.Add(2 * time.Hour)
	dm.prune()
	_, ok := dm.store.Load("a")
	assert.False(t, ok)

	dm.Stop()
	dm.Stop()
}

func TestNew_AutoEngine(t *testing.T) {
	eng, err := New(config.BrowserConfig{Engine: "auto", EngineMemoryTTL: time.Hour})
	require.NoError(t, err)
	defer eng.Close()
	assert.Equal(t, "auto", eng.Name())
}

func TestExtractDomain(t *testing.T) {
	assert.Equal(t, "www.reuters.com", extractDomain("https://www.reuters.com/site-search/?query=oil"))
	assert.Equal(t, "127.0.0.1", extractDomain("http://127.0.0.1:8080/x"))
}
