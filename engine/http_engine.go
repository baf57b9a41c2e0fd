package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/newswalk/config"
	"github.com/use-agent/newswalk/models"
	"golang.org/x/net/html"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// maxBody caps every response body read by the HTTP engine.
const maxBody = 10 << 20

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// HTTPEngine fetches listing pages without a browser. Pages are static, so
// it only works when the listing is server-rendered; it also serves as the
// image fetcher for reports.
type HTTPEngine struct {
	client    *http.Client
	userAgent string
}

// NewHTTPEngine creates an HTTPEngine with a Chrome-like TLS fingerprint.
func NewHTTPEngine(cfg config.BrowserConfig) *HTTPEngine {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = chromeUA
	}

	timeout := cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPEngine{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: ua,
	}
}

func (e *HTTPEngine) Name() string { return "http" }

// Open returns a session with no page loaded.
func (e *HTTPEngine) Open(ctx context.Context) (Session, error) {
	return &HTTPSession{engine: e}, nil
}

// Close drops idle connections.
func (e *HTTPEngine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// Fetch performs a GET with browser-like headers and returns the body and
// its content type. Responses with status >= 400 are errors.
func (e *HTTPEngine) Fetch(ctx context.Context, target string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("http_engine: build request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("http_engine: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, "", fmt.Errorf("http_engine: read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("http_engine: HTTP %d for %s", resp.StatusCode, target)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// HTTPSession is a Navigator over a statically fetched document. The DOM
// never changes after LoadURL, so a wait either succeeds immediately or
// expires immediately.
type HTTPSession struct {
	engine *HTTPEngine
	doc    *goquery.Document
}

func (s *HTTPSession) LoadURL(ctx context.Context, target string) error {
	rendered, err := s.load(ctx, target)
	if err != nil {
		return err
	}
	if rendered {
		slog.Warn("listing page looks script-rendered; the http engine may find no results",
			"url", target,
		)
	}
	return nil
}

// load fetches and parses target, reporting whether the document looks
// like it needs a browser to render.
func (s *HTTPSession) load(ctx context.Context, target string) (bool, error) {
	body, _, err := s.engine.Fetch(ctx, target)
	if err != nil {
		s.doc = nil
		return false, categorizeError(err, "navigation to listing URL failed")
	}
	node, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		s.doc = nil
		return false, models.NewScrapeError(models.ErrCodeNavigation, "failed to parse listing page", err)
	}
	s.doc = goquery.NewDocumentFromNode(node)
	return needsBrowser(body), nil
}

func (s *HTTPSession) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	return s.first(loc, timeout)
}

func (s *HTTPSession) WaitPresent(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	return s.first(loc, timeout)
}

func (s *HTTPSession) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	sel, err := s.match(loc)
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, item *goquery.Selection) {
		out = append(out, &selectionElement{sel: item})
	})
	return out, nil
}

// Close forgets the loaded document.
func (s *HTTPSession) Close() error {
	s.doc = nil
	return nil
}

func (s *HTTPSession) first(loc Locator, timeout time.Duration) (Element, error) {
	sel, err := s.match(loc)
	if err != nil {
		return nil, err
	}
	if sel.Length() == 0 {
		return nil, timeoutError(loc, timeout, nil)
	}
	return &selectionElement{sel: sel.First()}, nil
}

func (s *HTTPSession) match(loc Locator) (*goquery.Selection, error) {
	if s.doc == nil {
		return nil, models.NewScrapeError(models.ErrCodeNavigation, "lookup before load", ErrNoPage)
	}
	matcher, err := cascadia.Compile(string(loc))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, fmt.Sprintf("invalid locator %q", loc), err)
	}
	return s.doc.FindMatcher(matcher), nil
}

// selectionElement adapts a goquery selection of one node to Element.
type selectionElement struct {
	sel *goquery.Selection
}

func (e *selectionElement) Text() (string, error) {
	return e.sel.Text(), nil
}

func (e *selectionElement) Attribute(name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *selectionElement) OuterHTML() (string, error) {
	return goquery.OuterHtml(e.sel)
}

var reNoscript = regexp.MustCompile(`<noscript[^>]*>[^<]*(enable|activate|turn on|requires?)\s+javascript`)

// needsBrowser uses heuristics to decide if the fetched HTML likely needs
// JS rendering (SPA shell, heavy JS dependency, noscript warnings).
func needsBrowser(body []byte) bool {
	bodyText := extractVisibleText(body)
	if len(bodyText) < 200 {
		return true
	}

	lower := strings.ToLower(string(body))
	if reNoscript.MatchString(lower) {
		return true
	}

	scriptCount := strings.Count(lower, "<script")
	return scriptCount > 10 && len(bodyText) < 500
}

// extractVisibleText extracts the visible text from within <body>, stripping
// all tags and <script>/<style> content. Used for heuristic analysis only.
func extractVisibleText(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	var buf strings.Builder
	inBody := false
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "body" {
				inBody = true
			}
			if tag == "script" || tag == "style" || tag == "noscript" {
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "script" || tag == "style" || tag == "noscript" {
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if inBody && skipDepth == 0 {
				text := strings.TrimSpace(string(tokenizer.Text()))
				if text != "" {
					buf.WriteString(text)
					buf.WriteByte(' ')
				}
			}
		}
	}
}
