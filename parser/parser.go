// Package parser turns one raw search-result item into a models.Record.
//
// Parsing is total: every field is extracted independently, and a field
// that cannot be extracted is left at its zero value and logged. Nothing
// in this package returns an error to the caller.
package parser

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/newswalk/models"
	"golang.org/x/net/html"
)

// Item is a raw result entry. engine.Element satisfies it.
type Item interface {
	OuterHTML() (string, error)
}

// Selectors locates the record fields inside one item.
type Selectors struct {
	Title    string
	Time     string
	NoScript string
	Source   string
}

// DefaultSelectors matches the search listing markup.
var DefaultSelectors = Selectors{
	Title:    `[data-testid="Heading"]`,
	Time:     `time[data-testid="Text"]`,
	NoScript: `noscript`,
	Source:   `[src]`,
}

const (
	// fracLayout accepts "2024-05-01T10:20:30.123456Z".
	fracLayout = "2006-01-02T15:04:05.999999Z"
	// wholeLayout accepts "2024-05-01T10:20:30Z".
	wholeLayout = "2006-01-02T15:04:05Z"
	// maxFracDigits is the microsecond precision of fracLayout.
	maxFracDigits = 6
)

var (
	reNoscriptImage = regexp.MustCompile(`<noscript><img src="([^"]+)"`)
	reMoney         = regexp.MustCompile(`(?i)\$\d+(?:,\d{3})*(?:\.\d+)?|\d+\s?(?:dollars?|USD)`)
)

// Parser extracts records for one search phrase. It is stateless after
// construction and safe to reuse.
type Parser struct {
	phrase   string
	phraseRe *regexp.Regexp
	base     *url.URL

	title    cascadia.Selector
	time     cascadia.Selector
	noscript cascadia.Selector
	source   cascadia.Selector
}

// Option configures a Parser.
type Option func(*Parser)

// WithBaseURL resolves relative image references against base.
func WithBaseURL(base string) Option {
	return func(p *Parser) {
		if u, err := url.Parse(base); err == nil && u.IsAbs() {
			p.base = u
		}
	}
}

// WithSelectors overrides the field selectors. Invalid selectors keep
// their defaults.
func WithSelectors(s Selectors) Option {
	return func(p *Parser) {
		p.title = compileOr(s.Title, p.title)
		p.time = compileOr(s.Time, p.time)
		p.noscript = compileOr(s.NoScript, p.noscript)
		p.source = compileOr(s.Source, p.source)
	}
}

// New builds a Parser for phrase.
func New(phrase string, opts ...Option) *Parser {
	p := &Parser{
		phrase:   phrase,
		phraseRe: phraseRegexp(phrase),
		title:    cascadia.MustCompile(DefaultSelectors.Title),
		time:     cascadia.MustCompile(DefaultSelectors.Time),
		noscript: cascadia.MustCompile(DefaultSelectors.NoScript),
		source:   cascadia.MustCompile(DefaultSelectors.Source),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse reads the item's markup and parses it. A failure to read the markup
// yields a record with every field at its default.
func (p *Parser) Parse(item Item) models.Record {
	markup, err := item.OuterHTML()
	if err != nil {
		slog.Warn("failed to read item markup", "error", err)
		return models.Record{}
	}
	return p.ParseMarkup(markup)
}

// ParseMarkup parses the outer HTML of one result item.
func (p *Parser) ParseMarkup(markup string) models.Record {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		slog.Warn("failed to parse item markup", "error", err)
		return models.Record{}
	}
	root := doc.Find("body").Children().First()
	if root.Length() == 0 {
		root = doc.Selection
	}

	var rec models.Record
	rec.Title = p.parseTitle(root)
	rec.Timestamp = p.parseTimestamp(root)
	rec.ImageReference = p.parseImage(root, markup)

	if rec.Title != nil {
		rec.PhraseCount = p.countPhrase(*rec.Title)
		rec.ContainsMoney = ContainsMoney(*rec.Title)
	} else {
		slog.Warn("no title available; phrase count and money flag use defaults")
	}

	slog.Debug("parsed item",
		"title", rec.TitleOrEmpty(),
		"hasTimestamp", rec.Timestamp != nil,
		"hasImage", rec.ImageReference != nil,
		"phraseCount", rec.PhraseCount,
		"containsMoney", rec.ContainsMoney,
	)
	return rec
}

func (p *Parser) parseTitle(root *goquery.Selection) *string {
	el := root.FindMatcher(p.title).First()
	if el.Length() == 0 {
		slog.Warn("failed to parse title: element not found")
		return nil
	}
	title := strings.Join(strings.Fields(el.Text()), " ")
	if title == "" {
		slog.Warn("failed to parse title: element is empty")
		return nil
	}
	return &title
}

func (p *Parser) parseTimestamp(root *goquery.Selection) *time.Time {
	el := root.FindMatcher(p.time).First()
	if el.Length() == 0 {
		slog.Warn("failed to parse date: element not found")
		return nil
	}
	raw, ok := el.Attr("datetime")
	if !ok {
		slog.Warn("failed to parse date: datetime attribute missing")
		return nil
	}
	ts, err := ParseTimestamp(raw)
	if err != nil {
		slog.Warn("failed to parse date", "value", raw, "error", err)
		return nil
	}
	return &ts
}

// parseImage prefers the <noscript> fallback markup, which carries the real
// URL on lazy-loading listings; otherwise the first src attribute wins.
func (p *Parser) parseImage(root *goquery.Selection, markup string) *string {
	var ref string
	if root.FindMatcher(p.noscript).Length() > 0 {
		m := reNoscriptImage.FindStringSubmatch(markup)
		if m == nil {
			slog.Warn("failed to parse image link: no image in noscript block")
			return nil
		}
		ref = html.UnescapeString(m[1])
	} else {
		src, ok := root.FindMatcher(p.source).First().Attr("src")
		if !ok {
			slog.Warn("failed to parse image link: element not found")
			return nil
		}
		ref = src
	}

	ref = strings.TrimSpace(ref)
	if ref == "" {
		slog.Warn("failed to parse image link: empty src")
		return nil
	}
	ref = p.absolute(ref)
	return &ref
}

func (p *Parser) absolute(ref string) string {
	if p.base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	return p.base.ResolveReference(u).String()
}

func (p *Parser) countPhrase(title string) int {
	if p.phraseRe == nil {
		return 0
	}
	return len(p.phraseRe.FindAllStringIndex(title, -1))
}

// ParseTimestamp accepts the two UTC layouts the listing emits, picking the
// fractional one when the value contains a decimal point.
func ParseTimestamp(raw string) (time.Time, error) {
	layout := wholeLayout
	if dot := strings.IndexByte(raw, '.'); dot >= 0 {
		frac := strings.TrimSuffix(raw[dot+1:], "Z")
		if len(frac) == 0 || len(frac) > maxFracDigits {
			return time.Time{}, fmt.Errorf("parser: fractional seconds in %q must have 1 to %d digits", raw, maxFracDigits)
		}
		layout = fracLayout
	}
	ts, err := time.Parse(layout, raw)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

// CountPhrase returns the number of non-overlapping, case-insensitive
// occurrences of phrase in title. Regex metacharacters in phrase are literal.
func CountPhrase(title, phrase string) int {
	re := phraseRegexp(phrase)
	if re == nil {
		return 0
	}
	return len(re.FindAllStringIndex(title, -1))
}

// ContainsMoney reports whether title mentions an amount such as "$1,234.50",
// "500 dollars" or "20 USD".
func ContainsMoney(title string) bool {
	return reMoney.MatchString(title)
}

func phraseRegexp(phrase string) *regexp.Regexp {
	if phrase == "" {
		return nil
	}
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(phrase))
}

func compileOr(sel string, fallback cascadia.Selector) cascadia.Selector {
	if sel == "" {
		return fallback
	}
	compiled, err := cascadia.Compile(sel)
	if err != nil {
		slog.Warn("invalid selector, keeping default", "selector", sel, "error", err)
		return fallback
	}
	return compiled
}
