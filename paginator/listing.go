package paginator

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/use-agent/newswalk/engine"
	"github.com/use-agent/newswalk/models"
)

// DefaultBaseURL is the search listing endpoint.
const DefaultBaseURL = "https://www.reuters.com/site-search/"

// Layout locates the listing landmarks the walk waits on.
type Layout struct {
	// MainContent must become visible before anything else is inspected.
	MainContent engine.Locator

	// NoResultsText inside MainContent marks an empty search.
	NoResultsText string

	// ResultsList is the container that must be present on every page.
	ResultsList engine.Locator

	// Summary holds the total result count; read on the first page only.
	Summary engine.Locator

	// Item matches one raw result entry, in document order.
	Item engine.Locator
}

// DefaultLayout matches the search listing markup.
var DefaultLayout = Layout{
	MainContent:   "#main-content",
	NoResultsText: "No search results match",
	ResultsList:   ".search-results__list__2SxSK",
	Summary:       `.search-results__subtitle__3k4lv [data-testid="Text"]`,
	Item:          ".search-results__list__2SxSK .search-results__item__2oqiX",
}

func (l Layout) withDefaults() Layout {
	if l.MainContent == "" {
		l.MainContent = DefaultLayout.MainContent
	}
	if l.NoResultsText == "" {
		l.NoResultsText = DefaultLayout.NoResultsText
	}
	if l.ResultsList == "" {
		l.ResultsList = DefaultLayout.ResultsList
	}
	if l.Summary == "" {
		l.Summary = DefaultLayout.Summary
	}
	if l.Item == "" {
		l.Item = DefaultLayout.Item
	}
	return l
}

// BuildListingURL returns the listing URL for one page:
//
//	<base>?query=<phrase>&offset=<n>&section=<slug>&sort=newest
//
// The phrase is percent-encoded with spaces as %20 and "/" left intact.
func BuildListingURL(base string, req models.SearchRequest, offset int) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("?query=")
	b.WriteString(quotePhrase(req.Phrase))
	b.WriteString("&offset=")
	b.WriteString(strconv.Itoa(offset))
	b.WriteString("&section=")
	b.WriteString(string(req.Section))
	b.WriteString("&sort=newest")
	return b.String()
}

func quotePhrase(phrase string) string {
	q := url.QueryEscape(phrase)
	q = strings.ReplaceAll(q, "+", "%20")
	return strings.ReplaceAll(q, "%2F", "/")
}


// ParseTotal extracts the result count from the summary text by keeping
// every digit, e.g. "1,234 results for ..." yields 1234. Digits elsewhere
// in the text inflate the count, which only delays the stop. It returns
// -1 when no digit is present.
func ParseTotal(text string) int {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
	if digits == "" {
		return -1
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return -1
	}
	return n
}
