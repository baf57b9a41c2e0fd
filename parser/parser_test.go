package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lazyImageItem = `<li class="search-results__item__2oqiX"><div class="media-story-card">
<div class="media-story-card__image"><img src="data:image/gif;base64,R0lGOD" alt=""><noscript><img src="https://www.reuters.com/resizer/v2/ABC/oil-rig.jpg?auth=f00&amp;width=120" alt=""></noscript></div>
<a href="/business/energy/oil"><span data-testid="Heading">Oil prices jump as OIL stocks fall; oil demand up</span></a>
<time data-testid="Text" datetime="2024-05-01T10:20:30.123456Z">May 1, 2024</time>
</div></li>`

const plainImageItem = `<li class="search-results__item__2oqiX">
<img src="/resources/images/chart.png" alt="">
<h3 data-testid="Heading">  Fed holds
   rates at $1,234.50  </h3>
<time data-testid="Text" datetime="2024-05-02T08:00:00Z">May 2</time>
</li>`

const bareItem = `<li class="search-results__item__2oqiX"><p>nothing useful</p></li>`

func TestParseMarkup_NoscriptImage(t *testing.T) {
	p := New("oil")
	rec := p.ParseMarkup(lazyImageItem)

	require.NotNil(t, rec.Title)
	assert.Equal(t, "Oil prices jump as OIL stocks fall; oil demand up", *rec.Title)
	assert.Equal(t, 3, rec.PhraseCount)
	assert.False(t, rec.ContainsMoney)

	require.NotNil(t, rec.Timestamp)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 20, 30, 123456000, time.UTC), *rec.Timestamp)
	assert.Equal(t, time.UTC, rec.Timestamp.Location())

	require.NotNil(t, rec.ImageReference)
	assert.Equal(t, "https://www.reuters.com/resizer/v2/ABC/oil-rig.jpg?auth=f00&width=120", *rec.ImageReference)
	name, ok := rec.ImageLocalName()
	assert.True(t, ok)
	assert.Equal(t, "oil-rig.jpg", name)
}

func TestParseMarkup_SrcFallbackResolvedAgainstBase(t *testing.T) {
	p := New("fed", WithBaseURL("https://www.reuters.com/site-search/"))
	rec := p.ParseMarkup(plainImageItem)

	require.NotNil(t, rec.Title)
	assert.Equal(t, "Fed holds rates at $1,234.50", *rec.Title)
	assert.Equal(t, 1, rec.PhraseCount)
	assert.True(t, rec.ContainsMoney)

	require.NotNil(t, rec.Timestamp)
	assert.Equal(t, time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC), *rec.Timestamp)

	require.NotNil(t, rec.ImageReference)
	assert.Equal(t, "https://www.reuters.com/resources/images/chart.png", *rec.ImageReference)
}

func TestParseMarkup_MissingFieldsDefault(t *testing.T) {
	rec := New("anything").ParseMarkup(bareItem)

	assert.Nil(t, rec.Title)
	assert.Nil(t, rec.Timestamp)
	assert.Nil(t, rec.ImageReference)
	_, ok := rec.ImageLocalName()
	assert.False(t, ok)
	assert.Equal(t, 0, rec.PhraseCount)
	assert.False(t, rec.ContainsMoney)
}

func TestParseMarkup_NoscriptWithoutImage(t *testing.T) {
	markup := `<li><noscript>enable js</noscript><img src="https://cdn.example.com/x.png"><span data-testid="Heading">T</span></li>`
	rec := New("t").ParseMarkup(markup)

	assert.Nil(t, rec.ImageReference, "noscript path never falls back to src")
	require.NotNil(t, rec.Title)
}

func TestParseMarkup_EmptyTitleIsAbsent(t *testing.T) {
	markup := `<li><span data-testid="Heading">   </span></li>`
	rec := New("x").ParseMarkup(markup)

	assert.Nil(t, rec.Title)
	assert.Equal(t, 0, rec.PhraseCount)
}

func TestParseMarkup_BadTimestamp(t *testing.T) {
	for _, dt := range []string{"yesterday", "2024-05-01 10:20:30", "2024-05-01T10:20:30+02:00", ""} {
		markup := `<li><time data-testid="Text" datetime="` + dt + `">x</time></li>`
		rec := New("x").ParseMarkup(markup)
		assert.Nil(t, rec.Timestamp, dt)
	}
}

func TestParseMarkup_Idempotent(t *testing.T) {
	p := New("oil")
	first := p.ParseMarkup(lazyImageItem)
	second := p.ParseMarkup(lazyImageItem)

	assert.Equal(t, first, second)
}

type stubItem struct {
	markup string
	err    error
}

func (s stubItem) OuterHTML() (string, error) { return s.markup, s.err }

func TestParse_MarkupError(t *testing.T) {
	rec := New("x").Parse(stubItem{err: errors.New("detached node")})

	assert.Nil(t, rec.Title)
	assert.Equal(t, 0, rec.PhraseCount)
	assert.False(t, rec.ContainsMoney)
}

func TestParse_UsesItemMarkup(t *testing.T) {
	rec := New("fed").Parse(stubItem{markup: plainImageItem})

	require.NotNil(t, rec.Title)
	assert.Equal(t, 1, rec.PhraseCount)
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2023-12-31T23:59:59Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC), ts)

	ts, err = ParseTimestamp("2023-12-31T23:59:59.5Z")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, time.Duration(ts.Nanosecond()))

	ts, err = ParseTimestamp("2024-05-01T10:20:30.123456Z")
	require.NoError(t, err)
	assert.Equal(t, 123456*time.Microsecond, time.Duration(ts.Nanosecond()))

	_, err = ParseTimestamp("2023-12-31")
	assert.Error(t, err)

	_, err = ParseTimestamp("2024-05-01T10:20:30.1234567Z")
	assert.Error(t, err, "more than microsecond precision")

	_, err = ParseTimestamp("2024-05-01T10:20:30.Z")
	assert.Error(t, err)
}

func TestCountPhrase(t *testing.T) {
	tests := []struct {
		title, phrase string
		want          int
	}{
		{"Oil oil OIL", "oil", 3},
		{"aaaa", "aa", 2},
		{"C++ and c++ devs", "c++", 2},
		{"price (USD) vs (usd)", "(usd)", 2},
		{"a.b axb", "a.b", 1},
		{"nothing here", "oil", 0},
		{"anything", "", 0},
		{"", "oil", 0},
	}
	for _, tt := range tests {
		t.Run(tt.title+"/"+tt.phrase, func(t *testing.T) {
			assert.Equal(t, tt.want, CountPhrase(tt.title, tt.phrase))
		})
	}
}

func TestContainsMoney(t *testing.T) {
	positive := []string{
		"Deal worth $1,234.50 closes",
		"$5 coffee",
		"Fine of 500 dollars",
		"Tip: 1 dollar",
		"Raised 20 USD",
		"Raised 20usd",
		"Spent 300 Dollars",
	}
	for _, title := range positive {
		assert.True(t, ContainsMoney(title), title)
	}

	negative := []string{
		"Markets rally on jobs data",
		"Dollar weakens against yen",
		"Top 10 stocks",
		"USD/JPY climbs",
		"",
	}
	for _, title := range negative {
		assert.False(t, ContainsMoney(title), title)
	}
}

func TestWithSelectors_InvalidKeepsDefault(t *testing.T) {
	p := New("fed", WithSelectors(Selectors{Title: "[[["}))
	rec := p.ParseMarkup(plainImageItem)

	require.NotNil(t, rec.Title)
}

func TestWithSelectors_Override(t *testing.T) {
	markup := `<article><h2 class="headline">Gold at 2000 dollars</h2></article>`
	p := New("gold", WithSelectors(Selectors{Title: "h2.headline"}))
	rec := p.ParseMarkup(markup)

	require.NotNil(t, rec.Title)
	assert.Equal(t, 1, rec.PhraseCount)
	assert.True(t, rec.ContainsMoney)
}
