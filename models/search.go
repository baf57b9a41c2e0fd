package models

import (
	"strings"
	"time"
)

// Section is a canonical search section slug.
type Section string

const (
	SectionAll            Section = "all"
	SectionWorld          Section = "world"
	SectionBusiness       Section = "business"
	SectionLegal          Section = "legal"
	SectionMarkets        Section = "markets"
	SectionBreakingviews  Section = "breakingviews"
	SectionTechnology     Section = "technology"
	SectionSustainability Section = "sustainability"
	SectionScience        Section = "science"
	SectionSports         Section = "sports"
	SectionLifestyle      Section = "lifestyle"
)

var sections = map[Section]struct{}{
	SectionAll:            {},
	SectionWorld:          {},
	SectionBusiness:       {},
	SectionLegal:          {},
	SectionMarkets:        {},
	SectionBreakingviews:  {},
	SectionTechnology:     {},
	SectionSustainability: {},
	SectionScience:        {},
	SectionSports:         {},
	SectionLifestyle:      {},
}

// ParseSection normalizes raw input to a canonical slug. Unknown input
// coerces to SectionAll.
func ParseSection(raw string) Section {
	s := Section(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := sections[s]; ok {
		return s
	}
	return SectionAll
}

// DaysPerMonth is the month length used by the recency cutoff.
const DaysPerMonth = 30

// SearchRequest is the immutable configuration of one walk.
type SearchRequest struct {
	Phrase         string
	Section        Section
	LookbackMonths int
}

// NewSearchRequest builds a request, coercing the section and clamping the
// lookback to at least one month.
func NewSearchRequest(phrase, section string, lookbackMonths int) SearchRequest {
	if lookbackMonths < 1 {
		lookbackMonths = 1
	}
	return SearchRequest{
		Phrase:         phrase,
		Section:        ParseSection(section),
		LookbackMonths: lookbackMonths,
	}
}

// Cutoff returns the earliest timestamp a record may carry to be retained.
func (r SearchRequest) Cutoff(now time.Time) time.Time {
	return now.UTC().Add(-time.Duration(DaysPerMonth*r.LookbackMonths) * 24 * time.Hour)
}

// ReportKey names one exported report.
type ReportKey struct {
	Phrase         string
	Section        Section
	LookbackMonths int
	CreatedAt      time.Time
}

// Key derives the report naming key for this request.
func (r SearchRequest) Key(createdAt time.Time) ReportKey {
	return ReportKey{
		Phrase:         r.Phrase,
		Section:        r.Section,
		LookbackMonths: r.LookbackMonths,
		CreatedAt:      createdAt,
	}
}
