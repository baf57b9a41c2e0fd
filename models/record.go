package models

import (
	"net/url"
	"path"
	"time"
)

// Record is one parsed search result. Records are produced once per raw
// item by the parser and never modified afterwards.
type Record struct {
	// Title is nil when the heading element is missing or empty.
	Title *string

	// Timestamp is normalized to UTC; nil when missing or unparsable.
	Timestamp *time.Time

	// ImageReference is an absolute URL to the associated image, or nil.
	ImageReference *string

	// PhraseCount is the case-insensitive count of the search phrase in Title.
	PhraseCount int

	// ContainsMoney reports whether Title mentions an amount of money.
	ContainsMoney bool
}

// TitleOrEmpty returns the title, or "" when absent.
func (r Record) TitleOrEmpty() string {
	if r.Title == nil {
		return ""
	}
	return *r.Title
}

// ImageLocalName is the last path segment of ImageReference. It is always
// derived, so it can never disagree with the reference.
func (r Record) ImageLocalName() (string, bool) {
	if r.ImageReference == nil {
		return "", false
	}
	return ImageLocalName(*r.ImageReference)
}

// ImageLocalName returns the basename of the path component of ref.
func ImageLocalName(ref string) (string, bool) {
	p := ref
	if u, err := url.Parse(ref); err == nil {
		p = u.Path
	}
	base := path.Base(p)
	if base == "." || base == "/" || base == "" {
		return "", false
	}
	return base, true
}

// WithinCutoff reports whether the record may be retained for the given
// cutoff. A record without a timestamp cannot be proven stale and is kept.
func (r Record) WithinCutoff(cutoff time.Time) bool {
	if r.Timestamp == nil {
		return true
	}
	return !r.Timestamp.Before(cutoff)
}

// RecordView is the JSON shape of a Record in API responses and reports.
type RecordView struct {
	Title          *string    `json:"title"`
	Timestamp      *time.Time `json:"timestamp"`
	ImageReference *string    `json:"image_reference"`
	ImageLocalName *string    `json:"image_local_name"`
	PhraseCount    int        `json:"search_phrase_count"`
	ContainsMoney  bool       `json:"contains_money"`
}

// View converts the record into its JSON shape.
func (r Record) View() RecordView {
	v := RecordView{
		Title:          r.Title,
		Timestamp:      r.Timestamp,
		ImageReference: r.ImageReference,
		PhraseCount:    r.PhraseCount,
		ContainsMoney:  r.ContainsMoney,
	}
	if name, ok := r.ImageLocalName(); ok {
		v.ImageLocalName = &name
	}
	return v
}

// Views converts a slice of records.
func Views(records []Record) []RecordView {
	out := make([]RecordView, len(records))
	for i, r := range records {
		out[i] = r.View()
	}
	return out
}
