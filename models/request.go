package models

// Work-item payload keys.
const (
	PayloadSearchPhrase = "search_phrase"
	PayloadSection      = "section"
	PayloadDateRange    = "date_range"
)

// SearchJobRequest is the payload for POST /api/v1/search.
type SearchJobRequest struct {
	// SearchPhrase is the literal phrase to search for. Required.
	SearchPhrase *string `json:"search_phrase"`

	// Section is the site section; unknown values fall back to "all". Required.
	Section *string `json:"section"`

	// DateRange is the lookback in months. Numeric or numeric string. Required.
	DateRange any `json:"date_range"`

	// WebhookURL receives a job.done / job.failed event when the job ends.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// MaxAge, in milliseconds, allows serving a cached walk no older than
	// this. 0 disables the cache lookup.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// Payload converts the request into a work-item payload map. Keys whose
// value was not sent are left out so validation reports them as missing.
func (r *SearchJobRequest) Payload() map[string]any {
	payload := make(map[string]any, 3)
	if r.SearchPhrase != nil {
		payload[PayloadSearchPhrase] = *r.SearchPhrase
	}
	if r.Section != nil {
		payload[PayloadSection] = *r.Section
	}
	if r.DateRange != nil {
		payload[PayloadDateRange] = r.DateRange
	}
	return payload
}
