package models

// SearchOutcome is everything one processed work item produced.
type SearchOutcome struct {
	Request    SearchRequest
	Walk       *WalkResult
	ReportPath string
}

// Records returns the walk's records, or nil when no walk ran.
func (o *SearchOutcome) Records() []Record {
	if o == nil || o.Walk == nil {
		return nil
	}
	return o.Walk.Records
}
