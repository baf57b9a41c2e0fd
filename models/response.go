package models

import "time"

// JobStatus is the lifecycle status of a work item.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
)

// SearchJobResponse is the immediate response for POST /api/v1/search.
type SearchJobResponse struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
}

// SearchJobStatusResponse is the response for GET /api/v1/search/:id.
type SearchJobStatusResponse struct {
	ID          string       `json:"id"`
	Status      JobStatus    `json:"status"`
	Failure     *Failure     `json:"failure,omitempty"`
	Walk        *WalkSummary `json:"walk,omitempty"`
	Records     []RecordView `json:"records,omitempty"`
	ReportPath  string       `json:"report_path,omitempty"`
	CacheStatus string       `json:"cache_status,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
}

// WalkSummary describes how a walk ended.
type WalkSummary struct {
	State         string `json:"state"`
	Reason        string `json:"reason"`
	Pages         int    `json:"pages"`
	Seen          int    `json:"seen"`
	TotalReported int    `json:"total_reported"`
	Retained      int    `json:"retained"`
	Error         string `json:"error,omitempty"`
}

// Summary condenses a walk result for API responses.
func (r *WalkResult) Summary() *WalkSummary {
	s := &WalkSummary{
		State:         r.State.String(),
		Reason:        string(r.Reason),
		Pages:         r.Pages,
		Seen:          r.Seen,
		TotalReported: r.TotalReported,
		Retained:      len(r.Records),
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}

// ErrorResponse wraps an error for non-2xx API responses.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	Engine     string `json:"engine"`
	QueueDepth int    `json:"queue_depth"`
	Running    bool   `json:"running"`
	Version    string `json:"version"`
}
