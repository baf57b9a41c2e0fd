package models

// WalkState is a state of the pagination walk.
type WalkState int

const (
	StateFetching WalkState = iota
	StateExtracting
	StateEvaluating
	StateAdvancing
	StateDone
	StateFailed
)

var walkStateNames = [...]string{
	StateFetching:   "fetching",
	StateExtracting: "extracting",
	StateEvaluating: "evaluating",
	StateAdvancing:  "advancing",
	StateDone:       "done",
	StateFailed:     "failed",
}

func (s WalkState) String() string {
	if s < 0 || int(s) >= len(walkStateNames) {
		return "unknown"
	}
	return walkStateNames[s]
}

// StopReason records which condition ended a walk.
type StopReason string

const (
	StopNoResults   StopReason = "no_results"
	StopExhausted   StopReason = "page_exhausted"
	StopStale       StopReason = "recency_cutoff"
	StopTotalReach  StopReason = "total_reached"
	StopMaxPages    StopReason = "max_pages"
	StopPageFailure StopReason = "page_failure"
)

// WalkResult is the terminal outcome of one walk. Records holds everything
// accumulated before termination, whether the walk finished Done or Failed.
type WalkResult struct {
	State   WalkState
	Reason  StopReason
	Records []Record

	// Pages is the number of listing pages requested.
	Pages int

	// Seen is the number of raw items encountered across all pages.
	Seen int

	// TotalReported is the site's reported result count, or -1 if unknown.
	TotalReported int

	// Err is the page-level failure that ended a Failed walk.
	Err error
}

// Partial reports a Failed walk that still accumulated records.
func (r *WalkResult) Partial() bool {
	return r.State == StateFailed && len(r.Records) > 0
}
