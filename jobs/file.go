package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/newswalk/models"
	"gopkg.in/yaml.v3"
)

// fileEntry is one work item as written in the input file.
type fileEntry struct {
	ID      string         `yaml:"id"`
	Payload map[string]any `yaml:"payload"`
}

// FileResult is the recorded outcome of one file work item.
type FileResult struct {
	ID         string              `json:"id"`
	Status     models.JobStatus    `json:"status"`
	Failure    *models.Failure     `json:"failure,omitempty"`
	Walk       *models.WalkSummary `json:"walk,omitempty"`
	ReportPath string              `json:"report_path,omitempty"`
	FinishedAt time.Time           `json:"finished_at"`
}

// FileSource reads work items from a YAML or JSON file and collects their
// outcomes for WriteResults.
type FileSource struct {
	items []*fileItem
	next  int

	mu      sync.Mutex
	results []FileResult
}

// LoadFile reads a work-item file. The file holds a list of entries, each
// with an optional id and a payload map:
//
//	- id: oil-business
//	  payload:
//	    search_phrase: oil
//	    section: business
//	    date_range: 2
func LoadFile(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jobs: read work items: %w", err)
	}
	return ParseFile(data)
}

// ParseFile decodes work items from YAML or JSON bytes.
func ParseFile(data []byte) (*FileSource, error) {
	var entries []fileEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("jobs: decode work items: %w", err)
	}
	src := &FileSource{items: make([]*fileItem, 0, len(entries))}
	for _, e := range entries {
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		payload := e.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		src.items = append(src.items, &fileItem{id: id, payload: payload, src: src})
	}
	return src, nil
}

// Len returns the number of items in the file.
func (s *FileSource) Len() int { return len(s.items) }

// Next hands out the items in file order, then io.EOF.
func (s *FileSource) Next(ctx context.Context) (Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.items) {
		return nil, io.EOF
	}
	item := s.items[s.next]
	s.next++
	return item, nil
}

// Results returns a copy of the outcomes recorded so far.
func (s *FileSource) Results() []FileResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FileResult, len(s.results))
	copy(out, s.results)
	return out
}

// WriteResults writes the recorded outcomes as indented JSON.
func (s *FileSource) WriteResults(path string) error {
	data, err := json.MarshalIndent(s.Results(), "", "  ")
	if err != nil {
		return fmt.Errorf("jobs: encode results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("jobs: write results: %w", err)
	}
	return nil
}

func (s *FileSource) record(r FileResult) {
	s.mu.Lock()
	s.results = append(s.results, r)
	s.mu.Unlock()
}

type fileItem struct {
	id      string
	payload map[string]any
	src     *FileSource
	settled bool
}

func (i *fileItem) ID() string              { return i.id }
func (i *fileItem) Payload() map[string]any { return i.payload }

func (i *fileItem) Done(out *models.SearchOutcome) error {
	if i.settled {
		return fmt.Errorf("jobs: item %s already settled", i.id)
	}
	i.settled = true
	r := FileResult{ID: i.id, Status: models.JobDone, FinishedAt: time.Now().UTC()}
	if out != nil {
		if out.Walk != nil {
			r.Walk = out.Walk.Summary()
		}
		r.ReportPath = out.ReportPath
	}
	i.src.record(r)
	return nil
}

func (i *fileItem) Fail(f models.Failure, out *models.SearchOutcome) error {
	if i.settled {
		return fmt.Errorf("jobs: item %s already settled", i.id)
	}
	i.settled = true
	r := FileResult{ID: i.id, Status: models.JobFailed, Failure: &f, FinishedAt: time.Now().UTC()}
	if out != nil && out.Walk != nil {
		r.Walk = out.Walk.Summary()
	}
	i.src.record(r)
	return nil
}
