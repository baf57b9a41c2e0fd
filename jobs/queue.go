package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/newswalk/cache"
	"github.com/use-agent/newswalk/config"
	"github.com/use-agent/newswalk/models"
	"github.com/use-agent/newswalk/webhook"
)

// ErrQueueFull is returned by Submit when no more jobs can be buffered.
var ErrQueueFull = errors.New("jobs: queue is full")

// jobTTL is how long a finished job stays retrievable.
const jobTTL = time.Hour

// Queue is an in-memory Source fed by API submissions. Jobs are handed out
// in submission order and stay retrievable by ID for an hour after they
// finish.
type Queue struct {
	pending chan *Job
	jobs    sync.Map // id -> *Job

	cache         *cache.Cache
	webhookURL    string
	webhookSecret string
}

// NewQueue creates a queue buffering up to capacity pending jobs. cc may be
// nil to disable result caching.
func NewQueue(capacity int, cc *cache.Cache, hooks config.WebhookConfig) *Queue {
	if capacity <= 0 {
		capacity = 100
	}
	q := &Queue{
		pending:       make(chan *Job, capacity),
		cache:         cc,
		webhookURL:    hooks.DefaultURL,
		webhookSecret: hooks.Secret,
	}
	go q.cleanupLoop()
	return q
}

// Submit registers a job for req. When the request allows it and a fresh
// cached result exists, the job finishes immediately without a walk.
func (q *Queue) Submit(req *models.SearchJobRequest) (*Job, error) {
	job := &Job{
		id:         uuid.NewString(),
		payload:    req.Payload(),
		webhookURL: req.WebhookURL,
		status:     models.JobPending,
		createdAt:  time.Now().UTC(),
		q:          q,
	}
	if job.webhookURL == "" {
		job.webhookURL = q.webhookURL
	}

	if q.cache != nil && req.MaxAge > 0 {
		if sr, err := ParsePayload(job.payload); err == nil {
			if out, ok := q.cache.Get(cache.Key(sr), req.MaxAge); ok {
				job.cacheStatus = "hit"
				q.jobs.Store(job.id, job)
				_ = job.settle(models.JobDone, nil, out)
				return job, nil
			}
			job.cacheStatus = "miss"
		}
	}

	q.jobs.Store(job.id, job)
	select {
	case q.pending <- job:
	default:
		q.jobs.Delete(job.id)
		return nil, ErrQueueFull
	}
	return job, nil
}

// Get looks up a job by ID.
func (q *Queue) Get(id string) (*Job, bool) {
	v, ok := q.jobs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Job), true
}

// Depth returns the number of jobs waiting to run.
func (q *Queue) Depth() int { return len(q.pending) }

// Next blocks until a job is pending or ctx is done.
func (q *Queue) Next(ctx context.Context) (Item, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case job := <-q.pending:
		job.mu.Lock()
		job.status = models.JobProcessing
		job.mu.Unlock()
		return job, nil
	}
}

func (q *Queue) expire(now time.Time) {
	cutoff := now.Add(-jobTTL)
	q.jobs.Range(func(key, value any) bool {
		job := value.(*Job)
		job.mu.RLock()
		old := job.finishedAt != nil && job.finishedAt.Before(cutoff)
		job.mu.RUnlock()
		if old {
			q.jobs.Delete(key)
		}
		return true
	})
}

func (q *Queue) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for now := range ticker.C {
		q.expire(now)
	}
}

// Job is one API submission. It implements Item.
type Job struct {
	id         string
	payload    map[string]any
	webhookURL string
	q          *Queue

	mu          sync.RWMutex
	status      models.JobStatus
	failure     *models.Failure
	outcome     *models.SearchOutcome
	cacheStatus string
	createdAt   time.Time
	finishedAt  *time.Time
}

func (j *Job) ID() string              { return j.id }
func (j *Job) Payload() map[string]any { return j.payload }

func (j *Job) Done(out *models.SearchOutcome) error {
	if err := j.settle(models.JobDone, nil, out); err != nil {
		return err
	}
	if j.q.cache != nil && out != nil {
		j.q.cache.Set(cache.Key(out.Request), out)
	}
	return nil
}

func (j *Job) Fail(f models.Failure, out *models.SearchOutcome) error {
	return j.settle(models.JobFailed, &f, out)
}

func (j *Job) settle(status models.JobStatus, f *models.Failure, out *models.SearchOutcome) error {
	j.mu.Lock()
	if j.finishedAt != nil {
		j.mu.Unlock()
		return fmt.Errorf("jobs: job %s already settled", j.id)
	}
	now := time.Now().UTC()
	j.status = status
	j.failure = f
	j.outcome = out
	j.finishedAt = &now
	j.mu.Unlock()

	j.notify()
	return nil
}

func (j *Job) notify() {
	if j.webhookURL == "" {
		return
	}
	typ := webhook.EventJobDone
	if j.Status() == models.JobFailed {
		typ = webhook.EventJobFailed
	}
	slog.Debug("sending job webhook", "job_id", j.id, "event", typ)
	webhook.DeliverAsync(j.webhookURL, j.q.webhookSecret, webhook.NewEvent(typ, j.id, j.Snapshot()))
}

// Status returns the current lifecycle status.
func (j *Job) Status() models.JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Wait blocks until the job settles or ctx is done.
func (j *Job) Wait(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s := j.Status(); s == models.JobDone || s == models.JobFailed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Snapshot renders the job for API responses.
func (j *Job) Snapshot() *models.SearchJobStatusResponse {
	j.mu.RLock()
	defer j.mu.RUnlock()

	resp := &models.SearchJobStatusResponse{
		ID:          j.id,
		Status:      j.status,
		Failure:     j.failure,
		CacheStatus: j.cacheStatus,
		CreatedAt:   j.createdAt,
		FinishedAt:  j.finishedAt,
	}
	if j.outcome != nil {
		if j.outcome.Walk != nil {
			resp.Walk = j.outcome.Walk.Summary()
		}
		resp.Records = models.Views(j.outcome.Records())
		resp.ReportPath = j.outcome.ReportPath
	}
	return resp
}
