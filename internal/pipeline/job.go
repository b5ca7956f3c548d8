// Package pipeline schedules scrape jobs and streams their output into
// the document store.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docdex/docdex/internal/scraper"
)

// Status is a job lifecycle state.
type Status string

// Job states. QUEUED and RUNNING are active; the rest are terminal.
const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether s is a terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Progress carries a job's counters.
type Progress struct {
	PagesScraped     int    `json:"pages_scraped"`
	MaxPages         int    `json:"max_pages"`
	CurrentURL       string `json:"current_url,omitempty"`
	Depth            int    `json:"depth"`
	DocumentsIndexed int    `json:"documents_indexed"`
}

// Job is one scrape execution. Jobs live in memory only; they are not
// persisted across restarts.
type Job struct {
	ID      string
	Library string
	Version string
	Options scraper.Options

	mu         sync.Mutex
	status     Status
	err        error
	progress   Progress
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func newJob(library, version string, opts scraper.Options) *Job {
	return &Job{
		// V7 ids are time-ordered, so id order follows creation order.
		ID:        uuid.Must(uuid.NewV7()).String(),
		Library:   library,
		Version:   version,
		Options:   opts,
		status:    StatusQueued,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Snapshot is an immutable view of a job for listings and responses.
type Snapshot struct {
	ID         string    `json:"id"`
	Library    string    `json:"library"`
	Version    string    `json:"version"`
	URL        string    `json:"url"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Progress   Progress  `json:"progress"`
	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Snapshot returns the job's current state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := Snapshot{
		ID:         j.ID,
		Library:    j.Library,
		Version:    j.Version,
		URL:        j.Options.URL,
		Status:     j.status,
		Progress:   j.progress,
		CreatedAt:  j.createdAt,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	return s
}

// Status returns the current state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Err returns the failure cause for FAILED jobs.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Done resolves when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job settles or ctx expires.
func (j *Job) Wait(ctx context.Context) (Status, error) {
	select {
	case <-j.done:
		j.mu.Lock()
		defer j.mu.Unlock()
		return j.status, j.err
	case <-ctx.Done():
		return j.Status(), ctx.Err()
	}
}

// markRunning transitions QUEUED to RUNNING. Returns false if the job
// already settled (a queued job cancelled before its slot came up).
func (j *Job) markRunning(cancel context.CancelFunc) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusQueued {
		return false
	}
	j.status = StatusRunning
	j.startedAt = time.Now()
	j.cancel = cancel
	return true
}

// settle moves the job to a terminal state exactly once.
func (j *Job) settle(status Status, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = status
	j.err = err
	j.finishedAt = time.Now()
	if j.cancel != nil {
		j.cancel()
	}
	close(j.done)
}

// requestCancel raises the job's cancel signal. Queued jobs settle
// immediately; running jobs settle when their worker observes the
// signal. Idempotent; terminal jobs are untouched.
func (j *Job) requestCancel() {
	j.mu.Lock()
	switch {
	case j.status == StatusQueued:
		j.status = StatusCancelled
		j.finishedAt = time.Now()
		close(j.done)
		j.mu.Unlock()
	case j.status == StatusRunning:
		cancel := j.cancel
		j.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	default:
		j.mu.Unlock()
	}
}

// updateProgress folds a scraper progress event into the counters.
func (j *Job) updateProgress(p scraper.Progress, documentsAdded int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress.PagesScraped = p.PagesScraped
	j.progress.MaxPages = p.MaxPages
	j.progress.CurrentURL = p.CurrentURL
	j.progress.Depth = p.Depth
	j.progress.DocumentsIndexed += documentsAdded
}
