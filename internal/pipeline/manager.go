package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/docdex/docdex/internal/errors"
	"github.com/docdex/docdex/internal/scraper"
	"github.com/docdex/docdex/internal/store"
)

// DefaultConcurrency is how many jobs run simultaneously.
const DefaultConcurrency = 3

// queueCapacity bounds enqueued-but-unscheduled jobs.
const queueCapacity = 1024

// ManagerConfig wires the pipeline manager.
type ManagerConfig struct {
	Registry    *scraper.Registry
	Store       *store.Store
	Concurrency int
	Logger      *slog.Logger
}

// Manager owns the in-memory job table. It deduplicates jobs per
// (library, version), runs at most Concurrency jobs at once and hands
// each RUNNING job to a worker.
type Manager struct {
	worker      *worker
	concurrency int
	logger      *slog.Logger

	mu   sync.Mutex
	jobs map[string]*Job

	queue   chan *Job
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewManager creates a stopped manager; call Start before enqueueing.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		worker:      newWorker(cfg.Registry, cfg.Store, cfg.Logger),
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
		jobs:        make(map[string]*Job),
		queue:       make(chan *Job, queueCapacity),
	}
}

// Start launches the scheduler loop.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.baseCtx, m.stop = context.WithCancel(context.Background())

	m.wg.Add(1)
	go m.schedule()
}

// Stop cancels every active job and waits for workers to drain, bounded
// by ctx.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	stop := m.stop
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()

	for _, j := range jobs {
		j.requestCancel()
	}
	stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// jobKey identifies the dedup partition; the empty version shares a
// slot with itself only.
func jobKey(library, version string) string {
	return library + "\x00" + version
}

// Enqueue validates options and queues a job. An active job for the
// same (library, version) is cancelled first; the ids always differ.
func (m *Manager) Enqueue(opts scraper.Options) (*Job, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	library := strings.ToLower(strings.TrimSpace(opts.Library))
	version := strings.ToLower(strings.TrimSpace(opts.Version))
	opts.Library = library
	opts.Version = version

	job := newJob(library, version, opts)

	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil, errors.Newf(errors.CodeBusy, "pipeline manager is not running")
	}
	var superseded *Job
	key := jobKey(library, version)
	for _, existing := range m.jobs {
		if jobKey(existing.Library, existing.Version) == key && !existing.Status().Terminal() {
			superseded = existing
			break
		}
	}
	m.jobs[job.ID] = job
	m.mu.Unlock()

	if superseded != nil {
		m.logger.Info("superseding active job",
			slog.String("old_job_id", superseded.ID),
			slog.String("new_job_id", job.ID),
			slog.String("library", library),
			slog.String("version", version))
		superseded.requestCancel()
	}

	select {
	case m.queue <- job:
	default:
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return nil, errors.Newf(errors.CodeBusy, "job queue is full")
	}

	m.logger.Info("job enqueued",
		slog.String("job_id", job.ID),
		slog.String("library", library),
		slog.String("version", version),
		slog.String("url", opts.URL))
	return job, nil
}

// schedule pulls jobs FIFO and runs them, at most concurrency at once.
func (m *Manager) schedule() {
	defer m.wg.Done()
	sem := semaphore.NewWeighted(int64(m.concurrency))

	for {
		select {
		case <-m.baseCtx.Done():
			return
		case job := <-m.queue:
			if err := sem.Acquire(m.baseCtx, 1); err != nil {
				return
			}

			jobCtx, cancel := context.WithCancel(m.baseCtx)
			if !job.markRunning(cancel) {
				// Cancelled while queued.
				cancel()
				sem.Release(1)
				continue
			}

			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				defer sem.Release(1)
				m.runJob(jobCtx, job)
			}()
		}
	}
}

func (m *Manager) runJob(ctx context.Context, job *Job) {
	err := m.worker.run(ctx, job)
	switch {
	case err == nil:
		job.settle(StatusCompleted, nil)
	case ctx.Err() != nil:
		job.settle(StatusCancelled, nil)
	default:
		job.settle(StatusFailed, err)
	}

	snap := job.Snapshot()
	m.logger.Info("job finished",
		slog.String("job_id", job.ID),
		slog.String("status", string(snap.Status)),
		slog.Int("pages", snap.Progress.PagesScraped),
		slog.Int("documents", snap.Progress.DocumentsIndexed))
}

// GetJob returns a job by id.
func (m *Manager) GetJob(id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, errors.Newf(errors.CodeJobNotFound, "no job with id %s", id)
	}
	return job, nil
}

// ListJobs returns snapshots of every known job, oldest first.
func (m *Manager) ListJobs() []Snapshot {
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()

	snaps := make([]Snapshot, 0, len(jobs))
	for _, j := range jobs {
		snaps = append(snaps, j.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].CreatedAt.Before(snaps[j].CreatedAt) })
	return snaps
}

// CancelJob raises the job's cancel signal. Cancelling a terminal job
// is a no-op.
func (m *Manager) CancelJob(id string) error {
	job, err := m.GetJob(id)
	if err != nil {
		return err
	}
	job.requestCancel()
	return nil
}

// WaitForJob blocks until the job settles or ctx expires. A FAILED job
// is not an error here; its cause is in the snapshot.
func (m *Manager) WaitForJob(ctx context.Context, id string) (Snapshot, error) {
	job, err := m.GetJob(id)
	if err != nil {
		return Snapshot{}, err
	}
	select {
	case <-job.Done():
		return job.Snapshot(), nil
	case <-ctx.Done():
		return job.Snapshot(), ctx.Err()
	}
}
