package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docdex/docdex/internal/embed"
	"github.com/docdex/docdex/internal/errors"
	"github.com/docdex/docdex/internal/logging"
	"github.com/docdex/docdex/internal/scraper"
	"github.com/docdex/docdex/internal/store"
)

func newTestManager(t *testing.T, concurrency int) (*Manager, *store.Store) {
	t.Helper()
	logger := logging.Discard()

	st, err := store.New(context.Background(), store.Config{
		Embedder: embed.NewStaticEmbedder(),
		Logger:   logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	registry, err := scraper.NewRegistry(scraper.RegistryConfig{Logger: logger})
	require.NoError(t, err)

	m := NewManager(ManagerConfig{
		Registry:    registry,
		Store:       st,
		Concurrency: concurrency,
		Logger:      logger,
	})
	m.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	})
	return m, st
}

func page(title, body string) string {
	return fmt.Sprintf("<html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>",
		title, title, body)
}

// newDocsServer serves a tiny two page documentation site.
func newDocsServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/docs/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs/":
			fmt.Fprint(w, page("Guide", `Routing overview. <a href="/docs/install">Install</a>`))
		case "/docs/install":
			fmt.Fprint(w, page("Install", "Installation instructions for the router."))
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newSlowServer blocks every request until gate closes, or until the
// client goes away.
func newSlowServer(t *testing.T, gate <-chan struct{}, started chan<- string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if started != nil {
			select {
			case started <- r.URL.Path:
			default:
			}
		}
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
		fmt.Fprint(w, page("Slow", "Eventually served."))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testOptions(url, library, version string) scraper.Options {
	opts := scraper.DefaultOptions()
	opts.URL = url
	opts.Library = library
	opts.Version = version
	opts.MaxPages = 5
	opts.MaxConcurrency = 1
	return opts
}

func TestManager_JobCompletesAndIndexes(t *testing.T) {
	m, st := newTestManager(t, 2)
	srv := newDocsServer(t)

	job, err := m.Enqueue(testOptions(srv.URL+"/docs/", "Router", "1.0.0"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := m.WaitForJob(ctx, job.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Empty(t, snap.Error)
	assert.Equal(t, 2, snap.Progress.PagesScraped)
	assert.GreaterOrEqual(t, snap.Progress.DocumentsIndexed, 2)
	assert.False(t, snap.StartedAt.IsZero())
	assert.False(t, snap.FinishedAt.IsZero())

	// Library and version are lowercased on the way in.
	libs, err := st.QueryLibraryVersions(ctx)
	require.NoError(t, err)
	require.Contains(t, libs, "router")
	require.Len(t, libs["router"], 1)
	assert.Equal(t, "1.0.0", libs["router"][0].Version)

	chunks, err := st.FindByContent(ctx, "router", "1.0.0", "routing", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestManager_EnqueueValidatesOptions(t *testing.T) {
	m, _ := newTestManager(t, 1)

	_, err := m.Enqueue(scraper.Options{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidURL, errors.GetCode(err))

	opts := testOptions("https://example.com/docs", "", "")
	_, err = m.Enqueue(opts)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidOptions, errors.GetCode(err))
}

func TestManager_EnqueueSupersedesActiveJob(t *testing.T) {
	m, _ := newTestManager(t, 2)

	gate := make(chan struct{})
	defer close(gate)
	started := make(chan string, 1)
	srv := newSlowServer(t, gate, started)

	first, err := m.Enqueue(testOptions(srv.URL+"/docs", "React", "18.0"))
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first job never reached the server")
	}

	// Same library and version: the running job is cancelled before the
	// replacement enters the queue.
	second, err := m.Enqueue(testOptions(srv.URL+"/docs", "react", "18.0"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	firstSnap, err := m.WaitForJob(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, firstSnap.Status)

	// The replacement is free to run once the server unblocks.
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("second job never reached the server")
	}
}

func TestManager_DifferentVersionsDoNotSupersede(t *testing.T) {
	m, _ := newTestManager(t, 2)

	gate := make(chan struct{})
	defer close(gate)
	srv := newSlowServer(t, gate, nil)

	first, err := m.Enqueue(testOptions(srv.URL+"/docs", "react", "17.0"))
	require.NoError(t, err)
	second, err := m.Enqueue(testOptions(srv.URL+"/docs", "react", "18.0"))
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, first.Status().Terminal())
	assert.False(t, second.Status().Terminal())
}

func TestManager_CancelQueuedJob(t *testing.T) {
	m, _ := newTestManager(t, 1)

	gate := make(chan struct{})
	defer close(gate)
	started := make(chan string, 1)
	srv := newSlowServer(t, gate, started)

	blocker, err := m.Enqueue(testOptions(srv.URL+"/docs", "alpha", ""))
	require.NoError(t, err)
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("blocker never started")
	}

	queued, err := m.Enqueue(testOptions(srv.URL+"/docs", "beta", ""))
	require.NoError(t, err)
	require.Equal(t, StatusQueued, queued.Status())

	// A queued job settles the moment it is cancelled; it never runs.
	require.NoError(t, m.CancelJob(queued.ID))
	assert.Equal(t, StatusCancelled, queued.Status())

	select {
	case <-queued.Done():
	case <-time.After(time.Second):
		t.Fatal("cancelled queued job did not settle")
	}

	require.NoError(t, m.CancelJob(blocker.ID))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := m.WaitForJob(ctx, blocker.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, snap.Status)
}

func TestManager_CancelIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t, 1)
	srv := newDocsServer(t)

	job, err := m.Enqueue(testOptions(srv.URL+"/docs/", "vue", "3.0"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := m.WaitForJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, snap.Status)

	// Cancelling a terminal job leaves it untouched.
	require.NoError(t, m.CancelJob(job.ID))
	require.NoError(t, m.CancelJob(job.ID))
	assert.Equal(t, StatusCompleted, job.Status())
}

func TestManager_ConcurrencyBound(t *testing.T) {
	m, _ := newTestManager(t, 1)

	var inFlight, maxInFlight atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := inFlight.Add(1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		fmt.Fprint(w, page("Page", "Body text."))
	}))
	t.Cleanup(srv.Close)

	var jobs []*Job
	for i := 0; i < 3; i++ {
		job, err := m.Enqueue(testOptions(srv.URL+"/docs", fmt.Sprintf("lib%d", i), ""))
		require.NoError(t, err)
		jobs = append(jobs, job)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, job := range jobs {
		snap, err := m.WaitForJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, snap.Status)
	}

	// One manager slot and MaxConcurrency 1 per job means one request
	// in flight at any time.
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestManager_ListJobsOldestFirst(t *testing.T) {
	m, _ := newTestManager(t, 1)
	srv := newDocsServer(t)

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := m.Enqueue(testOptions(srv.URL+"/docs/", fmt.Sprintf("lib%d", i), ""))
		require.NoError(t, err)
		ids = append(ids, job.ID)
		time.Sleep(2 * time.Millisecond)
	}

	snaps := m.ListJobs()
	require.Len(t, snaps, 3)
	for i, snap := range snaps {
		assert.Equal(t, ids[i], snap.ID)
	}
}

func TestManager_GetJobNotFound(t *testing.T) {
	m, _ := newTestManager(t, 1)

	_, err := m.GetJob("no-such-job")
	require.Error(t, err)
	assert.Equal(t, errors.CodeJobNotFound, errors.GetCode(err))

	err = m.CancelJob("no-such-job")
	require.Error(t, err)
	assert.Equal(t, errors.CodeJobNotFound, errors.GetCode(err))
}

func TestManager_WaitForJobHonorsContext(t *testing.T) {
	m, _ := newTestManager(t, 1)

	gate := make(chan struct{})
	defer close(gate)
	srv := newSlowServer(t, gate, nil)

	job, err := m.Enqueue(testOptions(srv.URL+"/docs", "slowlib", ""))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = m.WaitForJob(ctx, job.ID)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_FailedJobCarriesError(t *testing.T) {
	m, _ := newTestManager(t, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	opts := testOptions(srv.URL+"/docs", "broken", "")
	opts.IgnoreErrors = false
	job, err := m.Enqueue(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := m.WaitForJob(ctx, job.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, snap.Status)
	assert.NotEmpty(t, snap.Error)
}

func TestJob_SettleIsSingleShot(t *testing.T) {
	j := newJob("lib", "1.0", scraper.DefaultOptions())
	require.True(t, j.markRunning(func() {}))

	j.settle(StatusCompleted, nil)
	j.settle(StatusFailed, fmt.Errorf("late error"))

	assert.Equal(t, StatusCompleted, j.Status())
	assert.NoError(t, j.Err())
}

func TestJob_MarkRunningAfterCancelFails(t *testing.T) {
	j := newJob("lib", "1.0", scraper.DefaultOptions())
	j.requestCancel()

	assert.False(t, j.markRunning(func() {}))
	assert.Equal(t, StatusCancelled, j.Status())
}

func TestJob_ProgressAccumulatesDocuments(t *testing.T) {
	j := newJob("lib", "", scraper.DefaultOptions())

	j.updateProgress(scraper.Progress{PagesScraped: 1, MaxPages: 10, CurrentURL: "https://a", Depth: 0}, 3)
	j.updateProgress(scraper.Progress{PagesScraped: 2, MaxPages: 10, CurrentURL: "https://b", Depth: 1}, 2)

	snap := j.Snapshot()
	assert.Equal(t, 2, snap.Progress.PagesScraped)
	assert.Equal(t, 5, snap.Progress.DocumentsIndexed)
	assert.Equal(t, "https://b", snap.Progress.CurrentURL)
}

func TestManager_StopCancelsActiveJobs(t *testing.T) {
	logger := logging.Discard()
	st, err := store.New(context.Background(), store.Config{
		Embedder: embed.NewStaticEmbedder(),
		Logger:   logger,
	})
	require.NoError(t, err)
	defer st.Close()

	registry, err := scraper.NewRegistry(scraper.RegistryConfig{Logger: logger})
	require.NoError(t, err)

	m := NewManager(ManagerConfig{Registry: registry, Store: st, Logger: logger})
	m.Start()

	gate := make(chan struct{})
	defer close(gate)
	started := make(chan string, 1)
	srv := newSlowServer(t, gate, started)

	job, err := m.Enqueue(testOptions(srv.URL+"/docs", "stopping", ""))
	require.NoError(t, err)
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))
	assert.Equal(t, StatusCancelled, job.Status())

	_, err = m.Enqueue(testOptions(srv.URL+"/docs", "after-stop", ""))
	require.Error(t, err)
}

func TestManager_ParallelEnqueueIsSafe(t *testing.T) {
	m, _ := newTestManager(t, 3)
	srv := newDocsServer(t)

	var wg sync.WaitGroup
	jobCh := make(chan *Job, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, err := m.Enqueue(testOptions(srv.URL+"/docs/", fmt.Sprintf("par%d", i), ""))
			if err == nil {
				jobCh <- job
			}
		}(i)
	}
	wg.Wait()
	close(jobCh)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	for job := range jobCh {
		snap, err := m.WaitForJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, snap.Status)
	}
}
