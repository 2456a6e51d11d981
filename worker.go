package fbq

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Pop asks the service for an unclaimed job on behalf of the owner. When a
// job is available the service answers 200 and the ZIP archive is streamed
// into the sink; Pop returns true. A 204 answer means nothing is available
// and Pop returns false without touching the sink.
func (c *Client) Pop(ctx context.Context, owner string, sink io.Writer) (bool, error) {
	if err := validateOwner(owner); err != nil {
		return false, err
	}
	if sink == nil {
		return false, fmt.Errorf("fbq: sink is required")
	}
	defer c.transport.timed(ctx, "pop")()

	out, err := c.transport.execute(ctx, requestSpec{
		method:   http.MethodGet,
		segments: []string{"pop"},
		query:    url.Values{"owner": []string{owner}},
		accept:   []int{http.StatusOK, http.StatusNoContent},
		sink:     sink,
	})
	if err != nil {
		return false, err
	}
	return out.status == http.StatusOK, nil
}

// Finish uploads a ZIP archive of results for a previously popped job,
// marking it finished on the service.
func (c *Client) Finish(ctx context.Context, id int64, path string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateFile(path); err != nil {
		return err
	}
	defer c.transport.timed(ctx, "finish")()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("fbq: read %q: %w", path, err)
	}

	_, err = c.transport.execute(ctx, requestSpec{
		method:      http.MethodPut,
		segments:    []string{"finish"},
		query:       url.Values{"id": []string{strconv.FormatInt(id, 10)}},
		body:        data,
		contentType: contentTypeArchive,
	})
	return err
}

// jobResultRef is a mutable container for a job's result archive path,
// shared across JobContext copies so that SetResult works through the
// middleware chain.
type jobResultRef struct {
	path string
}

// JobContext provides execution-scoped state to job handlers.
type JobContext struct {
	// ID is the job id, read from the id.txt entry of the popped archive.
	ID int64

	// Owner is the identity under which the job was popped.
	Owner string

	// ArchivePath is the local path of the popped ZIP archive.
	ArchivePath string

	// ctx is the underlying context (cancelled on worker shutdown).
	ctx context.Context

	// resultRef holds a shared reference to the result archive path so
	// that SetResult works even when JobContext is passed by value.
	resultRef *jobResultRef
}

// Context returns the context.Context for this job execution.
// The context is cancelled when the worker shuts down.
func (jc JobContext) Context() context.Context {
	return jc.ctx
}

// SetResult names the local ZIP archive to upload when the handler returns
// without error. When no result is set, the popped archive is uploaded
// back unchanged.
func (jc JobContext) SetResult(path string) {
	if jc.resultRef != nil {
		jc.resultRef.path = path
	}
}

// NewJobContextForTest creates a JobContext suitable for use in tests.
// It initialises the internal context to context.Background().
// This is intended only for testing middleware or handlers outside a Worker.
func NewJobContextForTest(id int64, archivePath string) JobContext {
	return JobContext{
		ID:          id,
		ArchivePath: archivePath,
		ctx:         context.Background(),
		resultRef:   &jobResultRef{},
	}
}

// Worker repeatedly pops jobs from an FBQ service, runs them through a
// handler, and uploads the result archives. It supports configurable
// concurrency, middleware, and graceful shutdown.
type Worker struct {
	client *Client
	config workerConfig

	handler   HandlerFunc
	handlerMu sync.RWMutex
	pipeline  pipeline

	activeCount atomic.Int64

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewWorker creates a new FBQ worker connected to the given host.
//
// Example:
//
//	worker, err := fbq.NewWorker("q.example.com",
//	    fbq.WithOwner("builder-7"),
//	    fbq.WithConcurrency(2),
//	    fbq.WithClientOptions(fbq.WithToken(token)),
//	)
func NewWorker(host string, opts ...WorkerOption) (*Worker, error) {
	cfg := resolveWorkerConfig(opts)
	if cfg.owner == "" {
		cfg.owner = "fbq-" + uuid.NewString()
	}

	client, err := NewClient(host, cfg.client...)
	if err != nil {
		return nil, err
	}

	return &Worker{
		client:  client,
		config:  cfg,
		stopped: make(chan struct{}),
	}, nil
}

// Owner returns the owner identity the worker presents to the service.
func (w *Worker) Owner() string {
	return w.config.owner
}

// Handle sets the handler invoked for every popped job.
func (w *Worker) Handle(handler HandlerFunc) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handler = handler
}

// Use appends execution middleware under a generated name. Middleware runs
// in registration order, first registered outermost.
func (w *Worker) Use(fn MiddlewareFunc) {
	w.pipeline.add(w.pipeline.anonymous(), fn)
}

// UseNamed registers execution middleware under the given name. When the
// name is already taken, the new middleware replaces the old one in its
// slot, keeping the pipeline order.
func (w *Worker) UseNamed(name string, fn MiddlewareFunc) {
	w.pipeline.add(name, fn)
}

// RemoveMiddleware drops the named middleware from the pipeline and reports
// whether it was present.
func (w *Worker) RemoveMiddleware(name string) bool {
	return w.pipeline.remove(name)
}

// Start begins popping and processing jobs. It blocks until the context is
// cancelled, then waits up to the grace period for active jobs to finish.
//
// Example:
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
//	defer cancel()
//	if err := worker.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
func (w *Worker) Start(ctx context.Context) error {
	w.handlerMu.RLock()
	handler := w.handler
	w.handlerMu.RUnlock()
	if handler == nil {
		return fmt.Errorf("fbq: no handler set")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.popLoop(ctx)
	}()

	<-ctx.Done()

	graceDone := make(chan struct{})
	go func() {
		w.waitForActiveJobs()
		close(graceDone)
	}()

	select {
	case <-graceDone:
		// All jobs completed within the grace period.
	case <-time.After(w.config.gracePeriod):
		// Grace period expired. Unfinished jobs stay claimed on the
		// service until it reclaims them.
	}

	w.stopOnce.Do(func() {
		close(w.stopped)
	})

	wg.Wait()
	return nil
}

// popLoop is the main loop that pops and dispatches jobs.
func (w *Worker) popLoop(ctx context.Context) {
	sem := make(chan struct{}, w.config.concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopped:
			return
		default:
		}

		if w.activeCount.Load() >= int64(w.config.concurrency) {
			if !w.sleep(ctx, w.config.pollInterval) {
				return
			}
			continue
		}

		job, ok, err := w.popOne(ctx)
		if err != nil {
			w.logError(ctx, "pop failed", err)
			if !w.sleep(ctx, w.config.pollInterval) {
				return
			}
			continue
		}
		if !ok {
			if !w.sleep(ctx, w.config.pollInterval) {
				return
			}
			continue
		}

		sem <- struct{}{}
		w.activeCount.Add(1)
		go func() {
			defer func() {
				<-sem
				w.activeCount.Add(-1)
			}()
			w.processJob(ctx, job)
		}()
	}
}

// poppedJob is one claimed job staged on local disk.
type poppedJob struct {
	id      int64
	archive string
}

// popOne asks the service for one job and stages its archive under the
// work directory.
func (w *Worker) popOne(ctx context.Context) (poppedJob, bool, error) {
	f, err := os.CreateTemp(w.config.workDir, "fbq-job-*.zip")
	if err != nil {
		return poppedJob{}, false, fmt.Errorf("fbq: stage archive: %w", err)
	}

	ok, err := w.client.Pop(ctx, w.config.owner, f)
	cerr := f.Close()
	if err != nil {
		os.Remove(f.Name())
		return poppedJob{}, false, err
	}
	if cerr != nil {
		os.Remove(f.Name())
		return poppedJob{}, false, fmt.Errorf("fbq: stage archive: %w", cerr)
	}
	if !ok {
		os.Remove(f.Name())
		return poppedJob{}, false, nil
	}

	id, err := jobIDFromArchive(f.Name())
	if err != nil {
		os.Remove(f.Name())
		return poppedJob{}, false, err
	}
	return poppedJob{id: id, archive: f.Name()}, true, nil
}

// processJob executes a single job through the middleware chain and handler,
// then uploads the result. Failed jobs are left unfinished for the service
// to reclaim.
func (w *Worker) processJob(ctx context.Context, job poppedJob) {
	defer os.Remove(job.archive)

	w.handlerMu.RLock()
	handler := w.handler
	w.handlerMu.RUnlock()

	ref := &jobResultRef{}
	jctx := JobContext{
		ID:          job.id,
		Owner:       w.config.owner,
		ArchivePath: job.archive,
		ctx:         ctx,
		resultRef:   ref,
	}

	wrapped := w.pipeline.wrap(handler)
	if err := wrapped(jctx); err != nil {
		w.logError(ctx, "job failed", err)
		return
	}

	result := ref.path
	if result == "" {
		result = job.archive
	}
	if err := w.client.Finish(ctx, job.id, result); err != nil {
		w.logError(ctx, "finish failed", err)
	}
}

// sleep waits for the poll interval; it returns false when the worker
// should stop.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-w.stopped:
		return false
	case <-timer.C:
		return true
	}
}

// waitForActiveJobs blocks until all active jobs have completed.
func (w *Worker) waitForActiveJobs() {
	for w.activeCount.Load() > 0 {
		time.Sleep(100 * time.Millisecond)
	}
}

func (w *Worker) logError(ctx context.Context, msg string, err error) {
	if w.config.logger == nil {
		return
	}
	w.config.logger.LogAttrs(ctx, slog.LevelError, msg,
		slog.String("owner", w.config.owner),
		slog.String("error", err.Error()),
	)
}

// jobIDFromArchive reads the job id from the id.txt entry of a popped
// ZIP archive.
func jobIDFromArchive(path string) (int64, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("fbq: open archive %q: %w", path, err)
	}
	defer zr.Close()
	return jobIDFromZip(&zr.Reader)
}

// jobIDFromZip finds the id.txt entry and parses the decimal id in it.
func jobIDFromZip(zr *zip.Reader) (int64, error) {
	for _, f := range zr.File {
		if f.Name != "id.txt" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return 0, fmt.Errorf("fbq: read id.txt: %w", err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, 64))
		rc.Close()
		if err != nil {
			return 0, fmt.Errorf("fbq: read id.txt: %w", err)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("fbq: parse id.txt %q: %w", string(data), err)
		}
		if id <= 0 {
			return 0, fmt.Errorf("fbq: id.txt holds a non-positive id %d", id)
		}
		return id, nil
	}
	return 0, fmt.Errorf("fbq: archive has no id.txt entry")
}
