package queue

import (
	"context"
	"log/slog"
	"time"
)

// Handler processes one claimed job. A non-nil error triggers a retry with
// backoff until the attempt budget is spent.
type Handler func(ctx context.Context, job Job) error

// FailureHandler is called once a job's retries are exhausted.
type FailureHandler func(ctx context.Context, job Job, lastErr error)

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithPollInterval sets how often the worker checks for due jobs.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) { w.pollInterval = d }
}

// WithMaxRetries bounds delivery attempts per job.
func WithMaxRetries(n int) WorkerOption {
	return func(w *Worker) { w.maxRetries = n }
}

// WithBackoff sets the base delay between retries; attempt n waits
// base × 2^(n−1).
func WithBackoff(base time.Duration) WorkerOption {
	return func(w *Worker) { w.backoffBase = base }
}

// Worker polls the queue and dispatches due jobs. Run one per process.
type Worker struct {
	queue     *Queue
	handler   Handler
	onFailure FailureHandler
	log       *slog.Logger

	pollInterval time.Duration
	maxRetries   int
	backoffBase  time.Duration
	batchSize    int
}

// NewWorker creates a Worker delivering claimed jobs to handler. onFailure
// may be nil.
func NewWorker(q *Queue, handler Handler, onFailure FailureHandler, log *slog.Logger, opts ...WorkerOption) *Worker {
	if log == nil {
		log = slog.Default()
	}
	w := &Worker{
		queue:        q,
		handler:      handler,
		onFailure:    onFailure,
		log:          log,
		pollInterval: 5 * time.Second,
		maxRetries:   3,
		backoffBase:  30 * time.Second,
		batchSize:    32,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run polls until ctx is cancelled. Always returns ctx.Err().
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick claims and processes one batch of due jobs. Exposed for tests and for
// a final drain during shutdown.
func (w *Worker) Tick(ctx context.Context) {
	jobs, err := w.queue.claimDue(ctx, w.batchSize)
	if err != nil {
		w.log.Error("claiming due jobs failed", "error", err)
		return
	}
	for _, job := range jobs {
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	err := w.handler(ctx, job)
	if err == nil {
		return
	}

	job.Attempts++
	w.log.Warn("job delivery failed",
		"job", job.ID,
		"type", job.Type,
		"attempt", job.Attempts,
		"error", err,
	)

	if job.Attempts >= w.maxRetries {
		if w.onFailure != nil {
			w.onFailure(ctx, job, err)
		}
		return
	}

	delay := w.backoffBase << (job.Attempts - 1)
	if _, qerr := w.queue.Enqueue(ctx, job, delay); qerr != nil {
		w.log.Error("re-enqueue for retry failed", "job", job.ID, "error", qerr)
		if w.onFailure != nil {
			w.onFailure(ctx, job, err)
		}
	}
}
