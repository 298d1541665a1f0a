package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProcessFunc handles one discovered receipt file.
type ProcessFunc func(ctx context.Context, path string) error

// Job is one receipt file awaiting processing.
type Job struct {
	Path        string
	SubmittedAt time.Time
	TraceID     string
}

// Queue fans discovered files out to a fixed worker pool. Enqueue blocks
// when the buffer is full so the watcher applies backpressure instead of
// dropping files.
type Queue struct {
	process ProcessFunc
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(process ProcessFunc, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		process: process,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("ingest.worker.started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					err := q.process(ctx, job.Path)
					cancel()

					if err != nil {
						q.logger.Error("ingest.worker.file_failed",
							"worker_id", workerID, "path", job.Path, "error", err)
					} else {
						q.logger.Info("ingest.worker.file_ok",
							"worker_id", workerID, "path", job.Path,
							"queued_ms", time.Since(job.SubmittedAt).Milliseconds())
					}
				}

				q.logger.Info("ingest.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue holds only a read lock, so a sender blocked on a full buffer does
// not stall other senders; Shutdown's close waits for in-flight sends.
func (q *Queue) Enqueue(_ context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("ingest.queue.rejected_closed", "path", job.Path)
		return nil
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
	default:
		q.logger.Warn("ingest.queue.backpressure", "path", job.Path)
		q.ch <- job
	}
	return nil
}

// Shutdown stops accepting work and waits for in-flight jobs, bounded by ctx.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("ingest.queue.shutdown_interrupted")
	case <-done:
		q.logger.Info("ingest.queue.drained")
	}
}
