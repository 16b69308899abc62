// Package jobqueue is an in-process task queue with a worker pool and
// bounded retries. Delivery is at-least-once: handlers must be idempotent.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/azmoonhub/azmoon/internal/pkg/logger"
)

// Job is one unit of work: a named task over a single entity ID.
type Job struct {
	ID   uuid.UUID
	Name string
	Arg  int64
}

// Handler executes one job. A returned error triggers a retry unless it is
// wrapped with Permanent.
type Handler func(ctx context.Context, job Job) error

// PermanentError marks a failure that must not be retried, such as a
// configuration error the retry loop can never fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the queue gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// ErrQueueClosed is returned by Schedule after Close.
var ErrQueueClosed = errors.New("job queue closed")

// ErrQueueFull is returned by Schedule when the buffer is saturated.
var ErrQueueFull = errors.New("job queue full")

// Options tunes the queue. Zero values fall back to defaults.
type Options struct {
	Workers    int
	MaxRetries int
	Backoff    time.Duration
	QueueSize  int
}

// Queue runs jobs on a fixed worker pool. Failed jobs are retried in place
// with a fixed backoff up to MaxRetries times; exhausted jobs are logged as
// permanent failures, never dropped silently.
type Queue struct {
	handler    Handler
	jobs       chan Job
	maxRetries int
	backoff    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a queue and starts its workers.
func New(handler Handler, opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 5 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		handler:    handler,
		jobs:       make(chan Job, opts.QueueSize),
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		ctx:        ctx,
		cancel:     cancel,
	}

	q.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go q.worker()
	}
	return q
}

// Schedule enqueues a job without blocking. It fails fast when the queue is
// closed or full; callers recover lost work through their own sweep.
func (q *Queue) Schedule(name string, arg int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	job := Job{ID: uuid.New(), Name: name, Arg: arg}
	select {
	case q.jobs <- job:
		logger.Debug().Str("jobID", job.ID.String()).Str("job", name).Int64("arg", arg).Msg("Job scheduled")
		return nil
	default:
		return fmt.Errorf("scheduling %s for %d: %w", name, arg, ErrQueueFull)
	}
}

// Close stops intake and drains in-flight jobs. When ctx expires first the
// remaining work is abandoned and recovered by the next startup sweep.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		q.run(job)
	}
}

func (q *Queue) run(job Job) {
	var err error
	for attempt := 0; ; attempt++ {
		err = q.handler(q.ctx, job)
		if err == nil {
			return
		}

		var perm *PermanentError
		if errors.As(err, &perm) {
			logger.Error().Err(perm.Err).
				Str("jobID", job.ID.String()).Str("job", job.Name).Int64("arg", job.Arg).
				Msg("Job failed permanently")
			return
		}
		if attempt >= q.maxRetries {
			logger.Error().Err(err).
				Str("jobID", job.ID.String()).Str("job", job.Name).Int64("arg", job.Arg).
				Int("retries", attempt).
				Msg("Job failed after exhausting retries")
			return
		}

		logger.Warn().Err(err).
			Str("jobID", job.ID.String()).Str("job", job.Name).Int64("arg", job.Arg).
			Int("attempt", attempt+1).
			Msg("Job failed, retrying")

		select {
		case <-time.After(q.backoff):
		case <-q.ctx.Done():
			logger.Error().
				Str("jobID", job.ID.String()).Str("job", job.Name).Int64("arg", job.Arg).
				Msg("Job abandoned during shutdown")
			return
		}
	}
}
