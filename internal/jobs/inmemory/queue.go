package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/align/internal/jobs"
)

// Options tunes a Queue.
type Options struct {
	// BufferSize is how many jobs can wait before PublishSync blocks.
	BufferSize int
	// Workers is the number of concurrent consumers.
	Workers int
	// MaxRetries applies to jobs published without their own limit.
	MaxRetries int
	// Backoff returns the delay before retry n (1-based).
	Backoff func(n int) time.Duration
	Logger  zerolog.Logger
}

func linearBackoff(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// It admits one sync at a time: the slot is held from PublishSync until the
// job completes or fails for good, retries included.
type Queue struct {
	jobChan    chan *jobs.SyncJob
	closeChan  chan struct{}
	wg         sync.WaitGroup
	mu         sync.RWMutex
	store      jobs.JobStore
	closed     bool
	active     bool
	workers    int
	maxRetries int
	backoff    func(int) time.Duration
	log        zerolog.Logger
}

// NewQueue creates a new in-memory job queue.
func NewQueue(store jobs.JobStore, opts Options) *Queue {
	if opts.BufferSize < 1 {
		opts.BufferSize = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Backoff == nil {
		opts.Backoff = linearBackoff
	}
	return &Queue{
		jobChan:    make(chan *jobs.SyncJob, opts.BufferSize),
		closeChan:  make(chan struct{}),
		store:      store,
		workers:    opts.Workers,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		log:        opts.Logger,
	}
}

// PublishSync implements the Publisher interface.
func (q *Queue) PublishSync(ctx context.Context, job *jobs.SyncJob) error {
	if err := q.acquire(); err != nil {
		return err
	}
	if err := q.enqueue(ctx, job); err != nil {
		q.release()
		return err
	}
	return nil
}

// acquire takes the single sync slot.
func (q *Queue) acquire() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}
	if q.active {
		return jobs.ErrSyncQueued
	}
	q.active = true
	return nil
}

func (q *Queue) release() {
	q.mu.Lock()
	q.active = false
	q.mu.Unlock()
}

// enqueue hands job to the workers. The caller holds the sync slot.
func (q *Queue) enqueue(ctx context.Context, job *jobs.SyncJob) error {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.maxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements the Consumer interface. It returns once the workers are
// running.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}

			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job with retry logic.
func (q *Queue) processJob(ctx context.Context, job *jobs.SyncJob, handler jobs.JobHandler) {
	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	err := handler(ctx, job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	retry := false
	if err != nil {
		job.Error = err.Error()

		if !jobs.IsPermanent(err) && job.RetryCount < job.MaxRetries {
			job.RetryCount++
			job.Status = jobs.JobStatusRetrying
			retry = true
		} else {
			job.Status = jobs.JobStatusFailed
			q.log.Error().Err(err).Str("job_id", job.JobID).Msg("Job failed")
		}
	} else {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
	}

	// The slot is free by the time the final status is visible.
	if !retry {
		q.release()
	}

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	if !retry {
		return
	}

	backoff := q.backoff(job.RetryCount)
	q.log.Warn().Err(err).Str("job_id", job.JobID).Int("retry", job.RetryCount).Dur("backoff", backoff).Msg("Job failed, scheduling retry")

	next := *job
	next.Status = jobs.JobStatusPending
	next.StartedAt = nil
	next.CompletedAt = nil
	time.AfterFunc(backoff, func() {
		if err := q.enqueue(context.WithoutCancel(ctx), &next); err != nil {
			q.release()
			q.log.Error().Err(err).Str("job_id", next.JobID).Msg("Failed to re-enqueue job")
		}
	})
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
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
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
