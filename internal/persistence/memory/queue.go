package memory

import (
	"context"
	"errors"
	"sync"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/events"
)

// ErrQueueFull is returned by Enqueue when the queue buffer is exhausted.
var ErrQueueFull = errors.New("memory queue full")

// Queue is an in-process job queue with a completion log. It stands in for the
// outbox and Kafka when running on the memory store.
type Queue struct {
	jobs chan domain.SyncJob

	mu        sync.Mutex
	completed []events.SyncCompleted
	seen      map[string]struct{}
}

var _ domain.JobQueue = (*Queue)(nil)

// NewQueue returns a queue buffering up to size jobs.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 64
	}
	return &Queue{
		jobs: make(chan domain.SyncJob, size),
		seen: make(map[string]struct{}),
	}
}

// Enqueue buffers the job without blocking.
func (q *Queue) Enqueue(ctx context.Context, job domain.SyncJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Jobs exposes queued jobs to a consumer.
func (q *Queue) Jobs() <-chan domain.SyncJob {
	return q.jobs
}

// RecordCompleted keeps the first completion recorded per sync run.
func (q *Queue) RecordCompleted(ctx context.Context, event events.SyncCompleted) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, dup := q.seen[event.SyncRunID]; dup {
		return nil
	}
	q.seen[event.SyncRunID] = struct{}{}
	q.completed = append(q.completed, event)
	return nil
}

// Completed returns the recorded completions in order.
func (q *Queue) Completed() []events.SyncCompleted {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]events.SyncCompleted(nil), q.completed...)
}
